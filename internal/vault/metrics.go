package vault

import (
	"context"
	"errors"
	"math/big"
	"time"

	"go.uber.org/zap"

	"github.com/pingpong-vault/service/internal/ledger"
	"github.com/pingpong-vault/service/internal/metrics"
	"github.com/pingpong-vault/service/internal/treasury"
)

// MetricsCollector polls the ledger and treasury and publishes the
// active-lock count and custody balance as metrics. Deriving both from
// the store keeps the gauges correct across restarts and when another
// cluster member mutates the shared state.
type MetricsCollector struct {
	logger   *zap.Logger
	ledger   ledger.Ledger
	treasury treasury.Treasury
	metrics  *metrics.Metrics
	interval time.Duration
	stopChan chan struct{}
	doneChan chan struct{}
}

// NewMetricsCollector creates a new vault metrics collector.
func NewMetricsCollector(logger *zap.Logger, l ledger.Ledger, t treasury.Treasury, m *metrics.Metrics, interval time.Duration) *MetricsCollector {
	return &MetricsCollector{
		logger:   logger,
		ledger:   l,
		treasury: t,
		metrics:  m,
		interval: interval,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
}

// Start begins collecting metrics.
func (c *MetricsCollector) Start() {
	go c.run()
}

// Stop stops the metrics collector and waits for it to finish.
func (c *MetricsCollector) Stop() {
	close(c.stopChan)
	<-c.doneChan
}

func (c *MetricsCollector) run() {
	defer close(c.doneChan)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.collect()

	for {
		select {
		case <-ticker.C:
			c.collect()
		case <-c.stopChan:
			c.logger.Info("Stopping vault metrics collector")
			return
		}
	}
}

func (c *MetricsCollector) collect() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	count, err := c.ledger.CountLocks(ctx)
	if err != nil {
		c.logger.Error("Failed to count active locks", zap.Error(err))
	} else {
		c.metrics.ActiveLocks.Set(float64(count))
	}

	settings, err := c.ledger.Settings(ctx)
	if err != nil {
		if !errors.Is(err, ledger.ErrNotInitialized) {
			c.logger.Error("Failed to get settings for metrics", zap.Error(err))
		}
		return
	}

	balance, err := c.treasury.Balance(ctx, settings.AssetID)
	if err != nil {
		c.logger.Error("Failed to get custody balance", zap.Error(err))
		return
	}

	value, _ := new(big.Float).SetInt(balance).Float64()
	c.metrics.CustodyBalance.WithLabelValues(settings.AssetID).Set(value)

	c.logger.Debug("Collected vault metrics",
		zap.Int("active_locks", count),
		zap.String("custody_balance", balance.String()),
	)
}
