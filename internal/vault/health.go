package vault

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/pingpong-vault/service/internal/health"
	"github.com/pingpong-vault/service/internal/ledger"
)

// InitializedHealthChecker reports whether the vault settings and
// owner are present in the ledger. Until Initialize has run the
// service cannot serve any operation.
type InitializedHealthChecker struct {
	logger *zap.Logger
	ledger ledger.Ledger
}

// NewInitializedHealthChecker creates a new vault initialization checker.
func NewInitializedHealthChecker(logger *zap.Logger, l ledger.Ledger) *InitializedHealthChecker {
	return &InitializedHealthChecker{
		logger: logger,
		ledger: l,
	}
}

// Name returns the name of the health check.
func (c *InitializedHealthChecker) Name() string {
	return "vault"
}

// Check performs the health check.
func (c *InitializedHealthChecker) Check(ctx context.Context) health.CheckResult {
	start := time.Now()

	checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	settings, err := c.ledger.Settings(checkCtx)

	result := health.CheckResult{
		Name:      c.Name(),
		Timestamp: time.Now(),
		Duration:  time.Since(start),
	}

	switch {
	case errors.Is(err, ledger.ErrNotInitialized):
		result.Status = health.StatusStarting
		result.Message = "Vault not initialized yet"
	case err != nil:
		result.Status = health.StatusError
		result.Message = fmt.Sprintf("Failed to read vault settings: %v", err)
		c.logger.Warn("Vault health check failed", zap.Error(err))
	default:
		result.Status = health.StatusOK
		result.Message = fmt.Sprintf("Vault initialized for asset %s", settings.AssetID)
	}

	return result
}
