package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/pingpong-vault/service/internal/config"
	"github.com/pingpong-vault/service/internal/events"
	"github.com/pingpong-vault/service/internal/handlers"
	"github.com/pingpong-vault/service/internal/health"
	"github.com/pingpong-vault/service/internal/ledger"
	"github.com/pingpong-vault/service/internal/logger"
	"github.com/pingpong-vault/service/internal/metrics"
	"github.com/pingpong-vault/service/internal/server"
	"github.com/pingpong-vault/service/internal/store"
	"github.com/pingpong-vault/service/internal/treasury"
	"github.com/pingpong-vault/service/internal/vault"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "pingpongd",
	Short: "Ping-pong vault service",
	Long:  `A time-locked deposit vault where parties ping a fixed deposit in and pong it back out once the lock duration has elapsed.`,
	RunE:  runServer,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("Version: %s\n", version)
		fmt.Printf("Commit:  %s\n", commit)
		fmt.Printf("Built:   %s\n", date)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)

	// Configuration flags
	rootCmd.Flags().Int("api-port", 8080, "API server port")
	rootCmd.Flags().String("api-host", "0.0.0.0", "API server host")
	rootCmd.Flags().Int("probe-port", 8081, "Probe server port")
	rootCmd.Flags().String("probe-host", "0.0.0.0", "Probe server host")
	rootCmd.Flags().Int("metrics-port", 9090, "Metrics server port")
	rootCmd.Flags().String("metrics-host", "0.0.0.0", "Metrics server host")
	rootCmd.Flags().Bool("tls-enabled", false, "Enable TLS for API server")
	rootCmd.Flags().String("tls-cert", "", "Path to TLS certificate")
	rootCmd.Flags().String("tls-key", "", "Path to TLS key")
	rootCmd.Flags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.Flags().String("log-format", "json", "Log format (json, console)")
	rootCmd.Flags().Duration("shutdown-timeout", 30*time.Second, "Graceful shutdown timeout (e.g., 30s)")
	rootCmd.Flags().Duration("health-check-timeout", 5*time.Second, "Health check timeout (e.g., 5s)")
	rootCmd.Flags().Duration("health-cache-duration", 10*time.Second, "Health check cache duration (e.g., 10s)")

	// Vault flags
	rootCmd.Flags().String("vault-owner", "", "Owner identity for administrative operations")
	rootCmd.Flags().String("vault-asset-id", "", "Accepted asset identifier (empty accepts the native asset)")
	rootCmd.Flags().String("vault-deposit-amount", "1000000", "Exact deposit amount required on ping")
	rootCmd.Flags().Uint64("vault-duration-seconds", 3600, "Lock duration in seconds")

	// Olric configuration flags
	rootCmd.Flags().String("olric-host", store.DefaultBindAddr, "Olric bind host")
	rootCmd.Flags().Int("olric-port", store.DefaultBindPort, "Olric bind port")
	rootCmd.Flags().Int("olric-memberlist-port", store.DefaultMemberlistBindPort, "Olric memberlist port (0 picks a random port)")
	rootCmd.Flags().StringSlice("olric-join-addrs", []string{}, "Olric cluster join addresses")
	rootCmd.Flags().String("olric-replication-mode", store.DefaultReplicationMode, "Olric replication mode (sync/async)")
	rootCmd.Flags().Int("olric-replication-factor", store.DefaultReplicationFactor, "Olric replication factor")
	rootCmd.Flags().Int("olric-partition-count", int(store.DefaultPartitionCount), "Olric partition count")
	rootCmd.Flags().Int("olric-member-count-quorum", store.DefaultMemberCountQuorum, "Olric member count quorum")
	rootCmd.Flags().Duration("olric-join-retry-interval", store.DefaultJoinRetryInterval, "Olric join retry interval")
	rootCmd.Flags().Int("olric-max-join-attempts", store.DefaultMaxJoinAttempts, "Olric max join attempts")
	rootCmd.Flags().String("olric-log-level", "", "Olric log level (DEBUG/INFO/WARN/ERROR, defaults to main log level)")
	rootCmd.Flags().Duration("olric-keep-alive-period", store.DefaultKeepAlivePeriod, "Olric keep alive period")
	rootCmd.Flags().Duration("olric-request-timeout", store.DefaultRequestTimeout, "Olric request timeout")
	rootCmd.Flags().String("olric-dmap-name", store.DefaultDMapName, "Olric DMap name")

	// Bind flags to viper
	_ = viper.BindPFlag("api.port", rootCmd.Flags().Lookup("api-port"))
	_ = viper.BindPFlag("api.host", rootCmd.Flags().Lookup("api-host"))
	_ = viper.BindPFlag("probe.port", rootCmd.Flags().Lookup("probe-port"))
	_ = viper.BindPFlag("probe.host", rootCmd.Flags().Lookup("probe-host"))
	_ = viper.BindPFlag("metrics.port", rootCmd.Flags().Lookup("metrics-port"))
	_ = viper.BindPFlag("metrics.host", rootCmd.Flags().Lookup("metrics-host"))
	_ = viper.BindPFlag("tls.enabled", rootCmd.Flags().Lookup("tls-enabled"))
	_ = viper.BindPFlag("tls.cert", rootCmd.Flags().Lookup("tls-cert"))
	_ = viper.BindPFlag("tls.key", rootCmd.Flags().Lookup("tls-key"))
	_ = viper.BindPFlag("log.level", rootCmd.Flags().Lookup("log-level"))
	_ = viper.BindPFlag("log.format", rootCmd.Flags().Lookup("log-format"))
	_ = viper.BindPFlag("shutdown.timeout", rootCmd.Flags().Lookup("shutdown-timeout"))
	_ = viper.BindPFlag("health.check_timeout", rootCmd.Flags().Lookup("health-check-timeout"))
	_ = viper.BindPFlag("health.cache_duration", rootCmd.Flags().Lookup("health-cache-duration"))
	_ = viper.BindPFlag("vault.owner", rootCmd.Flags().Lookup("vault-owner"))
	_ = viper.BindPFlag("vault.asset_id", rootCmd.Flags().Lookup("vault-asset-id"))
	_ = viper.BindPFlag("vault.deposit_amount", rootCmd.Flags().Lookup("vault-deposit-amount"))
	_ = viper.BindPFlag("vault.duration_seconds", rootCmd.Flags().Lookup("vault-duration-seconds"))
	_ = viper.BindPFlag("olric.host", rootCmd.Flags().Lookup("olric-host"))
	_ = viper.BindPFlag("olric.port", rootCmd.Flags().Lookup("olric-port"))
	_ = viper.BindPFlag("olric.memberlist_port", rootCmd.Flags().Lookup("olric-memberlist-port"))
	_ = viper.BindPFlag("olric.join_addrs", rootCmd.Flags().Lookup("olric-join-addrs"))
	_ = viper.BindPFlag("olric.replication_mode", rootCmd.Flags().Lookup("olric-replication-mode"))
	_ = viper.BindPFlag("olric.replication_factor", rootCmd.Flags().Lookup("olric-replication-factor"))
	_ = viper.BindPFlag("olric.partition_count", rootCmd.Flags().Lookup("olric-partition-count"))
	_ = viper.BindPFlag("olric.member_count_quorum", rootCmd.Flags().Lookup("olric-member-count-quorum"))
	_ = viper.BindPFlag("olric.join_retry_interval", rootCmd.Flags().Lookup("olric-join-retry-interval"))
	_ = viper.BindPFlag("olric.max_join_attempts", rootCmd.Flags().Lookup("olric-max-join-attempts"))
	_ = viper.BindPFlag("olric.log_level", rootCmd.Flags().Lookup("olric-log-level"))
	_ = viper.BindPFlag("olric.keep_alive_period", rootCmd.Flags().Lookup("olric-keep-alive-period"))
	_ = viper.BindPFlag("olric.request_timeout", rootCmd.Flags().Lookup("olric-request-timeout"))
	_ = viper.BindPFlag("olric.dmap_name", rootCmd.Flags().Lookup("olric-dmap-name"))
}

func runServer(cmd *cobra.Command, args []string) error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Initialize logger
	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Sync()

	log.Info("Starting ping-pong vault service",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("date", date),
	)

	// Start the embedded store
	storeCtx, storeCancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer storeCancel()

	olricStore, err := store.NewOlricStore(storeCtx, cfg.Olric, log)
	if err != nil {
		return fmt.Errorf("failed to start store: %w", err)
	}

	// Assemble the vault state machine over the store
	vaultLedger := ledger.NewStoreLedger(olricStore, log)
	vaultTreasury := treasury.NewStoreTreasury(olricStore, log)
	publisher := events.NewLogPublisher(log)

	v := vault.New(vaultLedger, vaultTreasury, publisher, vault.SystemClock{}, log)

	initCtx, initCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer initCancel()

	if err := v.Initialize(initCtx, vault.InitialSettings{
		Owner:           cfg.VaultOwner,
		DepositAmount:   cfg.DepositAmount(),
		DurationSeconds: cfg.VaultDurationSeconds,
		AssetID:         cfg.VaultAssetID,
	}); err != nil {
		_ = olricStore.Close(context.Background())
		return fmt.Errorf("failed to initialize vault: %w", err)
	}

	// Metrics and handlers
	buildInfo := map[string]string{
		"version": version,
		"commit":  commit,
		"date":    date,
	}
	m := metrics.NewMetrics(cfg.MetricsNamespace, buildInfo)
	vaultHandlers := handlers.NewVaultHandlers(v, log, m)

	// Health checks
	healthManager := health.NewManager(log, cfg.HealthCheckCacheDuration, cfg.HealthCheckTimeout)
	healthManager.RegisterChecker(health.NewConfigChecker(log))
	healthManager.RegisterChecker(health.NewLoggerChecker(log))
	healthManager.RegisterChecker(health.NewServerChecker(log))
	healthManager.RegisterChecker(health.NewReadinessChecker(log))
	healthManager.RegisterChecker(store.NewConnectionHealthChecker(log, olricStore))
	healthManager.RegisterChecker(store.NewClusterHealthChecker(log, olricStore, cfg.Olric.MemberCountQuorum, cfg.Olric.IsSingleNode()))
	healthManager.RegisterChecker(store.NewStorageHealthChecker(log, olricStore))
	healthManager.RegisterChecker(vault.NewInitializedHealthChecker(log, vaultLedger))

	// Store metrics collector
	olricMetrics := store.NewOlricMetrics(cfg.MetricsNamespace, m.Registry())
	collector := store.NewOlricMetricsCollector(log, olricStore, olricMetrics, 15*time.Second)
	collector.Start()

	// Vault metrics collector. Derives the active-lock count and
	// custody balance from the store so the gauges survive restarts.
	vaultCollector := vault.NewMetricsCollector(log, vaultLedger, vaultTreasury, m, 15*time.Second)
	vaultCollector.Start()

	// Start the HTTP servers
	srv := server.New(cfg, log, m, vaultHandlers, healthManager)
	if err := srv.Start(); err != nil {
		vaultCollector.Stop()
		collector.Stop()
		_ = olricStore.Close(context.Background())
		return fmt.Errorf("failed to start server: %w", err)
	}

	log.Info("Service started successfully")

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info("Shutdown signal received")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	vaultCollector.Stop()
	collector.Stop()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Error during shutdown", zap.Error(err))
		_ = olricStore.Close(ctx)
		return err
	}

	if err := olricStore.Close(ctx); err != nil {
		log.Error("Error shutting down store", zap.Error(err))
		return err
	}

	log.Info("Service stopped gracefully")
	return nil
}
