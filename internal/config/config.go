package config

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/pingpong-vault/service/internal/store"
)

// Config holds all configuration for the service.
type Config struct {
	// API server settings
	APIPort int
	APIHost string

	// Probe server settings
	ProbePort int
	ProbeHost string

	// Metrics server settings
	MetricsPort int
	MetricsHost string

	// TLS settings
	TLSEnabled bool
	TLSCert    string
	TLSKey     string

	// Logging settings
	LogLevel  string
	LogFormat string

	// Graceful shutdown timeout
	ShutdownTimeout time.Duration

	// Health check settings
	HealthCheckTimeout       time.Duration
	HealthCheckCacheDuration time.Duration

	// Metrics settings
	MetricsNamespace string

	// Vault bootstrap settings. These are the initialization
	// parameters of the vault state machine and only take effect the
	// first time the service runs against an empty store; after that
	// the stored settings win and retuning goes through the API.
	VaultOwner           string
	VaultAssetID         string
	VaultDepositAmount   string
	VaultDurationSeconds uint64

	// Embedded store settings
	Olric *store.OlricConfig
}

// Load reads configuration from environment variables, config file, and flags.
func Load() (*Config, error) {
	// Set defaults
	viper.SetDefault("api.port", 8080)
	viper.SetDefault("api.host", "0.0.0.0")
	viper.SetDefault("probe.port", 8081)
	viper.SetDefault("probe.host", "0.0.0.0")
	viper.SetDefault("metrics.port", 9090)
	viper.SetDefault("metrics.host", "0.0.0.0")
	viper.SetDefault("tls.enabled", false)
	viper.SetDefault("tls.cert", "")
	viper.SetDefault("tls.key", "")
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "json")
	viper.SetDefault("shutdown.timeout", "30s")
	viper.SetDefault("health.check_timeout", "5s")
	viper.SetDefault("health.cache_duration", "10s")
	viper.SetDefault("vault.owner", "")
	viper.SetDefault("vault.asset_id", "")
	viper.SetDefault("vault.deposit_amount", "1000000")
	viper.SetDefault("vault.duration_seconds", 3600)
	viper.SetDefault("olric.host", store.DefaultBindAddr)
	viper.SetDefault("olric.port", store.DefaultBindPort)
	viper.SetDefault("olric.memberlist_port", store.DefaultMemberlistBindPort)
	viper.SetDefault("olric.join_addrs", []string{})
	viper.SetDefault("olric.replication_mode", store.DefaultReplicationMode)
	viper.SetDefault("olric.replication_factor", store.DefaultReplicationFactor)
	viper.SetDefault("olric.partition_count", store.DefaultPartitionCount)
	viper.SetDefault("olric.member_count_quorum", store.DefaultMemberCountQuorum)
	viper.SetDefault("olric.join_retry_interval", store.DefaultJoinRetryInterval)
	viper.SetDefault("olric.max_join_attempts", store.DefaultMaxJoinAttempts)
	viper.SetDefault("olric.log_level", "")
	viper.SetDefault("olric.keep_alive_period", store.DefaultKeepAlivePeriod)
	viper.SetDefault("olric.request_timeout", store.DefaultRequestTimeout)
	viper.SetDefault("olric.dmap_name", store.DefaultDMapName)

	// Enable environment variable support with automatic replacement
	viper.SetEnvPrefix("VAULT")
	viper.AutomaticEnv()
	// Replace . with _ in environment variable names (e.g., api.port -> VAULT_API_PORT)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Try to read config file if it exists
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("/etc/pingpong-vault/")

	// Reading config file is optional
	_ = viper.ReadInConfig()

	// Parse configuration
	cfg := &Config{
		APIPort:              viper.GetInt("api.port"),
		APIHost:              viper.GetString("api.host"),
		ProbePort:            viper.GetInt("probe.port"),
		ProbeHost:            viper.GetString("probe.host"),
		MetricsPort:          viper.GetInt("metrics.port"),
		MetricsHost:          viper.GetString("metrics.host"),
		TLSEnabled:           viper.GetBool("tls.enabled"),
		TLSCert:              viper.GetString("tls.cert"),
		TLSKey:               viper.GetString("tls.key"),
		LogLevel:             viper.GetString("log.level"),
		LogFormat:            viper.GetString("log.format"),
		MetricsNamespace:     "pingpong_vault", // Fixed value, not configurable
		VaultOwner:           viper.GetString("vault.owner"),
		VaultAssetID:         viper.GetString("vault.asset_id"),
		VaultDepositAmount:   viper.GetString("vault.deposit_amount"),
		VaultDurationSeconds: viper.GetUint64("vault.duration_seconds"),
	}

	// The Olric log level falls back to the service log level when not
	// set explicitly.
	olricLogLevel := viper.GetString("olric.log_level")
	if olricLogLevel == "" {
		olricLogLevel = strings.ToUpper(cfg.LogLevel)
	}

	cfg.Olric = &store.OlricConfig{
		BindAddr:           viper.GetString("olric.host"),
		BindPort:           viper.GetInt("olric.port"),
		MemberlistBindPort: viper.GetInt("olric.memberlist_port"),
		JoinAddrs:          viper.GetStringSlice("olric.join_addrs"),
		ReplicationMode:    viper.GetString("olric.replication_mode"),
		ReplicationFactor:  viper.GetInt("olric.replication_factor"),
		PartitionCount:     viper.GetUint64("olric.partition_count"),
		MemberCountQuorum:  viper.GetInt("olric.member_count_quorum"),
		JoinRetryInterval:  viper.GetDuration("olric.join_retry_interval"),
		MaxJoinAttempts:    viper.GetInt("olric.max_join_attempts"),
		LogLevel:           olricLogLevel,
		KeepAlivePeriod:    viper.GetDuration("olric.keep_alive_period"),
		RequestTimeout:     viper.GetDuration("olric.request_timeout"),
		DMapName:           viper.GetString("olric.dmap_name"),
	}

	// Parse shutdown timeout
	timeout, err := time.ParseDuration(viper.GetString("shutdown.timeout"))
	if err != nil {
		return nil, fmt.Errorf("invalid shutdown timeout: %w", err)
	}
	cfg.ShutdownTimeout = timeout

	// Parse health check timeout
	healthTimeout, err := time.ParseDuration(viper.GetString("health.check_timeout"))
	if err != nil {
		return nil, fmt.Errorf("invalid health check timeout: %w", err)
	}
	cfg.HealthCheckTimeout = healthTimeout

	// Parse health check cache duration
	cacheDuration, err := time.ParseDuration(viper.GetString("health.cache_duration"))
	if err != nil {
		return nil, fmt.Errorf("invalid health check cache duration: %w", err)
	}
	cfg.HealthCheckCacheDuration = cacheDuration

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// DepositAmount parses the configured deposit amount. Only valid after
// Validate has passed.
func (c *Config) DepositAmount() *big.Int {
	amount, _ := new(big.Int).SetString(c.VaultDepositAmount, 10)
	return amount
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.APIPort < 1 || c.APIPort > 65535 {
		return fmt.Errorf("invalid API port: %d", c.APIPort)
	}
	if c.ProbePort < 1 || c.ProbePort > 65535 {
		return fmt.Errorf("invalid probe port: %d", c.ProbePort)
	}
	if c.MetricsPort < 1 || c.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics port: %d", c.MetricsPort)
	}

	if c.TLSEnabled {
		if c.TLSCert == "" {
			return fmt.Errorf("TLS enabled but no certificate path provided")
		}
		if c.TLSKey == "" {
			return fmt.Errorf("TLS enabled but no key path provided")
		}
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.LogLevel)
	}

	validLogFormats := map[string]bool{
		"json":    true,
		"console": true,
	}
	if !validLogFormats[c.LogFormat] {
		return fmt.Errorf("invalid log format: %s (must be json or console)", c.LogFormat)
	}

	if c.ShutdownTimeout < 0 {
		return fmt.Errorf("invalid shutdown timeout: %s (must be positive)", c.ShutdownTimeout)
	}

	if c.HealthCheckTimeout <= 0 {
		return fmt.Errorf("invalid health check timeout: %s (must be positive)", c.HealthCheckTimeout)
	}

	if c.HealthCheckCacheDuration < 0 {
		return fmt.Errorf("invalid health check cache duration: %s (must be non-negative, zero disables caching)", c.HealthCheckCacheDuration)
	}

	if c.MetricsNamespace == "" {
		return fmt.Errorf("metrics namespace cannot be empty")
	}

	if c.VaultOwner == "" {
		return fmt.Errorf("vault owner identity must be set")
	}

	// The state machine enforces these again at initialization;
	// checking here fails fast on a bad deployment.
	amount, ok := new(big.Int).SetString(c.VaultDepositAmount, 10)
	if !ok {
		return fmt.Errorf("invalid vault deposit amount: %q (must be a base-10 unsigned integer)", c.VaultDepositAmount)
	}
	if amount.Sign() <= 0 {
		return fmt.Errorf("vault deposit amount must be greater than zero")
	}

	if c.VaultDurationSeconds == 0 {
		return fmt.Errorf("vault lock duration must be greater than zero")
	}

	if c.Olric != nil {
		if err := c.Olric.Validate(); err != nil {
			return fmt.Errorf("invalid olric configuration: %w", err)
		}
	}

	return nil
}
