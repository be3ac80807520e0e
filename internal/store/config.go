package store

import (
	"fmt"
	"net"
	"time"
)

// OlricConfig holds the configuration for the embedded Olric store.
type OlricConfig struct {
	// BindAddr is the address the Olric server binds to.
	BindAddr string

	// BindPort is the port the Olric server binds to.
	BindPort int

	// MemberlistBindPort is the port for the memberlist gossip
	// protocol. 0 picks a random available port.
	MemberlistBindPort int

	// JoinAddrs lists cluster members to join. Empty means
	// single-node mode.
	JoinAddrs []string

	// ReplicationMode is "sync" or "async".
	ReplicationMode string

	// ReplicationFactor is the number of replicas per partition.
	ReplicationFactor int

	// PartitionCount is the number of partitions in the cluster.
	PartitionCount uint64

	// MemberCountQuorum is the number of members the cluster waits for
	// before considering itself ready.
	MemberCountQuorum int

	// JoinRetryInterval is the interval between join attempts.
	JoinRetryInterval time.Duration

	// MaxJoinAttempts caps the number of join attempts.
	MaxJoinAttempts int

	// LogLevel is the log level for Olric internals
	// (DEBUG/INFO/WARN/ERROR).
	LogLevel string

	// KeepAlivePeriod is the TCP keep-alive period.
	KeepAlivePeriod time.Duration

	// RequestTimeout is the timeout for Olric requests.
	RequestTimeout time.Duration

	// DMapName is the distributed map that holds the vault state.
	DMapName string
}

// Defaults for the embedded store.
const (
	DefaultBindAddr           = "0.0.0.0"
	DefaultBindPort           = 3320
	DefaultMemberlistBindPort = 0
	DefaultReplicationMode    = "async"
	DefaultReplicationFactor  = 1
	DefaultPartitionCount     = 271
	DefaultMemberCountQuorum  = 1
	DefaultJoinRetryInterval  = 1 * time.Second
	DefaultMaxJoinAttempts    = 30
	DefaultLogLevel           = "WARN"
	DefaultKeepAlivePeriod    = 30 * time.Second
	DefaultRequestTimeout     = 5 * time.Second
	DefaultDMapName           = "pingpong-vault"
)

// NewDefaultOlricConfig returns an OlricConfig with the defaults above.
func NewDefaultOlricConfig() *OlricConfig {
	return &OlricConfig{
		BindAddr:           DefaultBindAddr,
		BindPort:           DefaultBindPort,
		MemberlistBindPort: DefaultMemberlistBindPort,
		JoinAddrs:          []string{},
		ReplicationMode:    DefaultReplicationMode,
		ReplicationFactor:  DefaultReplicationFactor,
		PartitionCount:     DefaultPartitionCount,
		MemberCountQuorum:  DefaultMemberCountQuorum,
		JoinRetryInterval:  DefaultJoinRetryInterval,
		MaxJoinAttempts:    DefaultMaxJoinAttempts,
		LogLevel:           DefaultLogLevel,
		KeepAlivePeriod:    DefaultKeepAlivePeriod,
		RequestTimeout:     DefaultRequestTimeout,
		DMapName:           DefaultDMapName,
	}
}

// Validate checks if the Olric configuration is valid.
func (c *OlricConfig) Validate() error {
	if c.BindAddr == "" {
		return fmt.Errorf("bind address cannot be empty")
	}

	if net.ParseIP(c.BindAddr) == nil && c.BindAddr != "0.0.0.0" && c.BindAddr != "::" {
		return fmt.Errorf("bind address must be a valid IPv4 or IPv6 address, got: %s", c.BindAddr)
	}

	if c.BindPort < 1 || c.BindPort > 65535 {
		return fmt.Errorf("bind port must be between 1 and 65535, got: %d", c.BindPort)
	}

	if c.MemberlistBindPort != 0 && (c.MemberlistBindPort < 1 || c.MemberlistBindPort > 65535) {
		return fmt.Errorf("memberlist bind port must be between 1 and 65535, got: %d", c.MemberlistBindPort)
	}

	if c.ReplicationMode != "sync" && c.ReplicationMode != "async" {
		return fmt.Errorf("replication mode must be sync or async, got: %s", c.ReplicationMode)
	}

	if c.ReplicationFactor < 1 {
		return fmt.Errorf("replication factor must be at least 1, got: %d", c.ReplicationFactor)
	}

	if c.PartitionCount < 1 {
		return fmt.Errorf("partition count must be at least 1, got: %d", c.PartitionCount)
	}

	if c.MemberCountQuorum < 1 {
		return fmt.Errorf("member count quorum must be at least 1, got: %d", c.MemberCountQuorum)
	}

	if c.JoinRetryInterval <= 0 {
		return fmt.Errorf("join retry interval must be positive, got: %v", c.JoinRetryInterval)
	}

	if c.MaxJoinAttempts < 1 {
		return fmt.Errorf("max join attempts must be at least 1, got: %d", c.MaxJoinAttempts)
	}

	validLogLevels := map[string]bool{
		"DEBUG": true,
		"INFO":  true,
		"WARN":  true,
		"ERROR": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be DEBUG, INFO, WARN, or ERROR)", c.LogLevel)
	}

	if c.KeepAlivePeriod <= 0 {
		return fmt.Errorf("keep alive period must be positive")
	}

	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be positive")
	}

	if c.DMapName == "" {
		return fmt.Errorf("dmap name cannot be empty")
	}

	if len(c.JoinAddrs) > 0 {
		if c.MemberCountQuorum > len(c.JoinAddrs)+1 {
			return fmt.Errorf("member count quorum (%d) cannot be greater than number of join addresses + 1 (%d)",
				c.MemberCountQuorum, len(c.JoinAddrs)+1)
		}

		// The vault's whole state lives in this store; a cluster that
		// keeps a single replica of it would lose custody records on
		// any member failure.
		if c.ReplicationFactor < 2 {
			return fmt.Errorf("replication factor should be at least 2 in multi-node mode (current: %d)", c.ReplicationFactor)
		}
	}

	return nil
}

// IsSingleNode returns true when no join addresses are configured.
func (c *OlricConfig) IsSingleNode() bool {
	return len(c.JoinAddrs) == 0
}
