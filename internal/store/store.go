package store

import (
	"context"
	"time"
)

// Store is the distributed key/value storage the vault persists into.
// The ledger and treasury layers serialize their records into it; it
// carries no knowledge of what the keys mean.
type Store interface {
	// Put stores a value with an optional TTL. A ttl of 0 means the
	// key never expires.
	Put(ctx context.Context, key string, value interface{}, ttl time.Duration) error

	// Get retrieves a value for the given key. Returns an error with
	// message "key not found" when the key does not exist.
	Get(ctx context.Context, key string) (interface{}, error)

	// Delete removes a value for the given key. Deleting a missing key
	// is not an error.
	Delete(ctx context.Context, key string) error

	// Scan returns the keys whose names match the given regular
	// expression.
	Scan(ctx context.Context, match string) ([]string, error)

	// Ping verifies connectivity to the store. Used by health checks.
	Ping(ctx context.Context) error

	// Stats returns current statistics about the store cluster.
	Stats(ctx context.Context) (*Stats, error)

	// Close gracefully shuts down the store. For the embedded Olric
	// store this leaves the cluster and stops the server.
	Close(ctx context.Context) error
}

// Stats describes the state of the store cluster.
type Stats struct {
	// ClusterMembers is the number of active members in the cluster.
	ClusterMembers int

	// PartitionCount is the number of partitions data is spread over.
	PartitionCount int

	// ReplicationFactor is the number of copies of each partition.
	ReplicationFactor int
}
