package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"go.uber.org/zap"

	"github.com/pingpong-vault/service/internal/model"
	"github.com/pingpong-vault/service/internal/store"
)

// Common errors returned by the ledger layer.
var (
	// ErrNoLock is returned when a party has no active deposit.
	ErrNoLock = errors.New("no lock found for party")

	// ErrNotInitialized is returned when the vault settings have not
	// been written yet.
	ErrNotInitialized = errors.New("vault not initialized")
)

// Keys used in the backing store. Party locks are namespaced so they
// cannot collide with the singleton keys.
const (
	settingsKey = "vault:settings"
	ownerKey    = "vault:owner"
	pausedKey   = "vault:paused"
	lockPrefix  = "lock:"
)

// Ledger is the persistence boundary for the vault state machine. It
// stores the singleton settings, owner identity and pause flag, and
// the per-party lock entries. Every method maps to a single key
// operation in the backing store.
type Ledger interface {
	// Settings returns the vault settings, or ErrNotInitialized if
	// they have never been written.
	Settings(ctx context.Context) (*model.Settings, error)

	// SaveSettings overwrites the vault settings.
	SaveSettings(ctx context.Context, s *model.Settings) error

	// Owner returns the owner identity, or ErrNotInitialized.
	Owner(ctx context.Context) (string, error)

	// SaveOwner persists the owner identity.
	SaveOwner(ctx context.Context, owner string) error

	// Paused returns the pause flag. A missing flag reads as false.
	Paused(ctx context.Context) (bool, error)

	// SetPaused persists the pause flag.
	SetPaused(ctx context.Context, paused bool) error

	// Lock returns the party's lock entry, or ErrNoLock.
	Lock(ctx context.Context, party string) (*model.Lock, error)

	// PutLock creates or overwrites the party's lock entry.
	PutLock(ctx context.Context, party string, depositTimestamp uint64) error

	// DeleteLock removes the party's lock entry. Removing a missing
	// entry is not an error.
	DeleteLock(ctx context.Context, party string) error

	// CountLocks returns the number of active lock entries.
	CountLocks(ctx context.Context) (int, error)
}

// StoreLedger implements Ledger on top of the distributed key/value
// store. Values are serialized as JSON strings.
type StoreLedger struct {
	store  store.Store
	logger *zap.Logger
}

// NewStoreLedger creates a ledger backed by the given store.
func NewStoreLedger(st store.Store, logger *zap.Logger) *StoreLedger {
	return &StoreLedger{
		store:  st,
		logger: logger,
	}
}

// storedSettings is the persisted form of model.Settings. The deposit
// amount is kept as a base-10 string so precision never depends on the
// store's number handling.
type storedSettings struct {
	AssetID         string `json:"asset_id"`
	DepositAmount   string `json:"deposit_amount"`
	DurationSeconds uint64 `json:"duration_seconds"`
}

// Settings returns the vault settings, or ErrNotInitialized.
func (l *StoreLedger) Settings(ctx context.Context) (*model.Settings, error) {
	raw, err := l.getString(ctx, settingsKey)
	if err != nil {
		if errors.Is(err, errKeyNotFound) {
			return nil, ErrNotInitialized
		}
		return nil, fmt.Errorf("failed to get settings: %w", err)
	}

	var stored storedSettings
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return nil, fmt.Errorf("failed to deserialize settings: %w", err)
	}

	amount, ok := new(big.Int).SetString(stored.DepositAmount, 10)
	if !ok {
		return nil, fmt.Errorf("corrupt deposit amount in store: %q", stored.DepositAmount)
	}

	return &model.Settings{
		AssetID:         stored.AssetID,
		DepositAmount:   amount,
		DurationSeconds: stored.DurationSeconds,
	}, nil
}

// SaveSettings overwrites the vault settings.
func (l *StoreLedger) SaveSettings(ctx context.Context, s *model.Settings) error {
	stored := storedSettings{
		AssetID:         s.AssetID,
		DepositAmount:   s.DepositAmount.String(),
		DurationSeconds: s.DurationSeconds,
	}

	data, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("failed to serialize settings: %w", err)
	}

	if err := l.store.Put(ctx, settingsKey, string(data), 0); err != nil {
		return fmt.Errorf("failed to store settings: %w", err)
	}

	l.logger.Info("Vault settings saved",
		zap.String("asset_id", s.AssetID),
		zap.String("deposit_amount", s.DepositAmount.String()),
		zap.Uint64("duration_seconds", s.DurationSeconds),
	)

	return nil
}

// Owner returns the owner identity, or ErrNotInitialized.
func (l *StoreLedger) Owner(ctx context.Context) (string, error) {
	owner, err := l.getString(ctx, ownerKey)
	if err != nil {
		if errors.Is(err, errKeyNotFound) {
			return "", ErrNotInitialized
		}
		return "", fmt.Errorf("failed to get owner: %w", err)
	}
	return owner, nil
}

// SaveOwner persists the owner identity.
func (l *StoreLedger) SaveOwner(ctx context.Context, owner string) error {
	if err := l.store.Put(ctx, ownerKey, owner, 0); err != nil {
		return fmt.Errorf("failed to store owner: %w", err)
	}
	return nil
}

// Paused returns the pause flag. A missing flag reads as false so a
// fresh vault starts unpaused.
func (l *StoreLedger) Paused(ctx context.Context) (bool, error) {
	raw, err := l.getString(ctx, pausedKey)
	if err != nil {
		if errors.Is(err, errKeyNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to get pause flag: %w", err)
	}
	return raw == "true", nil
}

// SetPaused persists the pause flag.
func (l *StoreLedger) SetPaused(ctx context.Context, paused bool) error {
	value := "false"
	if paused {
		value = "true"
	}
	if err := l.store.Put(ctx, pausedKey, value, 0); err != nil {
		return fmt.Errorf("failed to store pause flag: %w", err)
	}
	return nil
}

// Lock returns the party's lock entry, or ErrNoLock.
func (l *StoreLedger) Lock(ctx context.Context, party string) (*model.Lock, error) {
	if party == "" {
		return nil, fmt.Errorf("party cannot be empty")
	}

	raw, err := l.getString(ctx, lockPrefix+party)
	if err != nil {
		if errors.Is(err, errKeyNotFound) {
			return nil, ErrNoLock
		}
		return nil, fmt.Errorf("failed to get lock: %w", err)
	}

	var lock model.Lock
	if err := json.Unmarshal([]byte(raw), &lock); err != nil {
		return nil, fmt.Errorf("failed to deserialize lock: %w", err)
	}

	return &lock, nil
}

// PutLock creates or overwrites the party's lock entry.
func (l *StoreLedger) PutLock(ctx context.Context, party string, depositTimestamp uint64) error {
	if party == "" {
		return fmt.Errorf("party cannot be empty")
	}

	lock := model.Lock{
		Party:            party,
		DepositTimestamp: depositTimestamp,
	}

	data, err := json.Marshal(lock)
	if err != nil {
		return fmt.Errorf("failed to serialize lock: %w", err)
	}

	// Locks never expire on their own; eligibility is computed against
	// logical time, not a store TTL.
	if err := l.store.Put(ctx, lockPrefix+party, string(data), 0); err != nil {
		return fmt.Errorf("failed to store lock: %w", err)
	}

	l.logger.Debug("Lock entry written",
		zap.String("party", party),
		zap.Uint64("deposit_timestamp", depositTimestamp),
	)

	return nil
}

// DeleteLock removes the party's lock entry. Idempotent.
func (l *StoreLedger) DeleteLock(ctx context.Context, party string) error {
	if party == "" {
		return fmt.Errorf("party cannot be empty")
	}

	if err := l.store.Delete(ctx, lockPrefix+party); err != nil {
		return fmt.Errorf("failed to delete lock: %w", err)
	}

	l.logger.Debug("Lock entry removed", zap.String("party", party))
	return nil
}

// CountLocks returns the number of active lock entries by scanning the
// lock key namespace.
func (l *StoreLedger) CountLocks(ctx context.Context) (int, error) {
	keys, err := l.store.Scan(ctx, "^"+lockPrefix)
	if err != nil {
		return 0, fmt.Errorf("failed to scan locks: %w", err)
	}
	return len(keys), nil
}

// errKeyNotFound normalizes the store's missing-key error so callers
// can use errors.Is.
var errKeyNotFound = errors.New("key not found")

// getString reads a key and asserts the stored value is a string.
func (l *StoreLedger) getString(ctx context.Context, key string) (string, error) {
	value, err := l.store.Get(ctx, key)
	if err != nil {
		if err.Error() == "key not found" {
			return "", errKeyNotFound
		}
		return "", err
	}

	s, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("invalid value type for %s: expected string, got %T", key, value)
	}
	return s, nil
}
