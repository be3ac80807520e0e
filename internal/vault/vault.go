package vault

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/big"
	"sync"

	"go.uber.org/zap"

	"github.com/pingpong-vault/service/internal/events"
	"github.com/pingpong-vault/service/internal/ledger"
	"github.com/pingpong-vault/service/internal/model"
	"github.com/pingpong-vault/service/internal/treasury"
)

// NativeAssetID is the asset the vault accepts when none is configured.
const NativeAssetID = "native"

// Service is the operation surface of the vault state machine. Each
// party is in exactly one of two states: no lock, or locked since a
// deposit timestamp. Ping moves a party to locked, Pong moves it back,
// and nothing else transitions state.
type Service interface {
	// Ping records a deposit for party with the attached payment
	// (asset, amount). The payment enters vault custody and the party
	// becomes locked at the current logical time.
	Ping(ctx context.Context, party, asset string, amount *big.Int) (*model.Lock, error)

	// Pong withdraws party's deposit once the lock duration has
	// elapsed. The lock entry is removed before the payout is made.
	Pong(ctx context.Context, party string) error

	// ExtendLock pushes party's eligible time additionalSeconds
	// further into the future.
	ExtendLock(ctx context.Context, party string, additionalSeconds uint64) (*model.Lock, error)

	// Retune replaces the deposit amount and lock duration. Owner only.
	Retune(ctx context.Context, caller string, depositAmount *big.Int, durationSeconds uint64) error

	// Pause and Resume toggle the lifecycle gate. Owner only,
	// idempotent, and not themselves gated.
	Pause(ctx context.Context, caller string) error
	Resume(ctx context.Context, caller string) error

	// Views. None of them mutate state or consult the gate.
	HasActiveLock(ctx context.Context, party string) (bool, error)
	DepositTimestamp(ctx context.Context, party string) (uint64, error)
	EligibleTime(ctx context.Context, party string) (uint64, error)
	TimeRemaining(ctx context.Context, party string) (*uint64, error)
	Settings(ctx context.Context) (*model.Settings, error)
	IsPaused(ctx context.Context) (bool, error)
	Owner(ctx context.Context) (string, error)
}

// Vault implements Service. A single mutex serializes every mutating
// operation so each call observes and leaves a consistent state; views
// read without it.
type Vault struct {
	mu sync.Mutex

	ledger   ledger.Ledger
	treasury treasury.Treasury
	events   events.Publisher
	clock    Clock
	logger   *zap.Logger
}

// InitialSettings carries the parameters for first-time vault
// initialization. AssetID may be empty, in which case the native asset
// is accepted.
type InitialSettings struct {
	Owner           string
	DepositAmount   *big.Int
	DurationSeconds uint64
	AssetID         string
}

// New creates a Vault over its collaborators. Initialize must be
// called before any operation is served.
func New(l ledger.Ledger, t treasury.Treasury, p events.Publisher, c Clock, logger *zap.Logger) *Vault {
	return &Vault{
		ledger:   l,
		treasury: t,
		events:   p,
		clock:    c,
		logger:   logger,
	}
}

// Initialize validates and persists the vault settings and owner. It
// runs exactly once per vault lifetime: if settings already exist in
// the ledger (a restart), the stored state wins and the supplied
// values are ignored.
func (v *Vault) Initialize(ctx context.Context, init InitialSettings) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if _, err := v.ledger.Settings(ctx); err == nil {
		owner, err := v.ledger.Owner(ctx)
		if err != nil {
			return fmt.Errorf("settings present but owner missing: %w", err)
		}
		v.logger.Info("Vault already initialized, keeping stored state",
			zap.String("owner", owner),
		)
		return nil
	} else if !errors.Is(err, ledger.ErrNotInitialized) {
		return err
	}

	if init.Owner == "" {
		return fmt.Errorf("owner identity cannot be empty")
	}
	if init.DepositAmount == nil || init.DepositAmount.Sign() <= 0 {
		return ErrPingAmountCannotBeZero
	}
	if init.DurationSeconds == 0 {
		return ErrDurationCannotBeZero
	}

	assetID := init.AssetID
	if assetID == "" {
		assetID = NativeAssetID
	}

	settings := &model.Settings{
		AssetID:         assetID,
		DepositAmount:   new(big.Int).Set(init.DepositAmount),
		DurationSeconds: init.DurationSeconds,
	}

	if err := v.ledger.SaveSettings(ctx, settings); err != nil {
		return err
	}
	if err := v.ledger.SaveOwner(ctx, init.Owner); err != nil {
		return err
	}
	if err := v.ledger.SetPaused(ctx, false); err != nil {
		return err
	}

	v.logger.Info("Vault initialized",
		zap.String("owner", init.Owner),
		zap.String("asset_id", assetID),
		zap.String("deposit_amount", settings.DepositAmount.String()),
		zap.Uint64("duration_seconds", settings.DurationSeconds),
	)

	return nil
}

// Ping records a deposit. Preconditions are checked in a fixed order:
// gate, asset, amount, no existing lock. Only when all of them hold is
// any state written.
func (v *Vault) Ping(ctx context.Context, party, asset string, amount *big.Int) (*model.Lock, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	now := v.clock.Now()

	if err := v.requireUnpaused(ctx); err != nil {
		return nil, err
	}

	settings, err := v.ledger.Settings(ctx)
	if err != nil {
		return nil, err
	}

	if asset != settings.AssetID {
		return nil, ErrInvalidPaymentToken
	}
	if amount == nil || amount.Cmp(settings.DepositAmount) != 0 {
		return nil, ErrIncorrectPingAmount
	}

	if _, err := v.ledger.Lock(ctx, party); err == nil {
		return nil, ErrAlreadyPinged
	} else if !errors.Is(err, ledger.ErrNoLock) {
		return nil, err
	}

	if err := v.ledger.PutLock(ctx, party, now); err != nil {
		return nil, err
	}

	// The attached payment is retained in custody; it is what will be
	// paid back on withdrawal. If the credit fails the lock entry is
	// removed again so the failed call leaves no trace.
	if err := v.treasury.Credit(ctx, asset, amount); err != nil {
		if delErr := v.ledger.DeleteLock(ctx, party); delErr != nil {
			v.logger.Error("Failed to roll back lock after credit failure",
				zap.String("party", party),
				zap.Error(delErr),
			)
		}
		return nil, err
	}

	v.events.Publish(ctx, events.New(events.TypePing, party, now))

	v.logger.Info("Deposit recorded",
		zap.String("party", party),
		zap.Uint64("deposit_timestamp", now),
		zap.Uint64("eligible_time", now+settings.DurationSeconds),
	)

	return &model.Lock{Party: party, DepositTimestamp: now}, nil
}

// Pong withdraws a party's deposit. The lock entry is removed before
// the payout is attempted; a call into the payout path can therefore
// never observe the party as still locked. If the payout fails the
// entry is reinstated so the whole call aborts without effect.
func (v *Vault) Pong(ctx context.Context, party string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	now := v.clock.Now()

	if err := v.requireUnpaused(ctx); err != nil {
		return err
	}

	lock, err := v.ledger.Lock(ctx, party)
	if err != nil {
		if errors.Is(err, ledger.ErrNoLock) {
			return ErrNoPingFound
		}
		return err
	}

	settings, err := v.ledger.Settings(ctx)
	if err != nil {
		return err
	}

	eligibleTime := eligibleTimeOf(lock.DepositTimestamp, settings.DurationSeconds)
	if now < eligibleTime {
		return ErrCannotPongBeforeDeadline
	}

	// Clear before transfer. Do not reorder.
	if err := v.ledger.DeleteLock(ctx, party); err != nil {
		return err
	}

	if err := v.treasury.Transfer(ctx, party, settings.AssetID, settings.DepositAmount); err != nil {
		if putErr := v.ledger.PutLock(ctx, party, lock.DepositTimestamp); putErr != nil {
			v.logger.Error("Failed to reinstate lock after payout failure",
				zap.String("party", party),
				zap.Error(putErr),
			)
		}
		return err
	}

	v.events.Publish(ctx, events.New(events.TypePong, party, now))

	v.logger.Info("Withdrawal paid out",
		zap.String("party", party),
		zap.String("asset", settings.AssetID),
		zap.String("amount", settings.DepositAmount.String()),
	)

	return nil
}

// ExtendLock moves a party's eligible time additionalSeconds further
// out. The extension is applied to the stored deposit timestamp;
// since the eligible time is always timestamp plus the fixed duration,
// this is equivalent to extending the eligible time itself.
func (v *Vault) ExtendLock(ctx context.Context, party string, additionalSeconds uint64) (*model.Lock, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.requireUnpaused(ctx); err != nil {
		return nil, err
	}

	lock, err := v.ledger.Lock(ctx, party)
	if err != nil {
		if errors.Is(err, ledger.ErrNoLock) {
			return nil, ErrNoPingFound
		}
		return nil, err
	}

	if additionalSeconds == 0 {
		return nil, ErrInvalidExtensionAmount
	}

	// A wrapping sum would move the eligible time into the past and
	// defeat the lock entirely.
	newTimestamp := lock.DepositTimestamp + additionalSeconds
	if newTimestamp < lock.DepositTimestamp {
		return nil, ErrInvalidExtensionAmount
	}

	if err := v.ledger.PutLock(ctx, party, newTimestamp); err != nil {
		return nil, err
	}

	v.logger.Info("Lock extended",
		zap.String("party", party),
		zap.Uint64("additional_seconds", additionalSeconds),
		zap.Uint64("deposit_timestamp", newTimestamp),
	)

	return &model.Lock{Party: party, DepositTimestamp: newTimestamp}, nil
}

// Retune replaces the deposit amount and lock duration. The accepted
// asset is immutable. Owner only; the gate does not apply.
func (v *Vault) Retune(ctx context.Context, caller string, depositAmount *big.Int, durationSeconds uint64) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.requireOwner(ctx, caller); err != nil {
		return err
	}
	if depositAmount == nil || depositAmount.Sign() <= 0 {
		return ErrPingAmountCannotBeZero
	}
	if durationSeconds == 0 {
		return ErrDurationCannotBeZero
	}

	settings, err := v.ledger.Settings(ctx)
	if err != nil {
		return err
	}

	settings.DepositAmount = new(big.Int).Set(depositAmount)
	settings.DurationSeconds = durationSeconds

	return v.ledger.SaveSettings(ctx, settings)
}

// Pause closes the lifecycle gate. Owner only, idempotent.
func (v *Vault) Pause(ctx context.Context, caller string) error {
	return v.setPaused(ctx, caller, true)
}

// Resume opens the lifecycle gate. Owner only, idempotent.
func (v *Vault) Resume(ctx context.Context, caller string) error {
	return v.setPaused(ctx, caller, false)
}

func (v *Vault) setPaused(ctx context.Context, caller string, paused bool) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.requireOwner(ctx, caller); err != nil {
		return err
	}
	if err := v.ledger.SetPaused(ctx, paused); err != nil {
		return err
	}

	v.logger.Info("Lifecycle gate changed",
		zap.String("caller", caller),
		zap.Bool("paused", paused),
	)

	return nil
}

// HasActiveLock reports whether a party currently holds a lock.
func (v *Vault) HasActiveLock(ctx context.Context, party string) (bool, error) {
	_, err := v.ledger.Lock(ctx, party)
	if err != nil {
		if errors.Is(err, ledger.ErrNoLock) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// DepositTimestamp returns the party's deposit timestamp, or 0 when no
// lock exists.
func (v *Vault) DepositTimestamp(ctx context.Context, party string) (uint64, error) {
	lock, err := v.ledger.Lock(ctx, party)
	if err != nil {
		if errors.Is(err, ledger.ErrNoLock) {
			return 0, nil
		}
		return 0, err
	}
	return lock.DepositTimestamp, nil
}

// EligibleTime returns the earliest logical time the party may
// withdraw, or 0 when no lock exists.
func (v *Vault) EligibleTime(ctx context.Context, party string) (uint64, error) {
	lock, err := v.ledger.Lock(ctx, party)
	if err != nil {
		if errors.Is(err, ledger.ErrNoLock) {
			return 0, nil
		}
		return 0, err
	}

	settings, err := v.ledger.Settings(ctx)
	if err != nil {
		return 0, err
	}

	return eligibleTimeOf(lock.DepositTimestamp, settings.DurationSeconds), nil
}

// TimeRemaining returns the seconds left until the party may withdraw.
// The result is nil when no lock exists and 0 when the deadline has
// already passed.
func (v *Vault) TimeRemaining(ctx context.Context, party string) (*uint64, error) {
	lock, err := v.ledger.Lock(ctx, party)
	if err != nil {
		if errors.Is(err, ledger.ErrNoLock) {
			return nil, nil
		}
		return nil, err
	}

	settings, err := v.ledger.Settings(ctx)
	if err != nil {
		return nil, err
	}

	eligibleTime := eligibleTimeOf(lock.DepositTimestamp, settings.DurationSeconds)
	now := v.clock.Now()

	var remaining uint64
	if now < eligibleTime {
		remaining = eligibleTime - now
	}
	return &remaining, nil
}

// Settings returns the current vault settings.
func (v *Vault) Settings(ctx context.Context) (*model.Settings, error) {
	return v.ledger.Settings(ctx)
}

// IsPaused reports the lifecycle gate state.
func (v *Vault) IsPaused(ctx context.Context) (bool, error) {
	return v.ledger.Paused(ctx)
}

// Owner returns the owner identity.
func (v *Vault) Owner(ctx context.Context) (string, error) {
	return v.ledger.Owner(ctx)
}

// eligibleTimeOf computes timestamp plus duration, saturating at the
// uint64 maximum so an overflowing deadline stays in the future
// instead of wrapping into the past.
func eligibleTimeOf(timestamp, durationSeconds uint64) uint64 {
	eligible := timestamp + durationSeconds
	if eligible < timestamp {
		return math.MaxUint64
	}
	return eligible
}

// requireOwner is the single administrative guard: a plain equality
// check between the caller and the stored owner identity.
func (v *Vault) requireOwner(ctx context.Context, caller string) error {
	owner, err := v.ledger.Owner(ctx)
	if err != nil {
		return err
	}
	if caller != owner {
		return ErrOnlyOwner
	}
	return nil
}

// requireUnpaused is the lifecycle gate, evaluated before any other
// precondition of a mutating operation.
func (v *Vault) requireUnpaused(ctx context.Context) error {
	paused, err := v.ledger.Paused(ctx)
	if err != nil {
		return err
	}
	if paused {
		return ErrVaultPaused
	}
	return nil
}

var _ Service = (*Vault)(nil)
