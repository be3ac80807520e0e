package treasury

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"go.uber.org/zap"

	"github.com/pingpong-vault/service/internal/store"
)

// ErrInsufficientCustody is returned when a payout would drive the
// custody balance below zero. The vault's bookkeeping makes this
// unreachable in normal operation; hitting it means the store and the
// ledger have diverged.
var ErrInsufficientCustody = errors.New("custody balance insufficient for payout")

// Treasury is the asset-movement boundary for the vault. Credit
// records funds entering custody on a deposit; Transfer pays funds out
// of custody to a party and either fully succeeds or leaves the
// balance untouched.
type Treasury interface {
	// Credit adds amount of asset to the vault's custody balance.
	Credit(ctx context.Context, asset string, amount *big.Int) error

	// Transfer debits amount of asset from custody and pays it to the
	// given party.
	Transfer(ctx context.Context, party, asset string, amount *big.Int) error

	// Balance returns the current custody balance for an asset. A
	// never-credited asset has a zero balance.
	Balance(ctx context.Context, asset string) (*big.Int, error)
}

// StoreTreasury implements Treasury with balances kept in the
// distributed store, one key per asset, as base-10 strings.
type StoreTreasury struct {
	store  store.Store
	logger *zap.Logger
}

// NewStoreTreasury creates a treasury backed by the given store.
func NewStoreTreasury(st store.Store, logger *zap.Logger) *StoreTreasury {
	return &StoreTreasury{
		store:  st,
		logger: logger,
	}
}

const custodyPrefix = "custody:"

// Credit adds amount of asset to the custody balance.
func (t *StoreTreasury) Credit(ctx context.Context, asset string, amount *big.Int) error {
	if amount.Sign() <= 0 {
		return fmt.Errorf("credit amount must be positive, got %s", amount)
	}

	balance, err := t.Balance(ctx, asset)
	if err != nil {
		return err
	}

	balance.Add(balance, amount)
	if err := t.putBalance(ctx, asset, balance); err != nil {
		return err
	}

	t.logger.Info("Custody credited",
		zap.String("asset", asset),
		zap.String("amount", amount.String()),
		zap.String("balance", balance.String()),
	)

	return nil
}

// Transfer debits amount of asset from custody and pays it out to the
// party. The payout itself is a logged external effect; the balance is
// only written after the debit is known to be valid, so a failed
// Transfer leaves custody unchanged.
func (t *StoreTreasury) Transfer(ctx context.Context, party, asset string, amount *big.Int) error {
	if party == "" {
		return fmt.Errorf("payout party cannot be empty")
	}
	if amount.Sign() <= 0 {
		return fmt.Errorf("payout amount must be positive, got %s", amount)
	}

	balance, err := t.Balance(ctx, asset)
	if err != nil {
		return err
	}

	if balance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: balance %s, payout %s", ErrInsufficientCustody, balance, amount)
	}

	balance.Sub(balance, amount)
	if err := t.putBalance(ctx, asset, balance); err != nil {
		return err
	}

	t.logger.Info("Custody payout",
		zap.String("party", party),
		zap.String("asset", asset),
		zap.String("amount", amount.String()),
		zap.String("balance", balance.String()),
	)

	return nil
}

// Balance returns the custody balance for an asset.
func (t *StoreTreasury) Balance(ctx context.Context, asset string) (*big.Int, error) {
	value, err := t.store.Get(ctx, custodyPrefix+asset)
	if err != nil {
		if err.Error() == "key not found" {
			return big.NewInt(0), nil
		}
		return nil, fmt.Errorf("failed to get custody balance: %w", err)
	}

	raw, ok := value.(string)
	if !ok {
		return nil, fmt.Errorf("invalid custody balance type: expected string, got %T", value)
	}

	balance, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, fmt.Errorf("corrupt custody balance in store: %q", raw)
	}

	return balance, nil
}

func (t *StoreTreasury) putBalance(ctx context.Context, asset string, balance *big.Int) error {
	if err := t.store.Put(ctx, custodyPrefix+asset, balance.String(), 0); err != nil {
		return fmt.Errorf("failed to store custody balance: %w", err)
	}
	return nil
}
