package vault

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/pingpong-vault/service/internal/health"
)

func TestInitializedHealthChecker(t *testing.T) {
	log := zap.NewNop()
	ctx := context.Background()

	t.Run("starting before initialization", func(t *testing.T) {
		var ops []string
		fl := newFakeLedger(&ops)

		c := NewInitializedHealthChecker(log, fl)
		if result := c.Check(ctx); result.Status != health.StatusStarting {
			t.Errorf("Check() status = %s, want %s", result.Status, health.StatusStarting)
		}
	})

	t.Run("ok once initialized", func(t *testing.T) {
		_, fl, _, _, _ := testVault(t, "admin", 100, 3600)

		c := NewInitializedHealthChecker(log, fl)
		if result := c.Check(ctx); result.Status != health.StatusOK {
			t.Errorf("Check() status = %s, want %s", result.Status, health.StatusOK)
		}
	})

	t.Run("error when the ledger fails", func(t *testing.T) {
		_, fl, _, _, _ := testVault(t, "admin", 100, 3600)
		fl.settingsErr = errors.New("cluster unavailable")

		c := NewInitializedHealthChecker(log, fl)
		if result := c.Check(ctx); result.Status != health.StatusError {
			t.Errorf("Check() status = %s, want %s", result.Status, health.StatusError)
		}
	})
}
