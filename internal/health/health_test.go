package health

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
)

// stubChecker returns a fixed result and counts invocations.
type stubChecker struct {
	name   string
	status Status
	calls  int
}

func (s *stubChecker) Name() string {
	return s.name
}

func (s *stubChecker) Check(ctx context.Context) CheckResult {
	s.calls++
	return CheckResult{
		Name:      s.name,
		Status:    s.status,
		Timestamp: time.Now(),
	}
}

func TestCheckers(t *testing.T) {
	log := zap.NewNop()
	ctx := context.Background()

	t.Run("config checker", func(t *testing.T) {
		c := NewConfigChecker(log)
		if result := c.Check(ctx); result.Status != StatusOK {
			t.Errorf("Check() status = %s, want %s", result.Status, StatusOK)
		}
	})

	t.Run("logger checker", func(t *testing.T) {
		c := NewLoggerChecker(log)
		if result := c.Check(ctx); result.Status != StatusOK {
			t.Errorf("Check() status = %s, want %s", result.Status, StatusOK)
		}
	})

	t.Run("server checker transitions", func(t *testing.T) {
		c := NewServerChecker(log)

		if result := c.Check(ctx); result.Status != StatusStarting {
			t.Errorf("Check() before start status = %s, want %s", result.Status, StatusStarting)
		}

		c.SetRunning(true)
		if result := c.Check(ctx); result.Status != StatusOK {
			t.Errorf("Check() after start status = %s, want %s", result.Status, StatusOK)
		}
	})

	t.Run("readiness checker transitions", func(t *testing.T) {
		c := NewReadinessChecker(log)

		if result := c.Check(ctx); result.Status != StatusNotReady {
			t.Errorf("Check() before start status = %s, want %s", result.Status, StatusNotReady)
		}

		c.SetRunning(true)
		if result := c.Check(ctx); result.Status != StatusOK {
			t.Errorf("Check() after start status = %s, want %s", result.Status, StatusOK)
		}

		c.SetShuttingDown(true)
		if result := c.Check(ctx); result.Status != StatusNotReady {
			t.Errorf("Check() while shutting down status = %s, want %s", result.Status, StatusNotReady)
		}
	})
}

func TestManagerCheckAll(t *testing.T) {
	m := NewManager(zap.NewNop(), 0, time.Second)

	m.RegisterChecker(&stubChecker{name: "a", status: StatusOK})
	m.RegisterChecker(&stubChecker{name: "b", status: StatusOK})

	results := m.CheckAll(context.Background())
	if len(results) != 2 {
		t.Fatalf("CheckAll() returned %d results, want 2", len(results))
	}
}

func TestManagerCaching(t *testing.T) {
	m := NewManager(zap.NewNop(), time.Minute, time.Second)
	stub := &stubChecker{name: "cached", status: StatusOK}
	m.RegisterChecker(stub)

	m.CheckAll(context.Background())
	m.CheckAll(context.Background())

	if stub.calls != 1 {
		t.Errorf("checker ran %d times, want 1 (second run cached)", stub.calls)
	}
}

func TestGetStartupStatus(t *testing.T) {
	tests := []struct {
		name     string
		statuses []Status
		want     Status
	}{
		{"all ok", []Status{StatusOK, StatusOK}, StatusOK},
		{"one starting", []Status{StatusOK, StatusStarting}, StatusStarting},
		{"one error", []Status{StatusOK, StatusError}, StatusError},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager(zap.NewNop(), 0, time.Second)
			for j, status := range tt.statuses {
				m.RegisterChecker(&stubChecker{
					name:   tt.name + string(rune('a'+i*10+j)),
					status: status,
				})
			}

			resp := m.GetStartupStatus(context.Background())
			if resp.Status != tt.want {
				t.Errorf("GetStartupStatus() = %s, want %s", resp.Status, tt.want)
			}
		})
	}
}

func TestGetLivenessStatus(t *testing.T) {
	m := NewManager(zap.NewNop(), 0, time.Second)

	resp := m.GetLivenessStatus()
	if resp.Status != StatusOK {
		t.Errorf("GetLivenessStatus() = %s, want %s", resp.Status, StatusOK)
	}
}

func TestGetReadinessStatus(t *testing.T) {
	t.Run("no readiness checker registered", func(t *testing.T) {
		m := NewManager(zap.NewNop(), 0, time.Second)

		resp := m.GetReadinessStatus(context.Background())
		if !resp.Ready {
			t.Error("GetReadinessStatus() not ready without a registered checker")
		}
	})

	t.Run("follows the readiness checker", func(t *testing.T) {
		m := NewManager(zap.NewNop(), 0, time.Second)
		rc := NewReadinessChecker(zap.NewNop())
		m.RegisterChecker(rc)

		if resp := m.GetReadinessStatus(context.Background()); resp.Ready {
			t.Error("GetReadinessStatus() ready before servers are running")
		}

		m.SetServersRunning(true)
		if resp := m.GetReadinessStatus(context.Background()); !resp.Ready {
			t.Error("GetReadinessStatus() not ready after servers are running")
		}

		m.SetShuttingDown(true)
		if resp := m.GetReadinessStatus(context.Background()); resp.Ready {
			t.Error("GetReadinessStatus() still ready while shutting down")
		}
	})
}
