package store

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

func TestNewOlricMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewOlricMetrics("test", registry)

	if m == nil {
		t.Fatal("NewOlricMetrics() returned nil")
	}

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}

	found := map[string]bool{}
	for _, family := range families {
		found[family.GetName()] = true
	}
	for _, name := range []string{
		"test_olric_cluster_members",
		"test_olric_cluster_partitions",
		"test_olric_cluster_replicas",
	} {
		if !found[name] {
			t.Errorf("metric %q not registered", name)
		}
	}
}

func TestOlricMetricsCollector(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewOlricMetrics("test", registry)

	fs := newFakeStore()
	fs.members = 3

	collector := NewOlricMetricsCollector(zap.NewNop(), fs, m, 10*time.Millisecond)
	collector.Start()

	// The collector samples immediately on start; give it a moment.
	time.Sleep(50 * time.Millisecond)
	collector.Stop()

	value := testGaugeValue(t, registry, "test_olric_cluster_members")
	if value != 3 {
		t.Errorf("cluster members gauge = %v, want 3", value)
	}
}

// testGaugeValue reads a single gauge value from the registry.
func testGaugeValue(t *testing.T, registry *prometheus.Registry, name string) float64 {
	t.Helper()

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	for _, family := range families {
		if family.GetName() == name {
			return family.GetMetric()[0].GetGauge().GetValue()
		}
	}
	t.Fatalf("metric %q not found", name)
	return 0
}
