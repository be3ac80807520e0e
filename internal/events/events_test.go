package events

import (
	"context"
	"testing"

	"go.uber.org/zap"
)

func TestNew(t *testing.T) {
	event := New(TypePing, "alice", 1000)

	if event.ID == "" {
		t.Error("New() should assign an ID")
	}
	if event.Type != TypePing {
		t.Errorf("Type = %q, want %q", event.Type, TypePing)
	}
	if event.Party != "alice" {
		t.Errorf("Party = %q, want alice", event.Party)
	}
	if event.At != 1000 {
		t.Errorf("At = %d, want 1000", event.At)
	}
}

func TestNewAssignsUniqueIDs(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		event := New(TypePong, "alice", 1000)
		if seen[event.ID] {
			t.Fatalf("duplicate event ID %q", event.ID)
		}
		seen[event.ID] = true
	}
}

func TestLogPublisher(t *testing.T) {
	// Publish must not panic or fail regardless of content.
	p := NewLogPublisher(zap.NewNop())

	p.Publish(context.Background(), New(TypePing, "alice", 1000))
	p.Publish(context.Background(), Event{})
}
