package events

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Event types emitted by the vault.
const (
	// TypePing is emitted after a successful deposit.
	TypePing = "ping"

	// TypePong is emitted after a successful withdrawal.
	TypePong = "pong"
)

// Event is a fire-and-forget notification about a successful vault
// operation. Events are observable signals only; nothing in the vault
// depends on their delivery.
type Event struct {
	// ID uniquely identifies this emission.
	ID string `json:"id"`

	// Type is TypePing or TypePong.
	Type string `json:"type"`

	// Party is the identity the operation acted on behalf of.
	Party string `json:"party"`

	// At is the logical time of the operation.
	At uint64 `json:"at"`
}

// New creates an event with a fresh ID.
func New(eventType, party string, at uint64) Event {
	return Event{
		ID:    uuid.NewString(),
		Type:  eventType,
		Party: party,
		At:    at,
	}
}

// Publisher delivers events. Implementations must not fail the calling
// operation: publication happens only after the operation has fully
// committed, and delivery is best-effort.
type Publisher interface {
	Publish(ctx context.Context, event Event)
}

// LogPublisher emits events as structured log entries.
type LogPublisher struct {
	logger *zap.Logger
}

// NewLogPublisher creates a publisher that writes events to the log.
func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

// Publish writes the event at info level.
func (p *LogPublisher) Publish(ctx context.Context, event Event) {
	p.logger.Info("Vault event",
		zap.String("event_id", event.ID),
		zap.String("event_type", event.Type),
		zap.String("party", event.Party),
		zap.Uint64("at", event.At),
	)
}
