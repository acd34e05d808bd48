// Package events publishes change notifications after a unit of work commits.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aimd54/hero-rewards/internal/models"
)

// Type identifies an event.
type Type string

// Event types.
const (
	TypeGradeChanged     Type = "grade_changed"
	TypeBadgeAwarded     Type = "badge_awarded"
	TypeBenefitsUnlocked Type = "benefits_unlocked"
)

// Event is the envelope published for every notification.
type Event struct {
	ID         string    `json:"id"`
	Type       Type      `json:"type"`
	ConsumerID string    `json:"consumer_id"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    any       `json:"payload"`
}

// GradeChanged is the payload of TypeGradeChanged.
type GradeChanged struct {
	From    models.Level          `json:"from"`
	To      models.Level          `json:"to"`
	Trigger models.UpgradeTrigger `json:"trigger"`
	Reason  string                `json:"reason,omitempty"`
}

// BadgeAwarded is the payload of TypeBadgeAwarded.
type BadgeAwarded struct {
	BadgeType string `json:"badge_type"`
	Name      string `json:"name"`
	Emoji     string `json:"emoji"`
}

// BenefitsUnlocked is the payload of TypeBenefitsUnlocked.
type BenefitsUnlocked struct {
	BenefitIDs []string `json:"benefit_ids"`
}

// New builds an event with a fresh ID and timestamp.
func New(typ Type, consumerID string, payload any) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       typ,
		ConsumerID: consumerID,
		OccurredAt: time.Now().UTC(),
		Payload:    payload,
	}
}

// Publisher delivers events to downstream listeners.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Nop discards every event.
type Nop struct{}

// Publish implements Publisher.
func (Nop) Publish(context.Context, Event) error { return nil }

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Publish implements Publisher.
func (r *Recorder) Publish(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

// Events returns a copy of everything published so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// OfType returns the recorded events of one type.
func (r *Recorder) OfType(typ Type) []Event {
	var out []Event
	for _, ev := range r.Events() {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}
