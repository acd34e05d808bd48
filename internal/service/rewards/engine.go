// Package rewards is the entry point for order-completion events and profile
// creation. It sequences the ledger and the upgrade processor.
package rewards

import (
	"context"
	"strings"
	"time"

	"github.com/aimd54/hero-rewards/internal/apperrors"
	"github.com/aimd54/hero-rewards/internal/events"
	prommetrics "github.com/aimd54/hero-rewards/internal/metrics"
	"github.com/aimd54/hero-rewards/internal/models"
	"github.com/aimd54/hero-rewards/internal/repository"
	"github.com/aimd54/hero-rewards/internal/service/badges"
	"github.com/aimd54/hero-rewards/internal/service/upgrade"
	"github.com/aimd54/hero-rewards/pkg/logger"
)

// Transactor runs a unit of work in one database transaction.
type Transactor interface {
	Transaction(ctx context.Context, op string, fn func(tx *repository.Tx) error) error
}

// ContributionRecorder appends to the saved-food ledger.
type ContributionRecorder interface {
	RecordContribution(ctx context.Context, consumerID string, weightG, co2G int64, sourceEventID string) (bool, error)
}

// TransitionProcessor runs automatic level transitions.
type TransitionProcessor interface {
	ProcessAutomaticTransition(ctx context.Context, consumerID string) (*upgrade.Transition, error)
}

// WelcomeIssuer awards the badges every new profile starts with.
type WelcomeIssuer interface {
	AwardWelcomeBadges(ctx context.Context, store badges.AwardStore, consumerID string) ([]models.Badge, error)
	RecordAwards(ctx context.Context, consumerID string, awarded []models.Badge)
}

// OrderCompleted is the event emitted by the order collaborator once an order is picked up.
type OrderCompleted struct {
	ConsumerID string `json:"consumer_id"`
	OrderID    string `json:"order_id"`
	WeightG    int64  `json:"weight_g"`
	CO2G       int64  `json:"co2_g"`
}

// OrderResult reports what an order-completion event changed.
type OrderResult struct {
	Recorded   bool                `json:"recorded"`
	Transition *upgrade.Transition `json:"transition,omitempty"`
}

// Engine coordinates contributions, transitions and profile creation.
type Engine struct {
	db            Transactor
	contributions ContributionRecorder
	processor     TransitionProcessor
	badges        WelcomeIssuer
	publisher     events.Publisher
	log           *logger.Logger
}

// NewEngine creates a rewards engine. publisher may be nil.
func NewEngine(
	db Transactor,
	contributions ContributionRecorder,
	processor TransitionProcessor,
	welcome WelcomeIssuer,
	publisher events.Publisher,
	log *logger.Logger,
) *Engine {
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &Engine{
		db:            db,
		contributions: contributions,
		processor:     processor,
		badges:        welcome,
		publisher:     publisher,
		log:           log,
	}
}

// HandleOrderCompleted records the order's contribution and then evaluates an
// automatic transition. The transition runs for duplicates too, so a
// redelivery after a failed transition finishes the work.
func (e *Engine) HandleOrderCompleted(ctx context.Context, order OrderCompleted) (*OrderResult, error) {
	recorded, err := e.contributions.RecordContribution(ctx, order.ConsumerID, order.WeightG, order.CO2G, order.OrderID)
	if err != nil {
		return nil, err
	}

	transition, err := e.processor.ProcessAutomaticTransition(ctx, order.ConsumerID)
	if err != nil {
		e.log.Warn().
			Err(err).
			Str("consumer_id", order.ConsumerID).
			Str("order_id", order.OrderID).
			Bool("retryable", apperrors.IsRetryable(err)).
			Msg("Contribution stored but transition failed")
		return nil, err
	}

	return &OrderResult{Recorded: recorded, Transition: transition}, nil
}

// EnsureProfile creates the consumer's profile at the lowest level of the
// active grade table and awards welcome badges. Existing profiles are
// returned untouched with created=false.
func (e *Engine) EnsureProfile(ctx context.Context, consumerID string) (*models.ConsumerProfile, bool, error) {
	if strings.TrimSpace(consumerID) == "" {
		return nil, false, apperrors.Validation("consumer_id", "is required")
	}

	var (
		profile *models.ConsumerProfile
		created bool
		awarded []models.Badge
	)
	err := e.db.Transaction(ctx, "ensure profile", func(tx *repository.Tx) error {
		start := models.LowestLevel
		table, err := tx.GradeTables.GetActive(ctx)
		switch {
		case err == nil:
			start = table.Lowest()
		case !apperrors.IsNotFound(err):
			return err
		}

		created, err = tx.Consumers.Create(ctx, &models.ConsumerProfile{
			ID:    consumerID,
			Grade: start.Grade,
			Tier:  start.Tier,
		})
		if err != nil {
			return err
		}
		if created {
			if awarded, err = e.badges.AwardWelcomeBadges(ctx, tx.Badges, consumerID); err != nil {
				return err
			}
		}

		profile, err = tx.Consumers.GetByID(ctx, consumerID)
		return err
	})
	if err != nil {
		return nil, false, err
	}

	if created {
		e.log.Info().
			Str("consumer_id", consumerID).
			Str("level", profile.Level().String()).
			Int("welcome_badges", len(awarded)).
			Msg("Consumer profile created")
		e.badges.RecordAwards(ctx, consumerID, awarded)
		e.publishAwards(ctx, consumerID, awarded)
	}
	return profile, created, nil
}

func (e *Engine) publishAwards(ctx context.Context, consumerID string, awarded []models.Badge) {
	if len(awarded) == 0 {
		return
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()

	for _, b := range awarded {
		ev := events.New(events.TypeBadgeAwarded, consumerID, events.BadgeAwarded{
			BadgeType: b.BadgeType,
			Name:      b.Name,
			Emoji:     b.Emoji,
		})
		if err := e.publisher.Publish(pubCtx, ev); err != nil {
			prommetrics.RecordEventPublished(string(ev.Type), "failure")
			e.log.Warn().Err(err).Str("event_id", ev.ID).Str("consumer_id", consumerID).Msg("Failed to publish event")
			continue
		}
		prommetrics.RecordEventPublished(string(ev.Type), "success")
	}
}
