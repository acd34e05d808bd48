// Package contributions maintains the saved-food ledger and each consumer's cumulative totals.
package contributions

import (
	"context"
	"strings"

	"github.com/aimd54/hero-rewards/internal/apperrors"
	prommetrics "github.com/aimd54/hero-rewards/internal/metrics"
	"github.com/aimd54/hero-rewards/internal/models"
	"github.com/aimd54/hero-rewards/internal/repository"
	"github.com/aimd54/hero-rewards/pkg/logger"
)

// Transactor runs a unit of work in one database transaction.
type Transactor interface {
	Transaction(ctx context.Context, op string, fn func(tx *repository.Tx) error) error
}

// Service records contributions.
type Service struct {
	db  Transactor
	log *logger.Logger
}

// NewService creates a new contribution service.
func NewService(db *repository.DB, log *logger.Logger) *Service {
	return &Service{db: db, log: log}
}

// NewServiceWithInterfaces creates a new contribution service with interface dependencies (useful for testing).
func NewServiceWithInterfaces(db Transactor, log *logger.Logger) *Service {
	return &Service{db: db, log: log}
}

// RecordContribution appends a ledger entry for sourceEventID and adds the
// weight and CO2 to the consumer's totals. A source event that was already
// recorded changes nothing and returns recorded=false.
func (s *Service) RecordContribution(ctx context.Context, consumerID string, weightG, co2G int64, sourceEventID string) (bool, error) {
	switch {
	case strings.TrimSpace(consumerID) == "":
		return false, apperrors.Validation("consumer_id", "is required")
	case strings.TrimSpace(sourceEventID) == "":
		return false, apperrors.Validation("source_event_id", "is required")
	case weightG < 0:
		return false, apperrors.Validation("weight_g", "must not be negative, got %d", weightG)
	case co2G < 0:
		return false, apperrors.Validation("co2_g", "must not be negative, got %d", co2G)
	}

	var recorded bool
	err := s.db.Transaction(ctx, "record contribution", func(tx *repository.Tx) error {
		inserted, err := tx.Contributions.Insert(ctx, &models.Contribution{
			SourceEventID: sourceEventID,
			ConsumerID:    consumerID,
			WeightG:       weightG,
			CO2G:          co2G,
		})
		if err != nil {
			return err
		}
		if !inserted {
			return nil
		}
		recorded = true
		return tx.Consumers.AddCumulative(ctx, consumerID, weightG, co2G)
	})
	if err != nil {
		return false, err
	}

	prommetrics.RecordContribution(!recorded, weightG)
	if !recorded {
		s.log.Info().
			Str("consumer_id", consumerID).
			Str("source_event_id", sourceEventID).
			Msg("Duplicate contribution ignored")
		return false, nil
	}

	s.log.Debug().
		Str("consumer_id", consumerID).
		Str("source_event_id", sourceEventID).
		Int64("weight_g", weightG).
		Int64("co2_g", co2G).
		Msg("Contribution recorded")
	return true, nil
}

// TotalsDrift compares a consumer's cumulative fields with the ledger sum.
type TotalsDrift struct {
	ConsumerID    string
	ProfileWeight int64
	LedgerWeight  int64
	ProfileCO2    int64
	LedgerCO2     int64
}

// CheckTotals reports a drift when the profile totals disagree with the
// ledger, or nil when they match. Totals seeded before the ledger existed
// show up as a positive drift.
func (s *Service) CheckTotals(ctx context.Context, consumerID string) (*TotalsDrift, error) {
	var drift *TotalsDrift
	err := s.db.Transaction(ctx, "check contribution totals", func(tx *repository.Tx) error {
		profile, err := tx.Consumers.GetByID(ctx, consumerID)
		if err != nil {
			return err
		}
		weight, co2, err := tx.Contributions.SumByConsumer(ctx, consumerID)
		if err != nil {
			return err
		}
		if weight != profile.CumulativeSavedWeightG || co2 != profile.CumulativeCO2G {
			drift = &TotalsDrift{
				ConsumerID:    consumerID,
				ProfileWeight: profile.CumulativeSavedWeightG,
				LedgerWeight:  weight,
				ProfileCO2:    profile.CumulativeCO2G,
				LedgerCO2:     co2,
			}
		}
		return nil
	})
	return drift, err
}
