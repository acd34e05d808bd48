package gradetable

import (
	"fmt"

	"github.com/aimd54/hero-rewards/internal/apperrors"
	"github.com/aimd54/hero-rewards/internal/models"
)

// Validate checks that thresholds form a usable table: known grades, tiers
// numbered from 1 without gaps inside each grade, no duplicate levels, and
// thresholds strictly increasing along the level order.
func Validate(thresholds []models.GradeThreshold) error {
	if len(thresholds) == 0 {
		return apperrors.Validation("thresholds", "at least one threshold is required")
	}

	seen := make(map[models.Level]bool, len(thresholds))
	maxTier := make(map[models.Grade]int)
	for i, th := range thresholds {
		field := fmt.Sprintf("thresholds[%d]", i)
		if !th.Grade.Valid() {
			return apperrors.Validation(field, "unknown grade %q", th.Grade)
		}
		if th.Tier < 1 {
			return apperrors.Validation(field, "tier must be >= 1, got %d", th.Tier)
		}
		if th.MinCumulativeWeightG < 0 {
			return apperrors.Validation(field, "threshold must not be negative, got %d", th.MinCumulativeWeightG)
		}
		if seen[th.Level()] {
			return apperrors.Validation(field, "level %s is defined more than once", th.Level())
		}
		seen[th.Level()] = true
		if th.Tier > maxTier[th.Grade] {
			maxTier[th.Grade] = th.Tier
		}
	}

	for _, grade := range models.Grades() {
		for tier := 1; tier <= maxTier[grade]; tier++ {
			if !seen[models.Level{Grade: grade, Tier: tier}] {
				return apperrors.Validation("thresholds", "grade %s is missing tier %d", grade, tier)
			}
		}
	}

	sorted := models.SortedByLevel(thresholds)
	for i := 1; i < len(sorted); i++ {
		prev, cur := sorted[i-1], sorted[i]
		if cur.MinCumulativeWeightG <= prev.MinCumulativeWeightG {
			return apperrors.Validation("thresholds",
				"%s requires %dg which is not above %s at %dg",
				cur.Level(), cur.MinCumulativeWeightG, prev.Level(), prev.MinCumulativeWeightG)
		}
	}
	return nil
}
