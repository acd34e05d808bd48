package badges

import (
	"strings"

	"github.com/aimd54/hero-rewards/internal/apperrors"
	"github.com/aimd54/hero-rewards/internal/models"
)

// reachesLevel reports whether a level milestone is satisfied at level.
func reachesLevel(rule models.MilestoneRule, level models.Level) bool {
	return rule.Kind == models.MilestoneLevel && rule.Level().Compare(level) <= 0
}

func isWelcome(rule models.MilestoneRule) bool {
	return rule.Kind == models.MilestoneWelcome
}

func validateSpec(spec models.BadgeSpec) error {
	if strings.TrimSpace(spec.BadgeType) == "" {
		return apperrors.Validation("badge_type", "is required")
	}
	if strings.TrimSpace(spec.Name) == "" {
		return apperrors.Validation("name", "is required")
	}
	if err := spec.Rule.Validate(); err != nil {
		return apperrors.Validation("milestone_rule", "%s", err.Error())
	}
	return nil
}
