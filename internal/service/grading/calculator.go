// Package grading maps a cumulative saved weight onto a level of the grade table.
package grading

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/aimd54/hero-rewards/internal/apperrors"
	"github.com/aimd54/hero-rewards/internal/models"
)

// ComputeTarget returns the highest level whose threshold is at or below weightG.
// When no threshold qualifies the lowest defined level is returned.
//
// A usable level is always returned. If the thresholds are empty, tied or out
// of order a *apperrors.ConfigurationError is returned alongside it; ties
// resolve to the higher level.
func ComputeTarget(weightG int64, thresholds []models.GradeThreshold) (models.Level, error) {
	if len(thresholds) == 0 {
		return models.LowestLevel, &apperrors.ConfigurationError{Message: "grade table has no thresholds"}
	}

	byWeight := make([]models.GradeThreshold, len(thresholds))
	copy(byWeight, thresholds)
	sort.SliceStable(byWeight, func(i, j int) bool {
		if byWeight[i].MinCumulativeWeightG != byWeight[j].MinCumulativeWeightG {
			return byWeight[i].MinCumulativeWeightG > byWeight[j].MinCumulativeWeightG
		}
		return byWeight[j].Level().Less(byWeight[i].Level())
	})

	target := lowest(thresholds)
	for _, th := range byWeight {
		if th.MinCumulativeWeightG <= weightG {
			target = th.Level()
			break
		}
	}

	if problems := inspect(thresholds); len(problems) > 0 {
		return target, &apperrors.ConfigurationError{Message: strings.Join(problems, "; ")}
	}
	return target, nil
}

// ComputeForTable is ComputeTarget with the table version stamped on any ConfigurationError.
func ComputeForTable(weightG int64, table *models.GradeTable) (models.Level, error) {
	target, err := ComputeTarget(weightG, table.Thresholds)
	var cfgErr *apperrors.ConfigurationError
	if errors.As(err, &cfgErr) {
		cfgErr.Version = table.Version
	}
	return target, err
}

func lowest(thresholds []models.GradeThreshold) models.Level {
	low := thresholds[0].Level()
	for _, th := range thresholds[1:] {
		if th.Level().Less(low) {
			low = th.Level()
		}
	}
	return low
}

// inspect lists the ways thresholds break the strictly increasing order along levels.
func inspect(thresholds []models.GradeThreshold) []string {
	sorted := models.SortedByLevel(thresholds)

	var problems []string
	for i := 1; i < len(sorted); i++ {
		prev, cur := sorted[i-1], sorted[i]
		switch {
		case prev.Level() == cur.Level():
			problems = append(problems, fmt.Sprintf("level %s defined twice", cur.Level()))
		case cur.MinCumulativeWeightG == prev.MinCumulativeWeightG:
			problems = append(problems, fmt.Sprintf("%s and %s share threshold %dg",
				prev.Level(), cur.Level(), cur.MinCumulativeWeightG))
		case cur.MinCumulativeWeightG < prev.MinCumulativeWeightG:
			problems = append(problems, fmt.Sprintf("%s threshold %dg is below %s threshold %dg",
				cur.Level(), cur.MinCumulativeWeightG, prev.Level(), prev.MinCumulativeWeightG))
		}
	}
	return problems
}
