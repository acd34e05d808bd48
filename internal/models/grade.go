// Package models defines domain models for the hero grade rewards engine.
package models

import (
	"fmt"
	"strings"
)

// Grade is the coarse loyalty band. Grades form a closed, ordered enumeration.
type Grade string

// Grade constants, lowest first.
const (
	GradeBronze   Grade = "bronze"
	GradeSilver   Grade = "silver"
	GradeGold     Grade = "gold"
	GradePlatinum Grade = "platinum"
	GradeDiamond  Grade = "diamond"
)

var gradeOrder = []Grade{GradeBronze, GradeSilver, GradeGold, GradePlatinum, GradeDiamond}

// Grades returns every grade in ascending order.
func Grades() []Grade {
	out := make([]Grade, len(gradeOrder))
	copy(out, gradeOrder)
	return out
}

// Rank returns the 1-based position of g in the grade order, or 0 if g is unknown.
func (g Grade) Rank() int {
	for i, candidate := range gradeOrder {
		if candidate == g {
			return i + 1
		}
	}
	return 0
}

// Valid reports whether g is a known grade.
func (g Grade) Valid() bool {
	return g.Rank() > 0
}

// ParseGrade converts user input into a Grade.
func ParseGrade(s string) (Grade, error) {
	g := Grade(strings.ToLower(strings.TrimSpace(s)))
	if !g.Valid() {
		return "", fmt.Errorf("unknown grade %q", s)
	}
	return g, nil
}

// Level is a (grade, tier) pair. Tiers start at 1 within each grade.
type Level struct {
	Grade Grade `json:"grade" yaml:"grade"`
	Tier  int   `json:"tier" yaml:"tier"`
}

// LowestLevel is assigned when no grade table is available.
var LowestLevel = Level{Grade: GradeBronze, Tier: 1}

// Compare orders levels by grade first, then tier. It returns -1, 0 or 1.
func (l Level) Compare(other Level) int {
	switch lr, or := l.Grade.Rank(), other.Grade.Rank(); {
	case lr < or:
		return -1
	case lr > or:
		return 1
	}
	switch {
	case l.Tier < other.Tier:
		return -1
	case l.Tier > other.Tier:
		return 1
	}
	return 0
}

// Less reports whether l sorts strictly before other.
func (l Level) Less(other Level) bool {
	return l.Compare(other) < 0
}

// Valid reports whether l names a known grade and a positive tier.
func (l Level) Valid() bool {
	return l.Grade.Valid() && l.Tier >= 1
}

func (l Level) String() string {
	return fmt.Sprintf("%s/%d", l.Grade, l.Tier)
}
