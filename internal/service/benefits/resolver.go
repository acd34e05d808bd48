// Package benefits partitions the configured benefit catalog by tier rank.
package benefits

import (
	"fmt"
	"sort"

	"github.com/aimd54/hero-rewards/internal/models"
)

// LockedBenefit is a benefit the consumer has not reached yet.
type LockedBenefit struct {
	models.BenefitDefinition
	TiersRemaining  int    `json:"tiers_remaining"`
	UnlockCondition string `json:"unlock_condition"`
}

// Resolution is the benefit catalog split at a tier rank.
type Resolution struct {
	Active []models.BenefitDefinition `json:"active"`
	Locked []LockedBenefit            `json:"locked"`
}

// Resolver evaluates benefits against a tier rank. It holds no mutable state.
type Resolver struct {
	definitions []models.BenefitDefinition
}

// NewResolver creates a resolver over definitions, ordered by required tier.
func NewResolver(definitions []models.BenefitDefinition) *Resolver {
	defs := make([]models.BenefitDefinition, len(definitions))
	copy(defs, definitions)
	sort.SliceStable(defs, func(i, j int) bool {
		if defs[i].MinTierRequired != defs[j].MinTierRequired {
			return defs[i].MinTierRequired < defs[j].MinTierRequired
		}
		return defs[i].ID < defs[j].ID
	})
	return &Resolver{definitions: defs}
}

// Definitions returns the catalog.
func (r *Resolver) Definitions() []models.BenefitDefinition {
	out := make([]models.BenefitDefinition, len(r.definitions))
	copy(out, r.definitions)
	return out
}

// Resolve returns the benefits active at tierRank and a preview of the locked ones.
func (r *Resolver) Resolve(tierRank int) Resolution {
	res := Resolution{
		Active: []models.BenefitDefinition{},
		Locked: []LockedBenefit{},
	}
	for _, def := range r.definitions {
		if tierRank >= def.MinTierRequired {
			res.Active = append(res.Active, def)
			continue
		}
		remaining := def.MinTierRequired - tierRank
		res.Locked = append(res.Locked, LockedBenefit{
			BenefitDefinition: def,
			TiersRemaining:    remaining,
			UnlockCondition:   unlockCondition(remaining),
		})
	}
	return res
}

// Unlocked returns the benefits that become active when moving from fromRank to toRank.
// Nothing is unlocked by a move that does not go up.
func (r *Resolver) Unlocked(fromRank, toRank int) []models.BenefitDefinition {
	var out []models.BenefitDefinition
	for _, def := range r.definitions {
		if def.MinTierRequired > fromRank && def.MinTierRequired <= toRank {
			out = append(out, def)
		}
	}
	return out
}

func unlockCondition(remaining int) string {
	if remaining == 1 {
		return "Reach 1 more tier to unlock"
	}
	return fmt.Sprintf("Reach %d more tiers to unlock", remaining)
}
