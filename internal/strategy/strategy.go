// Package strategy maps delivery types onto engine settings and runs
// allocations against a weight provider.
package strategy

import (
	"github.com/nvandessel/tier-alloc/internal/constants"
	"github.com/nvandessel/tier-alloc/internal/models"
)

// SplitSpec names the two cohorts of a proportional split.
type SplitSpec struct {
	CohortA string `json:"cohort_a"`
	CohortB string `json:"cohort_b"`
}

// Strategy describes how one delivery type is allocated.
type Strategy struct {
	DeliveryType  constants.DeliveryType `json:"delivery_type"`
	Description   string                 `json:"description"`
	Variant       models.Variant         `json:"variant"`
	MaxIterations int                    `json:"max_iterations"`

	// FixedGroups, when set, replaces any caller-supplied group list.
	FixedGroups []string `json:"fixed_groups,omitempty"`

	// Split enables the proportional cohort split.
	Split *SplitSpec `json:"split,omitempty"`
}

// Defaults returns the built-in strategy for every delivery type.
func Defaults() []Strategy {
	return []Strategy{
		{
			DeliveryType:  constants.DeliveryCity,
			Description:   "city-wide unified delivery",
			Variant:       models.VariantBasic,
			MaxIterations: constants.DefaultBasicIterations,
			FixedGroups:   []string{constants.CityGroup},
		},
		{
			DeliveryType:  constants.DeliveryCounty,
			Description:   "tier plus county",
			Variant:       models.VariantBasic,
			MaxIterations: constants.DefaultBasicIterations,
		},
		{
			DeliveryType:  constants.DeliveryMarket,
			Description:   "tier plus market type",
			Variant:       models.VariantSmooth,
			MaxIterations: constants.DefaultSmoothIterations,
			Split: &SplitSpec{
				CohortA: constants.DefaultCohortA,
				CohortB: constants.DefaultCohortB,
			},
		},
		{
			DeliveryType:  constants.DeliveryUrbanRural,
			Description:   "tier plus urban/rural classification code",
			Variant:       models.VariantBasic,
			MaxIterations: constants.DefaultBasicIterations,
		},
		{
			DeliveryType:  constants.DeliveryBusinessFormat,
			Description:   "tier plus business format",
			Variant:       models.VariantBasic,
			MaxIterations: constants.DefaultBasicIterations,
		},
	}
}
