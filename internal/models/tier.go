package models

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nvandessel/tier-alloc/internal/constants"
)

// Tier is an ordinal rank in [0, constants.TierCount). Tier 0 is the highest
// rank and must never be allocated less than any lower-ranked tier.
type Tier int

// Valid returns true if the tier lies within the fixed tier range.
func (t Tier) Valid() bool {
	return t >= 0 && int(t) < constants.TierCount
}

// Label returns the display label of the tier: tier 0 is "D30", tier 29 is "D1".
func (t Tier) Label() string {
	return constants.TierLabelPrefix + strconv.Itoa(constants.TierCount-int(t))
}

// String returns the tier label.
func (t Tier) String() string {
	return t.Label()
}

// ParseTierLabel converts a label such as "D30" or "d7" back into a Tier.
func ParseTierLabel(label string) (Tier, error) {
	s := strings.TrimSpace(label)
	if len(s) < 2 || !strings.EqualFold(s[:1], constants.TierLabelPrefix) {
		return 0, fmt.Errorf("invalid tier label %q", label)
	}
	n, err := strconv.Atoi(s[1:])
	if err != nil {
		return 0, fmt.Errorf("invalid tier label %q: %w", label, err)
	}
	if n < 1 || n > constants.TierCount {
		return 0, fmt.Errorf("tier label %q out of range D%d..D1", label, constants.TierCount)
	}
	return Tier(constants.TierCount - n), nil
}

// TierLabels returns every tier label in rank order (D30 first).
func TierLabels() []string {
	labels := make([]string, constants.TierCount)
	for i := range labels {
		labels[i] = Tier(i).Label()
	}
	return labels
}
