package store

import (
	"fmt"
	"strings"

	"github.com/nvandessel/tier-alloc/internal/codec"
	"github.com/nvandessel/tier-alloc/internal/models"
)

// ValidationError describes a weight row issue.
type ValidationError struct {
	Group string `json:"group"`
	Tier  string `json:"tier,omitempty"`
	Issue string `json:"issue"` // "empty-group", "reserved-char", "duplicate", "negative"
}

// String returns a human-readable description of the validation error.
func (e ValidationError) String() string {
	if e.Tier != "" {
		return fmt.Sprintf("%s: group %q tier %s", e.Issue, e.Group, e.Tier)
	}
	return fmt.Sprintf("%s: group %q", e.Issue, e.Group)
}

// ValidateWeights checks rows before they are stored. It reports empty
// group names, names holding a codec separator, duplicate groups and
// negative weights.
func ValidateWeights(rows []GroupWeights) []ValidationError {
	var errs []ValidationError
	seen := make(map[string]bool, len(rows))

	for _, gw := range rows {
		if strings.TrimSpace(gw.Group) == "" {
			errs = append(errs, ValidationError{Group: gw.Group, Issue: "empty-group"})
			continue
		}
		if strings.ContainsAny(gw.Group, codec.ReservedGroupChars) {
			errs = append(errs, ValidationError{Group: gw.Group, Issue: "reserved-char"})
		}
		if seen[gw.Group] {
			errs = append(errs, ValidationError{Group: gw.Group, Issue: "duplicate"})
		}
		seen[gw.Group] = true

		for j, w := range gw.Weights {
			if w.IsNegative() {
				errs = append(errs, ValidationError{
					Group: gw.Group,
					Tier:  models.Tier(j).Label(),
					Issue: "negative",
				})
			}
		}
	}

	return errs
}

func validationFailure(errs []ValidationError) error {
	if len(errs) == 0 {
		return nil
	}
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.String()
	}
	return fmt.Errorf("invalid weights: %s", strings.Join(msgs, "; "))
}
