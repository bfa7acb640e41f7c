package store

import (
	"testing"

	"github.com/nvandessel/tier-alloc/internal/models"
	"github.com/shopspring/decimal"
)

func TestValidateWeights(t *testing.T) {
	negative := models.RowFromInts(3, 2)
	negative[1] = decimal.NewFromInt(-2)

	tests := []struct {
		name       string
		rows       []GroupWeights
		wantIssues []string
	}{
		{
			name:       "valid",
			rows:       sampleWeights(),
			wantIssues: nil,
		},
		{
			name:       "empty group",
			rows:       []GroupWeights{{Group: "  ", Weights: models.RowFromInts(1)}},
			wantIssues: []string{"empty-group"},
		},
		{
			name: "codec separators in name",
			rows: []GroupWeights{
				{Group: "north+south", Weights: models.RowFromInts(1)},
				{Group: "zone:7", Weights: models.RowFromInts(1)},
				{Group: "north-south", Weights: models.RowFromInts(1)},
			},
			wantIssues: []string{"reserved-char", "reserved-char"},
		},
		{
			name: "duplicate",
			rows: []GroupWeights{
				{Group: "a", Weights: models.RowFromInts(1)},
				{Group: "a", Weights: models.RowFromInts(1)},
			},
			wantIssues: []string{"duplicate"},
		},
		{
			name:       "negative",
			rows:       []GroupWeights{{Group: "a", Weights: negative}},
			wantIssues: []string{"negative"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ValidateWeights(tt.rows)
			if len(got) != len(tt.wantIssues) {
				t.Fatalf("ValidateWeights() = %v, want issues %v", got, tt.wantIssues)
			}
			for i, issue := range tt.wantIssues {
				if got[i].Issue != issue {
					t.Errorf("issue[%d] = %q, want %q", i, got[i].Issue, issue)
				}
			}
		})
	}
}

func TestValidationError_String(t *testing.T) {
	e := ValidationError{Group: "a", Tier: "D29", Issue: "negative"}
	if got := e.String(); got != `negative: group "a" tier D29` {
		t.Errorf("String() = %q", got)
	}
}
