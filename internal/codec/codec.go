// Package codec renders allocation rows in the compact run-length form
// used by downstream reports, e.g. "2×2+14×1+14×0".
package codec

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nvandessel/tier-alloc/internal/constants"
	"github.com/nvandessel/tier-alloc/internal/models"
	"github.com/shopspring/decimal"
)

const (
	// RunSeparator joins a run's count and value.
	RunSeparator = "×"
	// asciiRunSeparator is accepted on decode.
	asciiRunSeparator = "x"
	// SegmentSeparator joins runs.
	SegmentSeparator = "+"
	// GroupSeparator joins group names sharing one encoded row.
	GroupSeparator = "+"
	// entrySeparator splits group names from the encoded row.
	entrySeparator = ":"
)

// ReservedGroupChars lists characters a group name may not contain if its
// entries are to parse back to the same groups.
const ReservedGroupChars = GroupSeparator + entrySeparator

// EncodeRow encodes all 30 tiers of row, zeros included.
func EncodeRow(row models.Row) string {
	var segments []string
	for start := 0; start < len(row); {
		end := start + 1
		for end < len(row) && row[end].Equal(row[start]) {
			end++
		}
		segments = append(segments, strconv.Itoa(end-start)+RunSeparator+row[start].String())
		start = end
	}
	return strings.Join(segments, SegmentSeparator)
}

// DecodeRow parses an encoded row. Run counts must be positive and cover
// exactly 30 tiers.
func DecodeRow(code string) (models.Row, error) {
	var row models.Row
	code = strings.TrimSpace(code)
	if code == "" {
		return row, fmt.Errorf("empty row code")
	}

	tier := 0
	for _, segment := range strings.Split(code, SegmentSeparator) {
		count, value, err := parseRun(segment)
		if err != nil {
			return row, err
		}
		if tier+count > constants.TierCount {
			return row, fmt.Errorf("row code covers more than %d tiers", constants.TierCount)
		}
		for i := 0; i < count; i++ {
			row[tier] = value
			tier++
		}
	}

	if tier != constants.TierCount {
		return row, fmt.Errorf("row code covers %d tiers, want %d", tier, constants.TierCount)
	}
	return row, nil
}

func parseRun(segment string) (int, decimal.Decimal, error) {
	segment = strings.TrimSpace(segment)
	parts := strings.Split(segment, RunSeparator)
	if len(parts) != 2 {
		parts = strings.Split(segment, asciiRunSeparator)
	}
	if len(parts) != 2 {
		return 0, decimal.Zero, fmt.Errorf("malformed run %q", segment)
	}

	count, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil || count < 1 {
		return 0, decimal.Zero, fmt.Errorf("bad run count in %q", segment)
	}
	value, err := decimal.NewFromString(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, decimal.Zero, fmt.Errorf("bad run value in %q: %w", segment, err)
	}
	return count, value, nil
}

// Entry is one encoded row shared by one or more groups.
type Entry struct {
	Groups []string `json:"groups"`
	Code   string   `json:"code"`
}

// String renders the entry as "g1+g2: code".
func (e Entry) String() string {
	return strings.Join(e.Groups, GroupSeparator) + entrySeparator + " " + e.Code
}

// EncodeMatrix collapses groups with identical rows into one entry each.
// Entries appear in order of first occurrence.
func EncodeMatrix(m models.AllocationMatrix) []Entry {
	var entries []Entry
	index := make(map[string]int)

	for i, row := range m.Rows {
		code := EncodeRow(row)
		if at, ok := index[code]; ok {
			entries[at].Groups = append(entries[at].Groups, m.Groups[i])
			continue
		}
		index[code] = len(entries)
		entries = append(entries, Entry{Groups: []string{m.Groups[i]}, Code: code})
	}
	return entries
}

// ParseEntry parses the output of Entry.String.
func ParseEntry(line string) (Entry, error) {
	groupsPart, code, ok := strings.Cut(line, entrySeparator)
	if !ok {
		return Entry{}, fmt.Errorf("missing ':' in %q", line)
	}
	var groups []string
	for _, g := range strings.Split(groupsPart, GroupSeparator) {
		if g = strings.TrimSpace(g); g != "" {
			groups = append(groups, g)
		}
	}
	if len(groups) == 0 {
		return Entry{}, fmt.Errorf("no groups in %q", line)
	}
	code = strings.TrimSpace(code)
	if _, err := DecodeRow(code); err != nil {
		return Entry{}, err
	}
	return Entry{Groups: groups, Code: code}, nil
}

// DecodeMatrix expands entries back into a matrix, one row per listed
// group in entry order.
func DecodeMatrix(entries []Entry) (models.AllocationMatrix, error) {
	var m models.AllocationMatrix
	for _, e := range entries {
		row, err := DecodeRow(e.Code)
		if err != nil {
			return models.AllocationMatrix{}, fmt.Errorf("groups %s: %w", strings.Join(e.Groups, GroupSeparator), err)
		}
		for _, g := range e.Groups {
			m.Groups = append(m.Groups, g)
			m.Rows = append(m.Rows, row)
		}
	}
	return m, nil
}
