package models

import (
	"fmt"
	"strings"
)

// Variant selects the shape constraint an allocation row must satisfy.
type Variant int

const (
	// VariantBasic requires rows to be non-increasing from tier 0 to tier 29.
	VariantBasic Variant = iota
	// VariantSmooth additionally caps each adjacent decrease at one unit.
	VariantSmooth
)

// String returns a string representation of the variant
func (v Variant) String() string {
	switch v {
	case VariantBasic:
		return "basic"
	case VariantSmooth:
		return "smooth"
	default:
		return "unknown"
	}
}

// ParseVariant maps a variant name to a Variant (case-insensitive).
func ParseVariant(s string) (Variant, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "basic", "monotonic":
		return VariantBasic, nil
	case "smooth":
		return VariantSmooth, nil
	default:
		return VariantBasic, fmt.Errorf("unknown variant %q (valid: basic, smooth)", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (v Variant) MarshalText() ([]byte, error) {
	if v != VariantBasic && v != VariantSmooth {
		return nil, fmt.Errorf("invalid variant %d", int(v))
	}
	return []byte(v.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (v *Variant) UnmarshalText(text []byte) error {
	parsed, err := ParseVariant(string(text))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
