package zone

import (
	"fmt"
	"strconv"
	"strings"
)

// IdentifierFields is the default candidate list for the checker dataset
// identifier, tried in order.
var IdentifierFields = []string{"GEOID", "geoid", "GEOID10", "TRACTCE"}

// LookupIdentifierFields is the default candidate list for lookup tables.
var LookupIdentifierFields = []string{"GEOID10", "GEOID", "geoid"}

// PlaceholderPrefix prefixes synthesized identifiers.
const PlaceholderPrefix = "unknown_"

// IdentifierPolicy resolves a canonical identifier from a property bag.
type IdentifierPolicy struct {
	Fields []string
}

// NewIdentifierPolicy returns a policy over fields, falling back to the
// package defaults when fields is empty.
func NewIdentifierPolicy(fields []string) IdentifierPolicy {
	if len(fields) == 0 {
		fields = IdentifierFields
	}
	return IdentifierPolicy{Fields: fields}
}

// Lookup returns the first non-empty candidate value and the field it came
// from.
func (p IdentifierPolicy) Lookup(props map[string]any) (value, field string, ok bool) {
	for _, f := range p.Fields {
		v, present := props[f]
		if !present {
			continue
		}
		if s := PropertyString(v); s != "" {
			return s, f, true
		}
	}
	return "", "", false
}

// Resolve returns the identifier for props, synthesizing a placeholder from
// seq when no candidate field is set.
func (p IdentifierPolicy) Resolve(props map[string]any, seq int) string {
	if v, _, ok := p.Lookup(props); ok {
		return v
	}
	return fmt.Sprintf("%s%d", PlaceholderPrefix, seq)
}

// IsPlaceholder reports whether id was synthesized by Resolve.
func IsPlaceholder(id string) bool {
	return strings.HasPrefix(id, PlaceholderPrefix)
}

// PropertyString renders a decoded JSON property value as a string.
// Whole numbers are printed without an exponent or fraction.
func PropertyString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}
