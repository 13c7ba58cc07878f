package blocks

import (
	"slices"
	"strconv"
)

// FieldType identifies the kind of value a component field accepts.
type FieldType string

const (
	// FieldText is a single-line string field.
	FieldText FieldType = "text"
	// FieldTextarea is a multi-line string field.
	FieldTextarea FieldType = "textarea"
	// FieldNumber is a numeric field with optional bounds.
	FieldNumber FieldType = "number"
	// FieldSelect is a single-choice field restricted to declared options.
	FieldSelect FieldType = "select"
	// FieldSlot marks a nested-content field: the compiler delivers
	// pre-compiled child fragments through it instead of the generic
	// children channel.
	FieldSlot FieldType = "slot"
)

// SelectOption is one allowed value of a FieldSelect field.
type SelectOption struct {
	Label string
	Value string
}

// Field declares a single accepted component field.
type Field struct {
	Label   string
	Type    FieldType
	Options []SelectOption // FieldSelect only
	Min     float64        // FieldNumber only
	Max     float64        // FieldNumber only
	Step    float64        // FieldNumber only
}

// Fields maps field names to their declarations.
type Fields map[string]Field

// Slot returns the name of the slot field, if the schema declares one.
// At most one slot field per component is supported; when several are
// declared the lexicographically smallest name wins to keep resolution
// deterministic.
func (f Fields) Slot() (string, bool) {
	var names []string
	for name, field := range f {
		if field.Type == FieldSlot {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return "", false
	}
	slices.Sort(names)
	return names[0], true
}

// Props holds sanitized field values keyed by field name. Values are plain
// strings and float64 numbers; a slot field holds the pre-compiled child
// fragments.
type Props map[string]any

// String returns the string value of a field, or fallback when the field is
// absent or not a string.
func (p Props) String(name, fallback string) string {
	if v, ok := p[name].(string); ok {
		return v
	}
	return fallback
}

// Number returns the numeric value of a field, or fallback when the field is
// absent or not a number.
func (p Props) Number(name string, fallback float64) float64 {
	switch v := p[name].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return fallback
	}
}

// Fragments returns the pre-compiled child fragments delivered through a
// slot field.
func (p Props) Fragments(name string) []string {
	if v, ok := p[name].([]string); ok {
		return v
	}
	return nil
}

// FormatNumber renders a numeric prop without a trailing fractional part for
// integral values, so "24" never becomes "24.000000" in generated markup.
func FormatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
