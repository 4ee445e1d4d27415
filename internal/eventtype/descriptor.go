// Package eventtype holds the registry of known event payload shapes and the
// validator that checks candidate payloads against them.
package eventtype

import "strings"

// Kind classifies the constraint applied to one payload field.
type Kind int

const (
	// String requires a non-empty JSON string.
	String Kind = iota
	// ID requires a string parseable as a UUID.
	ID
	// Number requires a JSON number, optionally range-bounded.
	Number
	// Enum requires a string that is a member of Field.Enum.
	Enum
	// Timestamp requires an RFC 3339 string.
	Timestamp
	// Raw accepts any JSON value.
	Raw
)

// Field declares one payload field and its constraint.
type Field struct {
	Name     string
	Kind     Kind
	Required bool

	// Enum lists the allowed values when Kind is Enum.
	Enum []string

	// Min/Max bound the value when Kind is Number and Bounded is set.
	Min, Max float64
	Bounded  bool
}

// Descriptor is the declared shape of one event type's payload. The field
// set is closed: payload fields not declared here fail validation.
type Descriptor struct {
	Name   string
	Fields []Field
}

// field resolves a payload field name case-insensitively.
func (d Descriptor) field(name string) (Field, bool) {
	for _, f := range d.Fields {
		if strings.EqualFold(f.Name, name) {
			return f, true
		}
	}
	return Field{}, false
}
