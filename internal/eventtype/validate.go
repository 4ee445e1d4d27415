package eventtype

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Outcome is the result of validating one payload. Errors holds every
// violation found, not just the first.
type Outcome struct {
	OK     bool
	Errors []string
}

// Validator checks candidate payloads against the descriptors of a registry.
// It is a pure function of its inputs and safe for concurrent use.
type Validator struct {
	registry *Registry
}

func NewValidator(r *Registry) *Validator {
	return &Validator{registry: r}
}

// Validate checks rawPayload against the descriptor registered for typeName.
//
// An unregistered type name passes without inspection: unversioned or
// not-yet-known event types are deliberately let through so producers can be
// deployed ahead of this service.
//
// For registered types the payload must be a JSON object whose fields are a
// subset of the declared fields (matched case-insensitively). Every
// missing required field, undeclared field, and constraint violation
// contributes one error message; nothing short-circuits.
func (v *Validator) Validate(typeName string, rawPayload json.RawMessage) Outcome {
	desc, known := v.registry.Resolve(typeName)
	if !known {
		return Outcome{OK: true}
	}

	pairs, err := decodeObject(rawPayload)
	if err != nil {
		return Outcome{Errors: []string{"payload must be a JSON object"}}
	}

	var errs []string
	seen := make(map[string]bool, len(desc.Fields))

	// Payload fields first, in document order.
	for _, p := range pairs {
		field, declared := desc.field(p.name)
		if !declared {
			errs = append(errs, fmt.Sprintf("unmapped field %q", p.name))
			continue
		}
		seen[strings.ToLower(field.Name)] = true
		if msg := checkField(field, p.value); msg != "" {
			errs = append(errs, msg)
		}
	}

	// Then required fields that never appeared, in declaration order.
	for _, f := range desc.Fields {
		if f.Required && !seen[strings.ToLower(f.Name)] {
			errs = append(errs, fmt.Sprintf("missing required field %q", f.Name))
		}
	}

	return Outcome{OK: len(errs) == 0, Errors: errs}
}

// checkField evaluates one field constraint; empty string means no violation.
func checkField(f Field, raw json.RawMessage) string {
	switch f.Kind {
	case String:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil || s == "" {
			return fmt.Sprintf("field %q must be a non-empty string", f.Name)
		}
	case ID:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return fmt.Sprintf("field %q must be a UUID string", f.Name)
		}
		if _, err := uuid.Parse(s); err != nil {
			return fmt.Sprintf("field %q must be a UUID string", f.Name)
		}
	case Number:
		var n float64
		if err := json.Unmarshal(raw, &n); err != nil {
			return fmt.Sprintf("field %q must be a number", f.Name)
		}
		if f.Bounded && (n < f.Min || n > f.Max) {
			return fmt.Sprintf("field %q must be between %g and %g", f.Name, f.Min, f.Max)
		}
	case Enum:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return fmt.Sprintf("field %q must be one of %s", f.Name, strings.Join(f.Enum, ", "))
		}
		for _, allowed := range f.Enum {
			if s == allowed {
				return ""
			}
		}
		return fmt.Sprintf("field %q must be one of %s", f.Name, strings.Join(f.Enum, ", "))
	case Timestamp:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return fmt.Sprintf("field %q must be an RFC 3339 timestamp", f.Name)
		}
		if _, err := time.Parse(time.RFC3339, s); err != nil {
			return fmt.Sprintf("field %q must be an RFC 3339 timestamp", f.Name)
		}
	case Raw:
		// Any JSON value is acceptable.
	}
	return ""
}

type objectPair struct {
	name  string
	value json.RawMessage
}

// decodeObject parses a JSON object preserving field order, so error
// messages come out deterministically in document order.
func decodeObject(raw json.RawMessage) ([]objectPair, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("payload is not a JSON object")
	}

	var pairs []objectPair
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected token %v", keyTok)
		}
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, err
		}
		pairs = append(pairs, objectPair{name: key, value: value})
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return pairs, nil
}
