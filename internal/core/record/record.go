// Package record defines the normalized publication record shape and its
// canonical byte serialization, which is the hashing input for the ledger.
package record

import (
	"fmt"
	"strings"
)

// Fields is a normalized publication record: field name to value. Values are
// strings, string slices, or (for the "metadata" field only) a mapping of
// string to string slice.
type Fields map[string]any

// MalformedError reports a record that is missing a required field or holds
// a value of the wrong shape. It is detected before any mutation.
type MalformedError struct {
	Field  string
	Reason string
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("malformed record: field %q: %s", e.Field, e.Reason)
}

// requiredFields must be present as non-empty strings.
var requiredFields = []string{"title", "finding", "version"}

// metadataFields are array-valued subject classifications that Normalize
// folds under the "metadata" key.
var metadataFields = []string{
	"ussubjectmatter",
	"journals",
	"naturesubjects",
	"classifications",
}

// deleteIfEmpty are optional fields removed when their value is empty.
var deleteIfEmpty = []string{"name", "affiliation", "safety"}

// normalizeLines are free-text fields whose carriage returns are stripped so
// the same text submitted from different platforms hashes identically.
var normalizeLines = []string{"finding", "safety"}

// Normalize rewrites f in place into canonical field shape: subject
// classification arrays move under "metadata", empty optional values are
// dropped, and multi-line text loses its carriage returns. Values arriving
// from JSON decoding ([]any, map[string]any) are coerced to their typed
// forms. A well-formed record always carries a "metadata" mapping, empty
// when nothing folds in. Normalize never fails; a value that cannot be
// coerced is left in place for Validate to reject.
func Normalize(f Fields) {
	for key, value := range f {
		if list, ok := value.([]any); ok {
			if coerced, ok := coerceStrings(list); ok {
				f[key] = coerced
			}
		}
	}

	metadata := map[string][]string{}
	wellFormed := true
	switch raw := f["metadata"].(type) {
	case nil:
	case map[string][]string:
		metadata = raw
	case map[string]any:
		for key, value := range raw {
			switch v := value.(type) {
			case []string:
				metadata[key] = v
			case []any:
				if coerced, ok := coerceStrings(v); ok {
					metadata[key] = coerced
				} else {
					wellFormed = false
				}
			default:
				wellFormed = false
			}
		}
	default:
		wellFormed = false
	}
	if wellFormed {
		for _, key := range metadataFields {
			list, ok := f[key].([]string)
			if !ok || len(list) == 0 {
				continue
			}
			metadata[key] = list
			delete(f, key)
		}
		f["metadata"] = metadata
	}

	for _, key := range deleteIfEmpty {
		switch value := f[key].(type) {
		case string:
			if value == "" {
				delete(f, key)
			}
		case []string:
			kept := value[:0]
			for _, element := range value {
				if element != "" {
					kept = append(kept, element)
				}
			}
			if len(kept) == 0 {
				delete(f, key)
			} else {
				f[key] = kept
			}
		}
	}

	for _, key := range normalizeLines {
		if s, ok := f[key].(string); ok {
			f[key] = strings.ReplaceAll(s, "\r", "")
		}
	}
}

// Validate checks that required fields are present and every value has an
// allowed shape. It returns a *MalformedError describing the first fault.
func Validate(f Fields) error {
	for _, key := range requiredFields {
		s, ok := f[key].(string)
		if !ok {
			if _, present := f[key]; !present {
				return &MalformedError{Field: key, Reason: "required field missing"}
			}
			return &MalformedError{Field: key, Reason: "expected string"}
		}
		if s == "" {
			return &MalformedError{Field: key, Reason: "required field empty"}
		}
	}

	for key, value := range f {
		if key == "metadata" {
			if err := validateMetadata(value); err != nil {
				return err
			}
			continue
		}
		switch v := value.(type) {
		case string:
		case []string:
			for _, element := range v {
				if element == "" {
					return &MalformedError{Field: key, Reason: "empty element in sequence"}
				}
			}
		default:
			return &MalformedError{Field: key, Reason: fmt.Sprintf("unsupported value type %T", value)}
		}
	}
	return nil
}

// validateMetadata requires the normalized mapping shape. A raw
// map[string]any here means Normalize could not coerce some value, so the
// first offending entry is reported.
func validateMetadata(value any) error {
	switch m := value.(type) {
	case map[string][]string:
		for sub, list := range m {
			for _, element := range list {
				if element == "" {
					return &MalformedError{Field: sub, Reason: "empty element in sequence"}
				}
			}
		}
	case map[string]any:
		for sub, v := range m {
			switch list := v.(type) {
			case []string:
			case []any:
				if _, ok := coerceStrings(list); !ok {
					return &MalformedError{Field: sub, Reason: "expected sequence of strings"}
				}
			default:
				return &MalformedError{Field: sub, Reason: "expected sequence, found scalar"}
			}
		}
		return nil
	default:
		return &MalformedError{Field: "metadata", Reason: "expected mapping of string sequences"}
	}
	return nil
}

// coerceStrings converts a decoded JSON array to []string. It reports false
// when any element is not a string, leaving the fault for Validate.
func coerceStrings(list []any) ([]string, bool) {
	out := make([]string, 0, len(list))
	for _, element := range list {
		s, ok := element.(string)
		if !ok {
			return nil, false
		}
		out = append(out, s)
	}
	return out, true
}
