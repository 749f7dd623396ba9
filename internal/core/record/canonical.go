package record

import (
	"encoding/json"
	"fmt"

	"github.com/cyberphone/json-canonicalization/go/src/webpki.org/jsoncanonicalizer"
)

// CanonicalBytes validates f and returns its RFC 8785 (JCS) canonical JSON
// serialization. Two records with equal field content canonicalize to
// identical bytes regardless of map iteration or insertion order; sequence
// element order is preserved.
func CanonicalBytes(f Fields) ([]byte, error) {
	if err := Validate(f); err != nil {
		return nil, err
	}
	raw, err := json.Marshal(map[string]any(f))
	if err != nil {
		return nil, fmt.Errorf("record: marshal: %w", err)
	}
	out, err := jsoncanonicalizer.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("record: canonicalize: %w", err)
	}
	return out, nil
}
