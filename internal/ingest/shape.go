package ingest

import (
	"fmt"
	"sort"
)

// Shape enumerates the payload layouts emitted by the scrapers.
type Shape int

const (
	ShapeUnrecognized Shape = iota
	// ShapeSingleAccountEnvelope is {"accounts": [{"accountNumber": .., "txns": [..]}]}.
	ShapeSingleAccountEnvelope
	// ShapeTransactionList is [{"identifier": ..}, ..].
	ShapeTransactionList
	// ShapeAccountMapList is [{"<key>": {"accountNumber": .., "txns": [..]}}, ..].
	ShapeAccountMapList
)

func (s Shape) String() string {
	switch s {
	case ShapeSingleAccountEnvelope:
		return "single_account_envelope"
	case ShapeTransactionList:
		return "list_of_transactions"
	case ShapeAccountMapList:
		return "list_of_account_maps"
	default:
		return "unrecognized"
	}
}

// DetectShape classifies a decoded scraper payload.
//
// Only the first element of a sequence is inspected. Empty input fails with
// ErrValidation before any probing happens.
func DetectShape(payload any) (Shape, error) {
	if err := ValidatePayload(payload); err != nil {
		return ShapeUnrecognized, err
	}

	if m, ok := asMap(payload); ok {
		accounts, ok := asSlice(m["accounts"])
		if !ok || len(accounts) == 0 {
			return ShapeUnrecognized, fmt.Errorf("%w: mapping without a non-empty accounts sequence", ErrShape)
		}
		if _, ok := asMap(accounts[0]); !ok {
			return ShapeUnrecognized, fmt.Errorf("%w: accounts[0] is %T, want mapping", ErrShape, accounts[0])
		}
		return ShapeSingleAccountEnvelope, nil
	}

	items, _ := asSlice(payload)
	first, ok := asMap(items[0])
	if !ok {
		return ShapeUnrecognized, fmt.Errorf("%w: first element is %T, want mapping", ErrShape, items[0])
	}
	if _, ok := first["identifier"]; ok {
		return ShapeTransactionList, nil
	}

	if len(first) > 0 {
		if account, ok := asMap(first[sortedKeys(first)[0]]); ok {
			if _, ok := account["txns"]; ok {
				if key, bad := nonMappingKey(first); bad {
					return ShapeUnrecognized, fmt.Errorf("%w: account map key %q is %T, want mapping", ErrShape, key, first[key])
				}
				return ShapeAccountMapList, nil
			}
		}
	}
	return ShapeUnrecognized, fmt.Errorf("%w: first element has neither identifier nor account txns", ErrShape)
}

// nonMappingKey reports the first key, in sorted order, whose value is not an
// account mapping. Flatten rejects such siblings too.
func nonMappingKey(m map[string]any) (string, bool) {
	for _, key := range sortedKeys(m) {
		if _, ok := asMap(m[key]); !ok {
			return key, true
		}
	}
	return "", false
}

// ValidatePayload rejects nil, empty and non-container payloads.
func ValidatePayload(payload any) error {
	if payload == nil {
		return fmt.Errorf("%w: payload is empty", ErrValidation)
	}
	if m, ok := asMap(payload); ok {
		if len(m) == 0 {
			return fmt.Errorf("%w: payload is empty", ErrValidation)
		}
		return nil
	}
	if s, ok := asSlice(payload); ok {
		if len(s) == 0 {
			return fmt.Errorf("%w: payload is empty", ErrValidation)
		}
		return nil
	}
	return fmt.Errorf("%w: payload is %T, want mapping or sequence", ErrValidation, payload)
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case FlatRecord:
		return m, true
	default:
		return nil, false
	}
}

func asSlice(v any) ([]any, bool) {
	switch s := v.(type) {
	case []any:
		return s, true
	case []map[string]any:
		out := make([]any, len(s))
		for i := range s {
			out[i] = s[i]
		}
		return out, true
	case []FlatRecord:
		out := make([]any, len(s))
		for i := range s {
			out[i] = s[i]
		}
		return out, true
	default:
		return nil, false
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
