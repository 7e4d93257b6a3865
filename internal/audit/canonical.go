package audit

import (
	"encoding/json"
	"fmt"
)

// Canonicalize serializes event data into its canonical JSON form: object
// keys sorted recursively, array element order preserved. Hash verification
// recomputes hashes from stored serializations, so the same logical payload
// must always produce the same bytes regardless of construction order.
//
// encoding/json already emits map keys in sorted order. The marshal/unmarshal
// round trip below normalizes arbitrary values (structs, typed numbers) into
// maps and primitives first, so nested objects get the same treatment.
func Canonicalize(eventData map[string]any) (string, error) {
	if eventData == nil {
		eventData = map[string]any{}
	}
	raw, err := json.Marshal(eventData)
	if err != nil {
		return "", fmt.Errorf("marshal event data: %w", err)
	}
	var normalized map[string]any
	if err := json.Unmarshal(raw, &normalized); err != nil {
		return "", fmt.Errorf("normalize event data: %w", err)
	}
	canonical, err := json.Marshal(normalized)
	if err != nil {
		return "", fmt.Errorf("canonicalize event data: %w", err)
	}
	return string(canonical), nil
}
