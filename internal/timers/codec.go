package timers

import (
	"encoding/json"
	"fmt"
)

// encodePayload serializes a payload for storage. A nil payload becomes the
// empty object so the stored column is always valid JSON.
func encodePayload(p Payload) ([]byte, error) {
	if len(p) == 0 {
		return []byte("{}"), nil
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode timer payload: %w", err)
	}
	return b, nil
}

// decodePayload parses a stored payload column. Anything that is not a JSON
// object is reported as ErrCorruptPayload.
func decodePayload(b []byte) (Payload, error) {
	if len(b) == 0 {
		return Payload{}, nil
	}
	var p Payload
	if err := json.Unmarshal(b, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptPayload, err)
	}
	if p == nil {
		return nil, fmt.Errorf("%w: payload is JSON null", ErrCorruptPayload)
	}
	return p, nil
}
