package timers

import (
	"errors"
	"testing"
)

func TestEncodePayloadEmpty(t *testing.T) {
	t.Parallel()

	for _, p := range []Payload{nil, {}} {
		b, err := encodePayload(p)
		if err != nil {
			t.Fatalf("encodePayload(%v): %v", p, err)
		}
		if string(b) != "{}" {
			t.Errorf("encodePayload(%v) = %s, want {}", p, b)
		}
	}
}

func TestPayloadRoundTrip(t *testing.T) {
	t.Parallel()

	in := Payload{"chat_id": int64(42), "text": "tea", "flag": true}
	b, err := encodePayload(in)
	if err != nil {
		t.Fatal(err)
	}
	out, err := decodePayload(b)
	if err != nil {
		t.Fatal(err)
	}

	// JSON numbers decode as float64; the typed accessor hides that.
	if got, ok := out.Int64("chat_id"); !ok || got != 42 {
		t.Errorf("chat_id = %v, %v; want 42, true", got, ok)
	}
	if got, ok := out.String("text"); !ok || got != "tea" {
		t.Errorf("text = %q, %v; want tea, true", got, ok)
	}
}

func TestDecodePayloadCorrupt(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"{broken", "[1,2]", `"str"`, "null", "17"} {
		_, err := decodePayload([]byte(raw))
		if !errors.Is(err, ErrCorruptPayload) {
			t.Errorf("decodePayload(%q): err = %v, want ErrCorruptPayload", raw, err)
		}
	}
}

func TestDecodePayloadEmptyColumn(t *testing.T) {
	t.Parallel()

	p, err := decodePayload(nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(p) != 0 {
		t.Errorf("decodePayload(nil) = %v, want empty", p)
	}
}
