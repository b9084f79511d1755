package types

import (
	"bytes"
	"fmt"
	"strconv"
	"time"
)

// timestampLayouts lists the wire formats the backend emits. Scheduled
// broadcasts carry zone-aware RFC 3339 strings while some rule-engine
// payloads carry naive ISO 8601 strings without an offset.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// Timestamp is a time.Time that unmarshals from the backend's mixed
// timestamp formats. Naive timestamps are interpreted as UTC.
type Timestamp struct {
	time.Time
}

// NewTimestamp wraps t as a wire timestamp.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t}
}

// UnmarshalJSON implements json.Unmarshaler. Null and empty strings decode
// to the zero timestamp.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}

	raw, err := strconv.Unquote(string(data))
	if err != nil {
		return fmt.Errorf("timestamp is not a JSON string: %w", err)
	}

	if raw == "" {
		t.Time = time.Time{}
		return nil
	}

	for _, layout := range timestampLayouts {
		parsed, parseErr := time.Parse(layout, raw)
		if parseErr == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}

	return fmt.Errorf("unsupported timestamp format: %q", raw)
}

// MarshalJSON implements json.Marshaler. The zero timestamp encodes as null.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}

	return []byte(strconv.Quote(t.UTC().Format(time.RFC3339Nano))), nil
}
