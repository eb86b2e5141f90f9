package store

import (
	"fmt"
	"time"

	"github.com/dropsheet/patchd/internal/doc"
)

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}

// marshalRecord converts a record to canonical JSON TEXT for storage.
func marshalRecord(r doc.Record) (string, error) {
	data, err := doc.MarshalCanonical(r)
	if err != nil {
		return "", fmt.Errorf("marshal record: %w", err)
	}
	return string(data), nil
}

// unmarshalRecord parses stored JSON TEXT. Numbers stay json.Number so
// large integers survive the round trip.
func unmarshalRecord(data string) (doc.Record, error) {
	r, err := doc.UnmarshalRecord([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("unmarshal record: %w", err)
	}
	return r, nil
}
