package doc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// UnmarshalValue decodes a single JSON value. Numbers are kept as
// json.Number. Trailing data after the value is rejected.
func UnmarshalValue(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("unexpected data after JSON value")
	}
	return v, nil
}

// UnmarshalRecord decodes a JSON object into a Record.
func UnmarshalRecord(data []byte) (Record, error) {
	v, err := UnmarshalValue(data)
	if err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return RecordFromValue(v)
}

// Normalize converts hand-built Go values (Record, []map[string]any, int,
// float64, ...) into the representation UnmarshalValue produces, so that
// documents built in code and documents read from storage compare and
// serialize identically.
func Normalize(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return UnmarshalValue(data)
}
