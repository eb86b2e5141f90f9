package delta

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dropsheet/patchd/internal/doc"
)

func TestEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b any
		want bool
	}{
		{"nil", nil, nil, true},
		{"nil vs false", nil, false, false},
		{"strings", "a", "a", true},
		{"different strings", "a", "b", false},
		{"int vs json number", 1, json.Number("1"), true},
		{"float vs int", 2.0, 2, true},
		{"json number float", json.Number("2.50"), 2.5, true},
		{"number vs string", 1, "1", false},
		{"arrays", []any{1, "x"}, []any{json.Number("1"), "x"}, true},
		{"array length", []any{1}, []any{1, 2}, false},
		{"array order", []any{1, 2}, []any{2, 1}, false},
		{"hand-built slice", []string{"a", "b"}, []any{"a", "b"}, true},
		{"objects", map[string]any{"a": 1, "b": nil}, map[string]any{"b": nil, "a": 1.0}, true},
		{"object missing key", map[string]any{"a": nil}, map[string]any{}, false},
		{"record vs map", doc.Record{"id": "x"}, map[string]any{"id": "x"}, true},
		{"nested", map[string]any{"l": []any{map[string]any{"n": 1}}}, map[string]any{"l": []map[string]any{{"n": 1}}}, true},
		{"object vs array", map[string]any{}, []any{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Equal(tt.a, tt.b))
			assert.Equal(t, tt.want, Equal(tt.b, tt.a), "symmetry")
		})
	}
}
