// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dropsheet/patchd/internal/schema"
	"github.com/dropsheet/patchd/internal/store"
)

// Principal ids used across tests.
const (
	AliceID = "0190f5a4-0000-7000-8000-00000000a11c"
	BobID   = "0190f5a4-0000-7000-8000-000000000b0b"
)

// TablesCUE declares the tables used by service-level tests.
const TablesCUE = `
table: Customer: fields: {
	name:    "string"
	balance: "money"
	active:  "boolean"
	status: {type: "enum", values: ["prospect", "active", "closed"]}
	tags: {type: "array", items: "string"}
	notes: "string"

	addedBy:          "uuid"
	addedDate:        "date"
	addedDateTime:    "datetime"
	modifiedBy:       "uuid"
	modifiedDate:     "date"
	modifiedDateTime: "datetime"
}

table: Counter: fields: {
	count: "quantity"
}
`

// Schemas compiles TablesCUE.
func Schemas(t testing.TB) *schema.Registry {
	t.Helper()
	reg, err := schema.Compile(TablesCUE)
	require.NoError(t, err)
	return reg
}

// NewStore opens a store in a temporary directory and closes it when the
// test ends.
func NewStore(t testing.TB) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "patchd.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}
