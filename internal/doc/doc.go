// Package doc provides the document model shared by every other package.
//
// A record is a JSON object decoded into Go values: map[string]any for
// objects, []any for arrays, string, bool, nil and json.Number for numbers.
// Numbers are kept as json.Number so integer fields such as recordVersion
// survive a round trip through the store without float rounding.
//
// doc imports nothing internal. Canonical JSON and digests live here so the
// store and the history writer agree on a single byte representation.
package doc
