package doc

import (
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"
)

// DomainRecord separates record digests from any other hash the store may
// compute over the same bytes.
const DomainRecord = "patchd/record/v1"

// hashWithDomain computes BLAKE3(domain + 0x00 + data).
func hashWithDomain(domain string, data []byte) string {
	h := blake3.New()
	_, _ = h.Write([]byte(domain))
	_, _ = h.Write([]byte{0x00})
	_, _ = h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Digest returns the content digest of a record, computed over its
// canonical JSON. Two records with equal content have equal digests
// regardless of key order or numeric representation.
func Digest(r Record) (string, error) {
	canonical, err := MarshalCanonical(map[string]any(r))
	if err != nil {
		return "", fmt.Errorf("digest: %w", err)
	}
	return hashWithDomain(DomainRecord, canonical), nil
}
