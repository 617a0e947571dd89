package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content hashes. The version suffix leaves room for
// changing the algorithm later.
const (
	DomainProjection = "cleanbook/projection/v1"
	DomainCollection = "cleanbook/collection/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data). The null byte keeps
// the domain/data boundary unambiguous.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// ProjectionHash fingerprints a joined projection. Two projections with the
// same rows in the same order hash identically regardless of how they were
// delivered (local recompute or remote snapshot).
func ProjectionHash(rows []JoinedBooking) (string, error) {
	if rows == nil {
		rows = []JoinedBooking{}
	}
	canonical, err := MarshalCanonical(rows)
	if err != nil {
		return "", fmt.Errorf("ProjectionHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainProjection, canonical), nil
}

// CollectionHash fingerprints a persisted collection payload.
func CollectionHash(payload []byte) string {
	return hashWithDomain(DomainCollection, payload)
}
