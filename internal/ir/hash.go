package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for fingerprints.
// Version suffix enables future algorithm migration.
const (
	DomainQuery  = "strata/query/v1"
	DomainRecord = "strata/record/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null byte separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Fingerprint returns the domain-separated SHA-256 of v's canonical JSON.
func Fingerprint(domain string, v any) (string, error) {
	canonical, err := MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("fingerprint %s: %w", domain, err)
	}
	return hashWithDomain(domain, canonical), nil
}

// RecordChecksum fingerprints a record's entity and attributes.
// Two snapshots with the same checksum hold identical data.
func RecordChecksum(entity string, attrs IRObject) (string, error) {
	if attrs == nil {
		attrs = IRObject{}
	}
	return Fingerprint(DomainRecord, IRObject{
		"entity": IRString(entity),
		"attrs":  attrs,
	})
}
