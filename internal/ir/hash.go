package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content digests.
// The version suffix allows the algorithm to change without collisions.
const (
	DomainObject = "edb/object/v1"
	DomainCommit = "edb/commit/v1"
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

// ObjectDigest hashes the tagged canonical form of an attribute map.
// Two attribute maps have the same digest exactly when they hold the same
// keys with the same type tags and (NFC normalized) values.
func ObjectDigest(attrs IRObject) (string, error) {
	canonical, err := canonicalTagged(attrs)
	if err != nil {
		return "", fmt.Errorf("ObjectDigest: %w", err)
	}
	return hashWithDomain(DomainObject, canonical), nil
}

// MustObjectDigest is like ObjectDigest but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustObjectDigest(attrs IRObject) string {
	d, err := ObjectDigest(attrs)
	if err != nil {
		panic(err)
	}
	return d
}

// StateDigest hashes a full state (OID -> attribute digest). It is used to
// compare a replayed head with the stored one.
func StateDigest(objects []Object) (string, error) {
	state := make(IRObject, len(objects))
	for _, obj := range objects {
		d, err := ObjectDigest(obj.Attributes)
		if err != nil {
			return "", fmt.Errorf("StateDigest %s: %w", obj.OID, err)
		}
		state[obj.OID] = IRString(d)
	}
	canonical, err := MarshalCanonical(state)
	if err != nil {
		return "", fmt.Errorf("StateDigest: %w", err)
	}
	return hashWithDomain(DomainCommit, canonical), nil
}
