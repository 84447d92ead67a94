// Package did implements the Ozoro decentralized identifier scheme.
//
// Identifiers have the fixed form did:ozoro:<opaque-id> where the opaque id is
// derived from 128 bits of randomness, so collisions are cryptographically
// negligible.
package did

import (
	"strings"

	"github.com/google/uuid"
)

// Prefix is the namespace prefix shared by every Ozoro DID.
const Prefix = "did:ozoro:"

// Generate returns a new globally-unique Ozoro DID.
func Generate() string {
	opaque := strings.ReplaceAll(uuid.NewString(), "-", "")
	return Prefix + opaque
}

// IsValid reports whether s carries the Ozoro namespace prefix and a
// non-empty opaque id. The opaque id is deliberately unconstrained beyond
// being non-empty so identifiers minted by older generators keep resolving.
// Pure, no I/O.
func IsValid(s string) bool {
	return strings.HasPrefix(s, Prefix) && len(s) > len(Prefix)
}
