// Package identity derives deterministic document and chunk identifiers.
//
// A document is addressed by the SHA-256 digest of its cleaned text, and
// every chunk id is a name-based UUID derived from that digest plus the
// chunk's position. The mapping is a pure function: re-ingesting identical
// content always yields identical identifiers, which is what makes
// re-embedding idempotent and deduplication possible.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"

	"github.com/google/uuid"
)

// DocumentHash returns the SHA-256 digest of text as lowercase hex.
//
// The digest is computed over the exact byte content of the cleaned text,
// so any byte difference produces a different hash. It serves as the
// primary key for documents and the dedup oracle.
func DocumentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// ChunkID returns the deterministic id for the chunk at index within the
// document identified by docHash.
//
// The id is a version-5 (name-based, SHA-1) UUID in the DNS namespace over
// "<docHash>_<index>". No randomness and no external state: the same
// (docHash, index) pair always maps to the same id.
func ChunkID(docHash string, index int) string {
	name := docHash + "_" + strconv.Itoa(index)
	return uuid.NewSHA1(uuid.NameSpaceDNS, []byte(name)).String()
}
