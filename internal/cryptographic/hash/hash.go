package hash

import (
	"encoding/binary"
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// ShareSetDigest hashes the concatenation of a user's shares. Each share is
// length prefixed so that moving bytes between shares changes the digest.
func ShareSetDigest(shares ...[]byte) string {
	h, _ := blake2b.New256(nil)
	var prefix [8]byte
	for _, s := range shares {
		binary.BigEndian.PutUint64(prefix[:], uint64(len(s)))
		h.Write(prefix[:])
		h.Write(s)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Sum256 is blake2b-256 over the concatenation of parts.
func Sum256(parts ...[]byte) []byte {
	h, _ := blake2b.New256(nil)
	for _, p := range parts {
		h.Write(p)
	}
	return h.Sum(nil)
}
