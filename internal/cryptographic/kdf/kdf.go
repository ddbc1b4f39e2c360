package kdf

import (
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/hkdf"
)

// HKDF fills buffer from HKDF-SHA256 over secret with the given salt and info.
func HKDF(secret, salt, info, buffer []byte) (int, error) {
	h := hkdf.New(sha256.New, secret, salt, info)
	return io.ReadFull(h, buffer)
}

// ShareKey derives the 32 byte key protecting one user's shares at rest.
func ShareKey(master []byte, userID string) ([]byte, error) {
	key := make([]byte, 32)
	if _, err := HKDF(master, []byte(userID), []byte("ShareAtRest"), key); err != nil {
		return nil, err
	}
	return key, nil
}
