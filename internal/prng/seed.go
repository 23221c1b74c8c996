package prng

import (
	crand "crypto/rand"
	"encoding/base64"
	"fmt"
)

// NewSeed generates a random seed using crypto/rand.
func NewSeed() (string, error) {
	var b [32]byte
	if _, err := crand.Read(b[:]); err != nil {
		return "", fmt.Errorf("read random seed: %w", err)
	}
	return base64.RawStdEncoding.EncodeToString(b[:]), nil
}
