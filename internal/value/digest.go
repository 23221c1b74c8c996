package value

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
)

// Digest returns a deterministic SHA256 hex digest of x's JSON form. The JSON
// is canonicalized (RFC 8785) first, so field order and number formatting
// never change the result.
func Digest(x any) (string, error) {
	tempData, err := json.Marshal(x)
	if err != nil {
		return "", fmt.Errorf("failed to marshal for digest: %w", err)
	}
	data, err := jcs.Transform(tempData)
	if err != nil {
		return "", fmt.Errorf("failed to canonicalize for digest: %w", err)
	}
	hash := sha256.Sum256(data)
	return fmt.Sprintf("%x", hash), nil
}
