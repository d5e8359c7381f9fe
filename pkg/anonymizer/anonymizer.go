package anonymizer

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// IDLength is the number of hex characters kept from the digest. 16 hex
// characters (64 bits) keeps collisions negligible for realistic patient
// populations while staying short enough for log lines and URLs.
const IDLength = 16

var ErrInvalidIdentifier = errors.New("invalid patient identifier")

// Anonymizer derives stable, irreversible identifiers from real patient
// identifiers. The salt prevents dictionary attacks against the short
// identifier space hospitals typically use.
type Anonymizer struct {
	salt string
}

func New(salt string) *Anonymizer {
	return &Anonymizer{salt: salt}
}

// Anonymize maps a real patient identifier to its anonymized form. The same
// input always yields the same output; the salt never leaves this package.
func (a *Anonymizer) Anonymize(realID string) (string, error) {
	trimmed := strings.TrimSpace(realID)
	if trimmed == "" {
		return "", fmt.Errorf("patient identifier is empty: %w", ErrInvalidIdentifier)
	}

	sum := sha256.Sum256([]byte(a.salt + trimmed))
	return hex.EncodeToString(sum[:])[:IDLength], nil
}
