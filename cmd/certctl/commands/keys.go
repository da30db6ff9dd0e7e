package commands

import (
	"crypto/ed25519"
	"fmt"

	"github.com/mr-tron/base58"
)

// parsePrivateKey accepts a base58 ed25519 seed (32 bytes) or a full private
// key (64 bytes).
func parsePrivateKey(s string) (ed25519.PrivateKey, error) {
	raw, err := base58.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("private key is not valid base58: %w", err)
	}
	switch len(raw) {
	case ed25519.SeedSize:
		return ed25519.NewKeyFromSeed(raw), nil
	case ed25519.PrivateKeySize:
		return ed25519.PrivateKey(raw), nil
	default:
		return nil, fmt.Errorf("private key must be %d or %d bytes, got %d", ed25519.SeedSize, ed25519.PrivateKeySize, len(raw))
	}
}
