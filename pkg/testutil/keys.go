package testutil

import (
	"crypto/ed25519"
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/require"

	"certreg/pkg/domain"
)

// Signer is a deterministic ed25519 identity for tests.
type Signer struct {
	Public  domain.PublicKey
	Private ed25519.PrivateKey
}

// NewSigner derives a key pair from name, so the same name always yields the
// same key across tests.
func NewSigner(t testing.TB, name string) Signer {
	t.Helper()
	seed := sha256.Sum256([]byte("certreg-test-signer:" + name))
	priv := ed25519.NewKeyFromSeed(seed[:])
	pub, err := domain.PublicKeyFromEd25519(priv.Public().(ed25519.PublicKey))
	require.NoError(t, err)
	return Signer{Public: pub, Private: priv}
}
