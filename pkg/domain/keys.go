package domain

import (
	"crypto/ed25519"

	"github.com/mr-tron/base58"

	dErrors "certreg/pkg/domain-errors"
)

// KeySize is the byte length of a public key and of a derived address.
const KeySize = 32

// PublicKey identifies a signer: the administrator, an issuer authority, or a
// certificate recipient. Its text form is base58.
//
// Usage: construct via ParsePublicKey at trust boundaries; the zero value is
// never a valid identity.
type PublicKey [KeySize]byte

// ParsePublicKey decodes a base58 public key.
func ParsePublicKey(s string) (PublicKey, error) {
	if s == "" {
		return PublicKey{}, dErrors.New(dErrors.CodeInvalidInput, "public key is required")
	}
	raw, err := base58.Decode(s)
	if err != nil {
		return PublicKey{}, dErrors.Wrap(err, dErrors.CodeInvalidInput, "public key is not valid base58")
	}
	return PublicKeyFromBytes(raw)
}

// PublicKeyFromBytes copies a raw 32-byte key.
func PublicKeyFromBytes(raw []byte) (PublicKey, error) {
	var pk PublicKey
	if len(raw) != KeySize {
		return pk, dErrors.New(dErrors.CodeInvalidInput, "public key must be 32 bytes")
	}
	copy(pk[:], raw)
	if pk.IsZero() {
		return PublicKey{}, dErrors.New(dErrors.CodeInvalidInput, "public key cannot be all zeros")
	}
	return pk, nil
}

// PublicKeyFromEd25519 converts a standard library key.
func PublicKeyFromEd25519(key ed25519.PublicKey) (PublicKey, error) {
	return PublicKeyFromBytes(key)
}

func (k PublicKey) String() string {
	return base58.Encode(k[:])
}

func (k PublicKey) Bytes() []byte {
	return k[:]
}

func (k PublicKey) IsZero() bool {
	return k == PublicKey{}
}

// Ed25519 returns the key in the form crypto/ed25519 verifies against.
func (k PublicKey) Ed25519() ed25519.PublicKey {
	return ed25519.PublicKey(k.Bytes())
}

func (k PublicKey) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *PublicKey) UnmarshalText(text []byte) error {
	parsed, err := ParsePublicKey(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
