// Package address derives deterministic record locations.
//
// An address is BLAKE3-256 over the namespace tag, the seeds, a one-byte bump and
// the deployment's program id. The bump is searched from 255 downwards and the
// first digest that does not decode as an Edwards25519 point is accepted, so a
// derived address can never be a signer's public key.
//
// The same (program, namespace, seeds) always yields the same address and bump.
// Different namespaces never share an address because the namespace is part of
// the hashed material, and seed boundaries are length-prefixed.
package address

import (
	"encoding/binary"
	"errors"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
	"github.com/zeebo/blake3"

	"certreg/pkg/domain"
)

const (
	// MaxSeeds bounds the number of seeds after the namespace tag.
	MaxSeeds = 16
	// MaxSeedLen bounds a single seed; certificate ids are at most 64 bytes.
	MaxSeedLen = 64

	derivationMarker = "ProgramDerivedAddress"
)

// Namespace tags.
const (
	NamespaceRegistry    = "registry"
	NamespaceIssuer      = "issuer"
	NamespaceCertificate = "certificate"
)

var (
	ErrTooManySeeds = errors.New("address: too many seeds")
	ErrSeedTooLong  = errors.New("address: seed exceeds maximum length")
	ErrNoViableBump = errors.New("address: no viable bump")
)

// Address is a derived record location.
type Address [domain.KeySize]byte

func (a Address) String() string {
	return base58.Encode(a[:])
}

func (a Address) Bytes() []byte {
	return a[:]
}

func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// Derive returns the address and bump for namespace and seeds under program.
func Derive(program domain.PublicKey, namespace string, seeds ...[]byte) (Address, uint8, error) {
	if len(seeds)+1 > MaxSeeds {
		return Address{}, 0, ErrTooManySeeds
	}
	if len(namespace) > MaxSeedLen {
		return Address{}, 0, ErrSeedTooLong
	}
	for _, seed := range seeds {
		if len(seed) > MaxSeedLen {
			return Address{}, 0, ErrSeedTooLong
		}
	}

	for bump := 255; bump >= 0; bump-- {
		candidate := hash(program, namespace, seeds, uint8(bump))
		if !onCurve(candidate) {
			return candidate, uint8(bump), nil
		}
	}
	return Address{}, 0, ErrNoViableBump
}

// Verify reports whether addr is the address for the inputs at the given bump.
func Verify(addr Address, bump uint8, program domain.PublicKey, namespace string, seeds ...[]byte) bool {
	derived, derivedBump, err := Derive(program, namespace, seeds...)
	if err != nil {
		return false
	}
	return derived == addr && derivedBump == bump
}

func hash(program domain.PublicKey, namespace string, seeds [][]byte, bump uint8) Address {
	h := blake3.New()
	writeSeed(h, []byte(namespace))
	for _, seed := range seeds {
		writeSeed(h, seed)
	}
	_, _ = h.Write([]byte{bump})
	_, _ = h.Write(program.Bytes())
	_, _ = h.Write([]byte(derivationMarker))

	var out Address
	copy(out[:], h.Sum(nil))
	return out
}

func writeSeed(h *blake3.Hasher, seed []byte) {
	var prefix [2]byte
	binary.BigEndian.PutUint16(prefix[:], uint16(len(seed)))
	_, _ = h.Write(prefix[:])
	_, _ = h.Write(seed)
}

func onCurve(a Address) bool {
	_, err := new(edwards25519.Point).SetBytes(a[:])
	return err == nil
}
