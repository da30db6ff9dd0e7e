package address

import (
	"bytes"
	"crypto/rand"
	"fmt"
	"testing"

	"filippo.io/edwards25519"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certreg/pkg/domain"
)

func newProgram(t *testing.T) domain.PublicKey {
	t.Helper()
	var pk domain.PublicKey
	_, err := rand.Read(pk[:])
	require.NoError(t, err)
	return pk
}

func TestDerive_Deterministic(t *testing.T) {
	program := newProgram(t)

	a1, b1, err := Derive(program, NamespaceCertificate, []byte("CERT-001"))
	require.NoError(t, err)
	a2, b2, err := Derive(program, NamespaceCertificate, []byte("CERT-001"))
	require.NoError(t, err)

	assert.Equal(t, a1, a2)
	assert.Equal(t, b1, b2)
	assert.True(t, Verify(a1, b1, program, NamespaceCertificate, []byte("CERT-001")))
}

func TestDerive_Separation(t *testing.T) {
	program := newProgram(t)
	key := bytes.Repeat([]byte{7}, 32)

	t.Run("namespaces do not collide on identical key material", func(t *testing.T) {
		issuer, _, err := Derive(program, NamespaceIssuer, key)
		require.NoError(t, err)
		cert, _, err := Derive(program, NamespaceCertificate, key)
		require.NoError(t, err)
		assert.NotEqual(t, issuer, cert)
	})

	t.Run("seed boundaries are significant", func(t *testing.T) {
		joined, _, err := Derive(program, NamespaceCertificate, []byte("ab"))
		require.NoError(t, err)
		split, _, err := Derive(program, NamespaceCertificate, []byte("a"), []byte("b"))
		require.NoError(t, err)
		assert.NotEqual(t, joined, split)
	})

	t.Run("deployments do not share addresses", func(t *testing.T) {
		a, _, err := Derive(program, NamespaceRegistry)
		require.NoError(t, err)
		b, _, err := Derive(newProgram(t), NamespaceRegistry)
		require.NoError(t, err)
		assert.NotEqual(t, a, b)
	})

	t.Run("distinct ids yield distinct addresses", func(t *testing.T) {
		seen := make(map[Address]string, 500)
		for i := 0; i < 500; i++ {
			id := fmt.Sprintf("CERT-%04d", i)
			addr, _, err := Derive(program, NamespaceCertificate, []byte(id))
			require.NoError(t, err)
			if prev, ok := seen[addr]; ok {
				t.Fatalf("collision between %q and %q", prev, id)
			}
			seen[addr] = id
		}
	})
}

func TestDerive_OffCurve(t *testing.T) {
	program := newProgram(t)
	for i := 0; i < 100; i++ {
		addr, bump, err := Derive(program, NamespaceCertificate, []byte(fmt.Sprintf("id-%d", i)))
		require.NoError(t, err)

		_, perr := new(edwards25519.Point).SetBytes(addr[:])
		assert.Error(t, perr, "derived address must not be a curve point")
		assert.True(t, Verify(addr, bump, program, NamespaceCertificate, []byte(fmt.Sprintf("id-%d", i))))
	}
}

func TestDerive_Limits(t *testing.T) {
	program := newProgram(t)

	t.Run("accepts 64-byte seed", func(t *testing.T) {
		_, _, err := Derive(program, NamespaceCertificate, bytes.Repeat([]byte("x"), MaxSeedLen))
		assert.NoError(t, err)
	})

	t.Run("rejects oversized seed", func(t *testing.T) {
		_, _, err := Derive(program, NamespaceCertificate, bytes.Repeat([]byte("x"), MaxSeedLen+1))
		assert.ErrorIs(t, err, ErrSeedTooLong)
	})

	t.Run("rejects too many seeds", func(t *testing.T) {
		seeds := make([][]byte, MaxSeeds)
		for i := range seeds {
			seeds[i] = []byte{byte(i)}
		}
		_, _, err := Derive(program, NamespaceCertificate, seeds...)
		assert.ErrorIs(t, err, ErrTooManySeeds)
	})
}

func TestDeriver(t *testing.T) {
	program := newProgram(t)
	d := NewDeriver(program)

	reg, _, err := d.Registry()
	require.NoError(t, err)
	direct, _, err := Derive(program, NamespaceRegistry)
	require.NoError(t, err)
	assert.Equal(t, direct, reg)

	authority := newProgram(t)
	issuer, _, err := d.Issuer(authority)
	require.NoError(t, err)
	assert.NotEqual(t, reg, issuer)

	cert, _, err := d.Certificate("CERT-001")
	require.NoError(t, err)
	assert.NotEqual(t, issuer, cert)
	assert.Equal(t, program, d.Program())
}
