package signer

import (
	"crypto/ed25519"
	"crypto/sha256"
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certreg/pkg/domain"
	dErrors "certreg/pkg/domain-errors"
)

var now = time.Unix(1_700_000_000, 0)

func testKey(t *testing.T, name string) (ed25519.PrivateKey, domain.PublicKey) {
	t.Helper()
	seed := sha256.Sum256([]byte(name))
	priv := ed25519.NewKeyFromSeed(seed[:])
	pub, err := domain.PublicKeyFromEd25519(priv.Public().(ed25519.PublicKey))
	require.NoError(t, err)
	return priv, pub
}

func verifier() *Verifier {
	return NewVerifier(WithClock(func() time.Time { return now }), WithLeeway(0))
}

func TestMintAndVerify(t *testing.T) {
	priv, pub := testKey(t, "issuer")
	body := []byte(`{"certificate_id":"C-1"}`)

	token, err := Mint(priv, http.MethodPost, "/certificates", body, now, time.Minute)
	require.NoError(t, err)

	got, claims, err := verifier().Verify(token, http.MethodPost, "/certificates", body)
	require.NoError(t, err)
	assert.Equal(t, pub, got)
	assert.Equal(t, pub.String(), claims.Issuer)
	assert.NotEmpty(t, claims.ID)
}

func TestVerifyRejections(t *testing.T) {
	priv, _ := testKey(t, "issuer")
	body := []byte(`{"a":1}`)
	valid, err := Mint(priv, http.MethodPost, "/certificates", body, now, time.Minute)
	require.NoError(t, err)

	tests := []struct {
		name   string
		token  func(t *testing.T) string
		method string
		path   string
		body   []byte
	}{
		{
			name:   "other path",
			token:  func(*testing.T) string { return valid },
			method: http.MethodPost, path: "/issuers", body: body,
		},
		{
			name:   "other method",
			token:  func(*testing.T) string { return valid },
			method: http.MethodPatch, path: "/certificates", body: body,
		},
		{
			name:   "tampered body",
			token:  func(*testing.T) string { return valid },
			method: http.MethodPost, path: "/certificates", body: []byte(`{"a":2}`),
		},
		{
			name: "expired",
			token: func(t *testing.T) string {
				tok, err := Mint(priv, http.MethodPost, "/certificates", body, now.Add(-10*time.Minute), time.Minute)
				require.NoError(t, err)
				return tok
			},
			method: http.MethodPost, path: "/certificates", body: body,
		},
		{
			name: "lifetime over five minutes",
			token: func(t *testing.T) string {
				claims := Claims{
					Method: http.MethodPost, Path: "/certificates", BodyHash: BodyHash(body),
					RegisteredClaims: jwt.RegisteredClaims{
						Issuer:    mustPub(t, priv).String(),
						IssuedAt:  jwt.NewNumericDate(now),
						ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
						ID:        "7b0d8f4e-3d1c-4f57-9a59-6f0f6c1f1a10",
					},
				}
				tok, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(priv)
				require.NoError(t, err)
				return tok
			},
			method: http.MethodPost, path: "/certificates", body: body,
		},
		{
			name: "issuer claim names another key",
			token: func(t *testing.T) string {
				_, other := testKey(t, "other")
				claims := Claims{
					Method: http.MethodPost, Path: "/certificates", BodyHash: BodyHash(body),
					RegisteredClaims: jwt.RegisteredClaims{
						Issuer:    other.String(),
						IssuedAt:  jwt.NewNumericDate(now),
						ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
						ID:        "7b0d8f4e-3d1c-4f57-9a59-6f0f6c1f1a10",
					},
				}
				tok, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(priv)
				require.NoError(t, err)
				return tok
			},
			method: http.MethodPost, path: "/certificates", body: body,
		},
		{
			name: "hmac token",
			token: func(t *testing.T) string {
				tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{Method: http.MethodPost}).SignedString([]byte("secret"))
				require.NoError(t, err)
				return tok
			},
			method: http.MethodPost, path: "/certificates", body: body,
		},
		{
			name:   "garbage",
			token:  func(*testing.T) string { return "not-a-token" },
			method: http.MethodPost, path: "/certificates", body: body,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := verifier().Verify(tt.token(t), tt.method, tt.path, tt.body)
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
		})
	}
}

func mustPub(t *testing.T, priv ed25519.PrivateKey) domain.PublicKey {
	t.Helper()
	pub, err := domain.PublicKeyFromEd25519(priv.Public().(ed25519.PublicKey))
	require.NoError(t, err)
	return pub
}

func TestMintClampsLifetime(t *testing.T) {
	priv, _ := testKey(t, "issuer")
	token, err := Mint(priv, http.MethodGet, "/", nil, now, time.Hour)
	require.NoError(t, err)

	_, claims, err := verifier().Verify(token, http.MethodGet, "/", nil)
	require.NoError(t, err)
	assert.Equal(t, MaxLifetime, claims.ExpiresAt.Sub(claims.IssuedAt.Time))
}

func TestMemoryReplayGuard(t *testing.T) {
	g := NewMemoryReplayGuard()
	clock := now
	g.now = func() time.Time { return clock }

	fresh, err := g.Claim(t.Context(), "jti-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, fresh)

	fresh, err = g.Claim(t.Context(), "jti-1", time.Minute)
	require.NoError(t, err)
	assert.False(t, fresh)

	clock = clock.Add(2 * time.Minute)
	fresh, err = g.Claim(t.Context(), "jti-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, fresh)
}
