// Package signer authenticates mutating requests by the ed25519 key of the
// caller.
//
// A signer presents a short-lived EdDSA JWT signed with its own key. The
// token names the key in iss and binds itself to one request through htm
// (method), htu (path) and bh (base64url SHA-256 of the body), so a captured
// token cannot be replayed against another route or payload.
package signer

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"certreg/pkg/domain"
	dErrors "certreg/pkg/domain-errors"
)

const (
	// MaxLifetime bounds exp - iat.
	MaxLifetime = 5 * time.Minute

	// DefaultLeeway tolerates clock skew between signer and server.
	DefaultLeeway = 30 * time.Second
)

// Claims are the request-binding claims of a signer token.
type Claims struct {
	Method   string `json:"htm"`
	Path     string `json:"htu"`
	BodyHash string `json:"bh"`
	jwt.RegisteredClaims
}

// BodyHash is the bh claim value for body.
func BodyHash(body []byte) string {
	sum := sha256.Sum256(body)
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// Mint signs a token for one request.
func Mint(key ed25519.PrivateKey, method, path string, body []byte, now time.Time, ttl time.Duration) (string, error) {
	if len(key) != ed25519.PrivateKeySize {
		return "", errors.New("signer: invalid ed25519 private key")
	}
	if ttl <= 0 || ttl > MaxLifetime {
		ttl = MaxLifetime
	}
	pub, err := domain.PublicKeyFromEd25519(key.Public().(ed25519.PublicKey))
	if err != nil {
		return "", err
	}
	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, Claims{
		Method:   method,
		Path:     path,
		BodyHash: BodyHash(body),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    pub.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	})
	return token.SignedString(key)
}

// Verifier checks signer tokens.
type Verifier struct {
	now    func() time.Time
	leeway time.Duration
}

type VerifierOption func(*Verifier)

// WithClock overrides the verification clock.
func WithClock(now func() time.Time) VerifierOption {
	return func(v *Verifier) {
		v.now = now
	}
}

func WithLeeway(d time.Duration) VerifierOption {
	return func(v *Verifier) {
		v.leeway = d
	}
}

func NewVerifier(opts ...VerifierOption) *Verifier {
	v := &Verifier{now: time.Now, leeway: DefaultLeeway}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify validates tokenString for a request and returns the signer key and
// the parsed claims.
func (v *Verifier) Verify(tokenString, method, path string, body []byte) (domain.PublicKey, *Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		claims, ok := token.Claims.(*Claims)
		if !ok {
			return nil, jwt.ErrTokenInvalidClaims
		}
		pk, err := domain.ParsePublicKey(claims.Issuer)
		if err != nil {
			return nil, jwt.ErrTokenUnverifiable
		}
		return pk.Ed25519(), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(v.leeway),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return domain.PublicKey{}, nil, dErrors.New(dErrors.CodeUnauthorized, "signer token has expired")
		}
		return domain.PublicKey{}, nil, dErrors.New(dErrors.CodeUnauthorized, "invalid signer token")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return domain.PublicKey{}, nil, dErrors.New(dErrors.CodeUnauthorized, "invalid signer token")
	}
	if claims.IssuedAt == nil {
		return domain.PublicKey{}, nil, dErrors.New(dErrors.CodeUnauthorized, "signer token missing iat")
	}
	if claims.ExpiresAt.Sub(claims.IssuedAt.Time) > MaxLifetime {
		return domain.PublicKey{}, nil, dErrors.New(dErrors.CodeUnauthorized, "signer token lifetime too long")
	}
	if _, err := uuid.Parse(claims.ID); err != nil {
		return domain.PublicKey{}, nil, dErrors.New(dErrors.CodeUnauthorized, "signer token missing jti")
	}
	if claims.Method != method || claims.Path != path {
		return domain.PublicKey{}, nil, dErrors.New(dErrors.CodeUnauthorized, "signer token bound to another request")
	}
	if claims.BodyHash != BodyHash(body) {
		return domain.PublicKey{}, nil, dErrors.New(dErrors.CodeUnauthorized, "signer token body hash mismatch")
	}

	pk, err := domain.ParsePublicKey(claims.Issuer)
	if err != nil {
		return domain.PublicKey{}, nil, dErrors.New(dErrors.CodeUnauthorized, "invalid signer key")
	}
	return pk, claims, nil
}
