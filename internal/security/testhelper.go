package security

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
)

// TestIssuer signs RS256 tokens with a freshly generated key pair. For unit tests only.
type TestIssuer struct {
	KeyID    string
	Issuer   string
	Audience string
	key      *rsa.PrivateKey
}

// NewTestIssuer generates a 2048-bit key pair identified by kid.
func NewTestIssuer(kid, issuer, audience string) (*TestIssuer, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, err
	}
	return &TestIssuer{KeyID: kid, Issuer: issuer, Audience: audience, key: key}, nil
}

// SigningKey returns the public half as a SigningKey.
func (i *TestIssuer) SigningKey() SigningKey {
	return SigningKey{KeyID: i.KeyID, PublicKey: &i.key.PublicKey}
}

// Claims returns a valid claim set for subject expiring after ttl.
func (i *TestIssuer) Claims(subject string, ttl time.Duration) jwt.MapClaims {
	now := time.Now()
	return jwt.MapClaims{
		"iss": i.Issuer,
		"sub": subject,
		"aud": []string{i.Audience},
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}
}

// Token signs a valid one-hour token for subject.
func (i *TestIssuer) Token(subject string) (string, error) {
	return i.Sign(i.Claims(subject, time.Hour))
}

// Sign signs claims with RS256 and the issuer's kid.
func (i *TestIssuer) Sign(claims jwt.Claims) (string, error) {
	t := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	t.Header["kid"] = i.KeyID
	return t.SignedString(i.key)
}

// JWKS returns the serialized public key set.
func (i *TestIssuer) JWKS() ([]byte, error) {
	key, err := jwk.FromRaw(&i.key.PublicKey)
	if err != nil {
		return nil, err
	}
	if err := key.Set(jwk.KeyIDKey, i.KeyID); err != nil {
		return nil, err
	}
	if err := key.Set(jwk.AlgorithmKey, jwa.RS256); err != nil {
		return nil, err
	}
	if err := key.Set(jwk.KeyUsageKey, jwk.ForSignature); err != nil {
		return nil, err
	}
	set := jwk.NewSet()
	if err := set.AddKey(key); err != nil {
		return nil, err
	}
	return json.Marshal(set)
}

// StaticKeyFetcher serves a fixed key set and counts fetches. For unit tests only.
type StaticKeyFetcher struct {
	mu    sync.Mutex
	keys  []SigningKey
	err   error
	calls int
	// Delay holds each fetch open, letting concurrent callers pile up.
	Delay time.Duration
}

// NewStaticKeyFetcher returns a fetcher that always yields keys.
func NewStaticKeyFetcher(keys ...SigningKey) *StaticKeyFetcher {
	return &StaticKeyFetcher{keys: keys}
}

// FetchKeys implements KeyFetcher.
func (f *StaticKeyFetcher) FetchKeys(ctx context.Context) ([]SigningKey, error) {
	f.mu.Lock()
	f.calls++
	keys, err, delay := append([]SigningKey(nil), f.keys...), f.err, f.Delay
	f.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}
	return keys, err
}

// SetKeys replaces the served key set (key rotation).
func (f *StaticKeyFetcher) SetKeys(keys ...SigningKey) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = keys
}

// SetError makes subsequent fetches fail with err.
func (f *StaticKeyFetcher) SetError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// Calls returns the number of fetches so far.
func (f *StaticKeyFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}
