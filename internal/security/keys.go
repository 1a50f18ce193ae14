package security

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"net/http"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
)

// ErrInvalidKey is returned when a key set contains no usable RS256 signing key.
var ErrInvalidKey = errors.New("invalid key")

// SigningKey is a provider public key addressed by its key id. Immutable once fetched.
type SigningKey struct {
	KeyID     string
	PublicKey *rsa.PublicKey
}

// KeyFetcher retrieves the provider's current signing keys.
type KeyFetcher interface {
	FetchKeys(ctx context.Context) ([]SigningKey, error)
}

// JWKSFetcher fetches a JSON Web Key Set over HTTP.
type JWKSFetcher struct {
	url    string
	client *http.Client
}

// NewJWKSFetcher returns a fetcher for the key set published at url. A nil client uses http.DefaultClient.
func NewJWKSFetcher(url string, client *http.Client) *JWKSFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &JWKSFetcher{url: url, client: client}
}

// FetchKeys downloads and parses the key set, keeping RSA signature keys only.
func (f *JWKSFetcher) FetchKeys(ctx context.Context) ([]SigningKey, error) {
	set, err := jwk.Fetch(ctx, f.url, jwk.WithHTTPClient(f.client))
	if err != nil {
		return nil, fmt.Errorf("fetch jwks: %w", err)
	}
	return signingKeys(set)
}

// ParseKeySet parses a serialized JWKS document into signing keys.
func ParseKeySet(data []byte) ([]SigningKey, error) {
	set, err := jwk.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse jwks: %w", err)
	}
	return signingKeys(set)
}

func signingKeys(set jwk.Set) ([]SigningKey, error) {
	out := make([]SigningKey, 0, set.Len())
	for i := 0; i < set.Len(); i++ {
		key, ok := set.Key(i)
		if !ok || key.KeyType() != jwa.RSA || key.KeyID() == "" {
			continue
		}
		if use := key.KeyUsage(); use != "" && use != string(jwk.ForSignature) {
			continue
		}
		if alg := key.Algorithm().String(); alg != "" && alg != SigningAlgorithm {
			continue
		}
		var pub rsa.PublicKey
		if err := key.Raw(&pub); err != nil {
			continue
		}
		out = append(out, SigningKey{KeyID: key.KeyID(), PublicKey: &pub})
	}
	if len(out) == 0 {
		return nil, ErrInvalidKey
	}
	return out, nil
}
