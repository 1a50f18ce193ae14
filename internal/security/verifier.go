package security

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SigningAlgorithm is the only JWS algorithm accepted for bearer tokens.
const SigningAlgorithm = "RS256"

// KeyResolver resolves a signing key by key id. *KeyCache implements it.
type KeyResolver interface {
	Resolve(ctx context.Context, kid string) (SigningKey, error)
}

// VerifiedClaims is the claim set of a token that passed verification.
type VerifiedClaims struct {
	Subject  string
	Issuer   string
	Audience []string
	Expiry   time.Time
	Raw      map[string]interface{}
}

// Verifier validates RS256 bearer tokens against a fixed issuer and audience.
type Verifier struct {
	keys     KeyResolver
	issuer   string
	audience string
	skew     time.Duration
	now      func() time.Time
}

// VerifierOption customizes a Verifier.
type VerifierOption func(*Verifier)

// WithClockSkew sets the leeway applied to exp and nbf. Default 0.
func WithClockSkew(d time.Duration) VerifierOption {
	return func(v *Verifier) { v.skew = d }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) VerifierOption {
	return func(v *Verifier) { v.now = now }
}

// NewVerifier returns a Verifier that resolves keys through keys and expects iss == issuer and aud to contain audience.
func NewVerifier(keys KeyResolver, issuer, audience string, opts ...VerifierOption) *Verifier {
	v := &Verifier{keys: keys, issuer: issuer, audience: audience, now: time.Now}
	for _, o := range opts {
		o(v)
	}
	return v
}

// Verify checks the token header, signature and claims in that order. Every failure is a *VerificationError.
func (v *Verifier) Verify(ctx context.Context, token string) (*VerifiedClaims, error) {
	if token == "" {
		return nil, reject(KindMalformed, "empty token", nil)
	}

	// Header first; nothing in the token is trusted yet.
	unverified, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil && (unverified == nil || errors.Is(err, jwt.ErrTokenMalformed)) {
		return nil, reject(KindMalformed, "cannot decode token", err)
	}
	alg, _ := unverified.Header["alg"].(string)
	if alg != SigningAlgorithm {
		return nil, reject(KindUnsupportedAlgorithm, "alg "+quote(alg)+" not allowed", nil)
	}
	kid, _ := unverified.Header["kid"].(string)
	if kid == "" {
		return nil, reject(KindUnknownKey, "missing kid", nil)
	}
	key, err := v.keys.Resolve(ctx, kid)
	if err != nil {
		return nil, reject(KindUnknownKey, "kid "+quote(kid)+" not found", err)
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{SigningAlgorithm}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(v.audience),
		jwt.WithLeeway(v.skew),
		jwt.WithTimeFunc(v.now),
	)
	claims := jwt.MapClaims{}
	_, err = parser.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return key.PublicKey, nil
	})
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return nil, reject(KindBadSignature, "signature mismatch", err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, reject(KindExpired, "token expired", err)
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return nil, reject(KindClaimMismatch, "issuer mismatch", err)
	case errors.Is(err, jwt.ErrTokenInvalidAudience):
		return nil, reject(KindClaimMismatch, "audience mismatch", err)
	case errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
		return nil, reject(KindClaimMismatch, "required claim missing", err)
	case errors.Is(err, jwt.ErrTokenNotValidYet):
		return nil, reject(KindClaimMismatch, "token not valid yet", err)
	case errors.Is(err, jwt.ErrTokenMalformed):
		return nil, reject(KindMalformed, "cannot decode token", err)
	default:
		return nil, reject(KindClaimMismatch, "invalid claims", err)
	}

	sub, _ := claims.GetSubject()
	if sub == "" {
		return nil, reject(KindClaimMismatch, "missing sub", nil)
	}
	iss, _ := claims.GetIssuer()
	aud, _ := claims.GetAudience()
	exp, _ := claims.GetExpirationTime()
	out := &VerifiedClaims{
		Subject:  sub,
		Issuer:   iss,
		Audience: []string(aud),
		Raw:      map[string]interface{}(claims),
	}
	if exp != nil {
		out.Expiry = exp.Time
	}
	return out, nil
}

func quote(s string) string {
	if s == "" {
		return `""`
	}
	return `"` + s + `"`
}
