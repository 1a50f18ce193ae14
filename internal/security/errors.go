package security

import "fmt"

// ErrorKind classifies a rejected bearer token.
type ErrorKind string

const (
	KindMalformed            ErrorKind = "Malformed"
	KindUnsupportedAlgorithm ErrorKind = "UnsupportedAlgorithm"
	KindUnknownKey           ErrorKind = "UnknownKey"
	KindBadSignature         ErrorKind = "BadSignature"
	KindClaimMismatch        ErrorKind = "ClaimMismatch"
	KindExpired              ErrorKind = "Expired"
)

// VerificationError is returned by Verifier.Verify for every rejected token.
// Reason is safe to log; it never contains the token itself.
type VerificationError struct {
	Kind   ErrorKind
	Reason string
	Err    error
}

func (e *VerificationError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("token verification failed: %s", e.Kind)
	}
	return fmt.Sprintf("token verification failed: %s: %s", e.Kind, e.Reason)
}

func (e *VerificationError) Unwrap() error { return e.Err }

func reject(kind ErrorKind, reason string, err error) *VerificationError {
	return &VerificationError{Kind: kind, Reason: reason, Err: err}
}
