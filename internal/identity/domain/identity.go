package domain

// ExternalIdentity is the profile the identity provider reports for an authenticated subject.
// It is transient: only Subject and Email are copied into the local user record.
type ExternalIdentity struct {
	Subject       string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name,omitempty"`
	Picture       string `json:"picture,omitempty"`
}
