// Package auth defines the credential verification collaborator. Token
// issuance lives outside this process; the gateway only needs an opaque
// credential-to-user mapping.
package auth

import "errors"

// ErrAuthRejected is returned for any credential that does not verify.
var ErrAuthRejected = errors.New("auth rejected")

// Verifier resolves an externally-issued credential to a stable user id.
type Verifier interface {
	Verify(credential string) (string, error)
}

// StaticTokenVerifier provides a simple in-memory token verifier
type StaticTokenVerifier struct {
	validTokens map[string]string // token -> user id
}

// NewStaticTokenVerifier creates a verifier from a token -> user id mapping
func NewStaticTokenVerifier(tokens map[string]string) *StaticTokenVerifier {
	validTokens := make(map[string]string, len(tokens))
	for token, userID := range tokens {
		validTokens[token] = userID
	}

	return &StaticTokenVerifier{
		validTokens: validTokens,
	}
}

// AddToken adds a new valid token
func (a *StaticTokenVerifier) AddToken(token, userID string) {
	a.validTokens[token] = userID
}

// RemoveToken removes a valid token
func (a *StaticTokenVerifier) RemoveToken(token string) {
	delete(a.validTokens, token)
}

// Verify resolves a token to its user id
func (a *StaticTokenVerifier) Verify(credential string) (string, error) {
	userID, ok := a.validTokens[credential]
	if !ok {
		return "", ErrAuthRejected
	}
	return userID, nil
}
