package auth

import (
	"net/http"
	"strings"
)

type Verifier interface {
	Verify(token string) (Identity, error)
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header.
func BearerToken(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// Authenticate returns the caller identity carried by r.
func Authenticate(v Verifier, r *http.Request) (Identity, error) {
	return v.Verify(BearerToken(r))
}
