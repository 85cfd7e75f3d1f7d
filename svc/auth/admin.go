package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

const AdminHeader = "x-admin-token"

// Admin checks moderator tokens against the server secret.
type Admin struct {
	secret []byte
}

func NewAdmin(secret string) *Admin {
	return &Admin{secret: []byte(secret)}
}

// TokenFromRequest extracts the caller's admin token from the dedicated
// header, falling back to a bearer Authorization header.
func TokenFromRequest(r *http.Request) string {
	if t := strings.TrimSpace(r.Header.Get(AdminHeader)); t != "" {
		return t
	}
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

func (a *Admin) Verify(r *http.Request) bool {
	return a.VerifyToken(TokenFromRequest(r))
}

// VerifyToken is false whenever no secret is configured.
func (a *Admin) VerifyToken(token string) bool {
	if a == nil || len(a.secret) == 0 || token == "" {
		return false
	}
	given := make([]byte, len(a.secret))
	copy(given, token)
	lengthOK := subtle.ConstantTimeEq(int32(len(token)), int32(len(a.secret)))
	return subtle.ConstantTimeCompare(given, a.secret)&lengthOK == 1
}

func (a *Admin) Enabled() bool {
	return a != nil && len(a.secret) > 0
}
