package rpc

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
)

var errBadCredentials = errors.New("rpc: invalid or missing bearer token")

// BearerAuth authorizes admin requests carrying a static bearer token. The
// engine still enforces the on-ledger authority check; this layer only keeps
// the HTTP admin surface off-limits to anonymous callers.
type BearerAuth struct {
	token string
}

// NewBearerAuth constructs the authorizer. An empty token disables the admin
// surface entirely.
func NewBearerAuth(token string) *BearerAuth {
	return &BearerAuth{token: strings.TrimSpace(token)}
}

// Authorize implements the Authorizer interface.
func (a *BearerAuth) Authorize(r *http.Request) error {
	if a == nil || a.token == "" {
		return errBadCredentials
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, value, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return errBadCredentials
	}
	if subtle.ConstantTimeCompare([]byte(strings.TrimSpace(value)), []byte(a.token)) != 1 {
		return errBadCredentials
	}
	return nil
}
