package transport

import (
	"fmt"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"github.com/openclinic/fhirsub/pkg/authz"
)

// Authenticator establishes the identity behind an upgrade request.
type Authenticator interface {
	Authenticate(r *http.Request) (authz.Identity, error)
}

// AuthenticatorFunc adapts a function to Authenticator.
type AuthenticatorFunc func(r *http.Request) (authz.Identity, error)

// Authenticate calls f.
func (f AuthenticatorFunc) Authenticate(r *http.Request) (authz.Identity, error) { return f(r) }

// TokenAuthenticator maps static bearer tokens to principals. The token is
// read from the Authorization header or, for browser clients that cannot
// set headers on a websocket, the access_token query parameter.
//
// Tokens may also be registered by bcrypt hash. A token that matched a hash
// is remembered so later connections skip the comparison.
type TokenAuthenticator struct {
	mu       sync.RWMutex
	tokens   map[string]*authz.Principal
	hashed   []hashedToken
	verified map[string]*authz.Principal
}

type hashedToken struct {
	hash      []byte
	principal *authz.Principal
}

// NewTokenAuthenticator creates an authenticator with no tokens.
func NewTokenAuthenticator() *TokenAuthenticator {
	return &TokenAuthenticator{
		tokens:   make(map[string]*authz.Principal),
		verified: make(map[string]*authz.Principal),
	}
}

// Add registers token for p.
func (a *TokenAuthenticator) Add(token string, p *authz.Principal) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.tokens[token] = p
}

// AddHash registers the bcrypt hash of a token for p.
func (a *TokenAuthenticator) AddHash(hash string, p *authz.Principal) error {
	if _, err := bcrypt.Cost([]byte(hash)); err != nil {
		return fmt.Errorf("token hash: %w", err)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.hashed = append(a.hashed, hashedToken{hash: []byte(hash), principal: p})
	return nil
}

// Authenticate implements Authenticator.
func (a *TokenAuthenticator) Authenticate(r *http.Request) (authz.Identity, error) {
	token := BearerToken(r)
	if token == "" {
		return nil, fmt.Errorf("%w: no token", ErrUnauthenticated)
	}
	a.mu.RLock()
	p, ok := a.tokens[token]
	if !ok {
		p, ok = a.verified[token]
	}
	hashed := a.hashed
	a.mu.RUnlock()
	if ok {
		return p, nil
	}

	for _, h := range hashed {
		if bcrypt.CompareHashAndPassword(h.hash, []byte(token)) == nil {
			a.mu.Lock()
			a.verified[token] = h.principal
			a.mu.Unlock()
			return h.principal, nil
		}
	}
	return nil, fmt.Errorf("%w: unknown token", ErrUnauthenticated)
}

// HashToken returns the bcrypt hash of token for use with AddHash.
func HashToken(token string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// BearerToken extracts the bearer token of r, or "".
func BearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return r.URL.Query().Get("access_token")
}
