// Package apikey authenticates callers by static bearer keys. Keys are
// stored as SHA-256 hashes and compared in constant time.
package apikey

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"

	"github.com/rhuss/copilot-bridge/pkg/auth"
	"github.com/rhuss/copilot-bridge/pkg/config"
)

type keyEntry struct {
	hash    [32]byte
	subject string
}

// Authenticator validates bearer tokens against configured keys.
type Authenticator struct {
	keys []keyEntry
}

// New creates an authenticator from the configured keys. Plaintext keys
// are hashed immediately and not retained. A key without a subject is
// identified as "key-<n>" by its position.
func New(keys []config.APIKeyConfig) *Authenticator {
	a := &Authenticator{}
	for i, k := range keys {
		subject := k.Subject
		if subject == "" {
			subject = fmt.Sprintf("key-%d", i+1)
		}
		a.keys = append(a.keys, keyEntry{
			hash:    sha256.Sum256([]byte(k.Key)),
			subject: subject,
		})
	}
	return a
}

// Authenticate returns Yes for a known key, No for an unknown or empty
// bearer token, and Abstain when there is no bearer token at all.
func (a *Authenticator) Authenticate(_ context.Context, r *http.Request) auth.AuthResult {
	header := r.Header.Get("Authorization")
	if header == "" || !strings.HasPrefix(header, "Bearer ") {
		return auth.AuthResult{Decision: auth.Abstain}
	}

	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return auth.AuthResult{Decision: auth.No, Err: auth.ErrUnauthenticated}
	}

	tokenHash := sha256.Sum256([]byte(token))

	// Every entry is compared so timing does not reveal the match position.
	match := -1
	for i, entry := range a.keys {
		if subtle.ConstantTimeCompare(tokenHash[:], entry.hash[:]) == 1 && match < 0 {
			match = i
		}
	}
	if match < 0 {
		return auth.AuthResult{Decision: auth.No, Err: auth.ErrUnauthenticated}
	}

	return auth.AuthResult{
		Decision: auth.Yes,
		Identity: &auth.Identity{Subject: a.keys[match].subject, Method: "apikey"},
	}
}
