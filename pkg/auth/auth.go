package auth

import (
	"context"
	"errors"
	"net"
	"net/http"
)

// AuthDecision represents the three possible outcomes of authentication.
type AuthDecision int

const (
	// Yes means credentials are valid. The chain stops and the identity is used.
	Yes AuthDecision = iota

	// No means credentials are present but invalid. The request is rejected.
	No

	// Abstain means this authenticator cannot handle the credentials.
	// The chain continues with the next authenticator.
	Abstain
)

// AuthResult carries the outcome of an authentication attempt.
type AuthResult struct {
	Decision AuthDecision
	Identity *Identity // populated only when Decision == Yes
	Err      error     // populated only when Decision == No
}

// Identity represents an authenticated caller.
type Identity struct {
	// Subject identifies the caller (required, non-empty). Rate limits and
	// usage records are keyed by it.
	Subject string

	// Method names the authenticator that produced the identity.
	Method string

	// Scopes lists the authorization scopes granted, if any.
	Scopes []string
}

// Authenticator examines request credentials and returns a three-outcome vote.
type Authenticator interface {
	Authenticate(ctx context.Context, r *http.Request) AuthResult
}

// Sentinel errors.
var (
	ErrUnauthenticated = errors.New("authentication required")
	ErrTooManyRequests = errors.New("rate limit exceeded")
)

// AuthChain evaluates authenticators in order.
type AuthChain struct {
	Authenticators []Authenticator

	// DefaultDecision applies when all authenticators abstain. With Yes the
	// request proceeds as an anonymous caller keyed by client address.
	DefaultDecision AuthDecision
}

// Authenticate runs the chain and stops at the first Yes or No. A No vote
// without a reason reports ErrUnauthenticated.
func (c *AuthChain) Authenticate(ctx context.Context, r *http.Request) AuthResult {
	for _, authn := range c.Authenticators {
		result := authn.Authenticate(ctx, r)
		switch result.Decision {
		case Abstain:
			continue
		case No:
			if result.Err == nil {
				result.Err = ErrUnauthenticated
			}
		}
		return result
	}

	if c.DefaultDecision == Yes {
		return AuthResult{
			Decision: Yes,
			Identity: &Identity{Subject: AnonymousSubject(r), Method: "none"},
		}
	}

	return AuthResult{
		Decision: No,
		Err:      ErrUnauthenticated,
	}
}

// AnonymousSubject is the subject of an unauthenticated caller:
// "anonymous:<client host>", or "anonymous" when the address is unknown.
// Rate limits and usage records of anonymous callers are kept per host.
func AnonymousSubject(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if host == "" {
		return "anonymous"
	}
	return "anonymous:" + host
}
