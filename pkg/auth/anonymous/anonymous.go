// Package anonymous provides the authenticator used when client
// authentication is disabled. Every request is accepted; the subject is
// derived from the client address so rate limits still apply per client.
package anonymous

import (
	"context"
	"net/http"

	"github.com/rhuss/copilot-bridge/pkg/auth"
)

// Authenticator always votes Yes.
type Authenticator struct{}

func (a *Authenticator) Authenticate(_ context.Context, r *http.Request) auth.AuthResult {
	return auth.AuthResult{
		Decision: auth.Yes,
		Identity: &auth.Identity{
			Subject: auth.AnonymousSubject(r),
			Method:  "none",
		},
	}
}
