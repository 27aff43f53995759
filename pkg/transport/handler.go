package transport

import (
	"context"
	"net/http"

	"github.com/rhuss/copilot-bridge/pkg/upstream"
)

// Upstream forwards a translated chat request. A non-nil response has a 2xx
// status and the caller must close its body. Failures are reported as
// *upstream.StatusError or *upstream.UnreachableError.
type Upstream interface {
	Do(ctx context.Context, req upstream.ChatCompletionRequest) (*http.Response, error)

	// Model is the upstream model name every request is sent with.
	Model() string

	// Provider names the upstream in model listings.
	Provider() string
}
