package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rhuss/copilot-bridge/pkg/config"
	"github.com/rhuss/copilot-bridge/pkg/debug"
	"github.com/rhuss/copilot-bridge/pkg/observability"
)

// TokenCheckUserAgent identifies token checks to the info endpoint.
const TokenCheckUserAgent = "Copilot-Tavern-Connector/1.0"

// Client performs the outbound call to the upstream chat API.
type Client struct {
	httpClient *http.Client
	url        string
	infoURL    string
	model      string
	provider   string
	credential string
	userAgent  string
}

// NewClient creates a Client from the upstream configuration.
//
// A non-zero timeout bounds the wait for response headers only. Once the
// upstream starts answering, the body (and thus a stream) is read for as
// long as the inbound request context lives.
func NewClient(cfg config.UpstreamConfig) *Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = cfg.Timeout

	return &Client{
		httpClient: &http.Client{Transport: transport},
		url:        cfg.URL,
		infoURL:    cfg.InfoURL,
		model:      cfg.Model,
		provider:   cfg.Provider,
		credential: cfg.Credential,
		userAgent:  cfg.UserAgent,
	}
}

// Do sends the translated request and returns the upstream response when
// its status is 2xx. The caller owns and must close the response body.
//
// Non-2xx answers are returned as *StatusError with the body already read
// and closed. Transport failures are returned as *UnreachableError.
func (c *Client) Do(ctx context.Context, req ChatCompletionRequest) (*http.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal upstream request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, &UnreachableError{Err: fmt.Errorf("create upstream request: %w", err)}
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.credential)
	httpReq.Header.Set("User-Agent", c.userAgent)
	if req.Stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}

	debug.Log("upstream", "request", "url", c.url, "model", req.Model, "stream", req.Stream, "messages", len(req.Messages))
	if debug.TraceIsEnabled("upstream") {
		debug.Trace("upstream", "request body", "body", debug.Truncate(string(body), 4096))
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	observability.UpstreamLatency.WithLabelValues(c.provider, req.Model).Observe(time.Since(start).Seconds())
	if err != nil {
		observability.UpstreamRequestsTotal.WithLabelValues(c.provider, req.Model, "error").Inc()
		debug.Log("upstream", "unreachable", "error", err)
		return nil, &UnreachableError{Err: err}
	}

	observability.UpstreamRequestsTotal.WithLabelValues(c.provider, req.Model, strconv.Itoa(resp.StatusCode)).Inc()
	debug.Log("upstream", "response", "status", resp.StatusCode, "content_type", resp.Header.Get("Content-Type"))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, newStatusError(resp.StatusCode, resp.Body)
	}

	return resp, nil
}

// CheckToken asks the upstream info endpoint whether the credential is
// accepted and returns the raw JSON it answers with.
func (c *Client) CheckToken(ctx context.Context) (json.RawMessage, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.infoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create info request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.credential)
	httpReq.Header.Set("User-Agent", TokenCheckUserAgent)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &UnreachableError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newStatusError(resp.StatusCode, resp.Body)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read info response: %w", err)
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("info endpoint returned invalid JSON: %s", debug.Truncate(string(data), 200))
	}
	return json.RawMessage(data), nil
}

// Model returns the upstream model name requests are sent with.
func (c *Client) Model() string {
	return c.model
}

// Provider returns the configured provider name.
func (c *Client) Provider() string {
	return c.provider
}

// Close releases idle connections held by the client.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}
