package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/google/uuid"

	"github.com/rhuss/copilot-bridge/pkg/api"
	"github.com/rhuss/copilot-bridge/pkg/auth"
	"github.com/rhuss/copilot-bridge/pkg/config"
	"github.com/rhuss/copilot-bridge/pkg/debug"
	"github.com/rhuss/copilot-bridge/pkg/observability"
	"github.com/rhuss/copilot-bridge/pkg/relay"
	"github.com/rhuss/copilot-bridge/pkg/storage"
	"github.com/rhuss/copilot-bridge/pkg/transport"
	"github.com/rhuss/copilot-bridge/pkg/upstream"
)

const (
	defaultUsageWindow = 24 * time.Hour
	defaultUsageLimit  = 20
	maxUsageLimit      = 100

	// usageRecordTimeout bounds the ledger write that follows a request,
	// which runs after the client may already have gone.
	usageRecordTimeout = 5 * time.Second
)

// Adapter serves the OpenAI-compatible chat API over HTTP.
// It routes requests to the appropriate handler and serializes responses.
type Adapter struct {
	cfg      *config.Config
	upstream transport.Upstream
	ledger   storage.Ledger
	ledgerID string
	authMW   func(http.Handler) http.Handler
	inflight *transport.InFlightRegistry
	logger   *slog.Logger
	router   chi.Router
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithAuth installs client authentication (and rate limiting) in front of
// the API routes. /health and the metrics endpoint stay open.
func WithAuth(mw func(http.Handler) http.Handler) Option {
	return func(a *Adapter) { a.authMW = mw }
}

// WithLedger records one usage entry per chat request. backend labels
// ledger failures in metrics.
func WithLedger(l storage.Ledger, backend string) Option {
	return func(a *Adapter) {
		a.ledger = l
		a.ledgerID = backend
	}
}

// WithAdapterLogger sets the access logger.
func WithAdapterLogger(l *slog.Logger) Option {
	return func(a *Adapter) { a.logger = l }
}

// NewAdapter creates an HTTP adapter that forwards chat requests to up.
// Without WithLedger usage is discarded.
func NewAdapter(cfg *config.Config, up transport.Upstream, opts ...Option) *Adapter {
	a := &Adapter{
		cfg:      cfg,
		upstream: up,
		ledger:   storage.Discard,
		ledgerID: "none",
		inflight: transport.NewInFlightRegistry(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.router = a.routes()
	return a
}

// Handler returns the http.Handler for this adapter. Use this to integrate
// with an http.Server or test with httptest.
func (a *Adapter) Handler() http.Handler {
	return a.router
}

// InFlight returns the registry of active streams.
func (a *Adapter) InFlight() *transport.InFlightRegistry {
	return a.inflight
}

func (a *Adapter) routes() chi.Router {
	r := chi.NewRouter()

	r.Use(
		transport.Chain(
			transport.RequestID(),
			transport.Logging(a.logger),
			transport.Recovery(),
		),
		cors.Handler(cors.Options{
			AllowedOrigins: a.cfg.Server.CORSOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", transport.RequestIDHeader},
			ExposedHeaders: []string{transport.RequestIDHeader},
			MaxAge:         300,
		}),
		observability.MetricsMiddleware,
	)

	r.Get("/health", a.handleHealth)
	if a.cfg.Observability.Metrics.Enabled {
		r.Method(http.MethodGet, a.cfg.Observability.Metrics.Path, observability.Handler())
	}

	r.Group(func(r chi.Router) {
		if a.authMW != nil {
			r.Use(a.authMW)
		}
		r.Post("/v1/chat/completions", a.handleChatCompletions)
		r.Post("/chat/completions", a.handleChatCompletions)
		r.Get("/v1/models", a.handleListModels)
		r.Get("/models", a.handleListModels)
		r.Get("/v1/usage", a.handleUsage)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		transport.WriteAPIError(w, api.NewNotFoundError("no route for "+r.Method+" "+r.URL.Path))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		transport.WriteError(w, http.StatusMethodNotAllowed, "method "+r.Method+" not allowed")
	})

	return r
}

// handleHealth handles GET /health. It never depends on the upstream.
func (a *Adapter) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, "OK")
}

// handleListModels handles GET /v1/models and GET /models.
func (a *Adapter) handleListModels(w http.ResponseWriter, _ *http.Request) {
	transport.WriteJSON(w, http.StatusOK, api.ModelList{
		Object: api.ObjectList,
		Data: []api.Model{{
			ID:      a.upstream.Model(),
			Object:  api.ObjectModel,
			Created: time.Now().Unix(),
			OwnedBy: a.upstream.Provider(),
		}},
	})
}

// handleChatCompletions handles POST /v1/chat/completions and its alias.
func (a *Adapter) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rec := storage.Record{
		ID:        uuid.NewString(),
		RequestID: transport.RequestIDFromContext(r.Context()),
		Subject:   auth.SubjectFromContext(r.Context()),
		Model:     a.upstream.Model(),
		CreatedAt: start.UTC(),
	}
	defer func() {
		rec.DurationMS = time.Since(start).Milliseconds()
		a.recordUsage(r.Context(), rec)
	}()

	if !a.cfg.HasCredential() {
		rec.Status = http.StatusUnauthorized
		transport.WriteAPIError(w, api.NewUnauthorizedError("credential not configured"))
		return
	}

	req, apiErr, status := a.decodeChatRequest(w, r)
	if apiErr != nil {
		rec.Status = status
		transport.WriteError(w, status, apiErr.Message)
		return
	}
	rec.Stream = req.Stream

	upReq := upstream.Translate(req, a.cfg.Defaults, a.upstream.Model())

	if req.Stream {
		rec.Status = a.streamCompletion(w, r, upReq, &rec)
		return
	}
	rec.Status = a.bufferedCompletion(w, r, upReq, &rec)
}

// decodeChatRequest reads and validates the request body. On failure it
// returns the error and the status to answer with.
func (a *Adapter) decodeChatRequest(w http.ResponseWriter, r *http.Request) (*api.ChatRequest, *api.APIError, int) {
	r.Body = http.MaxBytesReader(w, r.Body, a.cfg.Server.MaxBodySize)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return nil, api.NewInvalidRequestError("body", fmt.Sprintf("request body too large (max %d bytes)", a.cfg.Server.MaxBodySize)),
				http.StatusRequestEntityTooLarge
		}
		return nil, api.NewInvalidRequestError("body", "reading request body: "+err.Error()), http.StatusBadRequest
	}

	debug.Log("requests", "inbound chat request",
		"request_id", transport.RequestIDFromContext(r.Context()),
		"body", debug.Truncate(string(body), 4096),
	)

	var req api.ChatRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, api.NewInvalidRequestError("body", "invalid JSON: "+err.Error()), http.StatusBadRequest
	}
	if req.Messages == nil {
		return nil, api.NewInvalidRequestError("messages", "messages is required"), http.StatusBadRequest
	}
	return &req, nil, 0
}

// bufferedCompletion forwards a non-streaming request and writes the
// translated completion. It returns the status written.
func (a *Adapter) bufferedCompletion(w http.ResponseWriter, r *http.Request, upReq upstream.ChatCompletionRequest, rec *storage.Record) int {
	resp, err := a.upstream.Do(r.Context(), upReq)
	if err != nil {
		return a.writeUpstreamError(w, r, err)
	}
	defer resp.Body.Close()

	completion, err := relay.Complete(resp.Body, a.upstream.Model())
	if err != nil {
		a.logger.Error("translating upstream response",
			"request_id", rec.RequestID,
			"error", err,
		)
		transport.WriteError(w, http.StatusInternalServerError, err.Error())
		return http.StatusInternalServerError
	}

	setUsage(rec, &completion.Usage)
	transport.WriteJSON(w, http.StatusOK, completion)
	return http.StatusOK
}

// streamCompletion forwards a streaming request and relays the event
// stream. Once the relay has started the status is 200 whatever happens
// to the stream.
func (a *Adapter) streamCompletion(w http.ResponseWriter, r *http.Request, upReq upstream.ChatCompletionRequest, rec *storage.Record) int {
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	key := a.inflight.Register(cancel)
	defer a.inflight.Cancel(key)

	resp, err := a.upstream.Do(ctx, upReq)
	if err != nil {
		return a.writeUpstreamError(w, r, err)
	}
	defer resp.Body.Close()

	sr := relay.NewStreamRelay(w, a.upstream.Model())
	runErr := sr.Run(resp.Body)

	rec.Chunks = sr.Chunks()
	if u := sr.Usage(); u != nil {
		setUsage(rec, u)
	}

	if runErr != nil {
		a.logger.Warn("stream ended without completion",
			"request_id", rec.RequestID,
			"outcome", sr.Outcome(),
			"chunks", sr.Chunks(),
			"error", runErr,
		)
	}
	return http.StatusOK
}

// writeUpstreamError maps an upstream failure to the client response. No
// part of a completion has been written at this point.
func (a *Adapter) writeUpstreamError(w http.ResponseWriter, r *http.Request, err error) int {
	requestID := transport.RequestIDFromContext(r.Context())

	var statusErr *upstream.StatusError
	if errors.As(err, &statusErr) {
		a.logger.Warn("upstream rejected request",
			"request_id", requestID,
			"status", statusErr.StatusCode,
			"body", debug.Truncate(statusErr.Body, 500),
		)
		transport.WriteError(w, statusErr.StatusCode, statusErr.Body)
		return statusErr.StatusCode
	}

	var unreachable *upstream.UnreachableError
	if errors.As(err, &unreachable) {
		a.logger.Error("upstream unreachable", "request_id", requestID, "error", err)
	} else {
		a.logger.Error("upstream call failed", "request_id", requestID, "error", err)
	}
	transport.WriteError(w, http.StatusInternalServerError, err.Error())
	return http.StatusInternalServerError
}

// handleUsage handles GET /v1/usage?since=<RFC3339>&limit=<n>.
func (a *Adapter) handleUsage(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	since := time.Now().Add(-defaultUsageWindow)
	if v := q.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			transport.WriteAPIError(w, api.NewInvalidRequestError("since", "since must be an RFC 3339 timestamp"))
			return
		}
		since = t
	}

	limit := defaultUsageLimit
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			transport.WriteAPIError(w, api.NewInvalidRequestError("limit", "limit must be a non-negative integer"))
			return
		}
		limit = min(n, maxUsageLimit)
	}

	summary, err := a.ledger.Summary(r.Context(), since, limit)
	if err != nil {
		a.logger.Error("reading usage summary", "error", err)
		transport.WriteAPIError(w, api.NewServerError("usage summary unavailable"))
		return
	}
	if summary.Recent == nil {
		summary.Recent = []storage.Record{}
	}
	transport.WriteJSON(w, http.StatusOK, summary)
}

// recordUsage stores rec and updates token metrics. Ledger failures are
// logged and counted; they never affect the response.
func (a *Adapter) recordUsage(ctx context.Context, rec storage.Record) {
	if rec.PromptTokens > 0 {
		observability.TokensTotal.WithLabelValues(rec.Model, "input").Add(float64(rec.PromptTokens))
	}
	if rec.CompletionTokens > 0 {
		observability.TokensTotal.WithLabelValues(rec.Model, "output").Add(float64(rec.CompletionTokens))
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), usageRecordTimeout)
	defer cancel()

	if err := a.ledger.Record(ctx, rec); err != nil {
		observability.UsageRecordErrorsTotal.WithLabelValues(a.ledgerID).Inc()
		if errors.Is(err, storage.ErrConflict) {
			a.logger.Warn("duplicate usage record id, usage not recorded", "id", rec.ID, "request_id", rec.RequestID)
			return
		}
		a.logger.Error("recording usage", "request_id", rec.RequestID, "error", err)
		return
	}
	debug.Log("usage", "recorded",
		"request_id", rec.RequestID,
		"status", rec.Status,
		"total_tokens", rec.TotalTokens,
	)
}

func setUsage(rec *storage.Record, u *api.Usage) {
	rec.PromptTokens = u.PromptTokens
	rec.CompletionTokens = u.CompletionTokens
	rec.TotalTokens = u.TotalTokens
}
