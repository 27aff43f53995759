package storage

import (
	"context"
	"time"
)

// Record describes one chat-completion request. ID is assigned by the
// bridge and keys the ledger; RequestID is the correlation id the client
// may have chosen and need not be unique.
type Record struct {
	ID               string    `json:"id"`
	RequestID        string    `json:"request_id"`
	Subject          string    `json:"subject,omitempty"`
	Model            string    `json:"model"`
	Stream           bool      `json:"stream"`
	Status           int       `json:"status"`
	Chunks           int       `json:"chunks"`
	PromptTokens     int       `json:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens"`
	TotalTokens      int       `json:"total_tokens"`
	DurationMS       int64     `json:"duration_ms"`
	CreatedAt        time.Time `json:"created_at"`
}

// Failed reports whether the request ended with an error status.
func (r *Record) Failed() bool {
	return r.Status >= 400
}

// Summary aggregates the records created at or after Since.
type Summary struct {
	Since            time.Time `json:"since"`
	Requests         int       `json:"requests"`
	Streams          int       `json:"streams"`
	Failures         int       `json:"failures"`
	PromptTokens     int       `json:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens"`
	TotalTokens      int       `json:"total_tokens"`
	Recent           []Record  `json:"recent"`
}

// Add folds r into the totals. Recent is left to the caller.
func (s *Summary) Add(r *Record) {
	s.Requests++
	if r.Stream {
		s.Streams++
	}
	if r.Failed() {
		s.Failures++
	}
	s.PromptTokens += r.PromptTokens
	s.CompletionTokens += r.CompletionTokens
	s.TotalTokens += r.TotalTokens
}

// Ledger stores usage records.
type Ledger interface {
	// Record stores r. It returns ErrConflict if r.ID was seen before.
	Record(ctx context.Context, r Record) error

	// Summary returns totals since the given time and at most limit of the
	// most recent matching records, newest first.
	Summary(ctx context.Context, since time.Time, limit int) (*Summary, error)

	// HealthCheck reports whether the backend is reachable.
	HealthCheck(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}

// Discard is a Ledger that stores nothing.
var Discard Ledger = discard{}

type discard struct{}

func (discard) Record(context.Context, Record) error { return nil }

func (discard) Summary(_ context.Context, since time.Time, _ int) (*Summary, error) {
	return &Summary{Since: since, Recent: []Record{}}, nil
}

func (discard) HealthCheck(context.Context) error { return nil }

func (discard) Close() error { return nil }
