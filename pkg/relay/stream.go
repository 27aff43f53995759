package relay

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/rhuss/copilot-bridge/pkg/api"
	"github.com/rhuss/copilot-bridge/pkg/debug"
	"github.com/rhuss/copilot-bridge/pkg/observability"
	"github.com/rhuss/copilot-bridge/pkg/upstream"
)

const (
	dataPrefix = "data: "
	doneMarker = "[DONE]"

	readBufferSize = 32 * 1024
)

// State is the lifecycle state of a StreamRelay.
type State int

const (
	// StateOpen: upstream bytes are being read and relayed.
	StateOpen State = iota
	// StateDone: the upstream ended (EOF or [DONE]); the sentinel is next.
	StateDone
	// StateClosed: nothing more is written to the client.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateDone:
		return "done"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// ErrMalformedEvent marks a data line whose payload is not valid JSON.
var ErrMalformedEvent = errors.New("malformed upstream event")

// StreamRelay relays one upstream event stream to one client. It is not
// safe for concurrent use and is not reusable.
type StreamRelay struct {
	w     http.ResponseWriter
	rc    *http.ResponseController
	model string

	decoder *LineDecoder
	state   State
	chunks  int
	usage   *api.Usage
	outcome string
}

// NewStreamRelay creates a relay writing to w. Chunks carry model as
// their model name.
func NewStreamRelay(w http.ResponseWriter, model string) *StreamRelay {
	return &StreamRelay{
		w:       w,
		rc:      http.NewResponseController(w),
		model:   model,
		decoder: NewLineDecoder(),
		state:   StateOpen,
	}
}

// State returns the current state.
func (s *StreamRelay) State() State { return s.state }

// Chunks returns the number of chunks written to the client.
func (s *StreamRelay) Chunks() int { return s.chunks }

// Usage returns the last token usage the upstream reported in an event,
// or nil.
func (s *StreamRelay) Usage() *api.Usage { return s.usage }

// Outcome returns how the stream ended, one of the observability
// Outcome constants, or "" while it is still open.
func (s *StreamRelay) Outcome() string { return s.outcome }

// Run writes the event-stream headers and relays body until the upstream
// ends or a failure occurs. On a normal end the client receives the
// "data: [DONE]" sentinel, including when the upstream sent no events. A
// malformed event, an upstream read error, or a client write error closes
// the stream without the sentinel and is returned. Nothing is retried.
func (s *StreamRelay) Run(body io.Reader) error {
	if s.state != StateOpen {
		return errors.New("stream relay already used")
	}

	observability.StreamingConnections.Inc()
	defer observability.StreamingConnections.Dec()

	h := s.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	s.w.WriteHeader(http.StatusOK)
	if err := s.flush(); err != nil {
		return s.fail(observability.OutcomeFailedWrite, fmt.Errorf("flush headers: %w", err))
	}

	buf := make([]byte, readBufferSize)
	for s.state == StateOpen {
		n, readErr := body.Read(buf)
		if n > 0 {
			if outcome, err := s.relayLines(s.decoder.Feed(buf[:n])); err != nil {
				return s.fail(outcome, err)
			}
		}

		if readErr == io.EOF {
			if outcome, err := s.relayLines(s.decoder.Flush()); err != nil {
				return s.fail(outcome, err)
			}
			s.state = StateDone
			break
		}
		if readErr != nil {
			return s.fail(observability.OutcomeFailedRead, fmt.Errorf("read upstream stream: %w", readErr))
		}
	}

	if _, err := io.WriteString(s.w, dataPrefix+doneMarker+"\n\n"); err != nil {
		return s.fail(observability.OutcomeFailedWrite, fmt.Errorf("write sentinel: %w", err))
	}
	if err := s.flush(); err != nil {
		return s.fail(observability.OutcomeFailedWrite, fmt.Errorf("flush sentinel: %w", err))
	}

	s.close(observability.OutcomeCompleted)
	debug.Log("relay", "stream completed", "chunks", s.chunks)
	return nil
}

// relayLines handles decoded lines in order. Lines after the terminal
// marker are ignored.
func (s *StreamRelay) relayLines(lines []string) (string, error) {
	for _, line := range lines {
		if s.state != StateOpen {
			return "", nil
		}
		if !strings.HasPrefix(line, dataPrefix) {
			continue
		}

		payload := line[len(dataPrefix):]
		if strings.TrimSpace(payload) == doneMarker {
			s.state = StateDone
			debug.Log("relay", "upstream sent terminal marker")
			continue
		}

		event, err := upstream.DecodeChunk([]byte(payload))
		if err != nil {
			slog.Warn("aborting stream on malformed upstream event",
				"error", err.Error(),
				"data", debug.Truncate(payload, 200),
			)
			return observability.OutcomeFailedDecode, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}

		if err := s.writeChunk(event); err != nil {
			return observability.OutcomeFailedWrite, err
		}
	}
	return "", nil
}

func (s *StreamRelay) writeChunk(event *upstream.ChatCompletionChunk) error {
	chunk := api.ChatCompletionChunk{
		ID:      api.ChunkID(s.chunks),
		Object:  api.ObjectChatCompletionChunk,
		Created: time.Now().Unix(),
		Model:   s.model,
		Choices: []api.ChunkChoice{
			{
				Index:        0,
				Delta:        api.ChunkDelta{Content: event.DeltaContent()},
				FinishReason: event.FinishReason(),
			},
		},
	}
	if event.Usage != nil {
		s.usage = &api.Usage{
			PromptTokens:     event.Usage.PromptTokens,
			CompletionTokens: event.Usage.CompletionTokens,
			TotalTokens:      event.Usage.TotalTokens,
		}
	}

	data, err := json.Marshal(chunk)
	if err != nil {
		return fmt.Errorf("marshal chunk: %w", err)
	}
	if _, err := fmt.Fprintf(s.w, "%s%s\n\n", dataPrefix, data); err != nil {
		return fmt.Errorf("write chunk: %w", err)
	}
	if err := s.flush(); err != nil {
		return fmt.Errorf("flush chunk: %w", err)
	}

	s.chunks++
	observability.RelayedChunksTotal.WithLabelValues(s.model).Inc()
	return nil
}

// flush pushes buffered output to the client. Writers without flush
// support are tolerated.
func (s *StreamRelay) flush() error {
	if err := s.rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return err
	}
	return nil
}

func (s *StreamRelay) fail(outcome string, err error) error {
	s.close(outcome)
	debug.Log("relay", "stream failed", "outcome", outcome, "chunks", s.chunks, "error", err)
	return err
}

func (s *StreamRelay) close(outcome string) {
	s.state = StateClosed
	s.outcome = outcome
	observability.StreamOutcomesTotal.WithLabelValues(outcome).Inc()
}
