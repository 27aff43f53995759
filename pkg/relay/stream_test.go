package relay

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rhuss/copilot-bridge/pkg/api"
	"github.com/rhuss/copilot-bridge/pkg/observability"
)

// chunkReader returns one chunk per Read, then err (io.EOF when nil).
type chunkReader struct {
	chunks [][]byte
	err    error
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if len(r.chunks) == 0 {
		if r.err != nil {
			return 0, r.err
		}
		return 0, io.EOF
	}
	n := copy(p, r.chunks[0])
	if n < len(r.chunks[0]) {
		r.chunks[0] = r.chunks[0][n:]
	} else {
		r.chunks = r.chunks[1:]
	}
	return n, nil
}

func chunksOf(parts ...string) *chunkReader {
	r := &chunkReader{}
	for _, p := range parts {
		r.chunks = append(r.chunks, []byte(p))
	}
	return r
}

// frames splits an event-stream body into its data payloads.
func frames(t *testing.T, body string) []string {
	t.Helper()
	var out []string
	for _, f := range strings.Split(body, "\n\n") {
		if f == "" {
			continue
		}
		if !strings.HasPrefix(f, "data: ") {
			t.Fatalf("frame without data prefix: %q", f)
		}
		out = append(out, strings.TrimPrefix(f, "data: "))
	}
	if !strings.HasSuffix(body, "\n\n") && body != "" {
		t.Fatalf("body does not end with a frame terminator: %q", body)
	}
	return out
}

func decodeChunk(t *testing.T, payload string) api.ChatCompletionChunk {
	t.Helper()
	var c api.ChatCompletionChunk
	if err := json.Unmarshal([]byte(payload), &c); err != nil {
		t.Fatalf("decode chunk %q: %v", payload, err)
	}
	return c
}

func event(content string) string {
	return `data: {"choices":[{"delta":{"content":` + mustJSON(content) + `}}]}` + "\n\n"
}

func mustJSON(v any) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func TestStreamRelaysEventsInOrder(t *testing.T) {
	rec := httptest.NewRecorder()
	relay := NewStreamRelay(rec, "copilot-chat")

	err := relay.Run(chunksOf(event("Hel"), event("lo"), event(" world")))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	got := frames(t, rec.Body.String())
	if len(got) != 4 {
		t.Fatalf("frames = %d, want 3 chunks + sentinel: %q", len(got), got)
	}
	if got[3] != "[DONE]" {
		t.Fatalf("last frame = %q, want [DONE]", got[3])
	}

	var text strings.Builder
	for i, payload := range got[:3] {
		c := decodeChunk(t, payload)
		if c.ID != api.ChunkID(i) {
			t.Errorf("chunk %d id = %q, want %q", i, c.ID, api.ChunkID(i))
		}
		if c.Object != "chat.completion.chunk" || c.Model != "copilot-chat" {
			t.Errorf("chunk %d envelope = %+v", i, c)
		}
		if len(c.Choices) != 1 || c.Choices[0].Index != 0 {
			t.Fatalf("chunk %d choices = %+v", i, c.Choices)
		}
		if c.Choices[0].FinishReason != nil {
			t.Errorf("chunk %d finish_reason = %q, want null", i, *c.Choices[0].FinishReason)
		}
		text.WriteString(c.Choices[0].Delta.Content)
	}
	if text.String() != "Hello world" {
		t.Errorf("reassembled text = %q", text.String())
	}

	if relay.State() != StateClosed || relay.Outcome() != observability.OutcomeCompleted {
		t.Errorf("state = %s outcome = %q", relay.State(), relay.Outcome())
	}
	if relay.Chunks() != 3 {
		t.Errorf("Chunks() = %d, want 3", relay.Chunks())
	}
}

func TestStreamSetsEventStreamHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	if err := NewStreamRelay(rec, "m").Run(chunksOf()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := map[string]string{
		"Content-Type":      "text/event-stream",
		"Cache-Control":     "no-cache",
		"Connection":        "keep-alive",
		"X-Accel-Buffering": "no",
	}
	for k, v := range want {
		if got := rec.Header().Get(k); got != v {
			t.Errorf("%s = %q, want %q", k, got, v)
		}
	}
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
	if !rec.Flushed {
		t.Error("expected output to be flushed")
	}
}

func TestStreamZeroEventsStillSendsSentinel(t *testing.T) {
	rec := httptest.NewRecorder()
	if err := NewStreamRelay(rec, "m").Run(chunksOf(": keep-alive\n\n", "event: ping\n\n")); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if body := rec.Body.String(); body != "data: [DONE]\n\n" {
		t.Fatalf("body = %q, want only the sentinel", body)
	}
}

func TestStreamEmptyContentEventsAreRelayed(t *testing.T) {
	rec := httptest.NewRecorder()
	err := NewStreamRelay(rec, "m").Run(chunksOf(
		`data: {"choices":[{"delta":{"role":"assistant"}}]}`+"\n\n",
		`data: {"choices":[]}`+"\n\n",
		`data: {}`+"\n\n",
	))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	got := frames(t, rec.Body.String())
	if len(got) != 4 {
		t.Fatalf("frames = %d, want 4: %q", len(got), got)
	}
	for _, payload := range got[:3] {
		if !strings.Contains(payload, `"delta":{"content":""}`) {
			t.Errorf("chunk should carry empty content: %s", payload)
		}
		if !strings.Contains(payload, `"finish_reason":null`) {
			t.Errorf("chunk should carry null finish_reason: %s", payload)
		}
	}
}

func TestStreamFinishReasonForwarded(t *testing.T) {
	rec := httptest.NewRecorder()
	err := NewStreamRelay(rec, "m").Run(chunksOf(
		`data: {"choices":[{"delta":{"content":"x"},"finish_reason":"stop"}],"usage":{"prompt_tokens":3,"completion_tokens":1,"total_tokens":4}}` + "\n\n",
	))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	c := decodeChunk(t, frames(t, rec.Body.String())[0])
	if c.Choices[0].FinishReason == nil || *c.Choices[0].FinishReason != "stop" {
		t.Errorf("finish_reason = %v, want stop", c.Choices[0].FinishReason)
	}
}

func TestStreamCapturesUsage(t *testing.T) {
	relay := NewStreamRelay(httptest.NewRecorder(), "m")
	err := relay.Run(chunksOf(
		event("a"),
		`data: {"choices":[],"usage":{"prompt_tokens":3,"completion_tokens":1,"total_tokens":4}}`+"\n\n",
	))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	u := relay.Usage()
	if u == nil || u.PromptTokens != 3 || u.CompletionTokens != 1 || u.TotalTokens != 4 {
		t.Fatalf("Usage() = %+v", u)
	}
}

func TestStreamUpstreamDoneMarkerEndsRelay(t *testing.T) {
	rec := httptest.NewRecorder()
	err := NewStreamRelay(rec, "m").Run(chunksOf(
		event("a"),
		"data: [DONE]\n\n",
		event("ignored"),
	))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	got := frames(t, rec.Body.String())
	if len(got) != 2 || got[1] != "[DONE]" {
		t.Fatalf("frames = %q, want one chunk and one sentinel", got)
	}
	if strings.Contains(rec.Body.String(), "ignored") {
		t.Error("data after the terminal marker was relayed")
	}
}

func TestStreamEventsSplitAcrossReads(t *testing.T) {
	whole := event("héllo 世界") + event("🎉")
	raw := []byte(whole)

	for cut := 1; cut < len(raw); cut++ {
		rec := httptest.NewRecorder()
		r := &chunkReader{chunks: [][]byte{raw[:cut], raw[cut:]}}
		if err := NewStreamRelay(rec, "m").Run(r); err != nil {
			t.Fatalf("cut %d: Run: %v", cut, err)
		}

		got := frames(t, rec.Body.String())
		if len(got) != 3 {
			t.Fatalf("cut %d: frames = %q", cut, got)
		}
		if c := decodeChunk(t, got[0]).Choices[0].Delta.Content; c != "héllo 世界" {
			t.Fatalf("cut %d: first content = %q", cut, c)
		}
		if c := decodeChunk(t, got[1]).Choices[0].Delta.Content; c != "🎉" {
			t.Fatalf("cut %d: second content = %q", cut, c)
		}
	}
}

func TestStreamPartialFinalLineProcessedBeforeSentinel(t *testing.T) {
	rec := httptest.NewRecorder()
	err := NewStreamRelay(rec, "m").Run(chunksOf(
		event("a"),
		`data: {"choices":[{"delta":{"content":"tail"}}]}`,
	))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	got := frames(t, rec.Body.String())
	if len(got) != 3 || got[2] != "[DONE]" {
		t.Fatalf("frames = %q", got)
	}
	if c := decodeChunk(t, got[1]).Choices[0].Delta.Content; c != "tail" {
		t.Errorf("tail content = %q", c)
	}
}

func TestStreamMalformedEventIsFatal(t *testing.T) {
	rec := httptest.NewRecorder()
	relay := NewStreamRelay(rec, "m")

	err := relay.Run(chunksOf(event("a"), "data: {not json\n\n", event("never")))
	if !errors.Is(err, ErrMalformedEvent) {
		t.Fatalf("Run error = %v, want ErrMalformedEvent", err)
	}

	body := rec.Body.String()
	if strings.Contains(body, "[DONE]") {
		t.Error("sentinel written after a malformed event")
	}
	if strings.Contains(body, "never") {
		t.Error("events after a malformed event were relayed")
	}
	if got := frames(t, body); len(got) != 1 {
		t.Errorf("frames = %q, want the one chunk before the failure", got)
	}
	if relay.State() != StateClosed || relay.Outcome() != observability.OutcomeFailedDecode {
		t.Errorf("state = %s outcome = %q", relay.State(), relay.Outcome())
	}
}

func TestStreamValidJSONOfUnexpectedShapeIsRelayedEmpty(t *testing.T) {
	rec := httptest.NewRecorder()
	relay := NewStreamRelay(rec, "m")

	err := relay.Run(chunksOf(
		event("a"),
		"data: \"keepalive\"\n\n",
		"data: 42\n\n",
		`data: {"choices":"none"}`+"\n\n",
		`data: {"choices":[{"delta":{"content":7},"finish_reason":false}]}`+"\n\n",
		event("b"),
	))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	got := frames(t, rec.Body.String())
	if len(got) != 7 || got[6] != "[DONE]" {
		t.Fatalf("frames = %q, want 6 chunks + sentinel", got)
	}
	want := []string{"a", "", "", "", "", "b"}
	for i, payload := range got[:6] {
		c := decodeChunk(t, payload)
		if c.ID != api.ChunkID(i) {
			t.Errorf("chunk %d id = %q", i, c.ID)
		}
		if c.Choices[0].Delta.Content != want[i] {
			t.Errorf("chunk %d content = %q, want %q", i, c.Choices[0].Delta.Content, want[i])
		}
		if c.Choices[0].FinishReason != nil {
			t.Errorf("chunk %d finish_reason = %q, want null", i, *c.Choices[0].FinishReason)
		}
	}
	if relay.Outcome() != observability.OutcomeCompleted {
		t.Errorf("outcome = %q", relay.Outcome())
	}
}

func TestStreamReadErrorIsTerminal(t *testing.T) {
	rec := httptest.NewRecorder()
	relay := NewStreamRelay(rec, "m")

	readErr := errors.New("connection reset")
	err := relay.Run(&chunkReader{chunks: [][]byte{[]byte(event("a"))}, err: readErr})
	if !errors.Is(err, readErr) {
		t.Fatalf("Run error = %v, want wrapped read error", err)
	}
	if strings.Contains(rec.Body.String(), "[DONE]") {
		t.Error("sentinel written after a read error")
	}
	if relay.Outcome() != observability.OutcomeFailedRead {
		t.Errorf("outcome = %q", relay.Outcome())
	}
}

// failingWriter accepts a fixed number of writes, then fails.
type failingWriter struct {
	header http.Header
	writes int
	limit  int
}

func (w *failingWriter) Header() http.Header { return w.header }
func (w *failingWriter) WriteHeader(int)     {}
func (w *failingWriter) Write(p []byte) (int, error) {
	if w.writes >= w.limit {
		return 0, errors.New("client went away")
	}
	w.writes++
	return len(p), nil
}

func TestStreamClientWriteFailureIsTerminal(t *testing.T) {
	w := &failingWriter{header: http.Header{}, limit: 1}
	relay := NewStreamRelay(w, "m")

	err := relay.Run(chunksOf(event("a"), event("b"), event("c")))
	if err == nil {
		t.Fatal("expected write failure")
	}
	if relay.Outcome() != observability.OutcomeFailedWrite {
		t.Errorf("outcome = %q", relay.Outcome())
	}
	if relay.Chunks() != 1 {
		t.Errorf("Chunks() = %d, want 1", relay.Chunks())
	}
	if w.writes != 1 {
		t.Errorf("writes = %d, want no attempts after the failure to succeed", w.writes)
	}
}

func TestStreamRelayIsSingleUse(t *testing.T) {
	relay := NewStreamRelay(httptest.NewRecorder(), "m")
	if err := relay.Run(chunksOf()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if err := relay.Run(chunksOf()); err == nil {
		t.Fatal("second Run should fail")
	}
}
