// Command mock-upstream runs a deterministic stand-in for the Copilot chat
// API so the bridge can be exercised without a real credential. It echoes
// the last user message, word by word when streaming.
//
// Trigger phrases in the last user message:
//
//	status:<code>   answer with that HTTP status and a plain-text body
//	malformed       stream one event whose JSON is broken
//
// Configuration:
//
//	MOCK_PORT  - Listen port (default: 9090)
//	MOCK_TOKEN - Accepted bearer token (default: any non-empty token)
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/rhuss/copilot-bridge/pkg/upstream"
)

func main() {
	port := os.Getenv("MOCK_PORT")
	if port == "" {
		port = "9090"
	}

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           newRouter(os.Getenv("MOCK_TOKEN")),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("mock upstream starting", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("mock upstream failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("mock upstream shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)
}

func newRouter(token string) http.Handler {
	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(requireToken(token))
		r.Post("/chat", handleChat)
		r.Get("/chat/info", handleInfo)
	})
	return r
}

func requireToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if got == "" || (token != "" && got != token) {
				w.WriteHeader(http.StatusUnauthorized)
				io.WriteString(w, "bad credentials")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func handleInfo(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"user_agent": r.Header.Get("User-Agent"),
		"chat":       "enabled",
	})
}

func handleChat(w http.ResponseWriter, r *http.Request) {
	var req upstream.ChatCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, "invalid request body")
		return
	}

	prompt := lastUserMessage(req.Messages)
	if code, ok := strings.CutPrefix(prompt, "status:"); ok {
		status, err := strconv.Atoi(strings.TrimSpace(code))
		if err != nil || status < 400 || status > 599 {
			status = http.StatusInternalServerError
		}
		w.WriteHeader(status)
		fmt.Fprintf(w, "mock upstream error %d", status)
		return
	}

	reply := "You said: " + prompt
	usage := &upstream.ChatUsage{
		PromptTokens:     len(strings.Fields(prompt)),
		CompletionTokens: len(strings.Fields(reply)),
	}
	usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens

	if req.Stream {
		streamReply(w, req.Model, reply, usage, prompt == "malformed")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(upstream.ChatCompletionResponse{
		ID:    "mock-" + strconv.FormatInt(time.Now().UnixNano(), 36),
		Model: req.Model,
		Choices: []upstream.ChatChoice{{
			Message:      &upstream.ChatResponseMessage{Role: "assistant", Content: reply},
			FinishReason: "stop",
		}},
		Usage: usage,
	})
}

func streamReply(w http.ResponseWriter, model, reply string, usage *upstream.ChatUsage, malformed bool) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	rc := http.NewResponseController(w)

	if malformed {
		io.WriteString(w, "data: {\"choices\":[\n\n")
		rc.Flush()
		return
	}

	words := strings.Fields(reply)
	for i, word := range words {
		if i > 0 {
			word = " " + word
		}
		writeEvent(w, upstream.ChatCompletionChunk{
			Model:   model,
			Choices: []upstream.ChatChunkChoice{{Delta: &upstream.ChatChunkDelta{Content: word}}},
		})
		rc.Flush()
		time.Sleep(20 * time.Millisecond)
	}

	stop := "stop"
	writeEvent(w, upstream.ChatCompletionChunk{
		Model:   model,
		Choices: []upstream.ChatChunkChoice{{Delta: &upstream.ChatChunkDelta{}, FinishReason: &stop}},
		Usage:   usage,
	})
	io.WriteString(w, "data: [DONE]\n\n")
	rc.Flush()
}

func writeEvent(w io.Writer, chunk upstream.ChatCompletionChunk) {
	data, _ := json.Marshal(chunk)
	fmt.Fprintf(w, "data: %s\n\n", data)
}

func lastUserMessage(msgs []upstream.ChatMessage) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == "user" {
			return strings.TrimSpace(msgs[i].Content)
		}
	}
	return ""
}
