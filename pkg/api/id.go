package api

import (
	"crypto/rand"
	"encoding/hex"
	"regexp"
	"strconv"
)

const (
	completionIDPrefix = "chatcmpl-"

	// completionIDBytes yields 12 hex characters.
	completionIDBytes = 6
)

var completionIDPattern = regexp.MustCompile(`^chatcmpl-[0-9a-f]{12}$`)

// NewCompletionID generates the id of a non-streaming completion:
// "chatcmpl-" followed by 12 hex characters from crypto/rand.
func NewCompletionID() string {
	b := make([]byte, completionIDBytes)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	return completionIDPrefix + hex.EncodeToString(b)
}

// ValidateCompletionID checks whether id has the NewCompletionID shape.
func ValidateCompletionID(id string) bool {
	return completionIDPattern.MatchString(id)
}

// ChunkID returns the id of the n-th chunk of a streamed response.
// The counter is per response, so ids repeat across responses.
func ChunkID(n int) string {
	return completionIDPrefix + strconv.Itoa(n)
}
