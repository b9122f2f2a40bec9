// Package llm defines the chat and embedding capabilities the exploitation
// core depends on, plus the Google GenAI-backed implementation. Components
// depend on the interfaces; the provider is chosen by configuration.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Chat is a single-turn structured conversation capability. Implementations
// must honor ctx cancellation and deadlines.
type Chat interface {
	// Chat sends a system + user prompt pair and returns the model text.
	Chat(ctx context.Context, system, user string) (string, error)

	// ChatJSON sends a prompt pair requesting JSON output and unmarshals
	// the response into out. Implementations retry once on parse failure
	// with a corrective message before giving up.
	ChatJSON(ctx context.Context, system, user string, out any) error
}

// Embedder produces vector embeddings for knowledge-store similarity.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// DecodeJSON strictly unmarshals model output into out, tolerating the
// markdown code fences models wrap JSON in despite instructions.
func DecodeJSON(raw string, out any) error {
	cleaned := StripFences(raw)
	dec := json.NewDecoder(strings.NewReader(cleaned))
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("decoding model JSON: %w", err)
	}
	return nil
}

// StripFences removes a single leading/trailing markdown code fence.
func StripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
