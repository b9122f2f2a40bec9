package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/genai"
)

// GenAIConfig configures the Google GenAI provider.
type GenAIConfig struct {
	APIKey         string
	Model          string
	EmbeddingModel string
	Temperature    float32
	ChatTimeout    time.Duration
}

// GenAIClient implements Chat and Embedder over the Google GenAI API.
type GenAIClient struct {
	client *genai.Client
	cfg    GenAIConfig
}

// NewGenAIClient creates a GenAI-backed chat/embedding client.
func NewGenAIClient(ctx context.Context, cfg GenAIConfig) (*GenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("GenAI API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.0-flash"
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = "gemini-embedding-001"
	}
	if cfg.ChatTimeout <= 0 {
		cfg.ChatTimeout = 45 * time.Second
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: cfg.APIKey})
	if err != nil {
		return nil, fmt.Errorf("creating GenAI client: %w", err)
	}

	return &GenAIClient{client: client, cfg: cfg}, nil
}

// Chat sends a single-turn prompt and returns the model text.
func (c *GenAIClient) Chat(ctx context.Context, system, user string) (string, error) {
	return c.generate(ctx, system, user, false)
}

// ChatJSON requests application/json output and unmarshals into out. A
// parse failure triggers one corrective retry that echoes the broken output
// back to the model.
func (c *GenAIClient) ChatJSON(ctx context.Context, system, user string, out any) error {
	raw, err := c.generate(ctx, system, user, true)
	if err != nil {
		return err
	}
	if err := DecodeJSON(raw, out); err == nil {
		return nil
	}

	slog.Warn("Model returned unparseable JSON, retrying with corrective prompt",
		"model", c.cfg.Model)
	corrective := fmt.Sprintf(
		"%s\n\nYour previous reply was not valid JSON:\n%s\n\nRespond again with ONLY the JSON object.",
		user, truncate(raw, 1000))
	raw, err = c.generate(ctx, system, corrective, true)
	if err != nil {
		return err
	}
	return DecodeJSON(raw, out)
}

// Embed returns the embedding vector for text.
func (c *GenAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ChatTimeout)
	defer cancel()

	contents := []*genai.Content{genai.NewContentFromText(text, genai.RoleUser)}
	result, err := c.client.Models.EmbedContent(ctx, c.cfg.EmbeddingModel, contents, nil)
	if err != nil {
		return nil, fmt.Errorf("GenAI embed failed: %w", err)
	}
	if len(result.Embeddings) == 0 {
		return nil, fmt.Errorf("no embeddings returned")
	}
	return result.Embeddings[0].Values, nil
}

func (c *GenAIClient) generate(ctx context.Context, system, user string, wantJSON bool) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ChatTimeout)
	defer cancel()

	cfg := &genai.GenerateContentConfig{}
	if system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	if c.cfg.Temperature > 0 {
		cfg.Temperature = genai.Ptr(c.cfg.Temperature)
	}
	if wantJSON {
		cfg.ResponseMIMEType = "application/json"
	}

	contents := []*genai.Content{genai.NewContentFromText(user, genai.RoleUser)}
	resp, err := c.client.Models.GenerateContent(ctx, c.cfg.Model, contents, cfg)
	if err != nil {
		return "", fmt.Errorf("GenAI generate failed: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("GenAI returned empty response")
	}
	return text, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
