package config

import (
	"fmt"
	"strings"
)

// knownScorers are the scorer names success_scorers may reference.
var knownScorers = map[string]bool{
	"jailbreak":    true,
	"prompt_leak":  true,
	"data_leak":    true,
	"tool_abuse":   true,
	"pii_exposure": true,
}

// Validator performs comprehensive validation on loaded configuration.
type Validator struct {
	cfg    *Config
	errors []string
}

// NewValidator creates a validator for the given configuration.
func NewValidator(cfg *Config) *Validator {
	return &Validator{cfg: cfg}
}

// ValidateAll runs every validation pass and returns the collected errors.
func (v *Validator) ValidateAll() error {
	v.validateServer()
	v.validateLLM()
	v.validateStorage()
	v.validateExploit()

	if len(v.errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s",
			strings.Join(v.errors, "\n  - "))
	}
	return nil
}

func (v *Validator) addError(format string, args ...any) {
	v.errors = append(v.errors, fmt.Sprintf(format, args...))
}

func (v *Validator) validateServer() {
	s := v.cfg.Server
	if s.Port == "" {
		v.addError("server: port must not be empty")
	}
	if s.ShutdownTimeout <= 0 {
		v.addError("server: shutdown_timeout must be positive")
	}
}

func (v *Validator) validateLLM() {
	l := v.cfg.LLM
	if l.Provider != "genai" {
		v.addError("llm: unknown provider %q (supported: genai)", l.Provider)
	}
	if l.Model == "" {
		v.addError("llm: model must not be empty")
	}
	if l.EmbeddingModel == "" {
		v.addError("llm: embedding_model must not be empty")
	}
	if l.APIKeyEnv == "" {
		v.addError("llm: api_key_env must not be empty")
	}
	if l.Temperature < 0 || l.Temperature > 2 {
		v.addError("llm: temperature must be between 0 and 2, got %v", l.Temperature)
	}
	if l.ChatTimeout <= 0 {
		v.addError("llm: chat_timeout must be positive")
	}
}

func (v *Validator) validateStorage() {
	s := v.cfg.Storage
	if s.DatabaseDSNEnv == "" {
		v.addError("storage: database_dsn_env must not be empty")
	}
	// S3Bucket may be empty: the server falls back to the in-memory
	// artifact store for local runs.
	if s.KnowledgePath == "" {
		v.addError("storage: knowledge_path must not be empty")
	}
}

func (v *Validator) validateExploit() {
	e := v.cfg.Exploit
	if e.MaxIterations < 1 || e.MaxIterations > 100 {
		v.addError("exploit: max_iterations must be between 1 and 100, got %d", e.MaxIterations)
	}
	if len(e.SuccessScorers) == 0 {
		v.addError("exploit: success_scorers must name at least one scorer")
	}
	for _, name := range e.SuccessScorers {
		if !knownScorers[name] {
			v.addError("exploit: unknown success scorer %q", name)
		}
	}
	if e.SuccessThreshold <= 0 || e.SuccessThreshold > 1 {
		v.addError("exploit: success_threshold must be in (0, 1], got %v", e.SuccessThreshold)
	}
	if e.PayloadCount < 1 || e.PayloadCount > e.MaxPayloadCount {
		v.addError("exploit: payload_count must be between 1 and %d, got %d", e.MaxPayloadCount, e.PayloadCount)
	}
	if e.MaxConcurrentAttacks < 1 || e.MaxConcurrentAttacks > 50 {
		v.addError("exploit: max_concurrent_attacks must be between 1 and 50, got %d", e.MaxConcurrentAttacks)
	}
	if e.RequestsPerSecond <= 0 {
		v.addError("exploit: requests_per_second must be positive, got %v", e.RequestsPerSecond)
	}
	if e.RequestTimeout <= 0 {
		v.addError("exploit: request_timeout must be positive")
	}
	if e.MaxRetries < 0 || e.MaxRetries > 10 {
		v.addError("exploit: max_retries must be between 0 and 10, got %d", e.MaxRetries)
	}
	if e.KnowledgeMinSimilarity < 0 || e.KnowledgeMinSimilarity > 1 {
		v.addError("exploit: knowledge_min_similarity must be in [0, 1], got %v", e.KnowledgeMinSimilarity)
	}
	if e.KnowledgeTopK < 1 || e.KnowledgeTopK > 50 {
		v.addError("exploit: knowledge_top_k must be between 1 and 50, got %d", e.KnowledgeTopK)
	}
	if e.PerIterationBudget <= 0 {
		v.addError("exploit: per_iteration_budget must be positive")
	}
}

// validate performs comprehensive validation on loaded configuration.
func validate(cfg *Config) error {
	return NewValidator(cfg).ValidateAll()
}
