// Package config loads, merges, and validates the server configuration.
// A single automa.yaml file overrides built-in defaults; environment
// variables referenced as ${VAR} are expanded before parsing.
package config

import "time"

// Config is the umbrella configuration returned by Initialize.
type Config struct {
	configDir string

	Server  *ServerConfig  `yaml:"server"`
	LLM     *LLMConfig     `yaml:"llm"`
	Storage *StorageConfig `yaml:"storage"`
	Exploit *ExploitConfig `yaml:"exploit"`
}

// ServerConfig holds HTTP gateway settings.
type ServerConfig struct {
	Port            string        `yaml:"port"`
	AuthToken       string        `yaml:"auth_token"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	SSEKeepalive    time.Duration `yaml:"sse_keepalive"`
}

// LLMConfig selects and configures the chat/embedding provider.
type LLMConfig struct {
	Provider       string        `yaml:"provider"`
	Model          string        `yaml:"model"`
	EmbeddingModel string        `yaml:"embedding_model"`
	APIKeyEnv      string        `yaml:"api_key_env"`
	Temperature    float32       `yaml:"temperature"`
	ChatTimeout    time.Duration `yaml:"chat_timeout"`
}

// StorageConfig wires the campaign database, the object store, and the
// knowledge corpus.
type StorageConfig struct {
	DatabaseDSNEnv string `yaml:"database_dsn_env"`
	S3Bucket       string `yaml:"s3_bucket"`
	S3Region       string `yaml:"s3_region"`
	S3EndpointEnv  string `yaml:"s3_endpoint_env"`
	KnowledgePath  string `yaml:"knowledge_path"`
}

// ExploitConfig carries the exploitation loop's tunable knobs. Per-request
// values from the API are clamped against these limits.
type ExploitConfig struct {
	MaxIterations              int           `yaml:"max_iterations"`
	SuccessScorers             []string      `yaml:"success_scorers"`
	SuccessThreshold           float64       `yaml:"success_threshold"`
	PayloadCount               int           `yaml:"payload_count"`
	MaxPayloadCount            int           `yaml:"max_payload_count"`
	MaxConcurrentAttacks       int           `yaml:"max_concurrent_attacks"`
	RequestsPerSecond          float64       `yaml:"requests_per_second"`
	RequestTimeout             time.Duration `yaml:"request_timeout"`
	ChatTimeout                time.Duration `yaml:"chat_timeout"`
	MaxRetries                 int           `yaml:"max_retries"`
	AdversarialSuffixesEnabled bool          `yaml:"adversarial_suffixes_enabled"`
	KnowledgeMinSimilarity     float64       `yaml:"knowledge_min_similarity"`
	KnowledgeTopK              int           `yaml:"knowledge_top_k"`
	PerIterationBudget         time.Duration `yaml:"per_iteration_budget"`
}

// ConfigDir returns the directory the configuration was loaded from.
func (c *Config) ConfigDir() string { return c.configDir }
