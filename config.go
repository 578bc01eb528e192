package docreason

import (
	"time"

	"github.com/brimlabs/docreason/index"
	"github.com/brimlabs/docreason/llm"
)

// Config holds every read-only setting the engine is initialized with,
// per §6's enumerated configuration. It is built once per process and
// never mutated afterward (§5: "configuration... is a read-only record
// initialized once per process").
type Config struct {
	// StoreURL addresses the key-value store (a Redis connection
	// string, e.g. "redis://localhost:6379/0").
	StoreURL string `json:"store_url"`
	// StoreTimeoutSeconds bounds every individual store operation.
	StoreTimeoutSeconds int `json:"store_timeout_seconds"`
	// TTLSeconds, if set, expires a document's snapshot that many
	// seconds after it is stored. Zero means no expiry.
	TTLSeconds int `json:"ttl_seconds"`

	// Chat is the generator service endpoint.
	Chat llm.Config `json:"chat"`
	// Embedding is the embedding service endpoint.
	Embedding llm.Config `json:"embedding"`
	// LLMTemperature is applied to every generation call.
	LLMTemperature float64 `json:"llm_temperature"`

	// DocBaseDir is the directory file_name is resolved against on
	// upload (default "docs/").
	DocBaseDir string `json:"doc_base_dir"`

	// DefaultChunkConfig seeds the hierarchical node builder when a
	// document's upload request omits chunk_config.
	DefaultChunkConfig index.ChunkConfig `json:"default_chunk_config"`
}

// DefaultConfig returns a Config matching §6's documented defaults: a
// small embedding model, a small generation model, temperature 0.1, a
// 30s store timeout, and docs/ as the upload base directory.
func DefaultConfig() Config {
	return Config{
		StoreURL:            "redis://localhost:6379/0",
		StoreTimeoutSeconds: 30,
		Chat: llm.Config{
			Provider: "openai",
			Model:    "gpt-4o-mini",
		},
		Embedding: llm.Config{
			Provider: "openai",
			Model:    "text-embedding-3-small",
		},
		LLMTemperature:     0.1,
		DocBaseDir:         "docs/",
		DefaultChunkConfig: index.DefaultChunkConfig(),
	}
}

// storeTimeout renders StoreTimeoutSeconds as a time.Duration, falling
// back to the store package's own 30s default when unset.
func (c Config) storeTimeout() time.Duration {
	if c.StoreTimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.StoreTimeoutSeconds) * time.Second
}

// ttl renders TTLSeconds as a time.Duration; zero means no expiry.
func (c Config) ttl() time.Duration {
	if c.TTLSeconds <= 0 {
		return 0
	}
	return time.Duration(c.TTLSeconds) * time.Second
}
