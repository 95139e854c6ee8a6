package config

import (
	"fmt"
	"strings"

	"github.com/timmy/newsrec/internal/domain"
)

// Validate checks the settings both binaries depend on.
// Every failure wraps domain.ErrConfiguration.
func (c *Config) Validate() error {
	var problems []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		problems = append(problems, fmt.Sprintf("server.port %d out of range", c.Server.Port))
	}

	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			problems = append(problems, "database.path is required for sqlite")
		}
	case "postgres":
		if c.Database.DSN == "" {
			problems = append(problems, "database.dsn is required for postgres")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown database.driver %q", c.Database.Driver))
	}

	if c.Qdrant.Host == "" || c.Qdrant.Collection == "" {
		problems = append(problems, "qdrant.host and qdrant.collection are required")
	}
	if c.Qdrant.Namespace == "" {
		problems = append(problems, "qdrant.namespace must not be empty")
	}

	switch c.Embedding.Provider {
	case "cohere", "jina":
	default:
		problems = append(problems, fmt.Sprintf("unknown embedding.provider %q", c.Embedding.Provider))
	}
	if c.Embedding.APIKey == "" {
		problems = append(problems, "embedding.api_key is required")
	}
	if c.Embedding.Model == "" {
		problems = append(problems, "embedding.model is required")
	}
	if c.Embedding.Dimensions <= 0 {
		problems = append(problems, "embedding.dimensions must be positive")
	}
	if c.Embedding.BatchSize <= 0 {
		problems = append(problems, "embedding.batch_size must be positive")
	}

	if c.LLM.Enabled && c.LLM.APIKey == "" {
		problems = append(problems, "llm.api_key is required when llm.enabled")
	}

	if c.Recommend.SimilarityThreshold < -1 || c.Recommend.SimilarityThreshold > 1 {
		problems = append(problems, "recommend.similarity_threshold must be within [-1, 1]")
	}
	if c.Recommend.MaxResultsCap <= 0 || c.Recommend.Overfetch < 0 {
		problems = append(problems, "recommend.max_results_cap must be positive and recommend.overfetch non-negative")
	}

	if c.Pipeline.Workers <= 0 || c.Pipeline.BatchSize <= 0 {
		problems = append(problems, "pipeline.workers and pipeline.batch_size must be positive")
	}
	if c.Retry.MaxAttempts <= 0 {
		problems = append(problems, "retry.max_attempts must be positive")
	}
	if c.Retry.CallTimeout <= 0 {
		problems = append(problems, "retry.call_timeout must be positive")
	}

	switch c.Storage.Type {
	case "", "none", "local":
	case "s3", "r2", "s3compatible":
		if c.Storage.Endpoint == "" || c.Storage.Bucket == "" {
			problems = append(problems, "storage.endpoint and storage.bucket are required for object storage")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown storage.type %q", c.Storage.Type))
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", domain.ErrConfiguration, strings.Join(problems, "; "))
	}
	return nil
}
