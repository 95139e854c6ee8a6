package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is loaded once at startup and passed by pointer to constructors.
// Nothing mutates it after Load returns.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Qdrant    QdrantConfig    `mapstructure:"qdrant"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Recommend RecommendConfig `mapstructure:"recommend"`
	Feeds     FeedsConfig     `mapstructure:"feeds"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Retry     RetryConfig     `mapstructure:"retry"`
	Storage   StorageConfig   `mapstructure:"storage"`
}

type ServerConfig struct {
	Port       int        `mapstructure:"port"`
	Mode       string     `mapstructure:"mode"`
	CORS       CORSConfig `mapstructure:"cors"`
	StaticDir  string     `mapstructure:"static_dir"`
	AdminToken string     `mapstructure:"admin_token"`
}

type CORSConfig struct {
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	AllowAllOrigins bool     `mapstructure:"allow_all_origins"`
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver"` // sqlite, postgres
	Path   string `mapstructure:"path"`
	DSN    string `mapstructure:"dsn"`
}

type QdrantConfig struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	Collection string `mapstructure:"collection"`
	Namespace  string `mapstructure:"namespace"`
	APIKey     string `mapstructure:"api_key"`
	UseTLS     bool   `mapstructure:"use_tls"`
}

type EmbeddingConfig struct {
	Provider      string `mapstructure:"provider"` // cohere, jina
	Model         string `mapstructure:"model"`
	APIKey        string `mapstructure:"api_key"`
	BaseURL       string `mapstructure:"base_url"`
	Dimensions    int    `mapstructure:"dimensions"`
	BatchSize     int    `mapstructure:"batch_size"`
	MaxInputChars int    `mapstructure:"max_input_chars"`
}

// LLMConfig configures the optional summarizer (any OpenAI-compatible endpoint).
type LLMConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Model          string        `mapstructure:"model"`
	APIKey         string        `mapstructure:"api_key"`
	BaseURL        string        `mapstructure:"base_url"`
	BatchSize      int           `mapstructure:"batch_size"`
	RateLimitDelay time.Duration `mapstructure:"rate_limit_delay"`
}

type RecommendConfig struct {
	SimilarityThreshold float32 `mapstructure:"similarity_threshold"`
	MaxResults          int     `mapstructure:"max_results"`
	MaxResultsCap       int     `mapstructure:"max_results_cap"`
	Overfetch           int     `mapstructure:"overfetch"`
}

// FeedsConfig maps a category name to its feed URLs.
type FeedsConfig struct {
	Categories         map[string][]string `mapstructure:"categories"`
	MaxArticlesPerFeed int                 `mapstructure:"max_articles_per_feed"`
	UserAgent          string              `mapstructure:"user_agent"`
	Timeout            time.Duration       `mapstructure:"timeout"`
}

type PipelineConfig struct {
	Workers         int           `mapstructure:"workers"`
	BatchSize       int           `mapstructure:"batch_size"`
	MaxContentChars int           `mapstructure:"max_content_chars"`
	Interval        time.Duration `mapstructure:"interval"`
}

type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	BaseDelay   time.Duration `mapstructure:"base_delay"`
	CallTimeout time.Duration `mapstructure:"call_timeout"`
}

// StorageConfig configures the raw fetch archive. Type "" or "none" disables it.
type StorageConfig struct {
	Type      string `mapstructure:"type"` // none, local, s3, r2, s3compatible
	LocalDir  string `mapstructure:"local_dir"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	Prefix    string `mapstructure:"prefix"`
}

// DefaultFeeds is the feed list used when the config file names none.
var DefaultFeeds = map[string][]string{
	"mainstream_news": {
		"https://feeds.bbci.co.uk/news/rss.xml",
		"https://rss.nytimes.com/services/xml/rss/nyt/HomePage.xml",
		"https://www.theguardian.com/world/rss",
	},
	"music": {
		"https://pitchfork.com/rss/news/",
		"https://www.rollingstone.com/music/music-news/feed/",
	},
	"gaming": {
		"https://www.polygon.com/rss/index.xml",
		"https://kotaku.com/rss",
	},
	"tech": {
		"https://techcrunch.com/feed/",
		"https://www.theverge.com/rss/index.xml",
		"https://feeds.arstechnica.com/arstechnica/index",
	},
	"lifestyle": {
		"https://www.vogue.com/feed/rss",
		"https://www.bonappetit.com/feed/rss",
	},
}

// Load reads configs/config.yaml (or configPath), .env and the environment.
func Load(configPath string) (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Bind environment variables explicitly for sensitive data
	_ = v.BindEnv("server.port", "API_PORT")
	_ = v.BindEnv("server.admin_token", "ADMIN_TOKEN")
	_ = v.BindEnv("database.dsn", "DATABASE_URL")
	_ = v.BindEnv("qdrant.host", "QDRANT_HOST")
	_ = v.BindEnv("qdrant.port", "QDRANT_PORT")
	_ = v.BindEnv("qdrant.api_key", "QDRANT_API_KEY")
	_ = v.BindEnv("qdrant.collection", "QDRANT_COLLECTION")
	_ = v.BindEnv("qdrant.namespace", "QDRANT_NAMESPACE")
	_ = v.BindEnv("embedding.api_key", "COHERE_API_KEY", "JINA_API_KEY")
	_ = v.BindEnv("embedding.model", "EMBEDDING_MODEL")
	_ = v.BindEnv("llm.api_key", "GROQ_API_KEY")
	_ = v.BindEnv("llm.model", "GROQ_MODEL")
	_ = v.BindEnv("recommend.similarity_threshold", "SIMILARITY_THRESHOLD")
	_ = v.BindEnv("recommend.max_results", "MAX_RECOMMENDATIONS")
	_ = v.BindEnv("feeds.max_articles_per_feed", "MAX_ARTICLES_PER_FEED")
	_ = v.BindEnv("storage.access_key", "STORAGE_ACCESS_KEY")
	_ = v.BindEnv("storage.secret_key", "STORAGE_SECRET_KEY")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if len(cfg.Feeds.Categories) == 0 {
		cfg.Feeds.Categories = DefaultFeeds
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.cors.allow_all_origins", true)
	v.SetDefault("server.cors.allowed_origins", []string{})
	v.SetDefault("server.static_dir", "./static")
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/news.db")
	v.SetDefault("qdrant.host", "localhost")
	v.SetDefault("qdrant.port", 6334)
	v.SetDefault("qdrant.collection", "news-articles")
	v.SetDefault("qdrant.namespace", "default")
	v.SetDefault("embedding.provider", "cohere")
	v.SetDefault("embedding.model", "embed-english-v3.0")
	v.SetDefault("embedding.dimensions", 1024)
	v.SetDefault("embedding.batch_size", 96)
	v.SetDefault("embedding.max_input_chars", 8000)
	v.SetDefault("llm.enabled", false)
	v.SetDefault("llm.model", "meta-llama/llama-4-scout-17b-16e-instruct")
	v.SetDefault("llm.base_url", "https://api.groq.com/openai/v1")
	v.SetDefault("llm.batch_size", 20)
	v.SetDefault("llm.rate_limit_delay", "2s")
	v.SetDefault("recommend.similarity_threshold", 0.25)
	v.SetDefault("recommend.max_results", 10)
	v.SetDefault("recommend.max_results_cap", 50)
	v.SetDefault("recommend.overfetch", 5)
	v.SetDefault("feeds.max_articles_per_feed", 50)
	v.SetDefault("feeds.user_agent", "newsrec/1.0 (+https://github.com/timmy/newsrec)")
	v.SetDefault("feeds.timeout", "20s")
	v.SetDefault("pipeline.workers", 4)
	v.SetDefault("pipeline.batch_size", 50)
	v.SetDefault("pipeline.max_content_chars", 20000)
	v.SetDefault("pipeline.interval", "0s")
	v.SetDefault("retry.max_attempts", 4)
	v.SetDefault("retry.base_delay", "500ms")
	v.SetDefault("retry.call_timeout", "30s")
	v.SetDefault("storage.type", "none")
	v.SetDefault("storage.local_dir", "./data/raw")
	v.SetDefault("storage.prefix", "raw")
}
