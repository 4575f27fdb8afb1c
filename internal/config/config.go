package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App         App         `mapstructure:"app"`
	AI          AI          `mapstructure:"ai"`
	Data        Data        `mapstructure:"data"`
	Embeddings  Embeddings  `mapstructure:"embeddings"`
	Clustering  Clustering  `mapstructure:"clustering"`
	Relevance   Relevance   `mapstructure:"relevance"`
	Digest      Digest      `mapstructure:"digest"`
	Narrative   Narrative   `mapstructure:"narrative"`
	Timeline    Timeline    `mapstructure:"timeline"`
	VectorStore VectorStore `mapstructure:"vectorstore"`
	Schedule    Schedule    `mapstructure:"schedule"`
	Metrics     Metrics     `mapstructure:"metrics"`
	Logging     Logging     `mapstructure:"logging"`
}

// App holds general application configuration
type App struct {
	Debug      bool   `mapstructure:"debug"`
	ConfigFile string `mapstructure:"config_file"`
}

// AI holds AI/LLM configuration
type AI struct {
	Gemini GeminiConfig `mapstructure:"gemini"`
}

// GeminiConfig holds Google Gemini configuration
type GeminiConfig struct {
	APIKey            string  `mapstructure:"api_key"`
	Model             string  `mapstructure:"model"`
	EmbeddingModel    string  `mapstructure:"embedding_model"`
	MaxRetries        int     `mapstructure:"max_retries"`
	BatchSize         int     `mapstructure:"batch_size"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
}

// Data sizes the synthetic workspace
type Data struct {
	Seed           int64 `mapstructure:"seed"`
	Days           int   `mapstructure:"days"`
	MessagesPerDay int   `mapstructure:"messages_per_day"`
}

// Embeddings selects the embedding service
type Embeddings struct {
	Provider  string `mapstructure:"provider"` // "hash" or "gemini"
	Dimension int    `mapstructure:"dimension"`
}

// Clustering tunes topic discovery
type Clustering struct {
	WindowDays        int   `mapstructure:"window_days"`
	WindowClusters    int   `mapstructure:"window_clusters"`
	DayClusters       int   `mapstructure:"day_clusters"`
	MaxPerCluster     int   `mapstructure:"max_per_cluster"`
	MinWindowMessages int   `mapstructure:"min_window_messages"`
	Seed              int64 `mapstructure:"seed"`
	MaxIterations     int   `mapstructure:"max_iterations"`
}

// Relevance tunes the interest model and ranker
type Relevance struct {
	LookbackDays int `mapstructure:"lookback_days"`
	TopClusters  int `mapstructure:"top_clusters"`
}

// Digest tunes assembly
type Digest struct {
	MaxItems int `mapstructure:"max_items"`
	Workers  int `mapstructure:"workers"`
}

// Narrative tunes LLM narrative generation
type Narrative struct {
	Enabled         bool    `mapstructure:"enabled"`
	Timeout         string  `mapstructure:"timeout"`
	Temperature     float32 `mapstructure:"temperature"`
	MaxTokens       int32   `mapstructure:"max_tokens"`
	MaxContextLines int     `mapstructure:"max_context_lines"`
	MaxPerProject   int     `mapstructure:"max_per_project"`
}

// TimeoutDuration returns the parsed narrative timeout
func (n Narrative) TimeoutDuration() time.Duration {
	d, err := time.ParseDuration(n.Timeout)
	if err != nil {
		return 0
	}
	return d
}

// Timeline anchors day offsets
type Timeline struct {
	// Origin is a date (2006-01-02) or RFC3339 instant for day 0. Empty means
	// the first message of the run.
	Origin string `mapstructure:"origin"`
}

// OriginTime parses Origin. ok is false when Origin is empty.
func (t Timeline) OriginTime() (origin time.Time, ok bool, err error) {
	if t.Origin == "" {
		return time.Time{}, false, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if ts, err := time.Parse(layout, t.Origin); err == nil {
			return ts, true, nil
		}
	}
	return time.Time{}, false, fmt.Errorf("invalid timeline.origin %q: want YYYY-MM-DD or RFC3339", t.Origin)
}

// VectorStore selects the similarity search backend
type VectorStore struct {
	Driver string `mapstructure:"driver"` // "sqlite" or "postgres"
	DSN    string `mapstructure:"dsn"`
}

// Schedule configures the daily digest job
type Schedule struct {
	Cron  string   `mapstructure:"cron"`
	Users []string `mapstructure:"users"` // user ids; empty means everyone
}

// Metrics configures the Prometheus endpoint
type Metrics struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// Logging holds logging configuration
type Logging struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

var globalConfig *Config

// Load loads the configuration from various sources
func Load(configFile string) (*Config, error) {
	if globalConfig != nil {
		return globalConfig, nil
	}

	// Load .env file if it exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: Error loading .env file: %v\n", err)
		}
	}

	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME")
		viper.SetConfigName(".teamdigest")
		viper.SetConfigType("yaml")
	}

	setDefaults()
	bindEnvironmentVariables()

	// TEAMDIGEST_DIGEST_MAX_ITEMS overrides digest.max_items
	viper.SetEnvPrefix("TEAMDIGEST")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	config.App.ConfigFile = viper.ConfigFileUsed()

	if err := postProcessConfig(config); err != nil {
		return nil, fmt.Errorf("error post-processing config: %w", err)
	}

	if err := validateConfig(config); err != nil {
		return nil, err
	}

	globalConfig = config
	return config, nil
}

// Get returns the global configuration, loading it if necessary
func Get() *Config {
	if globalConfig == nil {
		config, err := Load("")
		if err != nil {
			panic(fmt.Sprintf("Failed to load configuration: %v", err))
		}
		return config
	}
	return globalConfig
}

// setDefaults sets default configuration values
func setDefaults() {
	viper.SetDefault("app.debug", false)

	viper.SetDefault("ai.gemini.model", "gemini-1.5-flash")
	viper.SetDefault("ai.gemini.embedding_model", "text-embedding-004")
	viper.SetDefault("ai.gemini.max_retries", 3)
	viper.SetDefault("ai.gemini.batch_size", 100)
	viper.SetDefault("ai.gemini.requests_per_second", 5.0)

	viper.SetDefault("data.seed", 42)
	viper.SetDefault("data.days", 30)
	viper.SetDefault("data.messages_per_day", 80)

	viper.SetDefault("embeddings.provider", "hash")
	viper.SetDefault("embeddings.dimension", 256)

	viper.SetDefault("clustering.window_days", 14)
	viper.SetDefault("clustering.window_clusters", 12)
	viper.SetDefault("clustering.day_clusters", 6)
	viper.SetDefault("clustering.max_per_cluster", 3)
	viper.SetDefault("clustering.min_window_messages", 50)
	viper.SetDefault("clustering.seed", 42)
	viper.SetDefault("clustering.max_iterations", 300)

	viper.SetDefault("relevance.lookback_days", 14)
	viper.SetDefault("relevance.top_clusters", 4)

	viper.SetDefault("digest.max_items", 15)
	viper.SetDefault("digest.workers", 4)

	viper.SetDefault("narrative.enabled", true)
	viper.SetDefault("narrative.timeout", "30s")
	viper.SetDefault("narrative.temperature", 0.1)
	viper.SetDefault("narrative.max_tokens", 400)
	viper.SetDefault("narrative.max_context_lines", 12)
	viper.SetDefault("narrative.max_per_project", 4)

	viper.SetDefault("timeline.origin", "")

	viper.SetDefault("vectorstore.driver", "sqlite")
	viper.SetDefault("vectorstore.dsn", ":memory:")

	viper.SetDefault("schedule.cron", "0 8 * * *")
	viper.SetDefault("schedule.users", []string{})

	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.addr", ":9090")

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "console")
}

// bindEnvironmentVariables sets up flexible environment variable binding
func bindEnvironmentVariables() {
	// Gemini API key - support multiple formats
	bindEnvKeys("ai.gemini.api_key", []string{
		"GEMINI_API_KEY",
		"GOOGLE_GEMINI_API_KEY",
		"GOOGLE_AI_API_KEY",
	})

	bindEnvKeys("vectorstore.dsn", []string{
		"DATABASE_URL",
	})

	bindEnvKeys("app.debug", []string{
		"DEBUG",
		"TEAMDIGEST_DEBUG",
	})
}

// bindEnvKeys binds the first found environment variable to a viper key
func bindEnvKeys(viperKey string, envKeys []string) {
	for _, envKey := range envKeys {
		if value := os.Getenv(envKey); value != "" {
			viper.Set(viperKey, value)
			return
		}
	}
}

// postProcessConfig applies post-processing to configuration values
func postProcessConfig(config *Config) error {
	if config.VectorStore.Driver == "sqlite" && config.VectorStore.DSN != ":memory:" && config.VectorStore.DSN != "" {
		config.VectorStore.DSN = expandPath(config.VectorStore.DSN)
	}
	if config.App.Debug {
		config.Logging.Level = "debug"
	}

	if config.Narrative.Timeout != "" {
		if _, err := time.ParseDuration(config.Narrative.Timeout); err != nil {
			return fmt.Errorf("invalid duration for narrative.timeout: %s", config.Narrative.Timeout)
		}
	}
	if _, _, err := config.Timeline.OriginTime(); err != nil {
		return err
	}

	return nil
}

// expandPath expands ~ and environment variables in paths
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return os.ExpandEnv(path)
}

// validateConfig ensures the configuration is usable. A missing Gemini key is
// only an error when Gemini embeddings are selected; narratives fall back to
// the rule-based renderer without one.
func validateConfig(config *Config) error {
	var errors []string

	switch config.Embeddings.Provider {
	case "hash":
	case "gemini":
		if config.AI.Gemini.APIKey == "" {
			errors = append(errors, "Gemini embeddings require an API key. Set GEMINI_API_KEY environment variable or ai.gemini.api_key in config file.")
		}
	default:
		errors = append(errors, fmt.Sprintf("Unknown embeddings provider: %s. Supported: hash, gemini", config.Embeddings.Provider))
	}

	switch config.VectorStore.Driver {
	case "sqlite":
	case "postgres":
		if config.VectorStore.DSN == "" || config.VectorStore.DSN == ":memory:" {
			errors = append(errors, "Postgres vector store requires a DSN. Set DATABASE_URL or vectorstore.dsn")
		}
	default:
		errors = append(errors, fmt.Sprintf("Unknown vector store driver: %s. Supported: sqlite, postgres", config.VectorStore.Driver))
	}

	if config.Schedule.Cron != "" {
		if _, err := cron.ParseStandard(config.Schedule.Cron); err != nil {
			errors = append(errors, fmt.Sprintf("Invalid schedule.cron %q: %v", config.Schedule.Cron, err))
		}
	}

	positive := map[string]int{
		"data.days":                  config.Data.Days,
		"data.messages_per_day":      config.Data.MessagesPerDay,
		"clustering.window_days":     config.Clustering.WindowDays,
		"clustering.window_clusters": config.Clustering.WindowClusters,
		"clustering.day_clusters":    config.Clustering.DayClusters,
		"relevance.lookback_days":    config.Relevance.LookbackDays,
		"digest.max_items":           config.Digest.MaxItems,
	}
	for _, key := range sortedKeys(positive) {
		if positive[key] <= 0 {
			errors = append(errors, fmt.Sprintf("%s must be positive, got %d", key, positive[key]))
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration errors:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// HasValidGemini returns true if a usable Gemini API key is configured
func (c *Config) HasValidGemini() bool {
	return isValidAPIKey(c.AI.Gemini.APIKey)
}

// isValidAPIKey checks if an API key is valid (not empty and not a placeholder)
func isValidAPIKey(apiKey string) bool {
	if apiKey == "" {
		return false
	}

	placeholders := []string{
		"your-api-key", "your-gemini-key", "YOUR_API_KEY", "PLACEHOLDER", "TODO", "CHANGE_ME",
	}
	for _, placeholder := range placeholders {
		if apiKey == placeholder {
			return false
		}
	}
	return true
}

// Reset clears the global configuration (useful for testing)
func Reset() {
	globalConfig = nil
	viper.Reset()
}
