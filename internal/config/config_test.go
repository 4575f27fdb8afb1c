package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate runs a test in an empty directory with no Gemini or database
// environment so no stray .env or .teamdigest.yaml is picked up.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	for _, k := range []string{"GEMINI_API_KEY", "GOOGLE_GEMINI_API_KEY", "GOOGLE_AI_API_KEY", "DATABASE_URL", "DEBUG", "TEAMDIGEST_DEBUG"} {
		t.Setenv(k, "")
	}
	t.Setenv("HOME", dir)
	Reset()
	t.Cleanup(Reset)
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "hash", cfg.Embeddings.Provider)
	assert.Equal(t, 256, cfg.Embeddings.Dimension)
	assert.Equal(t, 14, cfg.Clustering.WindowDays)
	assert.Equal(t, 12, cfg.Clustering.WindowClusters)
	assert.Equal(t, 6, cfg.Clustering.DayClusters)
	assert.Equal(t, 50, cfg.Clustering.MinWindowMessages)
	assert.Equal(t, int64(42), cfg.Clustering.Seed)
	assert.Equal(t, 14, cfg.Relevance.LookbackDays)
	assert.Equal(t, 4, cfg.Relevance.TopClusters)
	assert.Equal(t, 15, cfg.Digest.MaxItems)
	assert.Equal(t, 30*time.Second, cfg.Narrative.TimeoutDuration())
	assert.InDelta(t, 0.1, cfg.Narrative.Temperature, 1e-6)
	assert.Equal(t, int32(400), cfg.Narrative.MaxTokens)
	assert.Equal(t, "sqlite", cfg.VectorStore.Driver)
	assert.Equal(t, "0 8 * * *", cfg.Schedule.Cron)
	assert.Empty(t, cfg.AI.Gemini.APIKey)

	_, ok, err := cfg.Timeline.OriginTime()
	require.NoError(t, err)
	assert.False(t, ok)

	// Cached until Reset
	again, err := Load("")
	require.NoError(t, err)
	assert.Same(t, cfg, again)
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
digest:
  max_items: 8
timeline:
  origin: "2025-01-01"
logging:
  format: json
`), 0o600))
	t.Setenv("TEAMDIGEST_RELEVANCE_TOP_CLUSTERS", "2")
	t.Setenv("GOOGLE_AI_API_KEY", "from-env")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Digest.MaxItems)
	assert.Equal(t, 2, cfg.Relevance.TopClusters)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "from-env", cfg.AI.Gemini.APIKey)
	assert.Equal(t, path, cfg.App.ConfigFile)

	origin, ok, err := cfg.Timeline.OriginTime()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), origin)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("GEMINI_API_KEY=dotenv-key\n"), 0o600))
	// godotenv never overrides variables that are already set
	require.NoError(t, os.Unsetenv("GEMINI_API_KEY"))
	t.Cleanup(func() { os.Unsetenv("GEMINI_API_KEY") })

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "dotenv-key", cfg.AI.Gemini.APIKey)
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"gemini without key", "embeddings:\n  provider: gemini\n", "Gemini embeddings require an API key"},
		{"unknown provider", "embeddings:\n  provider: word2vec\n", "Unknown embeddings provider"},
		{"postgres without dsn", "vectorstore:\n  driver: postgres\n", "requires a DSN"},
		{"bad cron", "schedule:\n  cron: \"every day\"\n", "Invalid schedule.cron"},
		{"non-positive", "digest:\n  max_items: 0\n", "digest.max_items must be positive"},
		{"bad timeout", "narrative:\n  timeout: soon\n", "narrative.timeout"},
		{"bad origin", "timeline:\n  origin: yesterday\n", "timeline.origin"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := isolate(t)
			path := filepath.Join(dir, "bad.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.yaml), 0o600))

			_, err := Load(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestIsValidAPIKey(t *testing.T) {
	assert.False(t, isValidAPIKey(""))
	assert.False(t, isValidAPIKey("YOUR_API_KEY"))
	assert.True(t, isValidAPIKey("AIza-real"))
}

func TestConfig_HasValidGemini(t *testing.T) {
	cfg := &Config{}
	assert.False(t, cfg.HasValidGemini())
	cfg.AI.Gemini.APIKey = "your-api-key"
	assert.False(t, cfg.HasValidGemini())
	cfg.AI.Gemini.APIKey = "AIza-real"
	assert.True(t, cfg.HasValidGemini())
}
