package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knowledge-engine/questionbank/internal/config"
)

var configEnvVars = []string{
	"INDEX_MAX_VOCABULARY", "INDEX_DIMENSIONS", "INDEX_FIT_SAMPLE",
	"SIMILARITY_TEXT_WEIGHT", "SIMILARITY_TYPE_WEIGHT", "SIMILARITY_DEFAULT_TOP_K",
	"CACHE_ENABLED", "CACHE_CAPACITY", "CACHE_TTL",
	"CLASSIFIER_DOMAIN_MARKERS", "CLASSIFIER_ALWAYS_ENSEMBLE", "KNOWLEDGE_TABLE_PATH",
	"ENSEMBLE_RULE_WEIGHT", "CORPUS_PATH", "SERVER_ADDR", "LOG_LEVEL",
}

func clearEnvVars(t *testing.T) {
	t.Helper()
	for _, key := range configEnvVars {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoadDefaultConfig(t *testing.T) {
	clearEnvVars(t)

	cfg := config.Load()

	assert.Equal(t, 5000, cfg.Index.MaxVocabulary)
	assert.Equal(t, 128, cfg.Index.Dimensions)
	assert.Equal(t, 2000, cfg.Index.FitSample)

	assert.Equal(t, 0.6, cfg.Similarity.TextWeight)
	assert.Equal(t, 0.2, cfg.Similarity.TypeWeight)
	assert.Equal(t, 0.1, cfg.Similarity.DifficultyWeight)
	assert.Equal(t, 0.1, cfg.Similarity.SubjectWeight)
	assert.Equal(t, 10, cfg.Similarity.DefaultTopK)
	assert.Equal(t, 0.3, cfg.Similarity.DefaultThreshold)

	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, 1000, cfg.Cache.Capacity)
	assert.Equal(t, time.Hour, cfg.Cache.TTL)

	assert.Equal(t, 20, cfg.Classifier.SimpleMaxLength)
	assert.Equal(t, 120, cfg.Classifier.ComplexMinLength)
	assert.Equal(t, config.DefaultDomainMarkers, cfg.Classifier.DomainMarkers)
	assert.True(t, cfg.Classifier.FallbackToEnsemble)
	assert.False(t, cfg.Classifier.AlwaysEnsemble)
	assert.Equal(t, "", cfg.Classifier.KnowledgeTablePath)

	assert.InDelta(t, 1.0, cfg.Ensemble.KeywordWeight+cfg.Ensemble.RuleWeight+cfg.Ensemble.ModelWeight, 1e-9)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadConfigFromEnv(t *testing.T) {
	envVars := map[string]string{
		"INDEX_DIMENSIONS":           "64",
		"SIMILARITY_DEFAULT_TOP_K":   "25",
		"CACHE_ENABLED":              "false",
		"CACHE_TTL":                  "5m",
		"CLASSIFIER_DOMAIN_MARKERS":  "prove, given ,,",
		"CLASSIFIER_ALWAYS_ENSEMBLE": "true",
		"KNOWLEDGE_TABLE_PATH":       "/etc/qb/table.yaml",
		"ENSEMBLE_RULE_WEIGHT":       "0.5",
		"CORPUS_PATH":                "/data/corpus.jsonl",
		"SERVER_ADDR":                "127.0.0.1:9000",
		"LOG_LEVEL":                  "debug",
	}
	for key, value := range envVars {
		t.Setenv(key, value)
	}

	cfg := config.Load()

	assert.Equal(t, 64, cfg.Index.Dimensions)
	assert.Equal(t, 25, cfg.Similarity.DefaultTopK)
	assert.False(t, cfg.Cache.Enabled)
	assert.Equal(t, 5*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, []string{"prove", "given"}, cfg.Classifier.DomainMarkers)
	assert.True(t, cfg.Classifier.AlwaysEnsemble)
	assert.Equal(t, "/etc/qb/table.yaml", cfg.Classifier.KnowledgeTablePath)
	assert.Equal(t, 0.5, cfg.Ensemble.RuleWeight)
	assert.Equal(t, "/data/corpus.jsonl", cfg.Corpus.Path)
	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestGetStringEnv(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		envValue     string
		defaultValue string
		expected     string
	}{
		{"Existing env var", "TEST_STRING", "test_value", "default", "test_value"},
		{"Non-existing env var", "NON_EXISTENT", "", "default", "default"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.envValue)
			assert.Equal(t, tt.expected, config.GetStringEnv(tt.key, tt.defaultValue))
		})
	}
}

func TestGetIntEnv(t *testing.T) {
	tests := []struct {
		name         string
		envValue     string
		defaultValue int
		expected     int
	}{
		{"Valid int", "42", 10, 42},
		{"Invalid int", "not_a_number", 10, 10},
		{"Negative int", "-5", 10, -5},
		{"Zero", "0", 10, 0},
		{"Unset", "", 10, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_INT", tt.envValue)
			assert.Equal(t, tt.expected, config.GetIntEnv("TEST_INT", tt.defaultValue))
		})
	}
}

func TestGetFloatEnv(t *testing.T) {
	tests := []struct {
		name         string
		envValue     string
		defaultValue float64
		expected     float64
	}{
		{"Valid float", "0.25", 0.5, 0.25},
		{"Integer", "2", 0.5, 2},
		{"Invalid float", "abc", 0.5, 0.5},
		{"Unset", "", 0.5, 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_FLOAT", tt.envValue)
			assert.Equal(t, tt.expected, config.GetFloatEnv("TEST_FLOAT", tt.defaultValue))
		})
	}
}

func TestGetBoolEnv(t *testing.T) {
	tests := []struct {
		name         string
		envValue     string
		defaultValue bool
		expected     bool
	}{
		{"True string", "true", false, true},
		{"False string", "false", true, false},
		{"1 (true)", "1", false, true},
		{"0 (false)", "0", true, false},
		{"Invalid bool", "invalid", true, true},
		{"Unset", "", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_BOOL", tt.envValue)
			assert.Equal(t, tt.expected, config.GetBoolEnv("TEST_BOOL", tt.defaultValue))
		})
	}
}

func TestGetDurationEnv(t *testing.T) {
	tests := []struct {
		name         string
		envValue     string
		defaultValue time.Duration
		expected     time.Duration
	}{
		{"Valid duration - seconds", "5s", 1 * time.Second, 5 * time.Second},
		{"Valid duration - minutes", "10m", 1 * time.Second, 10 * time.Minute},
		{"Valid duration - combined", "1h30m", 1 * time.Second, 90 * time.Minute},
		{"Invalid duration", "invalid", 5 * time.Second, 5 * time.Second},
		{"Unset", "", 10 * time.Second, 10 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_DURATION", tt.envValue)
			assert.Equal(t, tt.expected, config.GetDurationEnv("TEST_DURATION", tt.defaultValue))
		})
	}
}

func TestGetListEnv(t *testing.T) {
	defaults := []string{"a", "b"}

	t.Setenv("TEST_LIST", "")
	assert.Equal(t, defaults, config.GetListEnv("TEST_LIST", defaults))

	t.Setenv("TEST_LIST", " x , y ,z")
	assert.Equal(t, []string{"x", "y", "z"}, config.GetListEnv("TEST_LIST", defaults))

	t.Setenv("TEST_LIST", " , ")
	assert.Equal(t, defaults, config.GetListEnv("TEST_LIST", defaults))
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(path, []byte("QB_DOTENV_MARKER=loaded\n"), 0o644))
	t.Setenv("QB_DOTENV_MARKER", "")
	os.Unsetenv("QB_DOTENV_MARKER")

	require.NoError(t, config.LoadDotEnv(filepath.Join(dir, "missing.env"), path))
	assert.Equal(t, "loaded", os.Getenv("QB_DOTENV_MARKER"))
}
