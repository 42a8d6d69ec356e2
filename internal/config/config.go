package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the configuration for the question search service
type Config struct {
	Index      IndexConfig
	Similarity SimilarityConfig
	Cache      CacheConfig
	Classifier ClassifierConfig
	Ensemble   EnsembleConfig
	Corpus     CorpusConfig
	Server     ServerConfig
	LogLevel   string
}

// IndexConfig controls the vector builder
type IndexConfig struct {
	MaxVocabulary int
	Dimensions    int
	FitSample     int
}

// SimilarityConfig holds the multi-dimensional scoring weights
type SimilarityConfig struct {
	TextWeight       float64
	TypeWeight       float64
	DifficultyWeight float64
	SubjectWeight    float64
	DifficultySpan   int
	DefaultTopK      int
	DefaultThreshold float64
}

// CacheConfig holds result cache configuration
type CacheConfig struct {
	Enabled  bool
	Capacity int
	TTL      time.Duration
}

// ClassifierConfig holds complexity thresholds and matcher settings
type ClassifierConfig struct {
	SimpleMaxLength      int
	SimpleMaxSymbols     int
	StandardMaxLength    int
	StandardMaxDensity   float64
	ComplexMinLength     int
	ComplexMinDensity    float64
	ComplexMinSymbols    int
	ComplexMinMarkers    int
	DomainMarkers        []string
	KeywordMinConfidence float64
	RuleMinConfidence    float64
	ModelMinConfidence   float64
	AlwaysEnsemble       bool
	FallbackToEnsemble   bool
	DefaultTopK          int
	KnowledgeTablePath   string
}

// EnsembleConfig holds the weighted-vote weights
type EnsembleConfig struct {
	KeywordWeight float64
	RuleWeight    float64
	ModelWeight   float64
}

// CorpusConfig points at the corpus snapshot loaded on start
type CorpusConfig struct {
	Path        string
	LoadOnStart bool
}

// ServerConfig holds HTTP adapter configuration
type ServerConfig struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// DefaultDomainMarkers are phrases that signal a structured exercise.
var DefaultDomainMarkers = []string{
	"已知", "求", "证明", "解方程", "计算", "如图", "化简", "若", "设",
	"prove", "solve", "calculate", "find", "given", "simplify", "evaluate",
}

// Load loads configuration from environment variables with defaults
func Load() *Config {
	return &Config{
		Index: IndexConfig{
			MaxVocabulary: GetIntEnv("INDEX_MAX_VOCABULARY", 5000),
			Dimensions:    GetIntEnv("INDEX_DIMENSIONS", 128),
			FitSample:     GetIntEnv("INDEX_FIT_SAMPLE", 2000),
		},
		Similarity: SimilarityConfig{
			TextWeight:       GetFloatEnv("SIMILARITY_TEXT_WEIGHT", 0.6),
			TypeWeight:       GetFloatEnv("SIMILARITY_TYPE_WEIGHT", 0.2),
			DifficultyWeight: GetFloatEnv("SIMILARITY_DIFFICULTY_WEIGHT", 0.1),
			SubjectWeight:    GetFloatEnv("SIMILARITY_SUBJECT_WEIGHT", 0.1),
			DifficultySpan:   GetIntEnv("SIMILARITY_DIFFICULTY_SPAN", 4),
			DefaultTopK:      GetIntEnv("SIMILARITY_DEFAULT_TOP_K", 10),
			DefaultThreshold: GetFloatEnv("SIMILARITY_DEFAULT_THRESHOLD", 0.3),
		},
		Cache: CacheConfig{
			Enabled:  GetBoolEnv("CACHE_ENABLED", true),
			Capacity: GetIntEnv("CACHE_CAPACITY", 1000),
			TTL:      GetDurationEnv("CACHE_TTL", 1*time.Hour),
		},
		Classifier: ClassifierConfig{
			SimpleMaxLength:      GetIntEnv("CLASSIFIER_SIMPLE_MAX_LENGTH", 20),
			SimpleMaxSymbols:     GetIntEnv("CLASSIFIER_SIMPLE_MAX_SYMBOLS", 4),
			StandardMaxLength:    GetIntEnv("CLASSIFIER_STANDARD_MAX_LENGTH", 119),
			StandardMaxDensity:   GetFloatEnv("CLASSIFIER_STANDARD_MAX_DENSITY", 0.20),
			ComplexMinLength:     GetIntEnv("CLASSIFIER_COMPLEX_MIN_LENGTH", 120),
			ComplexMinDensity:    GetFloatEnv("CLASSIFIER_COMPLEX_MIN_DENSITY", 0.30),
			ComplexMinSymbols:    GetIntEnv("CLASSIFIER_COMPLEX_MIN_SYMBOLS", 8),
			ComplexMinMarkers:    GetIntEnv("CLASSIFIER_COMPLEX_MIN_MARKERS", 3),
			DomainMarkers:        GetListEnv("CLASSIFIER_DOMAIN_MARKERS", DefaultDomainMarkers),
			KeywordMinConfidence: GetFloatEnv("CLASSIFIER_KEYWORD_MIN_CONFIDENCE", 0.1),
			RuleMinConfidence:    GetFloatEnv("CLASSIFIER_RULE_MIN_CONFIDENCE", 0.1),
			ModelMinConfidence:   GetFloatEnv("CLASSIFIER_MODEL_MIN_CONFIDENCE", 0.2),
			AlwaysEnsemble:       GetBoolEnv("CLASSIFIER_ALWAYS_ENSEMBLE", false),
			FallbackToEnsemble:   GetBoolEnv("CLASSIFIER_FALLBACK_TO_ENSEMBLE", true),
			DefaultTopK:          GetIntEnv("CLASSIFIER_DEFAULT_TOP_K", 3),
			KnowledgeTablePath:   GetStringEnv("KNOWLEDGE_TABLE_PATH", ""),
		},
		Ensemble: EnsembleConfig{
			KeywordWeight: GetFloatEnv("ENSEMBLE_KEYWORD_WEIGHT", 0.3),
			RuleWeight:    GetFloatEnv("ENSEMBLE_RULE_WEIGHT", 0.4),
			ModelWeight:   GetFloatEnv("ENSEMBLE_MODEL_WEIGHT", 0.3),
		},
		Corpus: CorpusConfig{
			Path:        GetStringEnv("CORPUS_PATH", ""),
			LoadOnStart: GetBoolEnv("CORPUS_LOAD_ON_START", true),
		},
		Server: ServerConfig{
			Addr:            GetStringEnv("SERVER_ADDR", ":8080"),
			ReadTimeout:     GetDurationEnv("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    GetDurationEnv("SERVER_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: GetDurationEnv("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		LogLevel: GetStringEnv("LOG_LEVEL", "info"),
	}
}

// LoadDotEnv populates the environment from .env style files. Missing files
// are skipped; variables already set in the environment win.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, file := range files {
		if err := godotenv.Load(file); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return err
		}
	}
	return nil
}

func GetStringEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func GetIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func GetFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func GetBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func GetDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// GetListEnv reads a comma separated list, dropping blank items.
func GetListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return append([]string(nil), defaultValue...)
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return append([]string(nil), defaultValue...)
	}
	return out
}
