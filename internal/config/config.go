// Package config loads and validates the service configuration from YAML
// with environment variable expansion.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the stepmatch API configuration.
type Config struct {
	HTTP          HTTPConfig          `yaml:"http"`
	Database      DatabaseConfig      `yaml:"database"`
	Embedding     EmbeddingConfig     `yaml:"embedding"`
	Rerank        RerankConfig        `yaml:"rerank"`
	Auth          AuthConfig          `yaml:"auth"`
	Index         IndexConfig         `yaml:"index"`
	Retrieval     RetrievalConfig     `yaml:"retrieval"`
	Clustering    ClusteringConfig    `yaml:"clustering"`
	DynamicRerank DynamicRerankConfig `yaml:"dynamic_rerank"`
	Fallbacks     FallbacksConfig     `yaml:"fallbacks"`
	Matching      MatchingConfig      `yaml:"matching"`
	Normalization NormalizationConfig `yaml:"normalization"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Addrs            []string `yaml:"addrs"`
	Username         string   `yaml:"username"`
	Password         string   `yaml:"password"`
	DB               int      `yaml:"db"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider   string `yaml:"provider"`
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
	User       string `yaml:"user"`
	BatchSize  int    `yaml:"batch_size"`
}

// RerankConfig holds cross-encoder endpoint settings.
type RerankConfig struct {
	Enabled    bool   `yaml:"enabled"`
	BaseURL    string `yaml:"base_url"`
	APIKey     string `yaml:"api_key"`
	Model      string `yaml:"model"`
	TopK       int    `yaml:"top_k"`
	TimeoutSec int    `yaml:"timeout_sec"`
}

// IndexConfig holds HNSW index build settings.
type IndexConfig struct {
	HNSWM           int `yaml:"hnsw_m"`
	HNSWEFConstruct int `yaml:"hnsw_ef_construction"`
}

// RetrievalConfig holds candidate retrieval limits.
type RetrievalConfig struct {
	PrefilterLimit int `yaml:"prefilter_limit"`
	RelaxedLimit   int `yaml:"relaxed_limit"`
	EFSearch       int `yaml:"ef_search"`
	EFRelaxed      int `yaml:"ef_relaxed"`
}

// ClusteringConfig holds agglomerative clustering parameters.
type ClusteringConfig struct {
	Threshold      float64 `yaml:"threshold"`
	MinClusterSize int     `yaml:"min_cluster_size"`
}

// DynamicRerankConfig tunes the statistical rerank skip conditions.
// Disabled turns the whole gate off, so every match pays for a rerank.
type DynamicRerankConfig struct {
	Disabled               bool    `yaml:"disabled"`
	TargetTopK             int     `yaml:"target_top_k"`
	MinPercentileRank      float64 `yaml:"min_percentile_rank"`
	PercentileGapThreshold float64 `yaml:"percentile_gap_threshold"`
	ClusterSeparation      float64 `yaml:"cluster_separation"`
	TopPercentile          float64 `yaml:"top_percentile"`
	TopKMinPercentile      float64 `yaml:"top_k_min_percentile"`
}

// FallbacksConfig enables individual fallback stages.
type FallbacksConfig struct {
	EnableContextExpansion bool `yaml:"enable_context_expansion"`
	EnableLexicalSearch    bool `yaml:"enable_lexical_search"`
	EnableRuleSynthesis    bool `yaml:"enable_rule_synthesis"`
	EnableLLMSynthesis     bool `yaml:"enable_llm_synthesis"`
	WeakClusterMinMembers  int  `yaml:"weak_cluster_min_members"` // stage fires on strictly more members
}

// MatchingConfig holds decision thresholds.
type MatchingConfig struct {
	TopKResults       int     `yaml:"top_k_results"`
	MinScoreThreshold float64 `yaml:"min_score_threshold"` // reranker score scale, may be negative
	VectorThreshold   float64 `yaml:"vector_threshold"`
	MedConfThreshold  float64 `yaml:"med_conf_threshold"`
	LowConfThreshold  float64 `yaml:"low_conf_threshold"`
}

// NormalizationConfig holds text normalization settings.
type NormalizationConfig struct {
	Version         string `yaml:"version"`
	Lemmatize       bool   `yaml:"lemmatize"`
	UseSyntaxTagger bool   `yaml:"use_syntax_tagger"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 30
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Embedding.BatchSize <= 0 {
		c.Embedding.BatchSize = 64
	}
	if c.Rerank.TopK <= 0 {
		c.Rerank.TopK = 10
	}
	if c.Rerank.TimeoutSec <= 0 {
		c.Rerank.TimeoutSec = 10
	}
	if c.Index.HNSWM <= 0 {
		c.Index.HNSWM = 32
	}
	if c.Index.HNSWEFConstruct <= 0 {
		c.Index.HNSWEFConstruct = 400
	}
	if c.Retrieval.PrefilterLimit <= 0 {
		c.Retrieval.PrefilterLimit = 25
	}
	if c.Retrieval.RelaxedLimit <= 0 {
		c.Retrieval.RelaxedLimit = 100
	}
	if c.Retrieval.EFSearch <= 0 {
		c.Retrieval.EFSearch = 100
	}
	if c.Retrieval.EFRelaxed <= 0 {
		c.Retrieval.EFRelaxed = 300
	}
	if c.Clustering.Threshold <= 0 {
		c.Clustering.Threshold = 0.22
	}
	if c.Clustering.MinClusterSize <= 0 {
		c.Clustering.MinClusterSize = 3
	}
	if c.DynamicRerank.TargetTopK <= 0 {
		c.DynamicRerank.TargetTopK = 5
	}
	if c.DynamicRerank.MinPercentileRank <= 0 {
		c.DynamicRerank.MinPercentileRank = 90
	}
	if c.DynamicRerank.PercentileGapThreshold <= 0 {
		c.DynamicRerank.PercentileGapThreshold = 20
	}
	if c.DynamicRerank.ClusterSeparation <= 0 {
		c.DynamicRerank.ClusterSeparation = 0.1
	}
	if c.DynamicRerank.TopPercentile <= 0 {
		c.DynamicRerank.TopPercentile = 95
	}
	if c.DynamicRerank.TopKMinPercentile <= 0 {
		c.DynamicRerank.TopKMinPercentile = 85
	}
	if c.Fallbacks.WeakClusterMinMembers <= 0 {
		c.Fallbacks.WeakClusterMinMembers = 3
	}
	if c.Matching.TopKResults <= 0 {
		c.Matching.TopKResults = 5
	}
	if c.Matching.VectorThreshold <= 0 {
		c.Matching.VectorThreshold = 0.65
	}
	if c.Matching.MedConfThreshold <= 0 {
		c.Matching.MedConfThreshold = 0.70
	}
	if c.Matching.LowConfThreshold <= 0 {
		c.Matching.LowConfThreshold = 0.50
	}
	if c.Normalization.Version == "" {
		c.Normalization.Version = "2.0"
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if len(c.Database.Addrs) == 0 {
		return fmt.Errorf("database.addrs is required")
	}
	if c.Embedding.Model == "" {
		return fmt.Errorf("embedding.model is required")
	}
	if c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("embedding.dimensions must be positive, got %d", c.Embedding.Dimensions)
	}
	if c.Rerank.Enabled && c.Rerank.BaseURL == "" {
		return fmt.Errorf("rerank.base_url is required when rerank is enabled")
	}
	if c.Clustering.Threshold >= 1 {
		return fmt.Errorf("clustering.threshold must be below 1, got %g", c.Clustering.Threshold)
	}
	if t := c.DynamicRerank; t.MinPercentileRank > 100 || t.TopPercentile > 100 || t.TopKMinPercentile > 100 {
		return fmt.Errorf("dynamic_rerank percentiles must be within [0, 100]")
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
