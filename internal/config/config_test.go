package config

import (
	"strings"
	"testing"
)

func validConfig() Config {
	var cfg Config
	cfg.HTTP.Port = 8080
	cfg.Database.Addrs = []string{"localhost:6379"}
	cfg.Embedding.Model = "text-embedding-3-small"
	cfg.Embedding.Dimensions = 1536
	cfg.ApplyDefaults()
	return cfg
}

func TestApplyDefaults(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()

	if cfg.Retrieval.PrefilterLimit != 25 {
		t.Errorf("prefilter_limit default = %d", cfg.Retrieval.PrefilterLimit)
	}
	if cfg.Clustering.Threshold != 0.22 {
		t.Errorf("clustering threshold default = %g", cfg.Clustering.Threshold)
	}
	if cfg.Matching.VectorThreshold != 0.65 {
		t.Errorf("vector threshold default = %g", cfg.Matching.VectorThreshold)
	}
	if cfg.DynamicRerank.TargetTopK != 5 || cfg.DynamicRerank.TopKMinPercentile != 85 {
		t.Errorf("dynamic rerank defaults = %+v", cfg.DynamicRerank)
	}
	if cfg.Normalization.Version != "2.0" {
		t.Errorf("normalization version default = %q", cfg.Normalization.Version)
	}
}

func TestApplyDefaults_DoesNotOverrideExplicitValues(t *testing.T) {
	var cfg Config
	cfg.Matching.VectorThreshold = 0.8
	cfg.Retrieval.PrefilterLimit = 50
	cfg.ApplyDefaults()

	if cfg.Matching.VectorThreshold != 0.8 {
		t.Errorf("explicit vector threshold overridden: %g", cfg.Matching.VectorThreshold)
	}
	if cfg.Retrieval.PrefilterLimit != 50 {
		t.Errorf("explicit prefilter limit overridden: %d", cfg.Retrieval.PrefilterLimit)
	}
}

func TestValidate(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	bad := validConfig()
	bad.HTTP.Port = 0
	if err := bad.Validate(); err == nil {
		t.Error("expected error for missing port")
	}

	bad = validConfig()
	bad.Database.Addrs = nil
	if err := bad.Validate(); err == nil {
		t.Error("expected error for missing database addrs")
	}

	bad = validConfig()
	bad.Embedding.Dimensions = 0
	if err := bad.Validate(); err == nil {
		t.Error("expected error for zero dimensions")
	}

	bad = validConfig()
	bad.Rerank.Enabled = true
	bad.Rerank.BaseURL = ""
	if err := bad.Validate(); err == nil {
		t.Error("expected error for enabled rerank without base_url")
	}

	bad = validConfig()
	bad.Clustering.Threshold = 1.5
	if err := bad.Validate(); err == nil {
		t.Error("expected error for clustering threshold above 1")
	}

	bad = validConfig()
	bad.DynamicRerank.TopPercentile = 120
	if err := bad.Validate(); err == nil {
		t.Error("expected error for percentile above 100")
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("STEPMATCH_TEST_ADDR", "redis:6379")

	in := []byte("addr: ${STEPMATCH_TEST_ADDR}\nkey: ${STEPMATCH_TEST_UNSET:-fallback}\nempty: ${STEPMATCH_TEST_UNSET}")
	out := string(expandEnvVars(in))

	if !strings.Contains(out, "addr: redis:6379") {
		t.Errorf("set variable not expanded: %q", out)
	}
	if !strings.Contains(out, "key: fallback") {
		t.Errorf("default value not applied: %q", out)
	}
	if !strings.Contains(out, "empty: \n") && !strings.HasSuffix(out, "empty: ") {
		t.Errorf("unset variable without default should expand to empty: %q", out)
	}
}
