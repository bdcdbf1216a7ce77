// Package config loads the executor's ambient configuration: where the KV
// store lives, which catalogue file to load, and the BM25 defaults applied
// when an index definition omits them.
//
// Grounded on apoc/config.go's LoadFromEnv/LoadConfig/LoadFromEnvOrFile
// pattern: environment variables take precedence (Docker/K8s friendly),
// falling back to a YAML file, falling back to hardcoded defaults.
package config

import (
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the executor's ambient configuration.
type Config struct {
	// Namespace/Database name every index key (pkg/kvt's KeyBase).
	Namespace string `yaml:"namespace"`
	Database  string `yaml:"database"`

	// CataloguePath points at the YAML catalogue.LoadYAML reads.
	CataloguePath string `yaml:"catalogue_path"`

	// Store selects the KVT backend: "memory" or "badger".
	Store   string `yaml:"store"`
	DataDir string `yaml:"data_dir"`

	// BM25 defaults applied when an index's SearchParams omits them.
	BM25K1 float64 `yaml:"bm25_k1"`
	BM25B  float64 `yaml:"bm25_b"`
}

// Default returns the executor's hardcoded defaults, matching
// ftindex.DefaultK1/DefaultB.
func Default() *Config {
	return &Config{
		Namespace:     "default",
		Database:      "default",
		CataloguePath: "catalogue.yaml",
		Store:         "memory",
		BM25K1:        1.2,
		BM25B:         0.75,
	}
}

// LoadFromEnv loads configuration from environment variables, the
// recommended path for container deployments (apoc/config.go's
// LoadFromEnv doc comment, same rationale).
//
// Environment Variables:
//
//	IQE_NAMESPACE        - Namespace component of every index key
//	IQE_DATABASE         - Database component of every index key
//	IQE_CATALOGUE_PATH   - Path to the YAML catalogue
//	IQE_STORE            - "memory" or "badger"
//	IQE_DATA_DIR         - Badger data directory (ignored for "memory")
//	IQE_BM25_K1          - BM25 k1 default
//	IQE_BM25_B           - BM25 b default
func LoadFromEnv() *Config {
	cfg := Default()
	if v := os.Getenv("IQE_NAMESPACE"); v != "" {
		cfg.Namespace = v
	}
	if v := os.Getenv("IQE_DATABASE"); v != "" {
		cfg.Database = v
	}
	if v := os.Getenv("IQE_CATALOGUE_PATH"); v != "" {
		cfg.CataloguePath = v
	}
	if v := os.Getenv("IQE_STORE"); v != "" {
		cfg.Store = strings.ToLower(v)
	}
	if v := os.Getenv("IQE_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("IQE_BM25_K1"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.BM25K1 = f
		}
	}
	if v := os.Getenv("IQE_BM25_B"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.BM25B = f
		}
	}
	return cfg
}

// LoadFile loads configuration from a YAML file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFileOrDefault loads from path, falling back to Default() if the file
// doesn't exist or fails to parse.
func LoadFileOrDefault(path string) *Config {
	cfg, err := LoadFile(path)
	if err != nil {
		return Default()
	}
	return cfg
}

// LoadFromEnvOrFile loads from filePath (or defaults), then overrides with
// any environment variables present — environment wins, matching
// apoc/config.go's LoadFromEnvOrFile precedence. An environment value is
// detected by differing from Default(), so a variable set to the default
// value (or to an unparsable number) does not override the file.
func LoadFromEnvOrFile(filePath string) *Config {
	cfg := LoadFileOrDefault(filePath)
	env := LoadFromEnv()
	defaults := Default()

	if env.Namespace != defaults.Namespace {
		cfg.Namespace = env.Namespace
	}
	if env.Database != defaults.Database {
		cfg.Database = env.Database
	}
	if env.CataloguePath != defaults.CataloguePath {
		cfg.CataloguePath = env.CataloguePath
	}
	if env.Store != defaults.Store {
		cfg.Store = env.Store
	}
	if env.DataDir != defaults.DataDir {
		cfg.DataDir = env.DataDir
	}
	if env.BM25K1 != defaults.BM25K1 {
		cfg.BM25K1 = env.BM25K1
	}
	if env.BM25B != defaults.BM25B {
		cfg.BM25B = env.BM25B
	}
	return cfg
}
