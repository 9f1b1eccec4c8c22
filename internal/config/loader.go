package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	// envPrefix namespaces all evidenced environment variables.
	envPrefix = "EVIDENCED_"

	maxConfigFileSize = 1 << 20 // 1MB
)

// Load resolves configuration from defaults, an optional YAML file, and
// EVIDENCED_-prefixed environment variables.
//
// Precedence (highest to lowest):
//  1. Environment variables (EVIDENCED_LLM_API_KEY, EVIDENCED_SERVER_PORT, ...)
//  2. YAML config file, when configPath is non-empty and the file exists
//  3. Defaults from Default()
//
// Environment variables map to config keys by stripping the prefix,
// lowercasing, and splitting on the first underscore:
//
//	EVIDENCED_SERVER_PORT            -> server.port
//	EVIDENCED_LLM_API_KEY            -> llm.api_key
//	EVIDENCED_LITERATURE_RATE_LIMIT  -> literature.rate_limit
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath != "" {
		if info, err := os.Stat(configPath); err == nil {
			if info.Size() > maxConfigFileSize {
				return nil, fmt.Errorf("config file %s exceeds %d bytes", configPath, maxConfigFileSize)
			}
			content, err := os.ReadFile(configPath)
			if err != nil {
				return nil, fmt.Errorf("reading config file: %w", err)
			}
			if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("parsing config file %s: %w", configPath, err)
			}
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// envTransform maps an environment variable name to a dotted config key.
// The section is everything before the first underscore; the remainder is
// the field name, so compound fields like api_key survive the mapping.
func envTransform(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, envPrefix))

	// Multi-word sections that would otherwise split wrong.
	if rest, ok := strings.CutPrefix(s, "drug_events_"); ok {
		return "drug_events." + rest
	}
	if rest, ok := strings.CutPrefix(s, "cache_embedding_"); ok {
		return "cache.embedding." + rest
	}

	parts := strings.SplitN(s, "_", 2)
	if len(parts) == 1 {
		return s
	}
	return parts[0] + "." + parts[1]
}
