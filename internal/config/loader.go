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

// envPrefix namespaces patternd environment variables.
const envPrefix = "PATTERND_"

// maxConfigFileSize rejects oversized config files.
const maxConfigFileSize = 1024 * 1024 // 1MB

// Load loads configuration from an optional YAML file, then overrides with
// environment variables.
//
// Precedence (highest to lowest):
//  1. Environment variables (PATTERND_STORE_REMOTE_URL, PATTERND_SERVER_PORT, ...)
//  2. YAML config file
//  3. Hardcoded defaults
//
// Environment variables map to config paths by stripping the prefix,
// lowercasing, and splitting on the first underscore only, so compound
// field names keep theirs: PATTERND_SCHEDULER_DECAY_INTERVAL ->
// scheduler.decay_interval. Nested subsections get one extra split:
// PATTERND_STORE_REMOTE_URL -> store.remote.url.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath != "" {
		data, err := readConfigFile(configPath)
		if err != nil {
			return nil, err
		}
		if data != nil {
			if err := k.Load(rawbytes.Provider(data), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("parsing config file: %w", err)
			}
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// readConfigFile reads the config file, tolerating absence.
func readConfigFile(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("stat config file: %w", err)
	}
	if info.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return data, nil
}

// envSubsections lists the nested config sections reachable from the
// environment. Longer names come first so cross_org wins over org.
var envSubsections = map[string][]string{
	"store":      {"remote"},
	"qdrant":     {"client"},
	"graduation": {"cross_org", "observation", "project", "user", "org"},
}

// envTransform maps PATTERND_SCHEDULER_DECAY_INTERVAL to
// scheduler.decay_interval and PATTERND_STORE_REMOTE_URL to
// store.remote.url. Splits on the first underscore only; field names keep
// their remaining underscores.
func envTransform(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, envPrefix))
	parts := strings.SplitN(lower, "_", 2)
	if len(parts) == 1 {
		return lower
	}

	section, field := parts[0], parts[1]
	for _, sub := range envSubsections[section] {
		if strings.HasPrefix(field, sub+"_") {
			field = sub + "." + strings.TrimPrefix(field, sub+"_")
			break
		}
	}
	return section + "." + field
}
