// Package config holds the server configuration, loaded from an optional
// YAML file with environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// UserProfile seeds the in-memory identity directory for local runs.
type UserProfile struct {
	Username string `yaml:"username"`
	Rating   int    `yaml:"rating"`
}

// Config is the full server configuration.
type Config struct {
	Port  string `yaml:"port"`
	Debug bool   `yaml:"debug"`

	AllowedOrigins []string `yaml:"allowed_origins"`

	// EvictionGraceSec is how long finished sessions stay resolvable.
	EvictionGraceSec int `yaml:"eviction_grace_sec"`

	// Tokens maps opaque credentials to user ids for the static verifier.
	Tokens map[string]string `yaml:"tokens"`

	// Users maps user ids to public profiles.
	Users map[string]UserProfile `yaml:"users"`
}

// Load reads the configuration from an optional YAML file, then applies
// environment overrides. An empty path skips the file entirely.
func Load(path string) (*Config, error) {
	cfg := &Config{
		Port:             "8080",
		EvictionGraceSec: 120,
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if v := strings.TrimSpace(os.Getenv("PORT")); v != "" {
		cfg.Port = v
	}
	if v := strings.TrimSpace(os.Getenv("DEBUG")); v != "" {
		cfg.Debug = v == "1" || strings.EqualFold(v, "true")
	}
	if v := strings.TrimSpace(os.Getenv("ALLOWED_ORIGINS")); v != "" {
		cfg.AllowedOrigins = splitAndTrim(v)
	}
	if v := strings.TrimSpace(os.Getenv("EVICTION_GRACE_SEC")); v != "" {
		sec, err := strconv.Atoi(v)
		if err != nil || sec <= 0 {
			return nil, fmt.Errorf("invalid EVICTION_GRACE_SEC %q", v)
		}
		cfg.EvictionGraceSec = sec
	}
	if v := strings.TrimSpace(os.Getenv("AUTH_TOKENS")); v != "" {
		tokens, err := parseTokenPairs(v)
		if err != nil {
			return nil, err
		}
		cfg.Tokens = tokens
	}

	return cfg, nil
}

func splitAndTrim(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parseTokenPairs parses "token:userid" pairs separated by commas.
func parseTokenPairs(v string) (map[string]string, error) {
	tokens := make(map[string]string)
	for _, pair := range strings.Split(v, ",") {
		token, userID, ok := strings.Cut(strings.TrimSpace(pair), ":")
		if !ok || token == "" || userID == "" {
			return nil, fmt.Errorf("invalid AUTH_TOKENS entry %q", pair)
		}
		tokens[token] = userID
	}
	return tokens, nil
}
