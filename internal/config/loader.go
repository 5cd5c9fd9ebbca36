package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Option adjusts how a config file is read.
type Option func(*source)

type source struct {
	envFile string
	lookup  func(string) (string, bool)
}

// WithEnvFile reads a dotenv file before expanding the config. Process
// environment variables take precedence over its entries. A missing file
// is not an error.
func WithEnvFile(path string) Option {
	return func(s *source) { s.envFile = path }
}

// WithLookup replaces the process environment as the variable source.
func WithLookup(fn func(string) (string, bool)) Option {
	return func(s *source) { s.lookup = fn }
}

// Load reads a YAML config file after expanding ${VAR} and ${VAR:-default}
// references. A reference to an unset variable without a default fails the
// load; use ${VAR:-} for optional values.
func Load(path string, opts ...Option) (*FeedConfig, error) {
	src := source{lookup: os.LookupEnv}
	for _, opt := range opts {
		opt(&src)
	}

	lookup, err := src.resolver()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	expanded, err := expand(string(data), lookup)
	if err != nil {
		return nil, fmt.Errorf("expand %s: %w", path, err)
	}

	var cfg FeedConfig
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}
	return &cfg, nil
}

// LoadWithDefaults loads config and applies default values.
func LoadWithDefaults(path string, opts ...Option) (*FeedConfig, error) {
	cfg, err := Load(path, opts...)
	if err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

// LoadAndValidate loads config, applies defaults, and validates.
func LoadAndValidate(path string, opts ...Option) (*FeedConfig, error) {
	cfg, err := LoadWithDefaults(path, opts...)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// resolver layers the dotenv entries under the primary lookup.
func (s source) resolver() (func(string) (string, bool), error) {
	if s.envFile == "" {
		return s.lookup, nil
	}

	file, err := godotenv.Read(s.envFile)
	if errors.Is(err, fs.ErrNotExist) {
		return s.lookup, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read env file %s: %w", s.envFile, err)
	}

	return func(name string) (string, bool) {
		if v, ok := s.lookup(name); ok {
			return v, true
		}
		v, ok := file[name]
		return v, ok
	}, nil
}

// expand substitutes variable references in text. All unset names are
// reported together.
func expand(text string, lookup func(string) (string, bool)) (string, error) {
	missing := make(map[string]struct{})

	out := os.Expand(text, func(ref string) string {
		name, def, hasDefault := strings.Cut(ref, ":-")
		if v, ok := lookup(name); ok && (v != "" || !hasDefault) {
			return v
		}
		if hasDefault {
			return def
		}
		missing[name] = struct{}{}
		return ""
	})

	if len(missing) > 0 {
		names := make([]string, 0, len(missing))
		for n := range missing {
			names = append(names, n)
		}
		sort.Strings(names)
		return "", fmt.Errorf("unset environment variables: %s", strings.Join(names, ", "))
	}
	return out, nil
}
