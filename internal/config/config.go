// Package config loads impactgate settings from defaults, an optional YAML
// file, a .env file and IMPACTGATE_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/sprite-ai/impactgate/internal/gate"
	"github.com/sprite-ai/impactgate/internal/risk"
	"github.com/sprite-ai/impactgate/internal/scope"
	"github.com/sprite-ai/impactgate/internal/validation"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "IMPACTGATE_"

// DefaultFile is read when no path is given and it exists.
const DefaultFile = "impactgate.yaml"

type Config struct {
	Parser     ParserConfig      `yaml:"parser"`
	Scope      scope.Config      `yaml:"scope"`
	Validation validation.Config `yaml:"validation"`
	Gate       gate.Criteria     `yaml:"gate"`
	Risk       RiskConfig        `yaml:"risk"`
	Graph      GraphConfig       `yaml:"graph"`
	Audit      AuditConfig       `yaml:"audit"`
	Server     ServerConfig      `yaml:"server"`
	LogLevel   string            `yaml:"log_level" validate:"oneof=debug info warn error"`
}

// ParserConfig extends the built-in word lists of the change parser.
type ParserConfig struct {
	StopWords        []string `yaml:"stop_words"`
	EntityExclusions []string `yaml:"entity_exclusions"`
}

type RiskConfig struct {
	Vocabulary    risk.Vocabulary `yaml:"vocabulary"`
	RulesFile     string          `yaml:"rules_file"`
	DisabledRules []string        `yaml:"disabled_rules"`
}

type GraphConfig struct {
	// File is a YAML knowledge graph. Empty disables module, spec and flow
	// providers.
	File string `yaml:"file"`
	// Repo is scanned for imports when set.
	Repo      string `yaml:"repo"`
	CacheSize int    `yaml:"cache_size" validate:"gte=0"`
}

type AuditConfig struct {
	Path string `yaml:"path" validate:"required"`
}

type ServerConfig struct {
	Addr string `yaml:"addr" validate:"required"`
	Port int    `yaml:"port" validate:"gte=1,lte=65535"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Scope:      scope.DefaultConfig(),
		Validation: validation.DefaultConfig(),
		Gate:       gate.DefaultCriteria(),
		Risk:       RiskConfig{Vocabulary: risk.DefaultVocabulary()},
		Graph:      GraphConfig{CacheSize: 1024},
		Audit:      AuditConfig{Path: ".impactgate/audit.db"},
		Server:     ServerConfig{Addr: "127.0.0.1", Port: 6142},
		LogLevel:   "info",
	}
}

// Load builds the configuration. An empty path reads DefaultFile when it
// exists; an explicit path must exist.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	case explicit || !errors.Is(err, os.ErrNotExist):
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg.Risk.Vocabulary = cfg.Risk.Vocabulary.WithDefaults()

	_ = godotenv.Load()
	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}

	if err := validator.New().Struct(cfg); err != nil {
		return cfg, fmt.Errorf("config: invalid: %w", err)
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	str := func(name string, dst *string) {
		if v, ok := os.LookupEnv(EnvPrefix + name); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	num := func(name string, dst *int) error {
		v, ok := os.LookupEnv(EnvPrefix + name)
		if !ok || strings.TrimSpace(v) == "" {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("config: %s%s: %w", EnvPrefix, name, err)
		}
		*dst = n
		return nil
	}

	str("GRAPH_FILE", &cfg.Graph.File)
	str("REPO", &cfg.Graph.Repo)
	str("AUDIT_PATH", &cfg.Audit.Path)
	str("ADDR", &cfg.Server.Addr)
	str("LOG_LEVEL", &cfg.LogLevel)
	str("RULES_FILE", &cfg.Risk.RulesFile)
	str("TEST_COMMAND", &cfg.Validation.TestCommandPrefix)

	for name, dst := range map[string]*int{
		"PORT":                   &cfg.Server.Port,
		"MAX_DEPTH":              &cfg.Scope.MaxDepth,
		"MIN_PASSED_VALIDATIONS": &cfg.Gate.MinPassedValidations,
		"CACHE_SIZE":             &cfg.Graph.CacheSize,
	} {
		if err := num(name, dst); err != nil {
			return err
		}
	}
	return nil
}

// NewLogger builds a text logger on stderr at level.
func NewLogger(level string) *slog.Logger {
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "warn", "warning":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}
