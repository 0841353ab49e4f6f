// Package config holds translator settings. Values come from Default, an
// optional YAML file and finally command-line flags.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"hackvm/pkg/codegen"
	"hackvm/pkg/vm"
)

type Config struct {
	// Bootstrap emits SP=256 and a call to Entry at the top of the output.
	Bootstrap bool `yaml:"bootstrap"`
	// Entry is the function the bootstrap calls.
	Entry string `yaml:"entry"`
	// Comments echoes each VM command as a comment ahead of its code.
	Comments bool `yaml:"comments"`
	// Extension selects input files when translating a directory.
	Extension string `yaml:"extension"`
	// Verbose enables per-unit debug logging.
	Verbose bool `yaml:"verbose"`
	// LogLevel overrides Verbose: trace, debug, info, warn or error.
	// trace also logs every translated command.
	LogLevel string `yaml:"log_level"`
}

// LevelTrace sits below Debug.
const LevelTrace = slog.LevelDebug - 4

var logLevels = map[string]slog.Level{
	"trace": LevelTrace,
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

func Default() Config {
	return Config{
		Entry:     codegen.DefaultEntry,
		Comments:  true,
		Extension: ".vm",
	}
}

// Load reads a YAML file on top of Default. Unknown keys are rejected.
func Load(path string) (Config, error) {
	cfg := Default()

	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if !vm.IsIdentifier(c.Entry) || vm.IsStaticName(c.Entry) {
		return fmt.Errorf("invalid entry function %q", c.Entry)
	}
	if !strings.HasPrefix(c.Extension, ".") || len(c.Extension) < 2 {
		return fmt.Errorf("invalid extension %q", c.Extension)
	}
	if _, ok := logLevels[strings.ToLower(c.LogLevel)]; c.LogLevel != "" && !ok {
		return fmt.Errorf("invalid log level %q", c.LogLevel)
	}
	return nil
}

// Level is the slog level the settings ask for.
func (c Config) Level() slog.Level {
	if l, ok := logLevels[strings.ToLower(c.LogLevel)]; ok {
		return l
	}
	if c.Verbose {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

// EngineOptions maps the settings onto codegen.Options.
func (c Config) EngineOptions() codegen.Options {
	return codegen.Options{
		Bootstrap:    c.Bootstrap,
		Entry:        c.Entry,
		OmitComments: !c.Comments,
	}
}
