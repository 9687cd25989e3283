// Package config holds the typed configuration of clangcomplete.
//
// A configuration is built from defaults, then an optional TOML or YAML file,
// then CLANGCOMPLETE_* environment variables, each layer overriding the
// previous one. File keys are camelCase:
//
//	[engine]
//	command = "clangd"
//	requestTimeout = "10s"
//
//	[flags]
//	script = ".clangcomplete.lua"
//	static = { c = ["-std=c11"], "*" = ["-Wall"] }
package config

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dshills/clangcomplete/internal/completer"
	"github.com/dshills/clangcomplete/internal/config/loader"
	"github.com/dshills/clangcomplete/internal/flags"
	"github.com/dshills/clangcomplete/internal/lsp"
)

// EnvPrefix is the prefix of environment overrides.
const EnvPrefix = "CLANGCOMPLETE_"

// LogLevels are the accepted logging.level values.
var LogLevels = []string{"debug", "info", "warn", "error"}

// Config is the complete configuration.
type Config struct {
	Completer CompleterConfig `toml:"completer" yaml:"completer"`
	Engine    EngineConfig    `toml:"engine" yaml:"engine"`
	Flags     FlagsConfig     `toml:"flags" yaml:"flags"`
	Logging   LoggingConfig   `toml:"logging" yaml:"logging"`
}

// CompleterConfig configures the request coordinator.
type CompleterConfig struct {
	MaxDiagnosticsToDisplay int      `toml:"maxDiagnosticsToDisplay" yaml:"maxDiagnosticsToDisplay"`
	MinLinesToParse         int      `toml:"minLinesToParse" yaml:"minLinesToParse"`
	Filetypes               []string `toml:"filetypes" yaml:"filetypes"`
}

// EngineConfig configures the language server process.
type EngineConfig struct {
	Command        string   `toml:"command" yaml:"command"`
	Args           []string `toml:"args" yaml:"args"`
	Compiler       string   `toml:"compiler" yaml:"compiler"`
	WorkDir        string   `toml:"workDir" yaml:"workDir"`
	RequestTimeout string   `toml:"requestTimeout" yaml:"requestTimeout"`
}

// FlagsConfig configures compile flag discovery.
type FlagsConfig struct {
	// Script is the Lua flags script. A relative name is searched for in
	// the directory of the file being completed and its parents.
	Script string `toml:"script" yaml:"script"`
	// Static maps filetypes to default flags; "*" applies to any filetype.
	Static    map[string][]string `toml:"static" yaml:"static"`
	CacheSize int                 `toml:"cacheSize" yaml:"cacheSize"`
	Watch     bool                `toml:"watch" yaml:"watch"`
}

// LoggingConfig configures the logger.
type LoggingConfig struct {
	Level string `toml:"level" yaml:"level"`
	// File receives JSON logs; empty logs to stderr.
	File string `toml:"file" yaml:"file"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Completer: CompleterConfig{
			MaxDiagnosticsToDisplay: completer.DefaultMaxDiagnosticsToDisplay,
			MinLinesToParse:         completer.DefaultMinLinesToParse,
			Filetypes:               append([]string(nil), completer.DefaultFiletypes...),
		},
		Engine: EngineConfig{
			Command:        lsp.DefaultCommand,
			Compiler:       lsp.DefaultCompiler,
			RequestTimeout: lsp.DefaultTimeout.String(),
		},
		Flags: FlagsConfig{
			Script:    flags.DefaultScriptName,
			CacheSize: flags.DefaultCacheSize,
			Watch:     true,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load builds a configuration from the defaults, the file at path (skipped
// when path is empty or the file does not exist) and the environment.
func Load(path string) (*Config, error) {
	return LoadWith(loader.DefaultFS(), path, newEnvLoader())
}

// LoadWith is Load with an explicit file system and environment loader.
func LoadWith(fsys loader.FileSystem, path string, env loader.Loader) (*Config, error) {
	merged := make(map[string]any)

	if path != "" {
		fl, err := loader.ForPath(fsys, path)
		if err != nil {
			return nil, err
		}
		data, err := fl.Load()
		if err != nil {
			return nil, err
		}
		loader.DeepMerge(merged, data)
	}

	if env != nil {
		data, err := env.Load()
		if err != nil {
			return nil, fmt.Errorf("loading environment: %w", err)
		}
		loader.DeepMerge(merged, data)
	}

	cfg := Default()
	if err := decode(merged, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newEnvLoader() *loader.EnvLoader {
	return loader.NewEnvLoaderWithMapping(EnvPrefix, map[string]string{
		EnvPrefix + "LOG_LEVEL": "logging.level",
		EnvPrefix + "LOG_FILE":  "logging.file",
	})
}

// decode overlays a generic map onto cfg. Fields absent from the map keep
// their current values.
func decode(data map[string]any, cfg *Config) error {
	if len(data) == 0 {
		return nil
	}
	raw, err := yaml.Marshal(data)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return fmt.Errorf("decoding config: %w", err)
	}
	return nil
}

// Validate checks every setting and returns all failures joined.
func (c *Config) Validate() error {
	var errs []error
	add := func(path, msg string, value any, code ValidationErrorCode) {
		errs = append(errs, &ValidationError{Path: path, Message: msg, Value: value, Code: code})
	}

	if c.Completer.MaxDiagnosticsToDisplay < 0 {
		add("completer.maxDiagnosticsToDisplay", "must not be negative", c.Completer.MaxDiagnosticsToDisplay, ErrCodeOutOfRange)
	}
	if c.Completer.MinLinesToParse < 0 {
		add("completer.minLinesToParse", "must not be negative", c.Completer.MinLinesToParse, ErrCodeOutOfRange)
	}
	if len(c.Completer.Filetypes) == 0 {
		add("completer.filetypes", "at least one filetype is required", c.Completer.Filetypes, ErrCodeRequiredMissing)
	}
	if c.Engine.Command == "" {
		add("engine.command", "is required", c.Engine.Command, ErrCodeRequiredMissing)
	}
	if d, err := time.ParseDuration(c.Engine.RequestTimeout); err != nil {
		add("engine.requestTimeout", "is not a duration", c.Engine.RequestTimeout, ErrCodePatternMismatch)
	} else if d <= 0 {
		add("engine.requestTimeout", "must be positive", c.Engine.RequestTimeout, ErrCodeOutOfRange)
	}
	if c.Flags.CacheSize <= 0 {
		add("flags.cacheSize", "must be positive", c.Flags.CacheSize, ErrCodeOutOfRange)
	}
	if !slices.Contains(LogLevels, c.Logging.Level) {
		add("logging.level", fmt.Sprintf("must be one of %v", LogLevels), c.Logging.Level, ErrCodeInvalidEnum)
	}

	return errors.Join(errs...)
}

// RequestTimeout returns the engine request timeout, falling back to the
// default for an unparsable value.
func (c *Config) RequestTimeout() time.Duration {
	d, err := time.ParseDuration(c.Engine.RequestTimeout)
	if err != nil || d <= 0 {
		return lsp.DefaultTimeout
	}
	return d
}

// ToCompleter returns the coordinator settings.
func (c *Config) ToCompleter() completer.Config {
	return completer.Config{
		MaxDiagnosticsToDisplay: c.Completer.MaxDiagnosticsToDisplay,
		MinLinesToParse:         c.Completer.MinLinesToParse,
		Filetypes:               append([]string(nil), c.Completer.Filetypes...),
	}
}

// ServerConfig returns the language server process settings.
func (c *Config) ServerConfig() lsp.ServerConfig {
	return lsp.ServerConfig{
		Command: c.Engine.Command,
		Args:    append([]string(nil), c.Engine.Args...),
		WorkDir: c.Engine.WorkDir,
		Timeout: c.RequestTimeout(),
	}
}
