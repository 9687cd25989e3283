package completer

import "go.uber.org/zap"

// Default coordinator settings.
const (
	DefaultMaxDiagnosticsToDisplay = 30
	DefaultMinLinesToParse         = 5
)

// Config holds coordinator settings.
type Config struct {
	// MaxDiagnosticsToDisplay caps the list returned by FetchDiagnostics.
	MaxDiagnosticsToDisplay int

	// MinLinesToParse is the smallest buffer worth parsing.
	MinLinesToParse int

	// Filetypes are the buffer filetypes sent to the engine.
	Filetypes []string
}

// DefaultConfig returns the default coordinator settings.
func DefaultConfig() Config {
	return Config{
		MaxDiagnosticsToDisplay: DefaultMaxDiagnosticsToDisplay,
		MinLinesToParse:         DefaultMinLinesToParse,
		Filetypes:               append([]string(nil), DefaultFiletypes...),
	}
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithConfig replaces the whole configuration.
func WithConfig(cfg Config) Option {
	return func(c *Coordinator) {
		c.cfg = cfg
	}
}

// WithMaxDiagnostics sets the maximum number of diagnostics returned.
func WithMaxDiagnostics(n int) Option {
	return func(c *Coordinator) {
		c.cfg.MaxDiagnosticsToDisplay = n
	}
}

// WithMinLinesToParse sets the line threshold below which parses are skipped.
func WithMinLinesToParse(n int) Option {
	return func(c *Coordinator) {
		c.cfg.MinLinesToParse = n
	}
}

// WithFiletypes sets the supported filetypes.
func WithFiletypes(filetypes ...string) Option {
	return func(c *Coordinator) {
		c.cfg.Filetypes = filetypes
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}
