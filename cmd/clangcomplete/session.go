package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/dshills/clangcomplete/internal/completer"
	"github.com/dshills/clangcomplete/internal/config"
	"github.com/dshills/clangcomplete/internal/flags"
	"github.com/dshills/clangcomplete/internal/host"
	"github.com/dshills/clangcomplete/internal/logging"
	"github.com/dshills/clangcomplete/internal/lsp"
)

// pollInterval is how often a parse is checked for completion.
const pollInterval = 20 * time.Millisecond

// shutdownTimeout bounds server shutdown when a command ends.
const shutdownTimeout = 5 * time.Second

// session wires configuration, flags, the language server and the
// coordinator for one command.
type session struct {
	cfg      *config.Config
	logger   *zap.Logger
	closeLog func() error

	host    *host.Memory
	script  *flags.Script
	cache   *flags.Cache
	watcher *flags.Watcher
	server  *lsp.Server
	engine  *lsp.Engine
	coord   *completer.Coordinator
}

// openSession builds a session for file. The language server is started
// only when withEngine is set.
func openSession(ctx context.Context, opts *globalOptions, file string, withEngine bool) (s *session, err error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.logLevel != "" {
		cfg.Logging.Level = opts.logLevel
	}
	if opts.logFile != "" {
		cfg.Logging.File = opts.logFile
	}

	logger, closeLog, err := logging.New(cfg.Logging.Level, cfg.Logging.File)
	if err != nil {
		return nil, err
	}

	s = &session{cfg: cfg, logger: logger, closeLog: closeLog}
	defer func() {
		if err != nil {
			s.Close()
			s = nil
		}
	}()

	s.host = host.New(host.WithSink(func(text string) {
		logger.Debug("host message", zap.String("text", text))
	}))

	if err := s.setupFlags(file, withEngine); err != nil {
		return s, err
	}

	var engine completer.Engine
	if withEngine {
		s.server = lsp.NewServer(cfg.ServerConfig(), logger)
		if err := s.server.Start(ctx); err != nil {
			return s, err
		}
		s.engine = lsp.NewEngine(s.server.Conn(),
			lsp.WithRequestTimeout(cfg.RequestTimeout()),
			lsp.WithCompiler(cfg.Engine.Compiler),
			lsp.WithWorkingDirectory(cfg.Engine.WorkDir),
			lsp.WithPositionEncoding(s.server.PositionEncoding()),
			lsp.WithEngineLogger(logger.Named("engine")),
		)
		engine = s.engine
	}

	s.coord = completer.New(engine, s.host, s.cache,
		completer.WithConfig(cfg.ToCompleter()),
		completer.WithLogger(logger.Named("completer")),
	)

	logger.Debug("session opened",
		zap.String("file", file),
		zap.Bool("engine", withEngine),
		zap.Bool("script", s.script != nil))
	return s, nil
}

// setupFlags builds the flags chain: the Lua script found from file's
// directory, then the static per-filetype flags, behind the cache.
func (s *session) setupFlags(file string, watch bool) error {
	var resolvers []flags.Resolver

	if s.cfg.Flags.Script != "" && file != "" {
		if path, ok := flags.FindScript(filepath.Dir(file), s.cfg.Flags.Script); ok {
			script, err := flags.LoadScript(path, flags.WithScriptLogger(s.logger.Named("flags")))
			if err != nil {
				return err
			}
			s.script = script
			resolvers = append(resolvers, script)
		}
	}
	if len(s.cfg.Flags.Static) > 0 {
		resolvers = append(resolvers, flags.NewStatic(s.cfg.Flags.Static))
	}

	s.cache = flags.NewCache(flags.NewChain(resolvers...), s.cfg.Flags.CacheSize,
		flags.WithCacheLogger(s.logger.Named("flags")))

	if s.script != nil && watch && s.cfg.Flags.Watch {
		w, err := flags.WatchScript(s.script, s.cache.Purge, flags.WithWatcherLogger(s.logger.Named("flags")))
		if err != nil {
			return err
		}
		s.watcher = w
	}
	return nil
}

// open loads file into the host and focuses it.
func (s *session) open(file string) error {
	_, err := s.host.OpenFile(file)
	return err
}

// parse reparses the current buffer and waits for its diagnostics. The
// boolean is false when the coordinator declined to parse.
func (s *session) parse(ctx context.Context) ([]completer.DiagnosticView, bool, error) {
	if s.coord.RequestParse(ctx) == nil {
		return nil, false, nil
	}

	var exited <-chan error
	if s.server != nil {
		exited = s.server.ExitChannel()
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for !s.coord.IsDiagnosticsReady() {
		select {
		case <-ctx.Done():
			return nil, true, ctx.Err()
		case err := <-exited:
			if err == nil {
				err = errors.New("exit status 0")
			}
			return nil, true, fmt.Errorf("language server exited: %w", err)
		case <-ticker.C:
		}
	}

	views, err := s.coord.FetchDiagnostics(ctx)
	return views, true, err
}

// declined explains why the current buffer was not parsed.
func (s *session) declined() error {
	buf := s.host.CurrentBuffer()
	if len(buf.Lines) < s.cfg.Completer.MinLinesToParse {
		return fmt.Errorf("%s has fewer than %d lines, not parsed", buf.Name, s.cfg.Completer.MinLinesToParse)
	}
	if found, _ := s.cache.FlagsForFile(buf.Name); len(found) == 0 {
		return fmt.Errorf("no compile flags for %s; add a %s script or [flags.static] entry", buf.Name, flags.DefaultScriptName)
	}
	return fmt.Errorf("%s was not parsed", buf.Name)
}

// Close releases every resource the session holds.
func (s *session) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	if s.engine != nil {
		errs = append(errs, s.engine.Close(ctx))
	}
	if s.server != nil {
		errs = append(errs, s.server.Shutdown(ctx))
	}
	if s.watcher != nil {
		errs = append(errs, s.watcher.Close())
	}
	if s.script != nil {
		errs = append(errs, s.script.Close())
	}
	_ = s.logger.Sync()
	if s.closeLog != nil {
		errs = append(errs, s.closeLog())
	}
	return errors.Join(errs...)
}
