package lsp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// ServerStatus indicates the current state of a server.
type ServerStatus int

const (
	ServerStatusStopped ServerStatus = iota
	ServerStatusStarting
	ServerStatusInitializing
	ServerStatusReady
	ServerStatusShuttingDown
	ServerStatusError
)

// String returns a human-readable status name.
func (s ServerStatus) String() string {
	switch s {
	case ServerStatusStopped:
		return "stopped"
	case ServerStatusStarting:
		return "starting"
	case ServerStatusInitializing:
		return "initializing"
	case ServerStatusReady:
		return "ready"
	case ServerStatusShuttingDown:
		return "shutting down"
	case ServerStatusError:
		return "error"
	default:
		return "unknown"
	}
}

// DefaultCommand is the language server started when none is configured.
const DefaultCommand = "clangd"

// DefaultTimeout bounds the initialize handshake and engine requests.
const DefaultTimeout = 30 * time.Second

// ServerConfig defines how to start a language server.
type ServerConfig struct {
	// Command is the executable to run.
	Command string

	// Args are command-line arguments.
	Args []string

	// Env are additional environment variables.
	Env map[string]string

	// WorkDir is the working directory and workspace root.
	WorkDir string

	// Timeout for the initialize handshake (default: 30s).
	Timeout time.Duration
}

// Server is a language server child process speaking LSP over stdio.
type Server struct {
	mu sync.Mutex

	config ServerConfig
	logger *zap.Logger

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	stderr io.ReadCloser

	transport *Transport

	status       atomic.Int32
	capabilities ServerCapabilities
	serverInfo   *InitializeServerInfo
	encoding     PositionEncodingKind
	lastError    error

	ctx    context.Context
	cancel context.CancelFunc
	exitCh chan error
}

// NewServer creates a new server instance (not yet started).
func NewServer(config ServerConfig, logger *zap.Logger) *Server {
	if config.Command == "" {
		config.Command = DefaultCommand
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		config: config,
		logger: logger.Named("lsp").With(zap.String("server", config.Command)),
		exitCh: make(chan error, 1),
	}
	s.status.Store(int32(ServerStatusStopped))
	return s
}

// Start starts the language server process and initializes it.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Status() != ServerStatusStopped {
		return ErrAlreadyStarted
	}

	s.status.Store(int32(ServerStatusStarting))
	s.ctx, s.cancel = context.WithCancel(ctx)

	if err := s.startProcess(); err != nil {
		s.status.Store(int32(ServerStatusError))
		s.lastError = err
		return &ServerError{Command: s.config.Command, Err: err}
	}

	s.transport = NewTransport(s.stdout, s.stdin, nil, WithTransportLogger(s.logger))
	s.registerNotificationHandlers()
	s.transport.Start(s.ctx)

	go s.drainStderr()
	go s.monitorProcess()

	s.status.Store(int32(ServerStatusInitializing))
	if err := s.initialize(s.ctx); err != nil {
		s.status.Store(int32(ServerStatusError))
		s.lastError = err
		s.stopProcess()
		return &ServerError{Command: s.config.Command, Err: fmt.Errorf("initialize: %w", err)}
	}

	s.status.Store(int32(ServerStatusReady))
	s.logger.Info("language server ready",
		zap.String("workdir", s.config.WorkDir),
		zap.String("encoding", string(s.encoding)))
	return nil
}

// startProcess starts the language server executable.
func (s *Server) startProcess() error {
	cmd := exec.CommandContext(s.ctx, s.config.Command, s.config.Args...)

	cmd.Env = os.Environ()
	for k, v := range s.config.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	if s.config.WorkDir != "" {
		cmd.Dir = s.config.WorkDir
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("stdin pipe: %w", err)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return fmt.Errorf("stdout pipe: %w", err)
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		stdin.Close()
		stdout.Close()
		return fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		stdin.Close()
		stdout.Close()
		stderr.Close()
		return fmt.Errorf("start process: %w", err)
	}

	s.cmd = cmd
	s.stdin = stdin
	s.stdout = stdout
	s.stderr = stderr

	return nil
}

// drainStderr forwards the server's stderr into the logger line by line.
// An undrained pipe eventually blocks the server.
func (s *Server) drainStderr() {
	scanner := bufio.NewScanner(s.stderr)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		s.logger.Debug("stderr", zap.String("line", scanner.Text()))
	}
}

// monitorProcess watches the process and signals when it exits.
func (s *Server) monitorProcess() {
	if s.cmd == nil {
		return
	}

	err := s.cmd.Wait()
	if err != nil && s.Status() != ServerStatusShuttingDown && s.Status() != ServerStatusStopped {
		s.logger.Warn("language server exited", zap.Error(err))
	}
	select {
	case s.exitCh <- err:
	default:
	}
}

// stopProcess stops the server process.
func (s *Server) stopProcess() {
	if s.transport != nil {
		s.transport.Close()
	}
	if s.stdin != nil {
		s.stdin.Close()
	}
	if s.cmd != nil && s.cmd.Process != nil {
		s.cmd.Process.Kill()
	}
}

// initialize performs the LSP initialize handshake.
func (s *Server) initialize(ctx context.Context) error {
	params := InitializeParams{
		ProcessID:    os.Getpid(),
		Capabilities: DefaultClientCapabilities(),
	}
	if s.config.WorkDir != "" {
		root := FilePathToURI(s.config.WorkDir)
		params.RootURI = root
		params.WorkspaceFolders = []WorkspaceFolder{{URI: root, Name: s.config.WorkDir}}
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	var result InitializeResult
	if err := s.transport.Call(ctx, "initialize", params, &result); err != nil {
		return fmt.Errorf("initialize request: %w", err)
	}

	s.capabilities = result.Capabilities
	s.serverInfo = result.ServerInfo
	s.encoding = result.PositionEncoding()

	if GetTextDocumentSyncKind(result.Capabilities) == TextDocumentSyncKindNone {
		return fmt.Errorf("document sync: %w", ErrNotSupported)
	}
	if result.Capabilities.CompletionProvider == nil {
		return fmt.Errorf("completion: %w", ErrNotSupported)
	}

	if err := s.transport.Notify(ctx, "initialized", InitializedParams{}); err != nil {
		return fmt.Errorf("initialized notification: %w", err)
	}

	return nil
}

// registerNotificationHandlers routes server log traffic into the logger.
func (s *Server) registerNotificationHandlers() {
	logMessage := func(method string, params json.RawMessage) {
		var p struct {
			Type    int    `json:"type"`
			Message string `json:"message"`
		}
		if err := json.Unmarshal(params, &p); err != nil {
			return
		}
		s.logger.Debug(method, zap.Int("type", p.Type), zap.String("message", p.Message))
	}
	s.transport.OnNotification("window/logMessage", logMessage)
	s.transport.OnNotification("window/showMessage", logMessage)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := s.Status()
	if status == ServerStatusStopped || status == ServerStatusShuttingDown {
		return nil
	}

	s.status.Store(int32(ServerStatusShuttingDown))

	if s.transport != nil && !s.transport.IsClosed() {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		_ = s.transport.Call(shutdownCtx, "shutdown", nil, nil)
		_ = s.transport.Notify(shutdownCtx, "exit", nil)
	}

	if s.cancel != nil {
		s.cancel()
	}

	s.stopProcess()

	s.status.Store(int32(ServerStatusStopped))
	return nil
}

// Conn returns the connection to the running server, or nil before Start.
func (s *Server) Conn() Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.transport == nil {
		return nil
	}
	return s.transport
}

// Status returns the current server status.
func (s *Server) Status() ServerStatus {
	return ServerStatus(s.status.Load())
}

// Capabilities returns the server's capabilities.
func (s *Server) Capabilities() ServerCapabilities {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.capabilities
}

// ServerInfo returns information about the server from initialization.
func (s *Server) ServerInfo() *InitializeServerInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.serverInfo
}

// PositionEncoding returns the column encoding agreed at initialization.
func (s *Server) PositionEncoding() PositionEncodingKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.encoding == "" {
		return PositionEncodingUTF16
	}
	return s.encoding
}

// LastError returns the last error that occurred.
func (s *Server) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastError
}

// ExitChannel returns a channel that receives when the process exits.
func (s *Server) ExitChannel() <-chan error {
	return s.exitCh
}
