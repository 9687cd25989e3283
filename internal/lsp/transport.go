package lsp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/textproto"
	"strconv"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// notificationQueueSize bounds notifications read but not yet handled. A
// full queue stops the read loop until handlers catch up.
const notificationQueueSize = 256

// Conn is a JSON-RPC connection to a language server.
type Conn interface {
	// Call sends a request and waits for its response.
	Call(ctx context.Context, method string, params any, result any) error

	// Notify sends a notification.
	Notify(ctx context.Context, method string, params any) error

	// OnNotification registers a handler for server notifications.
	OnNotification(method string, handler NotificationHandler)
}

// NotificationHandler handles a notification from the server. Handlers run
// one at a time, in the order the server sent the notifications.
type NotificationHandler func(method string, params json.RawMessage)

// Request is an outgoing JSON-RPC request or, without an ID, notification.
type Request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id,omitempty"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// Response is the server's answer to a Request.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// envelope is any incoming message. Which fields are set tells a response
// (id, no method), a server request (id and method) and a notification
// (method only) apart.
type envelope struct {
	ID     json.RawMessage `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *RPCError       `json:"error,omitempty"`
}

func (e *envelope) hasID() bool {
	return len(e.ID) > 0 && string(e.ID) != "null"
}

// reply answers a server request. Server IDs may be strings, so the raw ID
// is echoed back.
type reply struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result"`
}

// TransportOption configures a Transport.
type TransportOption func(*Transport)

// WithTransportLogger sets the logger for protocol errors.
func WithTransportLogger(logger *zap.Logger) TransportOption {
	return func(t *Transport) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// Transport speaks JSON-RPC 2.0 with Content-Length framing (the LSP base
// protocol) over a pair of streams.
type Transport struct {
	reader *textproto.Reader
	body   *bufio.Reader
	writer io.Writer
	closer io.Closer
	logger *zap.Logger

	mu       sync.Mutex
	pending  map[int64]chan *Response
	handlers map[string]NotificationHandler

	writeMu sync.Mutex
	nextID  atomic.Int64

	notifications chan envelope
	closed        atomic.Bool
	done          chan struct{}
}

var _ Conn = (*Transport)(nil)

// NewTransport creates a transport reading from r and writing to w. c, if
// not nil, is closed by Close.
func NewTransport(r io.Reader, w io.Writer, c io.Closer, opts ...TransportOption) *Transport {
	br := bufio.NewReaderSize(r, 64*1024)
	t := &Transport{
		reader:        textproto.NewReader(br),
		body:          br,
		writer:        w,
		closer:        c,
		logger:        zap.NewNop(),
		pending:       make(map[int64]chan *Response),
		handlers:      make(map[string]NotificationHandler),
		notifications: make(chan envelope, notificationQueueSize),
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Start begins reading messages and delivering notifications.
func (t *Transport) Start(ctx context.Context) {
	go t.readLoop(ctx)
	go t.notifyLoop(ctx)
}

// Close stops the transport. Pending and later calls fail with ErrShutdown.
func (t *Transport) Close() error {
	if t.closed.Swap(true) {
		return nil
	}
	close(t.done)

	// Waiters select on t.done; their channels are never closed.
	t.mu.Lock()
	t.pending = make(map[int64]chan *Response)
	t.mu.Unlock()

	if t.closer != nil {
		return t.closer.Close()
	}
	return nil
}

// IsClosed reports whether Close has been called.
func (t *Transport) IsClosed() bool {
	return t.closed.Load()
}

// Call sends a request and waits for its response, decoding the result
// into result when it is not nil.
func (t *Transport) Call(ctx context.Context, method string, params any, result any) error {
	if t.closed.Load() {
		return ErrShutdown
	}

	id := t.nextID.Add(1)
	ch := make(chan *Response, 1)

	t.mu.Lock()
	t.pending[id] = ch
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		delete(t.pending, id)
		t.mu.Unlock()
	}()

	if err := t.send(&Request{JSONRPC: "2.0", ID: id, Method: method, Params: params}); err != nil {
		return fmt.Errorf("send %s: %w", method, err)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.done:
		return ErrShutdown
	case resp := <-ch:
		if resp.Error != nil {
			return resp.Error
		}
		if result == nil || len(resp.Result) == 0 {
			return nil
		}
		if err := json.Unmarshal(resp.Result, result); err != nil {
			return fmt.Errorf("decode %s result: %w", method, err)
		}
		return nil
	}
}

// Notify sends a notification.
func (t *Transport) Notify(_ context.Context, method string, params any) error {
	if t.closed.Load() {
		return ErrShutdown
	}
	return t.send(&Request{JSONRPC: "2.0", Method: method, Params: params})
}

// OnNotification registers handler for method. The method "*" receives
// notifications that have no handler of their own.
func (t *Transport) OnNotification(method string, handler NotificationHandler) {
	t.mu.Lock()
	t.handlers[method] = handler
	t.mu.Unlock()
}

// send writes one framed message.
func (t *Transport) send(msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if _, err := fmt.Fprintf(t.writer, "Content-Length: %d\r\n\r\n", len(data)); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if _, err := t.writer.Write(data); err != nil {
		return fmt.Errorf("write body: %w", err)
	}
	return nil
}

// frameError is a malformed header block. The stream is still in sync
// after one, so reading can go on.
type frameError struct {
	msg string
}

func (e *frameError) Error() string {
	return e.msg
}

// readLoop reads until the stream fails, then closes the transport so
// waiting calls return ErrShutdown.
func (t *Transport) readLoop(ctx context.Context) {
	defer t.Close()

	for {
		data, err := t.readMessage()
		if err != nil {
			var fe *frameError
			var pe textproto.ProtocolError
			if errors.As(err, &fe) || errors.As(err, &pe) {
				t.logger.Warn("lsp bad frame", zap.Error(err))
				continue
			}
			if !t.closed.Load() && !errors.Is(err, io.EOF) {
				t.logger.Warn("lsp read failed", zap.Error(err))
			}
			return
		}

		var msg envelope
		if err := json.Unmarshal(data, &msg); err != nil {
			t.logger.Warn("lsp message not json", zap.Error(err))
			continue
		}
		if !t.route(ctx, msg) {
			return
		}
	}
}

// readMessage reads the header block and the body it announces.
func (t *Transport) readMessage() ([]byte, error) {
	header, err := t.reader.ReadMIMEHeader()
	if err != nil {
		return nil, err
	}

	length, err := strconv.Atoi(header.Get("Content-Length"))
	if err != nil || length <= 0 {
		return nil, &frameError{msg: fmt.Sprintf("bad Content-Length %q", header.Get("Content-Length"))}
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(t.body, body); err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

// route delivers one message. It returns false once the transport is done.
func (t *Transport) route(ctx context.Context, msg envelope) bool {
	switch {
	case msg.hasID() && msg.Method == "":
		t.deliverResponse(msg)

	case msg.hasID():
		// Unanswered server requests can stall the server; nothing here
		// needs a real answer.
		t.logger.Debug("lsp server request", zap.String("method", msg.Method))
		if err := t.send(&reply{JSONRPC: "2.0", ID: msg.ID, Result: nil}); err != nil {
			t.logger.Warn("lsp reply failed", zap.String("method", msg.Method), zap.Error(err))
		}

	case msg.Method != "":
		select {
		case t.notifications <- msg:
		case <-t.done:
			return false
		case <-ctx.Done():
			return false
		}
	}
	return true
}

func (t *Transport) deliverResponse(msg envelope) {
	id, err := strconv.ParseInt(string(msg.ID), 10, 64)
	if err != nil {
		t.logger.Warn("lsp response with foreign id", zap.ByteString("id", msg.ID))
		return
	}

	t.mu.Lock()
	ch, ok := t.pending[id]
	delete(t.pending, id)
	t.mu.Unlock()

	if ok {
		ch <- &Response{JSONRPC: "2.0", ID: id, Result: msg.Result, Error: msg.Error}
	}
}

// notifyLoop runs handlers sequentially so per-document notifications such
// as publishDiagnostics are applied in order.
func (t *Transport) notifyLoop(ctx context.Context) {
	for {
		select {
		case <-t.done:
			return
		case <-ctx.Done():
			return
		case msg := <-t.notifications:
			t.mu.Lock()
			handler, ok := t.handlers[msg.Method]
			if !ok {
				handler = t.handlers["*"]
			}
			t.mu.Unlock()

			if handler != nil {
				handler(msg.Method, msg.Params)
			}
		}
	}
}
