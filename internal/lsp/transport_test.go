package lsp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockServer is the far end of a Transport: it reads framed messages the
// transport writes and writes framed messages back.
type mockServer struct {
	in  *bufio.Reader
	out io.WriteCloser
}

// newTransportPair wires a transport to a mock server over io.Pipe.
func newTransportPair(t *testing.T) (*Transport, *mockServer) {
	t.Helper()
	clientR, serverW := io.Pipe()
	serverR, clientW := io.Pipe()

	tr := NewTransport(clientR, clientW, nil)
	t.Cleanup(func() {
		tr.Close()
		serverW.Close()
		serverR.Close()
	})
	return tr, &mockServer{in: bufio.NewReader(serverR), out: serverW}
}

func (m *mockServer) read(t *testing.T) map[string]json.RawMessage {
	t.Helper()
	length := 0
	for {
		line, err := m.in.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimSpace(line)
		if line == "" {
			break
		}
		if v, ok := strings.CutPrefix(line, "Content-Length:"); ok {
			length, err = strconv.Atoi(strings.TrimSpace(v))
			require.NoError(t, err)
		}
	}
	require.Positive(t, length)

	body := make([]byte, length)
	_, err := io.ReadFull(m.in, body)
	require.NoError(t, err)

	var msg map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(body, &msg))
	return msg
}

func (m *mockServer) write(t *testing.T, msg any) {
	t.Helper()
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	_, err = fmt.Fprintf(m.out, "Content-Length: %d\r\n\r\n%s", len(data), data)
	require.NoError(t, err)
}

func TestTransport_SendNotification(t *testing.T) {
	tr, srv := newTransportPair(t)

	go func() {
		_ = tr.Notify(context.Background(), "test/notification", map[string]string{"message": "hello"})
	}()

	msg := srv.read(t)
	assert.JSONEq(t, `"2.0"`, string(msg["jsonrpc"]))
	assert.JSONEq(t, `"test/notification"`, string(msg["method"]))
	assert.JSONEq(t, `{"message":"hello"}`, string(msg["params"]))
	_, hasID := msg["id"]
	assert.False(t, hasID)
}

func TestTransport_Call(t *testing.T) {
	tr, srv := newTransportPair(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	tr.Start(ctx)

	go func() {
		req := srv.read(t)
		srv.write(t, map[string]any{
			"jsonrpc": "2.0",
			"id":      json.RawMessage(req["id"]),
			"result":  map[string]string{"status": "ok"},
		})
	}()

	var result map[string]string
	require.NoError(t, tr.Call(ctx, "test/method", nil, &result))
	assert.Equal(t, "ok", result["status"])
}

func TestTransport_CallWithError(t *testing.T) {
	tr, srv := newTransportPair(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	tr.Start(ctx)

	go func() {
		req := srv.read(t)
		srv.write(t, map[string]any{
			"jsonrpc": "2.0",
			"id":      json.RawMessage(req["id"]),
			"error":   map[string]any{"code": CodeMethodNotFound, "message": "method not found"},
		})
	}()

	err := tr.Call(ctx, "unknown/method", nil, nil)
	var rpcErr *RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, CodeMethodNotFound, rpcErr.Code)
	assert.Equal(t, "method not found", rpcErr.Message)
}

func TestTransport_Notification(t *testing.T) {
	tr, srv := newTransportPair(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	got := make(chan json.RawMessage, 1)
	tr.OnNotification("test/notify", func(method string, params json.RawMessage) {
		got <- params
	})
	tr.Start(ctx)

	srv.write(t, map[string]any{
		"jsonrpc": "2.0",
		"method":  "test/notify",
		"params":  map[string]string{"data": "test"},
	})

	select {
	case params := <-got:
		assert.JSONEq(t, `{"data":"test"}`, string(params))
	case <-ctx.Done():
		t.Fatal("notification not delivered")
	}
}

func TestTransport_WildcardHandler(t *testing.T) {
	tr, srv := newTransportPair(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	got := make(chan string, 1)
	tr.OnNotification("*", func(method string, _ json.RawMessage) {
		got <- method
	})
	tr.Start(ctx)

	srv.write(t, map[string]any{"jsonrpc": "2.0", "method": "$/progress", "params": map[string]any{}})

	select {
	case method := <-got:
		assert.Equal(t, "$/progress", method)
	case <-ctx.Done():
		t.Fatal("wildcard handler not called")
	}
}

func TestTransport_AnswersServerRequests(t *testing.T) {
	tr, srv := newTransportPair(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	tr.Start(ctx)

	srv.write(t, map[string]any{
		"jsonrpc": "2.0",
		"id":      "progress-1",
		"method":  "window/workDoneProgress/create",
		"params":  map[string]any{"token": "t"},
	})

	reply := srv.read(t)
	assert.JSONEq(t, `"progress-1"`, string(reply["id"]))
	assert.JSONEq(t, `null`, string(reply["result"]))
	_, hasMethod := reply["method"]
	assert.False(t, hasMethod)
}

func TestTransport_CallTimeout(t *testing.T) {
	tr, srv := newTransportPair(t)
	tr.Start(context.Background())

	// Swallow the request without answering.
	go io.Copy(io.Discard, srv.in)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := tr.Call(ctx, "slow/method", nil, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTransport_Close(t *testing.T) {
	tr, _ := newTransportPair(t)

	assert.False(t, tr.IsClosed())
	require.NoError(t, tr.Close())
	assert.True(t, tr.IsClosed())
	require.NoError(t, tr.Close())

	assert.ErrorIs(t, tr.Call(context.Background(), "x", nil, nil), ErrShutdown)
	assert.ErrorIs(t, tr.Notify(context.Background(), "x", nil), ErrShutdown)
}

func TestTransport_NotificationsInOrder(t *testing.T) {
	tr, srv := newTransportPair(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	const n = 50
	got := make(chan int, n)
	tr.OnNotification("test/seq", func(_ string, params json.RawMessage) {
		var p struct{ N int }
		if json.Unmarshal(params, &p) == nil {
			got <- p.N
		}
	})
	tr.Start(ctx)

	for i := 0; i < n; i++ {
		srv.write(t, map[string]any{"jsonrpc": "2.0", "method": "test/seq", "params": map[string]any{"N": i}})
	}

	for i := 0; i < n; i++ {
		select {
		case v := <-got:
			require.Equal(t, i, v)
		case <-ctx.Done():
			t.Fatalf("received %d of %d notifications", i, n)
		}
	}
}

func TestTransport_BadHeaderIsSkipped(t *testing.T) {
	tr, srv := newTransportPair(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	got := make(chan string, 1)
	tr.OnNotification("test/after", func(method string, _ json.RawMessage) {
		got <- method
	})
	tr.Start(ctx)

	_, err := io.WriteString(srv.out, "Content-Length: zero\r\n\r\n")
	require.NoError(t, err)
	srv.write(t, map[string]any{"jsonrpc": "2.0", "method": "test/after"})

	select {
	case method := <-got:
		assert.Equal(t, "test/after", method)
	case <-ctx.Done():
		t.Fatal("transport stopped after a bad header")
	}
}

// deadReader fails every read the way a closed child stdout does.
type deadReader struct {
	reads atomic.Int64
}

func (r *deadReader) Read([]byte) (int, error) {
	r.reads.Add(1)
	return 0, os.ErrClosed
}

func TestTransport_ReadErrorStopsTransport(t *testing.T) {
	r := &deadReader{}
	tr := NewTransport(r, io.Discard, nil)
	tr.Start(context.Background())

	require.Eventually(t, tr.IsClosed, time.Second, 5*time.Millisecond)
	reads := r.reads.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, reads, r.reads.Load())
	assert.LessOrEqual(t, reads, int64(2))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	assert.ErrorIs(t, tr.Call(ctx, "x", nil, nil), ErrShutdown)
}

func TestTransport_StreamEndFailsPendingCall(t *testing.T) {
	tr, srv := newTransportPair(t)
	tr.Start(context.Background())

	go func() {
		srv.read(t)
		srv.out.Close()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	assert.ErrorIs(t, tr.Call(ctx, "never/answered", nil, nil), ErrShutdown)
}
