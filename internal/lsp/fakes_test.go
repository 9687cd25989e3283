package lsp

import (
	"context"
	"encoding/json"
	"sync"
)

type sentMessage struct {
	Method string
	Params json.RawMessage
}

// fakeConn records traffic and lets tests play the server side.
type fakeConn struct {
	mu       sync.Mutex
	sent     []sentMessage
	handlers map[string]NotificationHandler

	// onCall answers Call; nil answers with null.
	onCall func(method string, params json.RawMessage) (any, error)
	// onNotify observes notifications after they are recorded.
	onNotify  func(method string, params json.RawMessage)
	notifyErr error
}

var _ Conn = (*fakeConn)(nil)

func newFakeConn() *fakeConn {
	return &fakeConn{handlers: make(map[string]NotificationHandler)}
}

func (c *fakeConn) record(method string, params any) json.RawMessage {
	data, _ := json.Marshal(params)
	c.mu.Lock()
	c.sent = append(c.sent, sentMessage{Method: method, Params: data})
	c.mu.Unlock()
	return data
}

func (c *fakeConn) Call(ctx context.Context, method string, params any, result any) error {
	data := c.record(method, params)
	var answer any
	if c.onCall != nil {
		var err error
		if answer, err = c.onCall(method, data); err != nil {
			return err
		}
	}
	raw, err := json.Marshal(answer)
	if err != nil {
		return err
	}
	if result != nil {
		return json.Unmarshal(raw, result)
	}
	return nil
}

func (c *fakeConn) Notify(ctx context.Context, method string, params any) error {
	if c.notifyErr != nil {
		return c.notifyErr
	}
	data := c.record(method, params)
	if c.onNotify != nil {
		c.onNotify(method, data)
	}
	return nil
}

func (c *fakeConn) OnNotification(method string, handler NotificationHandler) {
	c.mu.Lock()
	c.handlers[method] = handler
	c.mu.Unlock()
}

// emit delivers a server notification synchronously.
func (c *fakeConn) emit(method string, params any) {
	data, _ := json.Marshal(params)
	c.mu.Lock()
	h := c.handlers[method]
	c.mu.Unlock()
	if h != nil {
		h(method, data)
	}
}

func (c *fakeConn) methods() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.sent))
	for i, m := range c.sent {
		out[i] = m.Method
	}
	return out
}

func (c *fakeConn) lastOf(method string) (json.RawMessage, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.sent) - 1; i >= 0; i-- {
		if c.sent[i].Method == method {
			return c.sent[i].Params, true
		}
	}
	return nil, false
}

func (c *fakeConn) count(method string) int {
	n := 0
	for _, m := range c.methods() {
		if m == method {
			n++
		}
	}
	return n
}
