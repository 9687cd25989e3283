// Package host provides a headless editor host: in-memory buffers, a
// cursor, and a message sink. The CLI drives the completer through it.
package host

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/dshills/clangcomplete/internal/completer"
)

// ErrNoBuffer is returned when focusing a buffer that is not open.
var ErrNoBuffer = errors.New("no such buffer")

// Option configures a Memory host.
type Option func(*Memory)

// WithSink forwards every posted message and echoed text to fn.
func WithSink(fn func(string)) Option {
	return func(m *Memory) {
		m.sink = fn
	}
}

// Memory is a completer.Host holding buffers in memory.
type Memory struct {
	mu      sync.Mutex
	buffers []completer.Buffer
	current int // index into buffers, -1 when none
	line    int // 0-based
	column  int // 0-based

	numbers    map[string]int
	nextNumber int

	messages []string
	echoed   []string
	sink     func(string)
}

var _ completer.Host = (*Memory)(nil)

// New creates an empty host.
func New(opts ...Option) *Memory {
	m := &Memory{
		current:    -1,
		numbers:    make(map[string]int),
		nextNumber: 1,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Open adds buf, or replaces the lines and filetype of an open buffer with
// the same name, and focuses it. It returns the buffer number.
func (m *Memory) Open(buf completer.Buffer) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	buf.Lines = append([]string(nil), buf.Lines...)
	buf.Number = m.numberLocked(buf.Name)

	for i := range m.buffers {
		if m.buffers[i].Name == buf.Name {
			m.buffers[i] = buf
			m.current = i
			return buf.Number
		}
	}
	m.buffers = append(m.buffers, buf)
	m.current = len(m.buffers) - 1
	return buf.Number
}

// OpenFile loads path from disk and opens it.
func (m *Memory) OpenFile(path string) (completer.Buffer, error) {
	buf, err := LoadFile(path)
	if err != nil {
		return completer.Buffer{}, err
	}
	buf.Number = m.Open(buf)
	return buf, nil
}

// Focus makes the named buffer current.
func (m *Memory) Focus(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.buffers {
		if m.buffers[i].Name == name {
			m.current = i
			return nil
		}
	}
	return fmt.Errorf("focus %s: %w", name, ErrNoBuffer)
}

// SetCursor moves the cursor to a 0-based line and column.
func (m *Memory) SetCursor(line, column int) {
	m.mu.Lock()
	m.line, m.column = line, column
	m.mu.Unlock()
}

// OpenBuffers implements completer.Host.
func (m *Memory) OpenBuffers() []completer.Buffer {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]completer.Buffer, len(m.buffers))
	copy(out, m.buffers)
	return out
}

// CurrentBuffer implements completer.Host. With no buffer open it returns
// the zero Buffer.
func (m *Memory) CurrentBuffer() completer.Buffer {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current < 0 {
		return completer.Buffer{}
	}
	return m.buffers[m.current]
}

// CurrentLine implements completer.Host.
func (m *Memory) CurrentLine() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current < 0 {
		return ""
	}
	lines := m.buffers[m.current].Lines
	if m.line < 0 || m.line >= len(lines) {
		return ""
	}
	return lines[m.line]
}

// Cursor implements completer.Host.
func (m *Memory) Cursor() (int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.line, m.column
}

// PostMessage implements completer.Host.
func (m *Memory) PostMessage(msg string) {
	m.mu.Lock()
	m.messages = append(m.messages, msg)
	sink := m.sink
	m.mu.Unlock()

	if sink != nil {
		sink(msg)
	}
}

// EchoText implements completer.Host.
func (m *Memory) EchoText(text string) {
	m.mu.Lock()
	m.echoed = append(m.echoed, text)
	sink := m.sink
	m.mu.Unlock()

	if sink != nil {
		sink(text)
	}
}

// BufferNumber implements completer.Host. Unknown names get a new number.
func (m *Memory) BufferNumber(filename string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.numberLocked(filename)
}

// BufferName returns the name a buffer number was allocated for.
func (m *Memory) BufferName(number int) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for name, n := range m.numbers {
		if n == number {
			return name, true
		}
	}
	return "", false
}

func (m *Memory) numberLocked(name string) int {
	if n, ok := m.numbers[name]; ok {
		return n
	}
	n := m.nextNumber
	m.nextNumber++
	m.numbers[name] = n
	return n
}

// Messages returns every posted message in order.
func (m *Memory) Messages() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.messages...)
}

// Echoed returns every echoed text in order.
func (m *Memory) Echoed() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.echoed...)
}

// LoadFile reads path into a buffer. The filetype comes from the
// extension; a trailing newline does not produce an extra empty line.
func LoadFile(path string) (completer.Buffer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return completer.Buffer{}, fmt.Errorf("load %s: %w", path, err)
	}

	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	text = strings.TrimSuffix(text, "\n")
	var lines []string
	if text != "" {
		lines = strings.Split(text, "\n")
	}

	return completer.Buffer{
		Name:     path,
		Filetype: completer.FiletypeForPath(path),
		Lines:    lines,
	}, nil
}
