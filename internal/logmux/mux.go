package logmux

import (
	"fmt"
	"sync"
	"time"

	"github.com/Paintersrp/rune2e/internal/runtime"
)

// Mux fans in output lines from background processes and delivers them via a
// bounded channel. When the consumer cannot keep up and the output buffer
// would overflow, the mux drops lines and emits a synthesized warning entry
// reporting how many were discarded.
type Mux struct {
	out chan runtime.LogEntry

	mu      sync.Mutex
	dropped int
	inputs  sync.WaitGroup
}

// New constructs a mux backed by a channel of the provided size. A size of
// zero results in a minimally buffered channel.
func New(size int) *Mux {
	if size <= 0 {
		size = 1
	}
	return &Mux{out: make(chan runtime.LogEntry, size)}
}

// Output exposes the muxed log channel.
func (m *Mux) Output() <-chan runtime.LogEntry {
	return m.out
}

// Add registers a source channel. The mux consumes it until it is closed.
func (m *Mux) Add(source <-chan runtime.LogEntry) {
	if source == nil {
		return
	}
	m.inputs.Add(1)
	go func() {
		defer m.inputs.Done()
		for entry := range source {
			m.deliver(normalize(entry))
		}
	}()
}

// Close waits for all sources to be drained, reports any pending drops and
// closes the output channel.
func (m *Mux) Close() {
	m.inputs.Wait()
	if n := m.takeDrops(); n > 0 {
		m.out <- dropEntry(n)
	}
	close(m.out)
}

func (m *Mux) deliver(entry runtime.LogEntry) {
	if !m.flushPending() {
		m.recordDrops(1)
		return
	}
	if !m.trySend(entry) {
		m.recordDrops(1)
	}
}

func (m *Mux) flushPending() bool {
	n := m.takeDrops()
	if n == 0 {
		return true
	}
	if m.trySend(dropEntry(n)) {
		return true
	}
	m.recordDrops(n)
	return false
}

func (m *Mux) takeDrops() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := m.dropped
	m.dropped = 0
	return n
}

func (m *Mux) recordDrops(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropped += n
}

func (m *Mux) trySend(entry runtime.LogEntry) bool {
	select {
	case m.out <- entry:
		return true
	default:
		return false
	}
}

func normalize(entry runtime.LogEntry) runtime.LogEntry {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	if entry.Source == "" {
		entry.Source = runtime.LogSourceStdout
	}
	if entry.Level == "" {
		if entry.Source == runtime.LogSourceStderr {
			entry.Level = "warn"
		} else {
			entry.Level = "info"
		}
	}
	return entry
}

func dropEntry(n int) runtime.LogEntry {
	return runtime.LogEntry{
		Timestamp: time.Now(),
		Message:   fmt.Sprintf("dropped=%d", n),
		Level:     "warn",
		Source:    runtime.LogSourceSystem,
	}
}
