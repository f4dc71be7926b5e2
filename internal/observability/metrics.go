package observability

import (
	"strconv"
	"sync"
	"time"

	"go.uber.org/atomic"
)

// Metrics provides basic in-memory counters for command processing and the
// HTTP surface. Command counters are lock-free; the loop increments them on
// its own goroutine while readers snapshot concurrently.
type Metrics struct {
	commandCount map[string]*atomic.Int64
	commandErrs  map[string]*atomic.Int64

	mu           sync.Mutex
	requestCount map[string]int64
	errorCount   map[string]int64
}

// NewMetrics initializes metrics storage for the given command kinds.
func NewMetrics(commandKinds ...string) *Metrics {
	commandCount := make(map[string]*atomic.Int64, len(commandKinds))
	commandErrs := make(map[string]*atomic.Int64, len(commandKinds))
	for _, kind := range commandKinds {
		commandCount[kind] = atomic.NewInt64(0)
		commandErrs[kind] = atomic.NewInt64(0)
	}
	return &Metrics{
		commandCount: commandCount,
		commandErrs:  commandErrs,
		requestCount: make(map[string]int64),
		errorCount:   make(map[string]int64),
	}
}

// RecordCommand increments the counter for one processed command.
func (m *Metrics) RecordCommand(kind string, err error) {
	if m == nil {
		return
	}
	if counter, ok := m.commandCount[kind]; ok {
		counter.Inc()
	}
	if err != nil {
		if counter, ok := m.commandErrs[kind]; ok {
			counter.Inc()
		}
	}
}

// CommandSnapshot returns processed and failed counts per command kind.
func (m *Metrics) CommandSnapshot() (processed, failed map[string]int64) {
	if m == nil {
		return nil, nil
	}
	processed = make(map[string]int64, len(m.commandCount))
	failed = make(map[string]int64, len(m.commandErrs))
	for kind, counter := range m.commandCount {
		processed[kind] = counter.Load()
	}
	for kind, counter := range m.commandErrs {
		failed[kind] = counter.Load()
	}
	return processed, failed
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	key := pathKey(path, method, status)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount[key]++
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	key := path + "|" + method + "|" + code
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorCount[key]++
}

func pathKey(path, method string, status int) string {
	return path + "|" + method + "|" + strconv.Itoa(status)
}
