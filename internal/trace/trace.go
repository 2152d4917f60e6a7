// Package trace records the local events of a peer in a per-process GoVector log. Vector clocks never travel on the wire, so the logs of different peers carry no causal edges between them.
package trace

import (
	"fmt"
	"sync"

	"github.com/DistributedClocks/GoVector/govec"
)

// Tracer writes vector-clock stamped events. A nil *Tracer discards everything.
type Tracer struct {
	mu     sync.Mutex
	logger *govec.GoLog
	id     string
}

// New opens the GoVector log for the given process. GoVector appends its own suffix to path.
func New(processID string, path string) *Tracer {
	config := govec.GetDefaultConfig()
	config.PrintOnScreen = false
	return &Tracer{
		logger: govec.InitGoVector(processID, path, config),
		id:     processID,
	}
}

// Event logs a local event, ticking this process' clock.
func (t *Tracer) Event(format string, args ...interface{}) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.logger.LogLocalEvent(fmt.Sprintf(format, args...), govec.GetDefaultLogOptions())
}

// Ticks returns how many events this process recorded so far.
func (t *Tracer) Ticks() uint64 {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	ticks, _ := t.logger.GetCurrentVC().FindTicks(t.id)
	return ticks
}

// Close flushes buffered events to disk.
func (t *Tracer) Close() {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.logger.Flush()
}
