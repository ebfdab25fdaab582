package tunnel

import (
	"sync"
	"time"
)

// LogCapacity is how many recent subprocess lines each tunnel retains.
const LogCapacity = 500

// LogEntry is one retained subprocess output line.
type LogEntry struct {
	Timestamp time.Time
	Role      string
	Text      string
	IsError   bool
}

// LogBuffer is a bounded ring of recent log entries. Appends may come from
// the reader goroutines of both channels of a tunnel, so it serializes
// internally. It is never shared across tunnels.
type LogBuffer struct {
	mu       sync.Mutex
	capacity int
	entries  []LogEntry
}

// NewLogBuffer creates a buffer retaining up to capacity entries. A
// non-positive capacity selects LogCapacity.
func NewLogBuffer(capacity int) *LogBuffer {
	if capacity <= 0 {
		capacity = LogCapacity
	}
	return &LogBuffer{capacity: capacity}
}

// Append records an entry, evicting the oldest once the buffer is full.
func (b *LogBuffer) Append(entry LogEntry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.entries) >= b.capacity {
		copy(b.entries, b.entries[1:])
		b.entries[len(b.entries)-1] = entry
		return
	}
	b.entries = append(b.entries, entry)
}

// List returns a copy of the retained entries, oldest first.
func (b *LogBuffer) List() []LogEntry {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]LogEntry, len(b.entries))
	copy(out, b.entries)
	return out
}

// Len returns the number of retained entries.
func (b *LogBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}
