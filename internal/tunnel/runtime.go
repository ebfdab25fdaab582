package tunnel

import (
	"sync"
	"time"
)

// Runtime is the observed, ephemeral state of one tunnel. It is created when
// the tunnel's configuration is added and destroyed when it is removed; it is
// never persisted. Status fields are mutated only by the orchestrator; the
// log buffer is appended to by subprocess reader callbacks.
type Runtime struct {
	mu sync.RWMutex

	id                   string
	primaryStatus        Status
	proxyStatus          Status
	lastError            string
	intentionallyStopped bool
	logs                 *LogBuffer
}

// NewRuntime creates a fully disconnected runtime for the given tunnel id.
func NewRuntime(id string) *Runtime {
	return &Runtime{
		id:   id,
		logs: NewLogBuffer(LogCapacity),
	}
}

// ID returns the tunnel id this runtime belongs to.
func (r *Runtime) ID() string {
	return r.id
}

// Primary returns the primary channel status.
func (r *Runtime) Primary() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.primaryStatus
}

// Proxy returns the proxy channel status.
func (r *Runtime) Proxy() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.proxyStatus
}

// SetPrimary updates the primary channel status.
func (r *Runtime) SetPrimary(s Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.primaryStatus = s
}

// SetProxy updates the proxy channel status.
func (r *Runtime) SetProxy(s Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.proxyStatus = s
}

// SetBoth updates both channel statuses in one step.
func (r *Runtime) SetBoth(s Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.primaryStatus = s
	r.proxyStatus = s
}

// LastError returns the most recent user-visible error message, or "".
func (r *Runtime) LastError() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastError
}

// SetLastError records a user-visible error message. An empty string clears it.
func (r *Runtime) SetLastError(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastError = msg
}

// IntentionallyStopped reports whether the last stop was user-initiated.
func (r *Runtime) IntentionallyStopped() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.intentionallyStopped
}

// SetIntentionallyStopped marks or clears the user-initiated stop flag.
func (r *Runtime) SetIntentionallyStopped(v bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.intentionallyStopped = v
}

// FullyConnected reports whether the tunnel is usable end to end: primary
// connected, and the proxy connected too when one is configured.
func (r *Runtime) FullyConnected(hasProxy bool) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.primaryStatus != StatusConnected {
		return false
	}
	if hasProxy {
		return r.proxyStatus == StatusConnected
	}
	return true
}

// AppendLog records one subprocess output line in the ring buffer.
func (r *Runtime) AppendLog(role, text string, isError bool) {
	r.logs.Append(LogEntry{
		Timestamp: time.Now(),
		Role:      role,
		Text:      text,
		IsError:   isError,
	})
}

// Logs returns a copy of the retained log entries, oldest first.
func (r *Runtime) Logs() []LogEntry {
	return r.logs.List()
}

// Snapshot is a point-in-time copy of a runtime for presentation layers.
type Snapshot struct {
	ID                   string
	Primary              Status
	Proxy                Status
	LastError            string
	IntentionallyStopped bool
}

// Snapshot returns a copy of the runtime's current state.
func (r *Runtime) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Snapshot{
		ID:                   r.id,
		Primary:              r.primaryStatus,
		Proxy:                r.proxyStatus,
		LastError:            r.lastError,
		IntentionallyStopped: r.intentionallyStopped,
	}
}
