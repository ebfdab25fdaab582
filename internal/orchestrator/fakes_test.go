package orchestrator

import (
	"fmt"
	"sync"

	"tunnelctl/internal/proc"
)

// fakeSupervisor records every call and lets tests script process liveness
// and recent-error state per tunnel.
type fakeSupervisor struct {
	mu sync.Mutex

	running    map[string]bool
	recentErr  map[string]bool
	startErr   error
	starts     []startCall
	kills      []string
	killProcs  []killProcCall
	killAllNum int

	logFn      proc.LogFunc
	conflictFn proc.ConflictFunc
}

type startCall struct {
	id   string
	role proc.Role
	path string
	args []string
}

type killProcCall struct {
	id   string
	role proc.Role
}

func newFakeSupervisor() *fakeSupervisor {
	return &fakeSupervisor{
		running:   make(map[string]bool),
		recentErr: make(map[string]bool),
	}
}

func slotKey(id string, role proc.Role) string {
	return id + "/" + string(role)
}

func (f *fakeSupervisor) Start(id string, role proc.Role, path string, args []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts = append(f.starts, startCall{id: id, role: role, path: path, args: args})
	if f.startErr != nil {
		return f.startErr
	}
	// Mirror the real supervisor's slot contract.
	if f.running[slotKey(id, role)] {
		return fmt.Errorf("%w: tunnel %s role %s", proc.ErrSlotOccupied, id, role)
	}
	f.running[slotKey(id, role)] = true
	return nil
}

func (f *fakeSupervisor) IsRunning(id string, role proc.Role) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running[slotKey(id, role)]
}

func (f *fakeSupervisor) HasRecentError(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.recentErr[id]
}

func (f *fakeSupervisor) ClearError(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.recentErr, id)
}

func (f *fakeSupervisor) Kill(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.kills = append(f.kills, id)
	delete(f.running, slotKey(id, proc.RolePrimary))
	delete(f.running, slotKey(id, proc.RoleProxy))
	delete(f.recentErr, id)
}

func (f *fakeSupervisor) KillProcess(id string, role proc.Role) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.killProcs = append(f.killProcs, killProcCall{id: id, role: role})
	delete(f.running, slotKey(id, role))
}

func (f *fakeSupervisor) KillAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.killAllNum++
	f.running = make(map[string]bool)
	f.recentErr = make(map[string]bool)
}

func (f *fakeSupervisor) SetLogFunc(fn proc.LogFunc)           { f.logFn = fn }
func (f *fakeSupervisor) SetConflictFunc(fn proc.ConflictFunc) { f.conflictFn = fn }

func (f *fakeSupervisor) setRunning(id string, role proc.Role, v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if v {
		f.running[slotKey(id, role)] = true
	} else {
		delete(f.running, slotKey(id, role))
	}
}

func (f *fakeSupervisor) setRecentError(id string, v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if v {
		f.recentErr[id] = true
	} else {
		delete(f.recentErr, id)
	}
}

func (f *fakeSupervisor) startCalls() []startCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]startCall, len(f.starts))
	copy(out, f.starts)
	return out
}

func (f *fakeSupervisor) killCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.kills))
	copy(out, f.kills)
	return out
}

func (f *fakeSupervisor) killProcCalls() []killProcCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]killProcCall, len(f.killProcs))
	copy(out, f.killProcs)
	return out
}

// fakeNotifier collects notifications for assertion.
type fakeNotifier struct {
	mu      sync.Mutex
	entries []string
}

func (f *fakeNotifier) Notify(title, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, title+": "+body)
}

func (f *fakeNotifier) all() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.entries))
	copy(out, f.entries)
	return out
}

// fakeProbe simulates TCP reachability per port.
type fakeProbe struct {
	mu   sync.Mutex
	open map[int]bool
}

func newFakeProbe(openPorts ...int) *fakeProbe {
	p := &fakeProbe{open: make(map[int]bool)}
	for _, port := range openPorts {
		p.open[port] = true
	}
	return p
}

func (p *fakeProbe) probe(port int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.open[port]
}

func (p *fakeProbe) set(port int, open bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.open[port] = open
}
