package proc

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"tunnelctl/pkg/logging"
)

// Role identifies which of a tunnel's subprocesses an entry belongs to.
type Role string

const (
	// RolePrimary is the kubectl port-forward process establishing the base
	// tunnel.
	RolePrimary Role = "port-forward"
	// RoleProxy is the socat listener fanning the primary channel out to
	// multiple clients (or, in direct-exec mode, the whole channel).
	RoleProxy Role = "proxy"
)

// ErrSlotOccupied is returned by Start when a process already occupies the
// (tunnel, role) slot. The caller must Kill first.
var ErrSlotOccupied = errors.New("process slot already occupied")

// recentErrorWindow is how long a marked error stays "recent". Long enough to
// span a reconciliation tick, short enough that a transient log line does not
// cause an endless reconnect storm.
const recentErrorWindow = 10 * time.Second

// execCommand allows tests to substitute process creation.
var execCommand = exec.Command

// LogFunc receives every non-empty output line of a supervised process.
type LogFunc func(id string, role Role, line string, isError bool)

// ConflictFunc is invoked when a process reports a port bind conflict.
type ConflictFunc func(port int)

// procEntry tracks one running subprocess and its output reader.
type procEntry struct {
	cmd      *exec.Cmd
	pid      int
	readEnd  *os.File
	waitDone chan struct{}
}

// Supervisor owns every subprocess spawned for tunnels. All operations are
// safe for concurrent callers; the process map and error timestamps are
// mutated only under the supervisor's mutex. Killing is signal-and-forget:
// the reader is cancelled immediately, the OS process's own exit is
// best-effort.
type Supervisor struct {
	mu          sync.Mutex
	procs       map[string]map[Role]*procEntry
	lastErrors  map[string]time.Time
	errorWindow time.Duration

	logFn      LogFunc
	conflictFn ConflictFunc
}

// NewSupervisor creates an empty supervisor.
func NewSupervisor() *Supervisor {
	return &Supervisor{
		procs:       make(map[string]map[Role]*procEntry),
		lastErrors:  make(map[string]time.Time),
		errorWindow: recentErrorWindow,
	}
}

// SetLogFunc registers the line callback. Register before starting processes.
func (s *Supervisor) SetLogFunc(fn LogFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logFn = fn
}

// SetConflictFunc registers the port-conflict callback. Register before
// starting processes.
func (s *Supervisor) SetConflictFunc(fn ConflictFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conflictFn = fn
}

// Start launches a process for the (id, role) slot with stdout and stderr
// merged into one line stream. It fails with ErrSlotOccupied if the slot is
// taken, leaving the existing process untouched.
func (s *Supervisor) Start(id string, role Role, path string, args []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if roles, ok := s.procs[id]; ok {
		if _, occupied := roles[role]; occupied {
			return fmt.Errorf("%w: tunnel %s role %s", ErrSlotOccupied, id, role)
		}
	}

	readEnd, writeEnd, err := os.Pipe()
	if err != nil {
		return fmt.Errorf("failed to create output pipe for tunnel %s: %w", id, err)
	}

	cmd := execCommand(path, args...)
	cmd.Stdout = writeEnd
	cmd.Stderr = writeEnd
	// Own process group, so Kill can signal forked children too.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		readEnd.Close()
		writeEnd.Close()
		return fmt.Errorf("failed to start %s process for tunnel %s: %w", role, id, err)
	}
	// The child holds its own copy of the write end; closing ours makes the
	// reader see EOF once the child exits.
	writeEnd.Close()

	entry := &procEntry{
		cmd:      cmd,
		pid:      cmd.Process.Pid,
		readEnd:  readEnd,
		waitDone: make(chan struct{}),
	}
	if s.procs[id] == nil {
		s.procs[id] = make(map[Role]*procEntry)
	}
	s.procs[id][role] = entry

	logging.Debug("Supervisor", "Started %s process for tunnel %s (pid %d)", role, id, entry.pid)

	go s.readOutput(id, role, entry)
	go func() {
		_ = cmd.Wait()
		close(entry.waitDone)
	}()

	return nil
}

// readOutput feeds every trimmed, non-empty output line through the parser
// and the registered callbacks. It returns when the pipe closes: either the
// process exited or Kill closed our read end. Both are clean terminations.
func (s *Supervisor) readOutput(id string, role Role, entry *procEntry) {
	s.mu.Lock()
	logFn := s.logFn
	conflictFn := s.conflictFn
	s.mu.Unlock()

	scanner := bufio.NewScanner(entry.readEnd)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		isErr := IsErrorLine(line)
		if isErr {
			s.MarkError(id)
		}
		if port, ok := DetectPortConflict(line); ok && conflictFn != nil {
			conflictFn(port)
		}
		if logFn != nil {
			logFn(id, role, line, isErr)
		}
	}
}

// IsRunning reports whether the (id, role) slot holds a live process. An
// entry whose process has exited is reaped on observation.
func (s *Supervisor) IsRunning(id string, role Role) bool {
	s.mu.Lock()
	var entry *procEntry
	if roles, ok := s.procs[id]; ok {
		entry = roles[role]
	}
	s.mu.Unlock()

	if entry == nil {
		return false
	}

	select {
	case <-entry.waitDone:
		s.mu.Lock()
		if roles, ok := s.procs[id]; ok && roles[role] == entry {
			delete(roles, role)
			if len(roles) == 0 {
				delete(s.procs, id)
			}
		}
		s.mu.Unlock()
		entry.readEnd.Close()
		return false
	default:
		return true
	}
}

// MarkError records that a tunnel just produced an error line.
func (s *Supervisor) MarkError(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastErrors[id] = time.Now()
}

// HasRecentError reports whether a tunnel produced an error line within the
// recency window.
func (s *Supervisor) HasRecentError(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	at, ok := s.lastErrors[id]
	if !ok {
		return false
	}
	return time.Since(at) < s.errorWindow
}

// ClearError forgets a tunnel's recorded error.
func (s *Supervisor) ClearError(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.lastErrors, id)
}

// KillProcess terminates the process in one (id, role) slot. A vacant slot is
// a no-op.
func (s *Supervisor) KillProcess(id string, role Role) {
	s.mu.Lock()
	var entry *procEntry
	if roles, ok := s.procs[id]; ok {
		if e, occupied := roles[role]; occupied {
			entry = e
			delete(roles, role)
			if len(roles) == 0 {
				delete(s.procs, id)
			}
		}
	}
	s.mu.Unlock()

	if entry != nil {
		s.terminateEntry(id, role, entry)
	}
}

// Kill terminates every process owned by a tunnel and drops its bookkeeping,
// including the recorded error. Idempotent: an id with no entries is a no-op.
func (s *Supervisor) Kill(id string) {
	s.mu.Lock()
	roles := s.procs[id]
	delete(s.procs, id)
	delete(s.lastErrors, id)
	s.mu.Unlock()

	for role, entry := range roles {
		s.terminateEntry(id, role, entry)
	}
	RemoveWrapperScript(id)
}

// KillAll is the emergency stop: it tears down every tracked process, then
// sweeps the host for orphans matching this tool's invocation patterns.
//
// The sweep patterns ("kubectl.*port-forward", "socat.*TCP-LISTEN") are
// deliberately broad so processes that outlived our bookkeeping are caught,
// which means they can also match forwarders the user started by hand. This
// operation belongs to shutdown and explicit force-stop only, never to the
// steady-state reconciliation path.
func (s *Supervisor) KillAll() {
	s.mu.Lock()
	procs := s.procs
	s.procs = make(map[string]map[Role]*procEntry)
	s.lastErrors = make(map[string]time.Time)
	s.mu.Unlock()

	for id, roles := range procs {
		for role, entry := range roles {
			s.terminateEntry(id, role, entry)
		}
	}

	_ = execCommand("pkill", "-9", "-f", "kubectl.*port-forward").Run()
	_ = execCommand("pkill", "-9", "-f", "socat.*TCP-LISTEN").Run()
	SweepWrapperScripts()

	logging.Info("Supervisor", "Killed all supervised processes and swept for orphans")
}

// RunningCount returns the number of tracked process entries, mainly for
// diagnostics and tests.
func (s *Supervisor) RunningCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, roles := range s.procs {
		n += len(roles)
	}
	return n
}

// terminateEntry cancels the output reader and signals the process group.
// It never blocks on process exit.
func (s *Supervisor) terminateEntry(id string, role Role, entry *procEntry) {
	entry.readEnd.Close()
	if err := syscall.Kill(-entry.pid, syscall.SIGTERM); err != nil {
		// Group may be gone already; try the single pid for good measure.
		_ = syscall.Kill(entry.pid, syscall.SIGTERM)
	}
	logging.Debug("Supervisor", "Terminated %s process for tunnel %s (pid %d)", role, id, entry.pid)
}
