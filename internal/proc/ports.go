package proc

import (
	"fmt"
	"strconv"
	"strings"
	"syscall"
	"time"

	"tunnelctl/pkg/logging"
)

// killGracePeriod is how long a process gets after SIGTERM before SIGKILL.
const killGracePeriod = 300 * time.Millisecond

// PidsListeningOn returns the PIDs of every process bound to the given TCP
// port on this host, via lsof.
func PidsListeningOn(port int) ([]int, error) {
	out, err := execCommand("lsof", "-ti", fmt.Sprintf("tcp:%d", port)).Output()
	if err != nil {
		// lsof exits non-zero when nothing matches; treat that as empty.
		return nil, nil
	}

	var pids []int
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		pid, convErr := strconv.Atoi(line)
		if convErr != nil {
			continue
		}
		pids = append(pids, pid)
	}
	return pids, nil
}

// Terminate sends SIGTERM to a process.
func Terminate(pid int) error {
	return syscall.Kill(pid, syscall.SIGTERM)
}

// ForceKill sends SIGKILL to a process.
func ForceKill(pid int) error {
	return syscall.Kill(pid, syscall.SIGKILL)
}

// IsAlive reports whether a process still exists.
func IsAlive(pid int) bool {
	return syscall.Kill(pid, 0) == nil
}

// KillProcessesOnPort resolves a port conflict: every process bound to the
// port gets SIGTERM, then after a short grace period any survivor gets
// SIGKILL. The port may be held by a process outside this tool's management;
// freeing it unblocks the next reconnection attempt for the tunnel that hit
// the conflict.
func KillProcessesOnPort(port int) error {
	pids, err := PidsListeningOn(port)
	if err != nil {
		return fmt.Errorf("failed to look up listeners on port %d: %w", port, err)
	}
	if len(pids) == 0 {
		return nil
	}

	logging.Info("PortConflict", "Port %d held by %d process(es), terminating", port, len(pids))
	for _, pid := range pids {
		if err := Terminate(pid); err != nil {
			logging.Debug("PortConflict", "SIGTERM pid %d: %v", pid, err)
		}
	}

	time.Sleep(killGracePeriod)

	for _, pid := range pids {
		if IsAlive(pid) {
			logging.Info("PortConflict", "Pid %d survived SIGTERM, force killing", pid)
			if err := ForceKill(pid); err != nil {
				logging.Debug("PortConflict", "SIGKILL pid %d: %v", pid, err)
			}
		}
	}
	return nil
}
