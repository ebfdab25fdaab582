// Package orchestrator manages the lifecycle of cluster tunnels. It holds
// the desired configuration and observed runtime state for every tunnel,
// spawns and supervises the underlying kubectl and socat processes, and runs
// a periodic reconciliation loop that detects failures (process exit, error
// output, dead ports) and restores connectivity automatically.
//
// A tunnel becomes connected only after a successful TCP health probe
// against its local port; process liveness alone is never trusted.
package orchestrator
