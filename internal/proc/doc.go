// Package proc owns the OS processes behind tunnels: starting kubectl
// port-forward and socat subprocesses, reading their merged output line by
// line, detecting error and port-conflict signatures, probing local ports,
// and terminating processes without leaking them.
//
// The Supervisor is the single point of mutation for process state. Every
// other component observes it through its accessors or reacts to its
// callbacks.
package proc
