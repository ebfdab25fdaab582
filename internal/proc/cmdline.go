package proc

import (
	"fmt"
	"os"
	"path/filepath"
)

// PortForwardArgs builds the kubectl argument list for the primary channel:
// a port-forward from 127.0.0.1:localPort to the service's remote port.
func PortForwardArgs(namespace, service string, localPort, remotePort int) []string {
	return []string{
		"port-forward",
		"-n", namespace,
		fmt.Sprintf("svc/%s", service),
		fmt.Sprintf("%d:%d", localPort, remotePort),
		"--address=127.0.0.1",
	}
}

// ProxyArgs builds the socat argument list for the proxy channel: listen on
// proxyPort for any client, forward each accepted connection to the primary
// channel on 127.0.0.1:localPort.
func ProxyArgs(proxyPort, localPort int) []string {
	return []string{
		fmt.Sprintf("TCP-LISTEN:%d,fork,reuseaddr", proxyPort),
		fmt.Sprintf("TCP:127.0.0.1:%d", localPort),
	}
}

// DirectExecArgs builds the socat argument list for direct-exec mode: listen
// on listenPort and run the wrapper script once per accepted connection, so
// every client gets its own forwarding session.
func DirectExecArgs(listenPort int, scriptPath string) []string {
	return []string{
		fmt.Sprintf("TCP-LISTEN:%d,fork,reuseaddr", listenPort),
		fmt.Sprintf("EXEC:%s", scriptPath),
	}
}

// wrapperScriptPrefix names the per-tunnel direct-exec scripts in the temp
// directory. KillAll sweeps files carrying this prefix.
const wrapperScriptPrefix = "tunnelctl-wrapper-"

// WrapperScriptPath returns the temp-file location of the direct-exec script
// for a tunnel.
func WrapperScriptPath(id string) string {
	return filepath.Join(os.TempDir(), wrapperScriptPrefix+id+".sh")
}

// WriteWrapperScript writes the per-connection forwarding script used by
// direct-exec mode. Each invocation picks a free high port, starts its own
// kubectl port-forward against it, waits for the socket to accept, and then
// bridges stdin/stdout to it with socat.
func WriteWrapperScript(id, kubectlPath, socatPath, namespace, service string, remotePort int) (string, error) {
	script := fmt.Sprintf(`#!/bin/bash
PORT=$((30000 + ($$ %% 30000)))
while /usr/bin/nc -z 127.0.0.1 $PORT 2>/dev/null; do
    PORT=$((PORT + 1))
done
%s port-forward -n %s svc/%s $PORT:%d --address=127.0.0.1 >/dev/null 2>&1 &
KPID=$!
trap "kill $KPID 2>/dev/null" EXIT
for i in 1 2 3 4 5 6 7 8 9 10; do
    if /usr/bin/nc -z 127.0.0.1 $PORT 2>/dev/null; then break; fi
    sleep 0.5
done
%s - TCP:127.0.0.1:$PORT
`, kubectlPath, namespace, service, remotePort, socatPath)

	path := WrapperScriptPath(id)
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		return "", fmt.Errorf("failed to write wrapper script %s: %w", path, err)
	}
	return path, nil
}

// RemoveWrapperScript deletes the direct-exec script of a tunnel, if present.
func RemoveWrapperScript(id string) {
	_ = os.Remove(WrapperScriptPath(id))
}

// SweepWrapperScripts deletes all direct-exec scripts left in the temp
// directory, including ones from previous runs.
func SweepWrapperScripts() {
	entries, err := os.ReadDir(os.TempDir())
	if err != nil {
		return
	}
	for _, entry := range entries {
		if !entry.IsDir() && len(entry.Name()) > len(wrapperScriptPrefix) &&
			entry.Name()[:len(wrapperScriptPrefix)] == wrapperScriptPrefix {
			_ = os.Remove(filepath.Join(os.TempDir(), entry.Name()))
		}
	}
}
