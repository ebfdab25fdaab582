package proc

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
)

// ErrExecutableNotFound is returned when a required external binary cannot be
// located in any of the well-known locations or on PATH.
var ErrExecutableNotFound = errors.New("executable not found")

// Well-known install locations checked before falling back to PATH lookup.
// GUI-launched processes often run without a shell profile, so PATH alone is
// not reliable.
var wellKnownDirs = []string{
	"/opt/homebrew/bin",
	"/usr/local/bin",
	"/usr/bin",
}

// Resolver locates the external binaries the supervisor wraps: kubectl for
// the primary channel and socat for the proxy channel. Resolution happens
// once at construction.
type Resolver struct {
	kubectlPath string
	socatPath   string
}

// NewResolver searches for kubectl and socat. Missing binaries are not an
// error at construction time; they surface when a path is requested.
func NewResolver() *Resolver {
	return &Resolver{
		kubectlPath: findExecutable("kubectl"),
		socatPath:   findExecutable("socat"),
	}
}

// NewResolverWithPaths creates a resolver with fixed paths, for tests and for
// callers that manage binary discovery themselves.
func NewResolverWithPaths(kubectlPath, socatPath string) *Resolver {
	return &Resolver{kubectlPath: kubectlPath, socatPath: socatPath}
}

// Kubectl returns the absolute kubectl path.
func (r *Resolver) Kubectl() (string, error) {
	if r.kubectlPath == "" {
		return "", fmt.Errorf("%w: kubectl", ErrExecutableNotFound)
	}
	return r.kubectlPath, nil
}

// Socat returns the absolute socat path.
func (r *Resolver) Socat() (string, error) {
	if r.socatPath == "" {
		return "", fmt.Errorf("%w: socat", ErrExecutableNotFound)
	}
	return r.socatPath, nil
}

// KubectlAvailable reports whether kubectl was found.
func (r *Resolver) KubectlAvailable() bool { return r.kubectlPath != "" }

// SocatAvailable reports whether socat was found.
func (r *Resolver) SocatAvailable() bool { return r.socatPath != "" }

func findExecutable(name string) string {
	for _, dir := range wellKnownDirs {
		candidate := dir + "/" + name
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate
		}
	}
	if path, err := exec.LookPath(name); err == nil {
		return path
	}
	return ""
}
