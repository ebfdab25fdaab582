// Package kube provides read-only cluster discovery: the namespaces and
// services a tunnel can be pointed at. Forwarding itself is done by
// subprocesses, not this package.
package kube
