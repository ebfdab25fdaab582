package config

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrInvalidConfig is the sentinel wrapped by every validation failure.
// Callers can match it with errors.Is to distinguish config rejection from
// runtime failures.
var ErrInvalidConfig = errors.New("invalid tunnel configuration")

// TunnelConfig is the desired state of a single tunnel. It is user-editable
// and persisted; everything observed at runtime lives in tunnel.Runtime.
type TunnelConfig struct {
	// ID is an opaque identifier, stable across edits.
	ID string `yaml:"id"`
	// Name is a display name, shown in listings and notifications.
	Name string `yaml:"name"`
	// Namespace and Service identify the remote service being tunneled to.
	Namespace string `yaml:"namespace"`
	Service   string `yaml:"service"`
	// LocalPort is where the primary channel binds on 127.0.0.1.
	LocalPort int `yaml:"localPort"`
	// RemotePort is the service port on the cluster side.
	RemotePort int `yaml:"remotePort"`
	// ProxyPort, when set, enables the shared listener that fans the primary
	// channel out to multiple clients.
	ProxyPort *int `yaml:"proxyPort,omitempty"`
	// Enabled gates whether the reconciliation loop services this tunnel.
	Enabled bool `yaml:"enabled"`
	// AutoReconnect enables automatic repair of failed channels.
	AutoReconnect bool `yaml:"autoReconnect"`
	// DirectExec selects the single-process strategy that natively supports
	// multiple simultaneous client connections on ProxyPort.
	DirectExec bool `yaml:"directExec"`
	// Notification preferences.
	NotifyOnConnect    bool `yaml:"notifyOnConnect"`
	NotifyOnDisconnect bool `yaml:"notifyOnDisconnect"`
}

// NewTunnelConfig creates a tunnel configuration with a fresh ID and the
// default flags: enabled, auto-reconnecting, notifying on both transitions.
func NewTunnelConfig(name, namespace, service string, localPort, remotePort int) TunnelConfig {
	return TunnelConfig{
		ID:                 uuid.NewString(),
		Name:               name,
		Namespace:          namespace,
		Service:            service,
		LocalPort:          localPort,
		RemotePort:         remotePort,
		Enabled:            true,
		AutoReconnect:      true,
		NotifyOnConnect:    true,
		NotifyOnDisconnect: true,
	}
}

// EffectivePort returns the port external clients should connect to: the
// proxy port when a proxy is configured, the local port otherwise.
func (c TunnelConfig) EffectivePort() int {
	if c.ProxyPort != nil {
		return *c.ProxyPort
	}
	return c.LocalPort
}

// HasProxy reports whether a proxy channel is configured for this tunnel.
func (c TunnelConfig) HasProxy() bool {
	return c.ProxyPort != nil
}

// Validate checks the configuration at the add/update boundary. A config that
// fails validation must never reach the process supervisor.
func (c TunnelConfig) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidConfig)
	}
	if c.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidConfig)
	}
	if c.Namespace == "" {
		return fmt.Errorf("%w: namespace is required", ErrInvalidConfig)
	}
	if c.Service == "" {
		return fmt.Errorf("%w: service is required", ErrInvalidConfig)
	}
	if !validPort(c.LocalPort) {
		return fmt.Errorf("%w: local port %d out of range 1..65535", ErrInvalidConfig, c.LocalPort)
	}
	if !validPort(c.RemotePort) {
		return fmt.Errorf("%w: remote port %d out of range 1..65535", ErrInvalidConfig, c.RemotePort)
	}
	if c.ProxyPort != nil {
		if !validPort(*c.ProxyPort) {
			return fmt.Errorf("%w: proxy port %d out of range 1..65535", ErrInvalidConfig, *c.ProxyPort)
		}
		if *c.ProxyPort == c.LocalPort {
			return fmt.Errorf("%w: proxy port must differ from local port (%d)", ErrInvalidConfig, c.LocalPort)
		}
	}
	return nil
}

func validPort(p int) bool {
	return p >= 1 && p <= 65535
}
