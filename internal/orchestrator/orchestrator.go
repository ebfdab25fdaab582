package orchestrator

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"tunnelctl/internal/config"
	"tunnelctl/internal/proc"
	"tunnelctl/internal/tunnel"
	"tunnelctl/pkg/logging"
)

// ErrTunnelNotFound is returned when an operation names an unknown tunnel id.
var ErrTunnelNotFound = errors.New("tunnel not found")

// ErrTunnelExists is returned when adding a tunnel whose id is already taken.
var ErrTunnelExists = errors.New("tunnel already exists")

// Stabilization delays between spawning a subprocess and the first health
// probe against its port.
const (
	primaryStabilization = 2 * time.Second
	proxyStabilization   = 1 * time.Second
)

// reconcileInterval is the period of the reconciliation loop.
const reconcileInterval = 1 * time.Second

// ProcessSupervisor is the subset of the process supervisor the orchestrator
// drives. Satisfied by *proc.Supervisor; tests substitute a fake.
type ProcessSupervisor interface {
	Start(id string, role proc.Role, path string, args []string) error
	IsRunning(id string, role proc.Role) bool
	HasRecentError(id string) bool
	ClearError(id string)
	Kill(id string)
	KillProcess(id string, role proc.Role)
	KillAll()
	SetLogFunc(proc.LogFunc)
	SetConflictFunc(proc.ConflictFunc)
}

// Orchestrator owns the tunnel collection: desired state (configs), observed
// state (runtimes), and the subprocesses realizing them. It is the only
// component that mutates runtime statuses; presentation layers read
// snapshots or subscribe to change notifications.
type Orchestrator struct {
	mu       sync.RWMutex
	configs  []config.TunnelConfig
	runtimes map[string]*tunnel.Runtime

	sup      ProcessSupervisor
	resolver *proc.Resolver
	store    *config.Store
	notifier Notifier

	// Injection points for tests.
	probe           func(port int) bool
	resolveConflict func(port int) error
	primaryWait     time.Duration
	proxyWait       time.Duration
	tickInterval    time.Duration

	onChange func()
}

// Options configures a new Orchestrator. Zero-value fields select production
// defaults.
type Options struct {
	Supervisor ProcessSupervisor
	Resolver   *proc.Resolver
	Store      *config.Store
	Notifier   Notifier
}

// New creates an orchestrator and registers its callbacks with the process
// supervisor. Call Load before Run when a config store is attached.
func New(opts Options) *Orchestrator {
	sup := opts.Supervisor
	if sup == nil {
		sup = proc.NewSupervisor()
	}
	resolver := opts.Resolver
	if resolver == nil {
		resolver = proc.NewResolver()
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = LogNotifier{}
	}

	o := &Orchestrator{
		runtimes:        make(map[string]*tunnel.Runtime),
		sup:             sup,
		resolver:        resolver,
		store:           opts.Store,
		notifier:        notifier,
		probe:           proc.IsPortOpen,
		resolveConflict: proc.KillProcessesOnPort,
		primaryWait:     primaryStabilization,
		proxyWait:       proxyStabilization,
		tickInterval:    reconcileInterval,
	}

	sup.SetLogFunc(o.handleProcessLine)
	sup.SetConflictFunc(o.handlePortConflict)

	// Catch direct-exec scripts orphaned by a previous run.
	proc.SweepWrapperScripts()

	return o
}

// SetOnChange registers a callback invoked after observable state changes.
// Any presentation layer can subscribe without the core depending on it.
func (o *Orchestrator) SetOnChange(fn func()) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.onChange = fn
}

func (o *Orchestrator) notifyChange() {
	o.mu.RLock()
	fn := o.onChange
	o.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

// Load reads the tunnel list from the store and creates runtimes for every
// entry. Without a store it is a no-op.
func (o *Orchestrator) Load() error {
	if o.store == nil {
		return nil
	}
	configs, err := o.store.Load()
	if err != nil {
		return fmt.Errorf("failed to load tunnel configuration: %w", err)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.configs = configs
	for _, cfg := range configs {
		if _, ok := o.runtimes[cfg.ID]; !ok {
			o.runtimes[cfg.ID] = tunnel.NewRuntime(cfg.ID)
		}
	}
	logging.Info("Orchestrator", "Loaded %d tunnel(s)", len(configs))
	return nil
}

func (o *Orchestrator) persistLocked() error {
	if o.store == nil {
		return nil
	}
	return o.store.Save(o.configs)
}

// AddTunnel validates and registers a new tunnel and persists the list.
func (o *Orchestrator) AddTunnel(cfg config.TunnelConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	for _, existing := range o.configs {
		if existing.ID == cfg.ID {
			return fmt.Errorf("%w: %s", ErrTunnelExists, cfg.ID)
		}
	}
	o.configs = append(o.configs, cfg)
	o.runtimes[cfg.ID] = tunnel.NewRuntime(cfg.ID)
	return o.persistLocked()
}

// UpdateTunnel replaces an existing tunnel's configuration and persists the
// list. The runtime is kept; the next reconciliation tick applies the new
// desired state.
func (o *Orchestrator) UpdateTunnel(cfg config.TunnelConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	for i, existing := range o.configs {
		if existing.ID == cfg.ID {
			o.configs[i] = cfg
			return o.persistLocked()
		}
	}
	return fmt.Errorf("%w: %s", ErrTunnelNotFound, cfg.ID)
}

// RemoveTunnel force-stops a tunnel's processes, destroys its runtime, and
// persists the shrunken list. The kill comes first so the supervisor never
// holds processes for a tunnel we no longer track.
func (o *Orchestrator) RemoveTunnel(id string) error {
	o.sup.Kill(id)

	o.mu.Lock()
	idx := -1
	for i, cfg := range o.configs {
		if cfg.ID == id {
			idx = i
			break
		}
	}
	if idx == -1 {
		o.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrTunnelNotFound, id)
	}
	o.configs = append(o.configs[:idx], o.configs[idx+1:]...)
	delete(o.runtimes, id)
	err := o.persistLocked()
	o.mu.Unlock()

	o.notifyChange()
	return err
}

// Tunnels returns a copy of the configured tunnel list.
func (o *Orchestrator) Tunnels() []config.TunnelConfig {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]config.TunnelConfig, len(o.configs))
	copy(out, o.configs)
	return out
}

// Tunnel returns one tunnel's configuration by id.
func (o *Orchestrator) Tunnel(id string) (config.TunnelConfig, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	for _, cfg := range o.configs {
		if cfg.ID == id {
			return cfg, true
		}
	}
	return config.TunnelConfig{}, false
}

// Runtime returns the live runtime of a tunnel, or nil.
func (o *Orchestrator) Runtime(id string) *tunnel.Runtime {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.runtimes[id]
}

// Snapshots returns point-in-time copies of every runtime, keyed by id.
func (o *Orchestrator) Snapshots() map[string]tunnel.Snapshot {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make(map[string]tunnel.Snapshot, len(o.runtimes))
	for id, rt := range o.runtimes {
		out[id] = rt.Snapshot()
	}
	return out
}

func (o *Orchestrator) lookup(id string) (config.TunnelConfig, *tunnel.Runtime, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	for _, cfg := range o.configs {
		if cfg.ID == id {
			rt := o.runtimes[id]
			if rt == nil {
				return config.TunnelConfig{}, nil, fmt.Errorf("%w: %s", ErrTunnelNotFound, id)
			}
			return cfg, rt, nil
		}
	}
	return config.TunnelConfig{}, nil, fmt.Errorf("%w: %s", ErrTunnelNotFound, id)
}

// StartTunnel establishes a tunnel end to end: spawn, stabilization wait,
// health-probe confirmation. Status reaches connected only after the probe
// succeeds. Already connected or connecting tunnels are left alone.
func (o *Orchestrator) StartTunnel(id string) error {
	cfg, rt, err := o.lookup(id)
	if err != nil {
		return err
	}

	if s := rt.Primary(); s == tunnel.StatusConnected || s == tunnel.StatusConnecting {
		return nil
	}

	rt.SetIntentionallyStopped(false)
	rt.SetLastError("")
	o.notifyChange()

	if cfg.DirectExec {
		return o.startDirectConfirmed(cfg, rt)
	}
	return o.startStandardConfirmed(cfg, rt)
}

func (o *Orchestrator) startStandardConfirmed(cfg config.TunnelConfig, rt *tunnel.Runtime) error {
	if err := o.startPrimary(cfg, rt); err != nil {
		return err
	}

	time.Sleep(o.primaryWait)
	if !o.probe(cfg.LocalPort) {
		// The spawn succeeded but the port never came up. Kill the process
		// so the restart path starts from an empty slot.
		o.sup.Kill(cfg.ID)
		rt.SetPrimary(tunnel.StatusError)
		rt.SetLastError("port-forward failed to establish")
		o.notifyChange()
		return fmt.Errorf("tunnel %s: local port %d not accepting connections", cfg.Name, cfg.LocalPort)
	}
	rt.SetPrimary(tunnel.StatusConnected)

	if cfg.HasProxy() {
		if err := o.startProxy(cfg, rt); err != nil {
			o.notifyChange()
			return err
		}
		time.Sleep(o.proxyWait)
		if o.probe(*cfg.ProxyPort) {
			rt.SetProxy(tunnel.StatusConnected)
		} else {
			rt.SetProxy(tunnel.StatusError)
			rt.SetLastError("proxy failed to start")
		}
	}

	// The connect notification means the tunnel is usable end to end; a
	// half-up tunnel waits until the proxy is confirmed too.
	if rt.FullyConnected(cfg.HasProxy()) {
		o.notifyConnected(cfg)
	}
	o.notifyChange()
	return nil
}

func (o *Orchestrator) startDirectConfirmed(cfg config.TunnelConfig, rt *tunnel.Runtime) error {
	if err := o.startDirectProcess(cfg, rt); err != nil {
		return err
	}

	time.Sleep(o.proxyWait)
	if !o.probe(cfg.EffectivePort()) {
		o.sup.Kill(cfg.ID)
		rt.SetBoth(tunnel.StatusError)
		rt.SetLastError("failed to establish connection")
		o.notifyChange()
		return fmt.Errorf("tunnel %s: port %d not accepting connections", cfg.Name, cfg.EffectivePort())
	}

	rt.SetBoth(tunnel.StatusConnected)
	o.notifyConnected(cfg)
	o.notifyChange()
	return nil
}

// startPrimary spawns the kubectl port-forward process and moves the primary
// channel to connecting. Promotion to connected is the caller's (or the
// reconciliation loop's) responsibility, via a health probe.
func (o *Orchestrator) startPrimary(cfg config.TunnelConfig, rt *tunnel.Runtime) error {
	kubectl, err := o.resolver.Kubectl()
	if err != nil {
		rt.SetPrimary(tunnel.StatusError)
		rt.SetLastError(err.Error())
		o.notifyChange()
		return err
	}

	o.sup.ClearError(cfg.ID)
	args := proc.PortForwardArgs(cfg.Namespace, cfg.Service, cfg.LocalPort, cfg.RemotePort)
	if err := o.sup.Start(cfg.ID, proc.RolePrimary, kubectl, args); err != nil {
		rt.SetPrimary(tunnel.StatusError)
		rt.SetLastError(err.Error())
		o.notifyChange()
		return err
	}

	rt.SetPrimary(tunnel.StatusConnecting)
	o.notifyChange()
	return nil
}

// startProxy spawns the socat listener and moves the proxy channel to
// connecting.
func (o *Orchestrator) startProxy(cfg config.TunnelConfig, rt *tunnel.Runtime) error {
	socat, err := o.resolver.Socat()
	if err != nil {
		rt.SetProxy(tunnel.StatusError)
		rt.SetLastError(err.Error())
		return err
	}

	rt.SetProxy(tunnel.StatusConnecting)
	args := proc.ProxyArgs(*cfg.ProxyPort, cfg.LocalPort)
	if err := o.sup.Start(cfg.ID, proc.RoleProxy, socat, args); err != nil {
		rt.SetProxy(tunnel.StatusError)
		rt.SetLastError(err.Error())
		return err
	}
	return nil
}

// startDirectProcess spawns the single direct-exec process and moves both
// statuses to connecting. In direct mode one process carries the whole
// channel, so the two statuses are kept mirrored.
func (o *Orchestrator) startDirectProcess(cfg config.TunnelConfig, rt *tunnel.Runtime) error {
	kubectl, err := o.resolver.Kubectl()
	if err != nil {
		rt.SetBoth(tunnel.StatusError)
		rt.SetLastError(err.Error())
		o.notifyChange()
		return err
	}
	socat, err := o.resolver.Socat()
	if err != nil {
		rt.SetBoth(tunnel.StatusError)
		rt.SetLastError(err.Error())
		o.notifyChange()
		return err
	}

	script, err := proc.WriteWrapperScript(cfg.ID, kubectl, socat, cfg.Namespace, cfg.Service, cfg.RemotePort)
	if err != nil {
		rt.SetBoth(tunnel.StatusError)
		rt.SetLastError(err.Error())
		o.notifyChange()
		return err
	}

	o.sup.ClearError(cfg.ID)
	args := proc.DirectExecArgs(cfg.EffectivePort(), script)
	if err := o.sup.Start(cfg.ID, proc.RoleProxy, socat, args); err != nil {
		rt.SetBoth(tunnel.StatusError)
		rt.SetLastError(err.Error())
		o.notifyChange()
		return err
	}

	rt.SetBoth(tunnel.StatusConnecting)
	o.notifyChange()
	return nil
}

// StopTunnel is the user-initiated stop: kill processes, drop statuses, and
// remember the stop was intentional so the reconciliation loop leaves the
// tunnel alone until the next explicit start.
func (o *Orchestrator) StopTunnel(id string) error {
	cfg, rt, err := o.lookup(id)
	if err != nil {
		return err
	}

	wasFully := rt.FullyConnected(cfg.HasProxy())

	o.sup.Kill(id)
	rt.SetBoth(tunnel.StatusDisconnected)
	rt.SetIntentionallyStopped(true)

	if wasFully && cfg.NotifyOnDisconnect {
		o.notifier.Notify("Tunnel disconnected", cfg.Name)
	}
	o.notifyChange()
	return nil
}

// RestartTunnel stops and starts a tunnel in one operation.
func (o *Orchestrator) RestartTunnel(id string) error {
	if err := o.StopTunnel(id); err != nil {
		return err
	}
	return o.StartTunnel(id)
}

// StartAllEnabled starts every enabled tunnel. Failures are logged per
// tunnel and never abort the remaining ones.
func (o *Orchestrator) StartAllEnabled() {
	for _, cfg := range o.Tunnels() {
		if !cfg.Enabled {
			continue
		}
		if err := o.StartTunnel(cfg.ID); err != nil {
			logging.Error("Orchestrator", err, "Failed to start tunnel %s", cfg.Name)
		}
	}
}

// StopAll force-stops everything, including orphaned processes from lost
// bookkeeping. Used on shutdown and on an explicit force-stop action.
func (o *Orchestrator) StopAll() {
	o.sup.KillAll()

	o.mu.RLock()
	runtimes := make([]*tunnel.Runtime, 0, len(o.runtimes))
	for _, rt := range o.runtimes {
		runtimes = append(runtimes, rt)
	}
	o.mu.RUnlock()

	for _, rt := range runtimes {
		rt.SetBoth(tunnel.StatusDisconnected)
		rt.SetIntentionallyStopped(true)
	}
	o.notifyChange()
}

// notifyConnected emits a connect notification when the tunnel opts in.
func (o *Orchestrator) notifyConnected(cfg config.TunnelConfig) {
	if cfg.NotifyOnConnect {
		o.notifier.Notify("Tunnel connected", fmt.Sprintf("%s on port %d", cfg.Name, cfg.EffectivePort()))
	}
}

// handleProcessLine is the supervisor's log callback: every subprocess line
// lands in the owning tunnel's ring buffer.
func (o *Orchestrator) handleProcessLine(id string, role proc.Role, line string, isError bool) {
	o.mu.RLock()
	rt := o.runtimes[id]
	o.mu.RUnlock()
	if rt == nil {
		return
	}
	rt.AppendLog(string(role), line, isError)
}

// handlePortConflict is the supervisor's conflict callback. Remediation runs
// asynchronously: the port may be held by a process entirely outside our
// management, and the reader goroutine must not block on it.
func (o *Orchestrator) handlePortConflict(port int) {
	logging.Warn("Orchestrator", "Port conflict reported on %d, attempting to free it", port)
	go func() {
		if err := o.resolveConflict(port); err != nil {
			logging.Error("Orchestrator", err, "Failed to free conflicting port %d", port)
		}
	}()
}
