package orchestrator

import (
	"context"
	"time"

	"tunnelctl/internal/config"
	"tunnelctl/internal/proc"
	"tunnelctl/internal/tunnel"
	"tunnelctl/pkg/logging"
)

// Run drives the reconciliation loop until the context is cancelled. Each
// tick compares every tunnel's desired state against its observed state and
// issues at most one corrective action per rule. The loop never exits on a
// per-tunnel failure.
func (o *Orchestrator) Run(ctx context.Context) {
	logging.Info("Orchestrator", "Reconciliation loop started (interval %s)", o.tickInterval)
	ticker := time.NewTicker(o.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Info("Orchestrator", "Reconciliation loop stopped")
			return
		case <-ticker.C:
			o.reconcileAll()
		}
	}
}

func (o *Orchestrator) reconcileAll() {
	for _, cfg := range o.Tunnels() {
		o.reconcileOne(cfg)
	}
}

// reconcileOne applies the corrective rules for a single tunnel. A panic in
// one tunnel's handling must not take down the loop or starve the others.
func (o *Orchestrator) reconcileOne(cfg config.TunnelConfig) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error("Orchestrator", nil, "Reconcile panic for tunnel %s: %v", cfg.Name, r)
		}
	}()

	o.mu.RLock()
	rt := o.runtimes[cfg.ID]
	o.mu.RUnlock()
	if rt == nil {
		return
	}

	if !cfg.Enabled || !cfg.AutoReconnect || rt.IntentionallyStopped() {
		return
	}

	if cfg.DirectExec {
		o.reconcileDirect(cfg, rt)
		return
	}
	o.reconcileStandard(cfg, rt)
}

func (o *Orchestrator) reconcileStandard(cfg config.TunnelConfig, rt *tunnel.Runtime) {
	switch rt.Primary() {
	case tunnel.StatusDisconnected, tunnel.StatusError:
		logging.Info("Orchestrator", "Tunnel %s down, starting port-forward", cfg.Name)
		// A failed or half-torn-down attempt can leave processes in the
		// slots; restart is always stop-then-start.
		o.sup.Kill(cfg.ID)
		if err := o.startPrimary(cfg, rt); err != nil {
			logging.Error("Orchestrator", err, "Failed to start port-forward for %s", cfg.Name)
		}
		return

	case tunnel.StatusConnecting:
		if !o.sup.IsRunning(cfg.ID, proc.RolePrimary) {
			rt.SetPrimary(tunnel.StatusError)
			rt.SetLastError("port-forward exited before becoming ready")
			o.notifyChange()
		} else if o.probe(cfg.LocalPort) {
			rt.SetPrimary(tunnel.StatusConnected)
			if !cfg.HasProxy() {
				o.notifyConnected(cfg)
			}
			o.notifyChange()
		}
		return

	case tunnel.StatusConnected:
		if o.sup.HasRecentError(cfg.ID) {
			o.handleFailure(cfg, rt, "port-forward reported errors", true)
			return
		}
		if !o.sup.IsRunning(cfg.ID, proc.RolePrimary) {
			o.handleFailure(cfg, rt, "port-forward process exited", false)
			return
		}
		if !o.probe(cfg.LocalPort) {
			o.handleFailure(cfg, rt, "local port stopped responding", true)
			return
		}
	}

	if !cfg.HasProxy() {
		return
	}
	o.reconcileProxy(cfg, rt)
}

// reconcileProxy runs only while the primary channel is connected. Proxy
// recovery restarts the proxy process alone; a healthy port-forward is never
// torn down for a proxy fault.
func (o *Orchestrator) reconcileProxy(cfg config.TunnelConfig, rt *tunnel.Runtime) {
	switch rt.Proxy() {
	case tunnel.StatusDisconnected, tunnel.StatusError:
		logging.Info("Orchestrator", "Starting proxy for tunnel %s on port %d", cfg.Name, *cfg.ProxyPort)
		o.sup.KillProcess(cfg.ID, proc.RoleProxy)
		if err := o.startProxy(cfg, rt); err != nil {
			logging.Error("Orchestrator", err, "Failed to start proxy for %s", cfg.Name)
		}
		o.notifyChange()

	case tunnel.StatusConnecting:
		if !o.sup.IsRunning(cfg.ID, proc.RoleProxy) {
			rt.SetProxy(tunnel.StatusError)
			rt.SetLastError("proxy exited before becoming ready")
			o.notifyChange()
		} else if o.probe(*cfg.ProxyPort) {
			rt.SetProxy(tunnel.StatusConnected)
			o.notifyConnected(cfg)
			o.notifyChange()
		}

	case tunnel.StatusConnected:
		if !o.sup.IsRunning(cfg.ID, proc.RoleProxy) || !o.probe(*cfg.ProxyPort) {
			rt.SetProxy(tunnel.StatusError)
			rt.SetLastError("proxy stopped responding")
			o.notifyChange()
		}
	}
}

// reconcileDirect is the single-process variant: one wrapper process serves
// the effective port, and both statuses move together.
func (o *Orchestrator) reconcileDirect(cfg config.TunnelConfig, rt *tunnel.Runtime) {
	switch rt.Proxy() {
	case tunnel.StatusDisconnected, tunnel.StatusError:
		logging.Info("Orchestrator", "Tunnel %s down, starting direct connection", cfg.Name)
		o.sup.Kill(cfg.ID)
		if err := o.startDirectProcess(cfg, rt); err != nil {
			logging.Error("Orchestrator", err, "Failed to start direct connection for %s", cfg.Name)
		}

	case tunnel.StatusConnecting:
		if !o.sup.IsRunning(cfg.ID, proc.RoleProxy) {
			rt.SetBoth(tunnel.StatusError)
			rt.SetLastError("connection exited before becoming ready")
			o.notifyChange()
		} else if o.probe(cfg.EffectivePort()) {
			rt.SetBoth(tunnel.StatusConnected)
			o.notifyConnected(cfg)
			o.notifyChange()
		}

	case tunnel.StatusConnected:
		if o.sup.HasRecentError(cfg.ID) {
			o.handleFailure(cfg, rt, "connection reported errors", true)
			return
		}
		if !o.sup.IsRunning(cfg.ID, proc.RoleProxy) {
			o.handleFailure(cfg, rt, "connection process exited", false)
			return
		}
		if !o.probe(cfg.EffectivePort()) {
			o.handleFailure(cfg, rt, "port stopped responding", true)
		}
	}
}

// handleFailure records the fault, tears the tunnel down to a clean
// disconnected state, and emits at most one disconnect notification. The
// next tick starts recovery from scratch.
func (o *Orchestrator) handleFailure(cfg config.TunnelConfig, rt *tunnel.Runtime, reason string, kill bool) {
	logging.Warn("Orchestrator", "Tunnel %s failed: %s", cfg.Name, reason)

	wasFully := rt.FullyConnected(cfg.HasProxy())
	rt.SetLastError(reason)
	rt.SetBoth(tunnel.StatusDisconnected)

	if kill {
		o.sup.Kill(cfg.ID)
	}
	o.sup.ClearError(cfg.ID)

	if wasFully && !rt.IntentionallyStopped() && cfg.NotifyOnDisconnect {
		o.notifier.Notify("Tunnel disconnected", cfg.Name)
	}
	o.notifyChange()
}
