package runtime

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/ostorc/msbuild/handshake"
	"github.com/ostorc/msbuild/ipc"
	"github.com/ostorc/msbuild/log"
	"github.com/ostorc/msbuild/metrics"
	"github.com/ostorc/msbuild/types"
)

// ProviderType identifies the kind of nodes a provider manages.
type ProviderType string

// ProviderTypeRAR is the dedicated assembly-resolution node provider.
const ProviderTypeRAR ProviderType = "resolve_assembly_reference"

// DefaultShutdownTimeout bounds the wait for a worker to exit after shutdown.
const DefaultShutdownTimeout = 5 * time.Second

// PacketFactory receives the packets and termination of the node it was
// registered for in CreateNode.
type PacketFactory interface {
	RoutePacket(nodeID int, p ipc.Packet)
	NodeTerminated(nodeID int, err error)
}

// ProviderConfig configures a Provider.
type ProviderConfig struct {
	// Parameters are the build-wide settings. When nil, CreateNode uses the
	// parameters in the configuration packet and ShutdownAllNodes assumes
	// node reuse was enabled.
	Parameters *types.BuildParameters
	// DiscoveryDir overrides the default discovery directory.
	DiscoveryDir string
	// HandshakeTimeout bounds the fingerprint exchange.
	HandshakeTimeout time.Duration
	// ShutdownTimeout bounds the wait for a worker to exit.
	ShutdownTimeout time.Duration
	// IdleTimeout is passed to spawned reusable workers.
	IdleTimeout time.Duration
	// Spawner overrides process creation (for testing).
	// If nil, uses ExecSpawner.
	Spawner Spawner
	// Dialer overrides endpoint connection (for testing).
	// If nil, uses DialUnix.
	Dialer Dialer
	Logger *log.Logger
	// Collector is optional; all Collector methods are nil-safe.
	Collector *metrics.Collector
}

// Provider manages the single dedicated resolution worker of a build.
type Provider struct {
	cfg  ProviderConfig
	slot slot
}

// NewProvider creates a Provider.
func NewProvider(cfg ProviderConfig) *Provider {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Spawner == nil {
		cfg.Spawner = &ExecSpawner{}
	}
	if cfg.Dialer == nil {
		cfg.Dialer = DialUnix
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NewNop()
	}
	return &Provider{cfg: cfg}
}

// ProviderType returns ProviderTypeRAR.
func (p *Provider) ProviderType() ProviderType {
	return ProviderTypeRAR
}

// AvailableNodes returns 1: a build has at most one resolution worker.
func (p *Provider) AvailableNodes() int {
	return 1
}

// State returns the current slot state.
func (p *Provider) State() State {
	return p.slot.snapshot()
}

// CreateNode acquires a worker for nodeID, handshakes, starts reading and
// sends configuration. It blocks through launch and handshake.
//
// Creating a node while one exists is an InternalError and spawns nothing.
// A failed launch or handshake is a *types.LaunchError; it is not retried
// and leaves the slot empty.
func (p *Provider) CreateNode(ctx context.Context, nodeID int, factory PacketFactory, configuration *ipc.NodeConfiguration) error {
	if factory == nil {
		return types.NewInternalError("create node", "factory is nil")
	}
	if configuration == nil {
		return types.NewInternalError("create node", "configuration is nil")
	}
	if err := p.slot.reserve(nodeID); err != nil {
		return err
	}

	params := configuration.BuildParameters
	if p.cfg.Parameters != nil {
		params = *p.cfg.Parameters
	}
	exe := params.NodeExeLocation
	if exe == "" {
		if self, err := os.Executable(); err == nil {
			exe = self
		}
	}

	p.cfg.Logger.Info("acquiring resolution node", map[string]any{
		"node_id":      nodeID,
		"node_reuse":   params.EnableNodeReuse,
		"low_priority": params.LowPriority,
		"exe":          exe,
	})

	nc, proc, err := p.launch(ctx, nodeID, exe, params)
	if err != nil {
		p.slot.release(nodeID)
		p.cfg.Collector.IncNodeLaunchFailure()
		p.cfg.Logger.Error("failed to acquire resolution node", map[string]any{
			"node_id": nodeID,
			"error":   err.Error(),
		})
		return &types.LaunchError{ExePath: exe, Err: err}
	}

	p.slot.assign(nodeID, nc, proc)
	nc.BeginAsyncRead(factory.RoutePacket, p.terminated(nc, factory))

	if err := nc.SendData(configuration); err != nil {
		_ = nc.Close()
		if proc != nil {
			_ = proc.Kill()
		}
		p.cfg.Collector.IncNodeLaunchFailure()
		return &types.LaunchError{ExePath: exe, Err: err}
	}

	p.cfg.Collector.IncNodeLaunchSuccess()
	return nil
}

// launch returns a connected context, reusing an advertised worker when
// reuse is enabled and spawning one otherwise. proc is nil for a reused worker.
func (p *Provider) launch(ctx context.Context, nodeID int, exe string, params types.BuildParameters) (*NodeContext, Process, error) {
	opts := handshake.Options{
		NodeReuse:   params.EnableNodeReuse,
		LowPriority: params.LowPriority,
		TaskKind:    handshake.TaskKindRAR,
	}
	host := handshake.HostFingerprint(opts)
	client := handshake.ClientFingerprint(opts)

	dir, err := DiscoveryDir(p.cfg.DiscoveryDir)
	if err != nil {
		return nil, nil, err
	}

	if params.EnableNodeReuse {
		if nc := p.acquireReusable(ctx, dir, nodeID, host, client); nc != nil {
			return nc, nil, nil
		}
	}

	proc, err := p.cfg.Spawner.Spawn(ctx, LaunchOptions{
		ExePath:      exe,
		NodeReuse:    params.EnableNodeReuse,
		LowPriority:  params.LowPriority,
		DiscoveryDir: dir,
		IdleTimeout:  p.cfg.IdleTimeout,
	})
	if err != nil {
		return nil, nil, err
	}

	conn, err := p.cfg.Dialer(ctx, proc.Endpoint())
	if err != nil {
		_ = proc.Kill()
		return nil, nil, err
	}
	nc, err := connectNode(ctx, nodeID, conn, host, client, p.cfg.HandshakeTimeout, p.cfg.Logger, p.cfg.Collector)
	if err != nil {
		_ = proc.Kill()
		return nil, nil, err
	}

	p.cfg.Logger.Info("started resolution node", map[string]any{
		"node_id": nodeID,
		"pid":     proc.PID(),
	})
	return nc, proc, nil
}

// acquireReusable claims the first advertised idle worker that handshakes.
// Failures are logged; nil means a new worker must be spawned.
func (p *Provider) acquireReusable(ctx context.Context, dir string, nodeID int, host, client handshake.Fingerprint) *NodeContext {
	var acquired *NodeContext
	err := WithDiscoveryLock(dir, func() error {
		candidates, err := reusableCandidates(dir, host.String())
		if err != nil {
			return err
		}
		for _, disc := range candidates {
			_ = RemoveDiscovery(dir, disc.PID)

			conn, err := p.cfg.Dialer(ctx, disc.Endpoint)
			if err != nil {
				p.cfg.Logger.Debug("reusable node unreachable", map[string]any{
					"pid":   disc.PID,
					"error": err.Error(),
				})
				continue
			}
			nc, err := connectNode(ctx, nodeID, conn, host, client, p.cfg.HandshakeTimeout, p.cfg.Logger, p.cfg.Collector)
			if err != nil {
				p.cfg.Logger.Debug("reusable node rejected handshake", map[string]any{
					"pid":   disc.PID,
					"error": err.Error(),
				})
				continue
			}

			p.cfg.Collector.IncNodeReused()
			p.cfg.Logger.Info("reusing resolution node", map[string]any{
				"node_id": nodeID,
				"pid":     disc.PID,
				"age":     disc.Age().Round(time.Second).String(),
			})
			acquired = nc
			return nil
		}
		return nil
	})
	if err != nil {
		p.cfg.Logger.Warn("node reuse unavailable", map[string]any{"error": err.Error()})
	}
	return acquired
}

// terminated clears the slot if it still holds nc, then notifies factory.
func (p *Provider) terminated(nc *NodeContext, factory PacketFactory) TerminateFunc {
	return func(nodeID int, err error) {
		cleared := p.slot.clearIf(nodeID, nc)
		p.cfg.Collector.IncNodeTermination()
		fields := map[string]any{"node_id": nodeID, "cleared": cleared}
		if err != nil {
			fields["error"] = err.Error()
		}
		p.cfg.Logger.Info("resolution node terminated", fields)
		factory.NodeTerminated(nodeID, err)
	}
}

// SendData routes packet to the live node if nodeID matches it. A stale or
// unknown nodeID is a silent no-op, as is a node that terminates mid-send.
func (p *Provider) SendData(nodeID int, packet ipc.Packet) {
	nc := p.slot.live(nodeID)
	if nc == nil {
		p.cfg.Logger.Debug("dropping packet for inactive node", map[string]any{
			"node_id": nodeID,
			"type":    string(packet.Type()),
		})
		return
	}
	if err := nc.SendData(packet); err != nil {
		// A failed write means the channel is gone; closing it delivers
		// the termination to the factory.
		p.cfg.Logger.Warn("send to resolution node failed", map[string]any{
			"node_id": nodeID,
			"error":   err.Error(),
		})
		_ = nc.Close()
	}
}

// ShutdownConnectedNodes ends the session with the live node. With reuse
// enabled the worker is told to stay up for a later build; otherwise it is
// told to exit and is killed if it does not within the shutdown timeout.
func (p *Provider) ShutdownConnectedNodes(enableReuse bool) {
	nodeID, nc, proc := p.slot.current()
	if nc == nil {
		return
	}

	err := nc.SendDataWithin(&ipc.NodeShutdown{
		Reason:          ipc.ShutdownBuildComplete,
		PrepareForReuse: enableReuse,
	}, p.cfg.ShutdownTimeout)
	if err != nil {
		p.cfg.Logger.Warn("failed to send node shutdown", map[string]any{
			"node_id": nodeID,
			"error":   err.Error(),
		})
		_ = nc.Close()
		if proc != nil && !enableReuse {
			_ = proc.Kill()
		}
		<-nc.Done()
		return
	}
	p.cfg.Collector.IncNodeShutdown()

	if enableReuse {
		_ = nc.Close()
		return
	}

	select {
	case <-nc.Done():
	case <-time.After(p.cfg.ShutdownTimeout):
		p.cfg.Logger.Warn("resolution node did not exit in time", map[string]any{
			"node_id": nodeID,
			"timeout": p.cfg.ShutdownTimeout.String(),
		})
		_ = nc.Close()
		if proc != nil {
			_ = proc.Kill()
		}
		<-nc.Done()
	}
}

// ShutdownAllNodes sweeps idle workers left by earlier builds when node reuse
// is disabled for this build. Without build parameters, reuse is assumed.
func (p *Provider) ShutdownAllNodes(ctx context.Context) error {
	reuse := true
	if p.cfg.Parameters != nil {
		reuse = p.cfg.Parameters.EnableNodeReuse
	}
	if reuse {
		return nil
	}

	dir, err := DiscoveryDir(p.cfg.DiscoveryDir)
	if err != nil {
		return err
	}
	n, err := Sweep(ctx, SweepConfig{
		DiscoveryDir:     dir,
		Variants:         handshake.Variants(handshake.TaskKindRAR),
		Dialer:           p.cfg.Dialer,
		HandshakeTimeout: p.cfg.HandshakeTimeout,
		Logger:           p.cfg.Logger,
		Collector:        p.cfg.Collector,
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	p.cfg.Logger.Info("swept idle resolution nodes", map[string]any{"count": n})
	return nil
}
