package runtime

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ostorc/msbuild/handshake"
	"github.com/ostorc/msbuild/ipc"
	"github.com/ostorc/msbuild/log"
	"github.com/ostorc/msbuild/metrics"
)

// sweepParallelism caps concurrent connections during a sweep.
const sweepParallelism = 8

// SweepConfig configures Sweep.
type SweepConfig struct {
	// DiscoveryDir holds the advertisements of idle workers.
	DiscoveryDir string
	// Variants are the option sets to try against each worker.
	Variants []handshake.Options
	// Dialer connects to a worker endpoint. If nil, uses DialUnix.
	Dialer           Dialer
	HandshakeTimeout time.Duration
	Logger           *log.Logger
	Collector        *metrics.Collector
}

// Sweep asks every advertised idle worker to exit. Each worker is tried
// under every variant until one handshakes. Per-worker failures are logged
// and do not fail the sweep. Returns the number of workers told to exit.
func Sweep(ctx context.Context, cfg SweepConfig) (int, error) {
	if cfg.Dialer == nil {
		cfg.Dialer = DialUnix
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NewNop()
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = DefaultHandshakeTimeout
	}

	var entries []*Discovery
	err := WithDiscoveryLock(cfg.DiscoveryDir, func() error {
		all, err := ListDiscovery(cfg.DiscoveryDir)
		if err != nil {
			return err
		}
		for _, disc := range all {
			if !processAlive(disc.PID) {
				_ = RemoveDiscovery(cfg.DiscoveryDir, disc.PID)
				continue
			}
			entries = append(entries, disc)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	var stopped atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(sweepParallelism)
	for _, disc := range entries {
		g.Go(func() error {
			if sweepOne(gctx, cfg, disc) {
				stopped.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return int(stopped.Load()), err
	}
	return int(stopped.Load()), nil
}

// sweepOne tries each variant against disc and sends a shutdown on the
// first successful handshake.
func sweepOne(ctx context.Context, cfg SweepConfig, disc *Discovery) bool {
	for _, opts := range cfg.Variants {
		if ctx.Err() != nil {
			return false
		}
		cfg.Collector.IncSweepAttempt()

		conn, err := cfg.Dialer(ctx, disc.Endpoint)
		if err != nil {
			cfg.Logger.Debug("sweep dial failed", map[string]any{
				"pid":   disc.PID,
				"error": err.Error(),
			})
			return false
		}
		nc, err := connectNode(ctx, 0, conn,
			handshake.HostFingerprint(opts), handshake.ClientFingerprint(opts),
			cfg.HandshakeTimeout, cfg.Logger, cfg.Collector)
		if err != nil {
			continue
		}

		err = nc.SendDataWithin(&ipc.NodeShutdown{Reason: ipc.ShutdownOrphanSweep}, cfg.HandshakeTimeout)
		_ = nc.Close()
		if err != nil {
			cfg.Logger.Warn("sweep shutdown failed", map[string]any{
				"pid":   disc.PID,
				"error": err.Error(),
			})
			return false
		}
		cfg.Collector.IncNodeShutdown()
		cfg.Logger.Info("swept idle resolution node", map[string]any{
			"pid":     disc.PID,
			"options": opts.String(),
		})
		return true
	}
	return false
}
