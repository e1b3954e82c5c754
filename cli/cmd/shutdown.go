package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/ostorc/msbuild/cli/render"
	"github.com/ostorc/msbuild/handshake"
	"github.com/ostorc/msbuild/log"
	"github.com/ostorc/msbuild/metrics"
	"github.com/ostorc/msbuild/runtime"
	"github.com/ostorc/msbuild/types"
)

// ShutdownResponse is what shutdown prints.
type ShutdownResponse struct {
	Stopped   int    `json:"stopped" yaml:"stopped"`
	Attempted int64  `json:"attempted" yaml:"attempted"`
	Directory string `json:"discovery_dir" yaml:"discovery_dir"`
}

// ShutdownCommand returns the shutdown command. It asks every idle worker
// advertised in the discovery directory to exit, whatever options it was
// launched with.
func ShutdownCommand() *cli.Command {
	return &cli.Command{
		Name:  "shutdown",
		Usage: "Stop idle resolution workers left by earlier builds",
		Flags: []cli.Flag{
			ConfigFlag,
			DiscoveryDirFlag,
			&cli.DurationFlag{
				Name:  "handshake-timeout",
				Usage: "Bound on each fingerprint exchange",
			},
			FormatFlag,
			NoColorFlag,
		},
		Action: shutdownAction,
	}
}

func shutdownAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	dir, err := runtime.DiscoveryDir(resolveString(c, "discovery-dir", cfg.Node.DiscoveryDir))
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	meta := &types.NodeMeta{SessionID: "shutdown", Mode: "launcher", PID: os.Getpid()}
	logger := log.NewLogger(meta)
	defer func() { _ = logger.Sync() }()
	collector := metrics.NewCollector("launcher", "", meta.SessionID)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	n, err := runtime.Sweep(ctx, runtime.SweepConfig{
		DiscoveryDir:     dir,
		Variants:         handshake.Variants(handshake.TaskKindRAR),
		HandshakeTimeout: resolveDuration(c, "handshake-timeout", cfg.Node.HandshakeTimeout.Duration),
		Logger:           logger,
		Collector:        collector,
	})
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	return r.Render(&ShutdownResponse{
		Stopped:   n,
		Attempted: collector.Snapshot().SweepAttempts,
		Directory: dir,
	})
}
