package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/ostorc/msbuild/log"
	"github.com/ostorc/msbuild/runtime"
	"github.com/ostorc/msbuild/types"
	"github.com/ostorc/msbuild/worker"
)

// NodeCommand returns the node command, the worker entrypoint. Launchers
// start it with the arguments rendered by runtime.LaunchOptions.
func NodeCommand() *cli.Command {
	return &cli.Command{
		Name:   "node",
		Usage:  "Run as a resolution worker (started by resolve)",
		Hidden: true,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "nologo",
				Usage: "Accepted for launcher compatibility",
			},
			&cli.IntFlag{
				Name:     "nodemode",
				Usage:    "Node mode (3 = assembly resolution)",
				Required: true,
			},
			&cli.BoolFlag{
				Name:  "nodereuse",
				Usage: "Stay alive between builds",
			},
			&cli.BoolFlag{
				Name:  "low",
				Usage: "Run at reduced scheduling priority",
			},
			DiscoveryDirFlag,
			&cli.DurationFlag{
				Name:  "idle-timeout",
				Usage: "How long a reusable worker waits for the next build",
				Value: worker.DefaultIdleTimeout,
			},
		},
		Action: nodeAction,
	}
}

func nodeAction(c *cli.Context) error {
	if mode := types.NodeMode(c.Int("nodemode")); mode != types.NodeModeRAR {
		return cli.Exit(fmt.Sprintf("unsupported --nodemode=%d (only %d is served)", int(mode), int(types.NodeModeRAR)), 1)
	}

	dir, err := runtime.DiscoveryDir(c.String("discovery-dir"))
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	logger := log.NewLogger(&types.NodeMeta{
		Mode: types.NodeModeRAR.String(),
		PID:  os.Getpid(),
	})
	defer func() { _ = logger.Sync() }()

	srv, err := worker.NewServer(worker.Config{
		DiscoveryDir: dir,
		NodeReuse:    c.Bool("nodereuse"),
		LowPriority:  c.Bool("low"),
		IdleTimeout:  c.Duration("idle-timeout"),
		Logger:       logger,
	})
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("resolution node started", map[string]any{
		"endpoint":    srv.Endpoint(),
		"node_reuse":  c.Bool("nodereuse"),
		"low":         c.Bool("low"),
		"fingerprint": srv.Fingerprint().String(),
	})
	if err := srv.Serve(ctx); err != nil {
		logger.Error("resolution node failed", map[string]any{"error": err.Error()})
		return cli.Exit(err.Error(), 1)
	}
	logger.Info("resolution node exiting", nil)
	return nil
}
