package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/ostorc/msbuild/cli/reader"
	"github.com/ostorc/msbuild/cli/render"
)

// NodesCommand returns the nodes command. It lists the workers advertised
// in the discovery directory without connecting to them.
func NodesCommand() *cli.Command {
	flags := []cli.Flag{ConfigFlag, DiscoveryDirFlag}
	flags = append(flags, ReadOnlyFlags()...)

	return &cli.Command{
		Name:   "nodes",
		Usage:  "List idle resolution workers",
		Flags:  flags,
		Action: nodesAction,
	}
}

func nodesAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for nodes command", 1)
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	nodes, err := reader.New(nil, resolveString(c, "discovery-dir", cfg.Node.DiscoveryDir)).ListNodes()
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	return r.Render(nodes)
}
