package cmd

import (
	"errors"

	"github.com/urfave/cli/v2"

	"github.com/ostorc/msbuild/cli/reader"
	"github.com/ostorc/msbuild/cli/render"
	"github.com/ostorc/msbuild/cli/tui"
	rarlode "github.com/ostorc/msbuild/lode"
)

// InspectCommand returns the inspect command. Inspect reads the resolutions
// archived for one build; it never contacts a worker.
func InspectCommand() *cli.Command {
	flags := []cli.Flag{
		&cli.StringFlag{
			Name:     "build-id",
			Usage:    "Build ID to inspect",
			Required: true,
		},
		ConfigFlag,
	}
	flags = append(flags, ArchiveFlags()...)
	flags = append(flags, ReadOnlyFlags()...)

	return &cli.Command{
		Name:   "inspect",
		Usage:  "Inspect the archived resolutions of a build",
		Flags:  flags,
		Action: inspectAction,
	}
}

func inspectAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	archive := resolveArchiveChoice(c, cfg)
	if err := archive.validate(); err != nil {
		return cli.Exit(err.Error(), 1)
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	ds, err := archive.openReadDataset(c.Context)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	buildID := c.String("build-id")
	resp, err := reader.New(ds, "").InspectBuild(c.Context, buildID)
	switch {
	case errors.Is(err, reader.ErrNoArchive):
		return cli.Exit(err.Error(), 1)
	case errors.Is(err, rarlode.ErrNoResolutionsFound):
		return cli.Exit("no resolutions archived for build "+buildID, 1)
	case err != nil:
		return cli.Exit(err.Error(), 1)
	}

	if c.Bool("tui") {
		return r.RenderTUI(tui.ViewInspectBuild, resp)
	}
	return r.Render(resp)
}
