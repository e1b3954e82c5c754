package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/ostorc/msbuild/cli/render"
	"github.com/ostorc/msbuild/types"
)

// VersionResponse is the response for the version command.
type VersionResponse struct {
	Version  string `json:"version" yaml:"version"`
	Commit   string `json:"commit" yaml:"commit"`
	Protocol int    `json:"protocol" yaml:"protocol"`
}

// VersionCommand returns the version command.
// Version reports the build version and the wire protocol version a
// launcher and worker must share. It must not contact a worker.
func VersionCommand(commit string) *cli.Command {
	return &cli.Command{
		Name:   "version",
		Usage:  "Show version information",
		Flags:  ReadOnlyFlags(),
		Action: versionAction(commit),
	}
}

func versionAction(commit string) cli.ActionFunc {
	return func(c *cli.Context) error {
		r, err := render.NewRenderer(c)
		if err != nil {
			return err
		}

		if c.Bool("tui") {
			return cli.Exit("--tui is not supported for version command", 1)
		}

		return r.Render(VersionResponse{
			Version:  types.Version,
			Commit:   commit,
			Protocol: types.ProtocolVersion,
		})
	}
}
