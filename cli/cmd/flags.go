// Package cmd provides CLI commands for the msbuild-rar binary.
package cmd

import "github.com/urfave/cli/v2"

// Shared flags for read-only commands.
var (
	// FormatFlag selects output format: json, table, yaml.
	FormatFlag = &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: json, table, yaml",
	}

	// NoColorFlag disables colored output.
	NoColorFlag = &cli.BoolFlag{
		Name:  "no-color",
		Usage: "Disable colored output",
	}

	// TUIFlag enables Bubble Tea interactive mode.
	// Only inspect supports it.
	TUIFlag = &cli.BoolFlag{
		Name:  "tui",
		Usage: "Enable interactive TUI mode (inspect only)",
	}

	// ConfigFlag points at an msbuild-rar.yaml file.
	ConfigFlag = &cli.StringFlag{
		Name:  "config",
		Usage: "Path to msbuild-rar.yaml (default: ./msbuild-rar.yaml if present)",
	}

	// DiscoveryDirFlag overrides where idle workers advertise themselves.
	DiscoveryDirFlag = &cli.StringFlag{
		Name:  "discovery-dir",
		Usage: "Directory holding worker sockets and advertisements",
	}
)

// ReadOnlyFlags returns the shared flags for all read-only commands.
// Includes --tui so that unsupported commands can provide explicit error messages
// instead of generic "flag not defined" errors.
func ReadOnlyFlags() []cli.Flag {
	return []cli.Flag{
		FormatFlag,
		NoColorFlag,
		TUIFlag,
	}
}

// ArchiveFlags select the result archive. Values override the archive
// section of the config file.
func ArchiveFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "archive-backend",
			Usage: "Archive backend: fs or s3 (empty disables archiving)",
		},
		&cli.StringFlag{
			Name:  "archive-path",
			Usage: "Archive location (fs: directory, s3: bucket/prefix)",
		},
		&cli.StringFlag{
			Name:  "archive-dataset",
			Usage: "Archive dataset ID (default: rar)",
		},
		&cli.StringFlag{
			Name:  "archive-s3-region",
			Usage: "AWS region for the s3 backend (default chain if empty)",
		},
		&cli.StringFlag{
			Name:  "archive-s3-endpoint",
			Usage: "Custom endpoint for S3-compatible providers",
		},
		&cli.BoolFlag{
			Name:  "archive-s3-path-style",
			Usage: "Use path-style addressing for the s3 backend",
		},
	}
}

// AdapterFlags select the completion notification adapter. Values override
// the adapter section of the config file.
func AdapterFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "adapter",
			Usage: "Notification adapter: webhook or redis (empty disables notifications)",
		},
		&cli.StringFlag{
			Name:  "adapter-url",
			Usage: "Webhook endpoint or redis:// URL",
		},
		&cli.StringFlag{
			Name:  "adapter-channel",
			Usage: "Redis channel (default: msbuild-rar:resolve_completed)",
		},
		&cli.StringSliceFlag{
			Name:  "adapter-header",
			Usage: "Webhook header as key=value (repeatable)",
		},
		&cli.DurationFlag{
			Name:  "adapter-timeout",
			Usage: "Per-attempt notification timeout",
		},
		&cli.IntFlag{
			Name:  "adapter-retries",
			Usage: "Notification retries after the first attempt (default: 3)",
		},
	}
}
