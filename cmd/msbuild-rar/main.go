// Package main provides the msbuild-rar CLI entrypoint.
//
// The same binary is the launcher (resolve) and the worker (node): a
// launcher without --node-exe starts itself in node mode.
//
// Usage:
//
//	msbuild-rar <command> [options]
//
// Exit codes for `resolve`:
//   - 0: success
//   - 1: task failed (or invalid input)
//   - 2: worker could not be launched or handshaken
//   - 3: worker terminated before returning a result
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/ostorc/msbuild/cli/cmd"
	"github.com/ostorc/msbuild/types"
)

// Commit is set via ldflags at build time.
var commit = "unknown"

func main() {
	app := &cli.App{
		Name:           "msbuild-rar",
		Usage:          "Out-of-process assembly reference resolution",
		Version:        fmt.Sprintf("%s (commit: %s)", types.Version, commit),
		ExitErrHandler: exitErrHandler,
		Commands: []*cli.Command{
			cmd.ResolveCommand(),
			cmd.NodeCommand(),
			cmd.ShutdownCommand(),
			cmd.InspectCommand(),
			cmd.NodesCommand(),
			cmd.VersionCommand(commit),
		},
	}

	if err := app.Run(os.Args); err != nil {
		// ExitErrHandler already exited for cli.ExitCoder errors.
		os.Exit(1)
	}
}

// exitErrHandler preserves exit codes from cli.Exit so resolve outcomes
// reach the calling build.
func exitErrHandler(_ *cli.Context, err error) {
	if err == nil {
		return
	}
	code, msg := exitStatus(err)
	if msg != "" {
		fmt.Fprintln(os.Stderr, msg)
	}
	os.Exit(code)
}

// exitStatus maps err to a process exit code and the message to print.
// cli.Exit("", N) reports "exit status N", which is not printed.
func exitStatus(err error) (int, string) {
	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		code := exitCoder.ExitCode()
		msg := exitCoder.Error()
		if msg == fmt.Sprintf("exit status %d", code) {
			msg = ""
		}
		return code, msg
	}
	return 1, fmt.Sprintf("Error: %v", err)
}
