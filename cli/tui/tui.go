package tui

import (
	"fmt"

	"github.com/ostorc/msbuild/cli/reader"
)

// View types.
const (
	ViewInspectBuild = "inspect_build"
	ViewNodes        = "nodes"
)

// IsTUISupported reports whether view has a TUI. Only inspect does.
func IsTUISupported(view string) bool {
	return view == ViewInspectBuild
}

// Run starts the TUI for view.
func Run(view string, data any) error {
	if !IsTUISupported(view) {
		return fmt.Errorf("TUI mode is not supported for %s", view)
	}
	build, ok := data.(*reader.InspectBuildResponse)
	if !ok {
		return fmt.Errorf("invalid data type %T for %s", data, view)
	}
	return RunInspectTUI(build)
}
