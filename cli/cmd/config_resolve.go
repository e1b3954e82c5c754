package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/ostorc/msbuild/cli/config"
)

// loadConfig reads --config, or ./msbuild-rar.yaml when present.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.LoadOrDefault(c.String("config"))
	if err != nil {
		return nil, cli.Exit(err.Error(), 1)
	}
	return cfg, nil
}

// resolveString returns the flag value if set, else fallback when non-empty,
// else the flag's own default.
func resolveString(c *cli.Context, name, fallback string) string {
	if c.IsSet(name) || fallback == "" {
		return c.String(name)
	}
	return fallback
}

// resolveInt returns the flag value if set, else fallback.
func resolveInt(c *cli.Context, name string, fallback int) int {
	if c.IsSet(name) {
		return c.Int(name)
	}
	return fallback
}

// resolveBool returns the flag value if set, else fallback.
func resolveBool(c *cli.Context, name string, fallback bool) bool {
	if c.IsSet(name) {
		return c.Bool(name)
	}
	return fallback
}

// resolveDuration returns the flag value if set, else fallback.
func resolveDuration(c *cli.Context, name string, fallback time.Duration) time.Duration {
	if c.IsSet(name) {
		return c.Duration(name)
	}
	return fallback
}

// parseHeaders turns key=value pairs into a header map merged over base.
func parseHeaders(base map[string]string, pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(base)+len(pairs))
	for k, v := range base {
		out[k] = v
	}
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --adapter-header %q: expected key=value", pair)
		}
		out[key] = value
	}
	return out, nil
}
