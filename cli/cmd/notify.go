package cmd

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/ostorc/msbuild/adapter"
	"github.com/ostorc/msbuild/adapter/redis"
	"github.com/ostorc/msbuild/adapter/webhook"
	"github.com/ostorc/msbuild/cli/config"
)

// adapterChoice holds the resolved notification settings.
type adapterChoice struct {
	kind    string // "", "webhook" or "redis"
	url     string
	channel string
	headers map[string]string
	timeout time.Duration
	retries int
}

// resolveAdapterChoice merges adapter flags over the config file.
func resolveAdapterChoice(c *cli.Context, cfg *config.Config) (adapterChoice, error) {
	headers, err := parseHeaders(cfg.Adapter.Headers, c.StringSlice("adapter-header"))
	if err != nil {
		return adapterChoice{}, err
	}
	retries := webhook.DefaultRetries
	if cfg.Adapter.Retries != nil {
		retries = *cfg.Adapter.Retries
	}
	return adapterChoice{
		kind:    resolveString(c, "adapter", cfg.Adapter.Type),
		url:     resolveString(c, "adapter-url", cfg.Adapter.URL),
		channel: resolveString(c, "adapter-channel", cfg.Adapter.Channel),
		headers: headers,
		timeout: resolveDuration(c, "adapter-timeout", cfg.Adapter.Timeout.Duration),
		retries: resolveInt(c, "adapter-retries", retries),
	}, nil
}

func (a adapterChoice) validate() error {
	switch a.kind {
	case "":
		return nil
	case "webhook", "redis":
	default:
		return fmt.Errorf("invalid --adapter %q (must be webhook or redis)", a.kind)
	}
	if a.url == "" {
		return fmt.Errorf("--adapter-url required when --adapter is %s", a.kind)
	}
	if a.retries < 0 {
		return fmt.Errorf("--adapter-retries must be >= 0, got %d", a.retries)
	}
	return nil
}

// newAdapter builds the configured adapter, or nil when none is selected.
func (a adapterChoice) newAdapter() (adapter.Adapter, error) {
	switch a.kind {
	case "":
		return nil, nil
	case "webhook":
		return webhook.New(webhook.Config{
			URL:     a.url,
			Headers: a.headers,
			Timeout: a.timeout,
			Retries: a.retries,
		})
	case "redis":
		return redis.New(redis.Config{
			URL:     a.url,
			Channel: a.channel,
			Timeout: a.timeout,
			Retries: a.retries,
		})
	default:
		return nil, fmt.Errorf("unknown adapter: %s", a.kind)
	}
}
