package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/justapithecus/lode/lode"
	"github.com/urfave/cli/v2"

	"github.com/ostorc/msbuild/cli/config"
	rarlode "github.com/ostorc/msbuild/lode"
)

// archiveChoice holds the resolved archive settings.
type archiveChoice struct {
	backend   string // "", "fs" or "s3"
	path      string // fs: directory, s3: bucket/prefix
	dataset   string
	region    string
	endpoint  string
	pathStyle bool
}

// resolveArchiveChoice merges archive flags over the config file.
func resolveArchiveChoice(c *cli.Context, cfg *config.Config) archiveChoice {
	choice := archiveChoice{
		backend:   resolveString(c, "archive-backend", cfg.Archive.Backend),
		path:      resolveString(c, "archive-path", cfg.Archive.Path),
		dataset:   resolveString(c, "archive-dataset", cfg.Archive.Dataset),
		region:    resolveString(c, "archive-s3-region", cfg.Archive.Region),
		endpoint:  resolveString(c, "archive-s3-endpoint", cfg.Archive.Endpoint),
		pathStyle: resolveBool(c, "archive-s3-path-style", cfg.Archive.S3PathStyle),
	}
	if choice.dataset == "" {
		choice.dataset = rarlode.DefaultDataset
	}
	return choice
}

// enabled reports whether an archive backend was selected.
func (a archiveChoice) enabled() bool {
	return a.backend != ""
}

func (a archiveChoice) validate() error {
	switch a.backend {
	case "":
		return nil
	case "fs", "s3":
	default:
		return fmt.Errorf("invalid --archive-backend %q (must be fs or s3)", a.backend)
	}
	if a.path == "" {
		return fmt.Errorf("--archive-path required when --archive-backend is %s", a.backend)
	}
	return nil
}

// location renders the archive root for notifications.
func (a archiveChoice) location() string {
	if a.backend == "s3" {
		return "s3://" + a.path
	}
	return a.path
}

func (a archiveChoice) s3Config() rarlode.S3Config {
	bucket, prefix := rarlode.ParseS3Path(a.path)
	return rarlode.S3Config{
		Bucket:       bucket,
		Prefix:       prefix,
		Region:       a.region,
		Endpoint:     a.endpoint,
		UsePathStyle: a.pathStyle,
	}
}

// newArchiveClient opens the write client for one build.
func (a archiveChoice) newArchiveClient(ctx context.Context, buildID string, startedAt time.Time) (*rarlode.LodeClient, rarlode.Config, error) {
	cfg := rarlode.Config{
		Dataset: a.dataset,
		BuildID: buildID,
		Day:     rarlode.DeriveDay(startedAt),
	}

	var (
		client *rarlode.LodeClient
		err    error
	)
	switch a.backend {
	case "fs":
		client, err = rarlode.NewLodeClient(cfg, a.path)
	case "s3":
		client, err = rarlode.NewLodeS3Client(ctx, cfg, a.s3Config())
	default:
		err = fmt.Errorf("unknown archive backend: %s", a.backend)
	}
	if err != nil {
		return nil, cfg, err
	}
	return client, cfg, nil
}

// openReadDataset opens the dataset for queries. Returns nil when no
// archive is configured.
func (a archiveChoice) openReadDataset(ctx context.Context) (lode.Dataset, error) {
	switch a.backend {
	case "":
		return nil, nil
	case "fs":
		return rarlode.NewReadDatasetFS(a.dataset, a.path)
	case "s3":
		return rarlode.NewReadDatasetS3(ctx, a.dataset, a.s3Config())
	default:
		return nil, fmt.Errorf("unknown archive backend: %s", a.backend)
	}
}
