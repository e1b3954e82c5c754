// Package lode archives completed resolutions in a Lode dataset.
//
// Each resolution is written as one snapshot holding a resolution record
// followed by one record per forwarded build event. Records are partitioned
// by day, build_id and record_kind.
package lode

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ostorc/msbuild/runtime"
)

// DefaultDataset is the dataset ID used when none is configured.
const DefaultDataset = "rar"

// DeriveDay computes the partition day from a timestamp.
// Format: YYYY-MM-DD in UTC.
func DeriveDay(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// Config holds archive partition settings for one build session.
type Config struct {
	// Dataset is the Lode dataset ID.
	Dataset string
	// BuildID identifies the launcher session (the build).
	BuildID string
	// Day is the partition day derived from the session start.
	Day string
}

// Validate checks that all partition keys are set.
func (c *Config) Validate() error {
	if c.Dataset == "" {
		return errors.New("archive dataset must be non-empty")
	}
	if c.BuildID == "" {
		return errors.New("archive build_id must be non-empty")
	}
	if c.Day == "" {
		return errors.New("archive day must be non-empty")
	}
	return nil
}

// Client abstracts the storage behind the archive.
type Client interface {
	// WriteResolution writes a resolution and its events as one batch.
	// Events keep their order.
	WriteResolution(ctx context.Context, rec *ResolutionRecord, events []*EventRecord) error

	// Close releases client resources.
	Close() error
}

// Archive turns resolutions into records and hands them to a Client.
type Archive struct {
	config Config
	client Client
}

// NewArchive creates an archive for one build session.
func NewArchive(config Config, client Client) *Archive {
	return &Archive{config: config, client: client}
}

// Record archives res. completedAt stamps the resolution record.
func (a *Archive) Record(ctx context.Context, res *runtime.Resolution, exitCode int, completedAt time.Time) error {
	rec, events := NewRecords(a.config, res, exitCode, completedAt)
	return a.client.WriteResolution(ctx, rec, events)
}

// Close closes the underlying client.
func (a *Archive) Close() error {
	return a.client.Close()
}

// StubClient records writes in memory without persisting.
type StubClient struct {
	mu          sync.Mutex
	Resolutions []*ResolutionRecord
	Events      [][]*EventRecord
	Closed      bool
	// Err is returned from WriteResolution when set.
	Err error
}

// NewStubClient creates a new stub client.
func NewStubClient() *StubClient {
	return &StubClient{}
}

// WriteResolution implements Client.
func (c *StubClient) WriteResolution(_ context.Context, rec *ResolutionRecord, events []*EventRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return c.Err
	}
	c.Resolutions = append(c.Resolutions, rec)
	c.Events = append(c.Events, events)
	return nil
}

// Close implements Client.
func (c *StubClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Closed = true
	return nil
}

// Verify StubClient implements Client.
var _ Client = (*StubClient)(nil)
