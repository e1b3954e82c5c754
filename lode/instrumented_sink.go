package lode

import (
	"context"

	"github.com/ostorc/msbuild/metrics"
)

// InstrumentedClient wraps a Client and counts archive writes on a
// metrics collector.
type InstrumentedClient struct {
	inner     Client
	collector *metrics.Collector
}

// NewInstrumentedClient wraps a client with metrics instrumentation.
func NewInstrumentedClient(inner Client, collector *metrics.Collector) *InstrumentedClient {
	return &InstrumentedClient{inner: inner, collector: collector}
}

// WriteResolution delegates to the inner client and records the outcome.
func (c *InstrumentedClient) WriteResolution(ctx context.Context, rec *ResolutionRecord, events []*EventRecord) error {
	err := c.inner.WriteResolution(ctx, rec, events)
	if err != nil {
		c.collector.IncArchiveWriteFailure()
	} else {
		c.collector.IncArchiveWriteSuccess()
	}
	return err
}

// Close delegates to the inner client.
func (c *InstrumentedClient) Close() error {
	return c.inner.Close()
}

// Verify InstrumentedClient implements Client.
var _ Client = (*InstrumentedClient)(nil)
