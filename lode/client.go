package lode

import (
	"context"
	"fmt"
	"sync"

	"github.com/justapithecus/lode/lode"
)

// partitionKeys is the Hive layout shared by the write and read paths.
var partitionKeys = []string{"day", "build_id", "record_kind"}

// LodeClient is a Lode-backed implementation of Client.
type LodeClient struct {
	dataset lode.Dataset
	config  Config

	storeFactory lode.StoreFactory
	storeOnce    sync.Once
	store        lode.Store
	storeErr     error

	mu sync.Mutex // serializes dataset writes
}

// NewLodeClient creates a client with filesystem storage rooted at root.
func NewLodeClient(cfg Config, root string) (*LodeClient, error) {
	return NewLodeClientWithFactory(cfg, lode.NewFSFactory(root))
}

// NewLodeClientWithFactory creates a client with a custom store factory.
// Use lode.NewMemoryFactory() for testing.
func NewLodeClientWithFactory(cfg Config, factory lode.StoreFactory) (*LodeClient, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	ds, err := newDataset(cfg.Dataset, factory)
	if err != nil {
		return nil, WrapInitError(err, cfg.Dataset)
	}
	return &LodeClient{
		dataset:      ds,
		config:       cfg,
		storeFactory: factory,
	}, nil
}

func newDataset(dataset string, factory lode.StoreFactory) (lode.Dataset, error) {
	return lode.NewDataset(
		lode.DatasetID(dataset),
		factory,
		lode.WithHiveLayout(partitionKeys...),
		lode.WithCodec(lode.NewJSONLCodec()),
	)
}

// WriteResolution writes the resolution record followed by its events in a
// single snapshot.
func (c *LodeClient) WriteResolution(ctx context.Context, rec *ResolutionRecord, events []*EventRecord) error {
	if rec == nil {
		return fmt.Errorf("write resolution: nil record")
	}

	records := make([]any, 0, len(events)+1)
	m, err := toRecordMap(rec)
	if err != nil {
		return err
	}
	records = append(records, m)
	for _, ev := range events {
		m, err := toRecordMap(ev)
		if err != nil {
			return err
		}
		records = append(records, m)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.dataset.Write(ctx, records, lode.Metadata{}); err != nil {
		return WrapWriteError(err, c.buildPath())
	}
	return nil
}

// Close releases client resources.
func (c *LodeClient) Close() error {
	return nil
}

func (c *LodeClient) buildPath() string {
	return fmt.Sprintf("%s/day=%s/build_id=%s", c.config.Dataset, c.config.Day, c.config.BuildID)
}

// Verify LodeClient implements Client.
var _ Client = (*LodeClient)(nil)
