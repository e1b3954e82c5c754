package lode

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/justapithecus/lode/lode"
)

// FileWriter writes sidecar files next to a build's records.
type FileWriter interface {
	// PutFile writes a file under the build's files/ prefix.
	// The filename must not contain path separators or "..".
	PutFile(ctx context.Context, filename string, data []byte) error
}

// Verify LodeClient implements FileWriter.
var _ FileWriter = (*LodeClient)(nil)

// PutFile writes a sidecar file directly to the store, bypassing the
// dataset's snapshot machinery.
func (c *LodeClient) PutFile(ctx context.Context, filename string, data []byte) error {
	if filename == "" || strings.ContainsAny(filename, `/\`) || strings.Contains(filename, "..") {
		return fmt.Errorf("invalid sidecar filename %q", filename)
	}

	store, err := c.getOrCreateStore()
	if err != nil {
		return WrapInitError(err, c.config.Dataset)
	}

	path := c.buildFilePath(filename)
	if err := store.Put(ctx, path, bytes.NewReader(data)); err != nil {
		return WrapWriteError(err, path)
	}
	return nil
}

func (c *LodeClient) getOrCreateStore() (lode.Store, error) {
	c.storeOnce.Do(func() {
		c.store, c.storeErr = c.storeFactory()
	})
	return c.store, c.storeErr
}

// buildFilePath computes the sidecar path:
// datasets/<dataset>/partitions/day=<d>/build_id=<b>/files/<filename>
func (c *LodeClient) buildFilePath(filename string) string {
	return fmt.Sprintf("datasets/%s/partitions/day=%s/build_id=%s/files/%s",
		c.config.Dataset, c.config.Day, c.config.BuildID, filename)
}
