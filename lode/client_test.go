package lode

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/justapithecus/lode/lode"
)

func TestNewLodeClient_InvalidConfig(t *testing.T) {
	_, err := NewLodeClientWithFactory(Config{Dataset: "rar"}, lode.NewMemoryFactory())
	if err == nil {
		t.Fatal("expected error for missing build_id and day")
	}
}

func TestLodeClient_WriteAndQueryBuild(t *testing.T) {
	factory := sharedFactory(lode.NewMemory())
	cfg := testConfig("build-1")

	client, err := NewLodeClientWithFactory(cfg, factory)
	if err != nil {
		t.Fatalf("NewLodeClientWithFactory failed: %v", err)
	}
	archive := NewArchive(cfg, client)

	completedAt := time.Date(2026, 10, 19, 9, 30, 0, 0, time.UTC)
	if err := archive.Record(t.Context(), testResolution(t, 1), 1, completedAt); err != nil {
		t.Fatalf("Record node 1 failed: %v", err)
	}
	if err := archive.Record(t.Context(), testResolution(t, 2), 1, completedAt.Add(time.Second)); err != nil {
		t.Fatalf("Record node 2 failed: %v", err)
	}
	if err := archive.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	ds, err := NewReadDataset(cfg.Dataset, factory)
	if err != nil {
		t.Fatalf("NewReadDataset failed: %v", err)
	}
	got, err := QueryBuild(t.Context(), ds, "build-1")
	if err != nil {
		t.Fatalf("QueryBuild failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d resolutions, want 2", len(got))
	}

	first := got[0]
	if first.Resolution.NodeID != 1 {
		t.Errorf("first resolution node = %d, want 1", first.Resolution.NodeID)
	}
	if first.Resolution.Outcome != "task_failed" || first.Resolution.DurationMs != 1500 {
		t.Errorf("first resolution = %+v", first.Resolution)
	}
	if len(first.Resolution.ResolvedFiles) != 1 || first.Resolution.ResolvedFiles[0] != "/refs/Foo.dll" {
		t.Errorf("resolved files = %v", first.Resolution.ResolvedFiles)
	}
	if len(first.Events) != 4 {
		t.Fatalf("got %d events, want 4", len(first.Events))
	}
	for i, ev := range first.Events {
		if ev.Seq != i+1 {
			t.Errorf("events[%d].seq = %d", i, ev.Seq)
		}
	}
	if first.Events[0].Code != "MSB3245" {
		t.Errorf("first event code = %q", first.Events[0].Code)
	}
	if got[1].Resolution.NodeID != 2 {
		t.Errorf("second resolution node = %d, want 2", got[1].Resolution.NodeID)
	}
}

func TestQueryBuild_FiltersByBuild(t *testing.T) {
	factory := sharedFactory(lode.NewMemory())

	for _, id := range []string{"b-1", "b-10"} {
		client, err := NewLodeClientWithFactory(testConfig(id), factory)
		if err != nil {
			t.Fatalf("client %s: %v", id, err)
		}
		if err := NewArchive(testConfig(id), client).Record(t.Context(), testResolution(t, 1), 0, time.Now()); err != nil {
			t.Fatalf("Record %s: %v", id, err)
		}
	}

	ds, err := NewReadDataset(DefaultDataset, factory)
	if err != nil {
		t.Fatalf("NewReadDataset failed: %v", err)
	}
	got, err := QueryBuild(t.Context(), ds, "b-1")
	if err != nil {
		t.Fatalf("QueryBuild failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d resolutions for b-1, want 1", len(got))
	}
	if got[0].Resolution.BuildID != "b-1" {
		t.Errorf("build_id = %q", got[0].Resolution.BuildID)
	}
}

func TestQueryBuild_NotFound(t *testing.T) {
	ds, err := NewReadDataset(DefaultDataset, lode.NewMemoryFactory())
	if err != nil {
		t.Fatalf("NewReadDataset failed: %v", err)
	}
	_, err = QueryBuild(t.Context(), ds, "missing")
	if !errors.Is(err, ErrNoResolutionsFound) {
		t.Errorf("err = %v, want ErrNoResolutionsFound", err)
	}
	if _, err := QueryBuild(t.Context(), ds, ""); err == nil {
		t.Error("expected error for empty build id")
	}
}

func TestLodeClient_WriteResolutionNil(t *testing.T) {
	client, err := NewLodeClientWithFactory(testConfig("b"), lode.NewMemoryFactory())
	if err != nil {
		t.Fatalf("NewLodeClientWithFactory failed: %v", err)
	}
	if err := client.WriteResolution(t.Context(), nil, nil); err == nil {
		t.Fatal("expected error for nil record")
	}
}

func TestLodeClient_FSRoundTrip(t *testing.T) {
	root := t.TempDir()
	cfg := testConfig("fs-build")

	client, err := NewLodeClient(cfg, root)
	if err != nil {
		t.Fatalf("NewLodeClient failed: %v", err)
	}
	if err := NewArchive(cfg, client).Record(t.Context(), testResolution(t, 1), 1, time.Now()); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	ds, err := NewReadDatasetFS(cfg.Dataset, root)
	if err != nil {
		t.Fatalf("NewReadDatasetFS failed: %v", err)
	}
	if ds.ID() != "rar" {
		t.Errorf("dataset ID = %q, want %q", ds.ID(), "rar")
	}
	got, err := QueryBuild(t.Context(), ds, "fs-build")
	if err != nil {
		t.Fatalf("QueryBuild failed: %v", err)
	}
	if len(got) != 1 || len(got[0].Events) != 4 {
		t.Fatalf("unexpected archive contents: %d resolutions", len(got))
	}
}

func TestLodeClient_PutFile(t *testing.T) {
	root := t.TempDir()
	cfg := testConfig("fs-build")
	client, err := NewLodeClient(cfg, root)
	if err != nil {
		t.Fatalf("NewLodeClient failed: %v", err)
	}

	if err := client.PutFile(t.Context(), "report.json", []byte(`{"outcome":"success"}`)); err != nil {
		t.Fatalf("PutFile failed: %v", err)
	}
	path := filepath.Join(root, "datasets", "rar", "partitions", "day=2026-10-19", "build_id=fs-build", "files", "report.json")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("sidecar not written at %s: %v", path, err)
	}
	if string(data) != `{"outcome":"success"}` {
		t.Errorf("sidecar = %q", data)
	}

	for _, bad := range []string{"", "../x", "a/b", `a\b`} {
		if err := client.PutFile(t.Context(), bad, nil); err == nil {
			t.Errorf("PutFile(%q) should fail", bad)
		}
	}
}

func TestS3Config(t *testing.T) {
	var empty S3Config
	if err := empty.Validate(); err == nil {
		t.Error("expected error for missing bucket")
	}

	tests := []struct {
		path, bucket, prefix string
	}{
		{"bucket", "bucket", ""},
		{"bucket/prefix", "bucket", "prefix"},
		{"bucket/a/b", "bucket", "a/b"},
	}
	for _, tt := range tests {
		bucket, prefix := ParseS3Path(tt.path)
		if bucket != tt.bucket || prefix != tt.prefix {
			t.Errorf("ParseS3Path(%q) = %q, %q", tt.path, bucket, prefix)
		}
	}
}

func TestMatchesPartitionValue(t *testing.T) {
	path := "datasets/rar/partitions/day=2026-10-19/build_id=b-10/record_kind=event/seg.jsonl"
	if !matchesPartitionValue(path, "build_id", "b-10") {
		t.Error("expected exact segment match")
	}
	if matchesPartitionValue(path, "build_id", "b-1") {
		t.Error("prefix must not match")
	}
}
