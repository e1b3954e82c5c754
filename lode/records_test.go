package lode

import (
	"testing"
	"time"

	"github.com/ostorc/msbuild/runtime"
	"github.com/ostorc/msbuild/types"
)

func TestNewRecords(t *testing.T) {
	cfg := testConfig("build-1")
	completedAt := time.Date(2026, 10, 19, 9, 30, 0, 0, time.UTC)

	rec, events := NewRecords(cfg, testResolution(t, 2), 1, completedAt)

	if rec.RecordKind != RecordKindResolution {
		t.Errorf("record_kind = %q, want %q", rec.RecordKind, RecordKindResolution)
	}
	if rec.NodeID != 2 || rec.ExitCode != 1 || rec.DurationMs != 1500 {
		t.Errorf("identity = node %d exit %d duration %d", rec.NodeID, rec.ExitCode, rec.DurationMs)
	}
	if rec.Outcome != string(types.OutcomeTaskFailed) {
		t.Errorf("outcome = %q", rec.Outcome)
	}
	if rec.Ts != "2026-10-19T09:30:00Z" {
		t.Errorf("ts = %q", rec.Ts)
	}
	if rec.EventCount != 5 || rec.EventsForwarded != 4 || rec.EventsDropped != 1 {
		t.Errorf("event counts = %d/%d/%d", rec.EventCount, rec.EventsForwarded, rec.EventsDropped)
	}
	if len(rec.ResolvedFiles) != 1 || rec.ResolvedFiles[0] != "/refs/Foo.dll" {
		t.Errorf("resolved_files = %v", rec.ResolvedFiles)
	}
	if len(rec.CopyLocalFiles) != 1 {
		t.Errorf("copy_local_files = %v", rec.CopyLocalFiles)
	}
	if rec.Day != cfg.Day || rec.BuildID != cfg.BuildID {
		t.Errorf("partition = %s/%s", rec.Day, rec.BuildID)
	}

	if len(events) != 4 {
		t.Fatalf("got %d event records, want 4", len(events))
	}
	wantCategories := []string{"error", "warning", "message", "custom"}
	for i, ev := range events {
		if ev.Seq != i+1 {
			t.Errorf("events[%d].seq = %d", i, ev.Seq)
		}
		if ev.Category != wantCategories[i] {
			t.Errorf("events[%d].category = %q, want %q", i, ev.Category, wantCategories[i])
		}
		if ev.NodeID != 2 || ev.BuildID != "build-1" {
			t.Errorf("events[%d] identity = %d/%s", i, ev.NodeID, ev.BuildID)
		}
	}
	if events[0].Code != "MSB3245" || events[0].File != "app.csproj" || events[0].Line != 12 {
		t.Errorf("error location = %+v", events[0])
	}
	if events[2].Importance != "low" || events[2].Ts != "2026-10-19T09:00:00Z" {
		t.Errorf("message = %+v", events[2])
	}
	if events[3].ProjectFile != "lib.csproj" || events[3].Succeeded == nil || !*events[3].Succeeded {
		t.Errorf("custom = %+v", events[3])
	}
}

func TestNewRecords_NoResult(t *testing.T) {
	res := &runtime.Resolution{
		Meta:    &types.NodeMeta{SessionID: "build-1", NodeID: 1, Mode: "launcher"},
		Outcome: &types.Outcome{Status: types.OutcomeNodeCrash, Message: "node terminated"},
	}
	rec, events := NewRecords(testConfig("build-1"), res, 3, time.Now())
	if rec.Outcome != string(types.OutcomeNodeCrash) {
		t.Errorf("outcome = %q", rec.Outcome)
	}
	if events != nil {
		t.Errorf("expected no events, got %d", len(events))
	}
	if rec.ResolvedFiles != nil {
		t.Errorf("expected no files, got %v", rec.ResolvedFiles)
	}
}

func TestDeriveDay(t *testing.T) {
	loc := time.FixedZone("UTC+10", 10*3600)
	got := DeriveDay(time.Date(2026, 10, 20, 5, 0, 0, 0, loc))
	if got != "2026-10-19" {
		t.Errorf("DeriveDay = %q, want 2026-10-19", got)
	}
}
