package lode

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ostorc/msbuild/buildevent"
	"github.com/ostorc/msbuild/contract"
	"github.com/ostorc/msbuild/runtime"
)

// Record kind discriminator values. record_kind is also a partition key.
const (
	RecordKindResolution = "resolution"
	RecordKindEvent      = "event"
)

// ResolutionRecord is the storage format for one completed resolution.
type ResolutionRecord struct {
	RecordKind string `json:"record_kind"`

	NodeID     int    `json:"node_id"`
	Outcome    string `json:"outcome"`
	Message    string `json:"message"`
	ExitCode   int    `json:"exit_code"`
	DurationMs int64  `json:"duration_ms"`
	TaskResult bool   `json:"task_result"`
	Ts         string `json:"ts"`

	EventCount      int `json:"event_count"`
	EventsForwarded int `json:"events_forwarded"`
	EventsDropped   int `json:"events_dropped"`

	ResolvedFiles           []string `json:"resolved_files"`
	ResolvedDependencyFiles []string `json:"resolved_dependency_files"`
	RelatedFiles            []string `json:"related_files"`
	CopyLocalFiles          []string `json:"copy_local_files"`
	SuggestedRedirects      int      `json:"suggested_redirects"`
	DependsOnSystemRuntime  string   `json:"depends_on_system_runtime,omitempty"`
	DependsOnNETStandard    string   `json:"depends_on_netstandard,omitempty"`
	UnresolvedConflicts     int      `json:"unresolved_conflicts"`

	// Partition keys
	Day     string `json:"day"`
	BuildID string `json:"build_id"`
}

// EventRecord is the storage format for one forwarded build event.
type EventRecord struct {
	RecordKind string `json:"record_kind"`

	NodeID     int    `json:"node_id"`
	Seq        int    `json:"seq"`
	Category   string `json:"category"`
	Message    string `json:"message"`
	SenderName string `json:"sender_name,omitempty"`
	Ts         string `json:"ts,omitempty"`

	// Diagnostic location, empty for custom events.
	Code   string `json:"code,omitempty"`
	File   string `json:"file,omitempty"`
	Line   int32  `json:"line,omitempty"`
	Column int32  `json:"column,omitempty"`

	Importance  string `json:"importance,omitempty"`
	ProjectFile string `json:"project_file,omitempty"`
	Succeeded   *bool  `json:"succeeded,omitempty"`

	// Partition keys
	Day     string `json:"day"`
	BuildID string `json:"build_id"`
}

// NewRecords converts a resolution into storage records.
// Events are numbered from 1 in forwarding order.
func NewRecords(cfg Config, res *runtime.Resolution, exitCode int, completedAt time.Time) (*ResolutionRecord, []*EventRecord) {
	rec := &ResolutionRecord{
		RecordKind:      RecordKindResolution,
		ExitCode:        exitCode,
		DurationMs:      res.Duration.Milliseconds(),
		Ts:              completedAt.UTC().Format(time.RFC3339Nano),
		EventsForwarded: res.EventsForwarded,
		EventsDropped:   res.EventsDropped,
		Day:             cfg.Day,
		BuildID:         cfg.BuildID,
	}
	if res.Meta != nil {
		rec.NodeID = res.Meta.NodeID
	}
	if res.Outcome != nil {
		rec.Outcome = string(res.Outcome.Status)
		rec.Message = res.Outcome.Message
	}

	r := res.Result
	if r == nil {
		return rec, nil
	}
	rec.TaskResult = r.TaskResult
	rec.EventCount = r.EventCount
	if resp := r.Response; resp != nil {
		rec.ResolvedFiles = itemSpecs(resp.ResolvedFiles)
		rec.ResolvedDependencyFiles = itemSpecs(resp.ResolvedDependencyFiles)
		rec.RelatedFiles = itemSpecs(resp.RelatedFiles)
		rec.CopyLocalFiles = itemSpecs(resp.CopyLocalFiles)
		rec.SuggestedRedirects = len(resp.SuggestedRedirects)
		rec.DependsOnSystemRuntime = resp.DependsOnSystemRuntime
		rec.DependsOnNETStandard = resp.DependsOnNETStandard
		rec.UnresolvedConflicts = resp.UnresolvedAssemblyConflictsNum
	}

	events := r.Events()
	out := make([]*EventRecord, 0, len(events))
	for i, ev := range events {
		out = append(out, toEventRecord(ev, i+1, rec.NodeID, cfg))
	}
	return rec, out
}

func toEventRecord(ev buildevent.Event, seq, nodeID int, cfg Config) *EventRecord {
	args := ev.Common()
	rec := &EventRecord{
		RecordKind: RecordKindEvent,
		NodeID:     nodeID,
		Seq:        seq,
		Category:   ev.Category().String(),
		Message:    args.Message,
		SenderName: args.SenderName,
		Day:        cfg.Day,
		BuildID:    cfg.BuildID,
	}
	if !args.Timestamp.IsZero() {
		rec.Ts = args.Timestamp.UTC().Format(time.RFC3339Nano)
	}

	switch e := ev.(type) {
	case *buildevent.ErrorEvent:
		rec.setLocation(&e.Location)
	case *buildevent.WarningEvent:
		rec.setLocation(&e.Location)
	case *buildevent.MessageEvent:
		rec.setLocation(&e.Location)
		rec.Importance = e.Importance.String()
	case *buildevent.ProjectStartedEvent:
		rec.ProjectFile = e.ProjectFile
	case *buildevent.ProjectFinishedEvent:
		rec.ProjectFile = e.ProjectFile
		succeeded := e.Succeeded
		rec.Succeeded = &succeeded
	}
	return rec
}

func (r *EventRecord) setLocation(l *buildevent.Location) {
	r.Code = l.Code
	r.File = l.File
	r.Line = l.LineNumber
	r.Column = l.ColumnNumber
}

func itemSpecs(items []contract.ReadOnlyTaskItem) []string {
	if len(items) == 0 {
		return nil
	}
	specs := make([]string, len(items))
	for i, item := range items {
		specs[i] = item.Spec
	}
	return specs
}

// toRecordMap converts a record to the map form Lode's HiveLayout partitions on.
func toRecordMap(record any) (map[string]any, error) {
	data, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("marshal record: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal record: %w", err)
	}
	return m, nil
}

// fromRecordMap decodes a record read back from the dataset.
func fromRecordMap(m map[string]any, record any) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	return json.Unmarshal(data, record)
}
