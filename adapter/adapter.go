// Package adapter defines the notification boundary for finished resolutions.
//
// Adapters publish one resolve_completed notification per resolution to a
// downstream system. The launcher owns adapter lifecycle; users provide
// configuration only.
package adapter

import (
	"context"
	"time"

	"github.com/ostorc/msbuild/runtime"
	"github.com/ostorc/msbuild/types"
)

// EventTypeResolveCompleted is the only notification type.
const EventTypeResolveCompleted = "resolve_completed"

// ResolveCompletedEvent is the payload published when a resolution finishes.
type ResolveCompletedEvent struct {
	EventType       string `json:"event_type"`
	Version         string `json:"version"`
	BuildID         string `json:"build_id"`
	NodeID          int    `json:"node_id"`
	Outcome         string `json:"outcome"`
	Message         string `json:"message,omitempty"`
	ExitCode        int    `json:"exit_code"`
	ResolvedFiles   int    `json:"resolved_files"`
	EventCount      int    `json:"event_count"`
	EventsDropped   int    `json:"events_dropped"`
	DurationMs      int64  `json:"duration_ms"`
	// ArchivePath locates the archived records, empty when archiving is off.
	ArchivePath string `json:"archive_path,omitempty"`
	Timestamp   string `json:"timestamp"`
}

// NewResolveCompletedEvent summarizes res for publishing.
func NewResolveCompletedEvent(res *runtime.Resolution, exitCode int, archivePath string, completedAt time.Time) *ResolveCompletedEvent {
	ev := &ResolveCompletedEvent{
		EventType:       EventTypeResolveCompleted,
		Version:         types.Version,
		ExitCode:        exitCode,
		EventsDropped:   res.EventsDropped,
		DurationMs:      res.Duration.Milliseconds(),
		ArchivePath:     archivePath,
		Timestamp:       completedAt.UTC().Format(time.RFC3339),
	}
	if res.Meta != nil {
		ev.BuildID = res.Meta.SessionID
		ev.NodeID = res.Meta.NodeID
	}
	if res.Outcome != nil {
		ev.Outcome = string(res.Outcome.Status)
		ev.Message = res.Outcome.Message
	}
	if r := res.Result; r != nil {
		ev.EventCount = r.EventCount
		ev.ResolvedFiles = r.Response.ItemCount()
	}
	return ev
}

// Adapter publishes resolve_completed notifications.
type Adapter interface {
	// Publish sends one notification. Must respect ctx cancellation.
	Publish(ctx context.Context, event *ResolveCompletedEvent) error

	// Close releases adapter resources.
	Close() error
}
