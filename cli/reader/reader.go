package reader

import (
	"context"
	"errors"

	"github.com/justapithecus/lode/lode"

	rarlode "github.com/ostorc/msbuild/lode"
	"github.com/ostorc/msbuild/runtime"
)

// ErrNoArchive is returned by InspectBuild when no archive is configured.
var ErrNoArchive = errors.New("no archive configured (set archive.backend or --archive-backend)")

// Reader reads archived builds and worker advertisements.
type Reader struct {
	dataset      lode.Dataset
	discoveryDir string
}

// New creates a reader. dataset may be nil when only nodes are listed.
func New(dataset lode.Dataset, discoveryDir string) *Reader {
	return &Reader{dataset: dataset, discoveryDir: discoveryDir}
}

// InspectBuild reads every resolution archived for buildID.
func (r *Reader) InspectBuild(ctx context.Context, buildID string) (*InspectBuildResponse, error) {
	if r.dataset == nil {
		return nil, ErrNoArchive
	}
	archived, err := rarlode.QueryBuild(ctx, r.dataset, buildID)
	if err != nil {
		return nil, err
	}

	resp := &InspectBuildResponse{BuildID: buildID}
	for _, a := range archived {
		resp.Resolutions = append(resp.Resolutions, toResolutionView(a))
	}
	return resp, nil
}

func toResolutionView(a *rarlode.ArchivedResolution) *ResolutionView {
	rec := a.Resolution
	view := &ResolutionView{
		NodeID:        rec.NodeID,
		Outcome:       rec.Outcome,
		Message:       rec.Message,
		ExitCode:      rec.ExitCode,
		DurationMs:    rec.DurationMs,
		CompletedAt:   rec.Ts,
		ResolvedFiles: rec.ResolvedFiles,
		CopyLocal:     rec.CopyLocalFiles,
		EventCount:    rec.EventCount,
		EventsDropped: rec.EventsDropped,
	}
	for _, ev := range a.Events {
		view.Events = append(view.Events, &EventView{
			Seq:      ev.Seq,
			Category: ev.Category,
			Code:     ev.Code,
			Message:  ev.Message,
			File:     ev.File,
			Line:     ev.Line,
		})
	}
	return view
}

// ListNodes lists advertised idle workers. Advertisements whose process
// is gone are reported as stale rather than skipped.
func (r *Reader) ListNodes() ([]NodeItem, error) {
	dir, err := runtime.DiscoveryDir(r.discoveryDir)
	if err != nil {
		return nil, err
	}
	entries, err := runtime.ListDiscovery(dir)
	if err != nil {
		return nil, err
	}

	items := make([]NodeItem, 0, len(entries))
	for _, d := range entries {
		state := NodeStateIdle
		if !d.Alive() {
			state = NodeStateStale
		}
		items = append(items, NodeItem{
			PID:         d.PID,
			Endpoint:    d.Endpoint,
			Fingerprint: d.Fingerprint,
			StartedAt:   d.StartedAt,
			State:       state,
		})
	}
	return items, nil
}
