package lode

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/justapithecus/lode/lode"
)

// ErrNoResolutionsFound is returned when the dataset holds no resolution
// matching the query.
var ErrNoResolutionsFound = errors.New("no resolution records found")

// ArchivedResolution is a resolution read back with its events.
type ArchivedResolution struct {
	Resolution *ResolutionRecord
	Events     []*EventRecord
}

// QueryBuild reads every resolution archived for buildID, oldest first.
// Returns ErrNoResolutionsFound when there are none.
func QueryBuild(ctx context.Context, ds lode.Dataset, buildID string) ([]*ArchivedResolution, error) {
	if buildID == "" {
		return nil, errors.New("build id must be non-empty")
	}

	snapshots, err := ds.Snapshots(ctx)
	if err != nil {
		return nil, WrapReadError(err, fmt.Sprintf("%s/snapshots", ds.ID()))
	}

	var out []*ArchivedResolution
	for _, snap := range snapshots {
		if !snapshotMatchesFilter(snap, "build_id", buildID) {
			continue
		}

		data, err := ds.Read(ctx, snap.ID)
		if err != nil {
			return nil, WrapReadError(err, fmt.Sprintf("%s/snapshot/%s", ds.ID(), snap.ID))
		}

		archived, err := decodeSnapshot(data, buildID)
		if err != nil {
			return nil, fmt.Errorf("snapshot %s: %w", snap.ID, err)
		}
		if archived != nil {
			out = append(out, archived)
		}
	}

	if len(out) == 0 {
		return nil, ErrNoResolutionsFound
	}
	return out, nil
}

// decodeSnapshot groups one snapshot's records. Path filtering is coarse;
// record fields decide membership.
func decodeSnapshot(data []any, buildID string) (*ArchivedResolution, error) {
	var archived ArchivedResolution
	for _, item := range data {
		m, ok := item.(map[string]any)
		if !ok || toString(m["build_id"]) != buildID {
			continue
		}
		switch toString(m["record_kind"]) {
		case RecordKindResolution:
			var rec ResolutionRecord
			if err := fromRecordMap(m, &rec); err != nil {
				return nil, err
			}
			archived.Resolution = &rec
		case RecordKindEvent:
			var ev EventRecord
			if err := fromRecordMap(m, &ev); err != nil {
				return nil, err
			}
			archived.Events = append(archived.Events, &ev)
		}
	}
	if archived.Resolution == nil {
		return nil, nil
	}
	sort.SliceStable(archived.Events, func(i, j int) bool {
		return archived.Events[i].Seq < archived.Events[j].Seq
	})
	return &archived, nil
}

// toString converts a value to string, returning "" for nil or non-string.
func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
