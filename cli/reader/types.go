// Package reader is the read side of the msbuild-rar CLI.
//
// It turns archived resolutions and discovery advertisements into the
// response types that inspect and nodes render. Nothing here mutates state.
package reader

// InspectBuildResponse describes every archived resolution of one build.
type InspectBuildResponse struct {
	BuildID     string            `json:"build_id" yaml:"build_id"`
	Resolutions []*ResolutionView `json:"resolutions" yaml:"resolutions"`
}

// Succeeded reports whether every resolution of the build succeeded.
func (r *InspectBuildResponse) Succeeded() bool {
	for _, res := range r.Resolutions {
		if res.Outcome != "success" {
			return false
		}
	}
	return len(r.Resolutions) > 0
}

// ResolutionView is one archived resolution.
type ResolutionView struct {
	NodeID        int          `json:"node_id" yaml:"node_id"`
	Outcome       string       `json:"outcome" yaml:"outcome"`
	Message       string       `json:"message,omitempty" yaml:"message,omitempty"`
	ExitCode      int          `json:"exit_code" yaml:"exit_code"`
	DurationMs    int64        `json:"duration_ms" yaml:"duration_ms"`
	CompletedAt   string       `json:"completed_at" yaml:"completed_at"`
	ResolvedFiles []string     `json:"resolved_files" yaml:"resolved_files"`
	CopyLocal     []string     `json:"copy_local_files" yaml:"copy_local_files"`
	EventCount    int          `json:"event_count" yaml:"event_count"`
	EventsDropped int          `json:"events_dropped" yaml:"events_dropped"`
	Events        []*EventView `json:"events" yaml:"events"`
}

// EventView is one archived build event.
type EventView struct {
	Seq      int    `json:"seq" yaml:"seq"`
	Category string `json:"category" yaml:"category"`
	Code     string `json:"code,omitempty" yaml:"code,omitempty"`
	Message  string `json:"message" yaml:"message"`
	File     string `json:"file,omitempty" yaml:"file,omitempty"`
	Line     int32  `json:"line,omitempty" yaml:"line,omitempty"`
}

// NodeItem is one advertised idle worker.
type NodeItem struct {
	PID         int    `json:"pid" yaml:"pid"`
	Endpoint    string `json:"endpoint" yaml:"endpoint"`
	Fingerprint string `json:"fingerprint" yaml:"fingerprint"`
	StartedAt   string `json:"started_at" yaml:"started_at"`
	State       string `json:"state" yaml:"state"`
}

// Node states reported by ListNodes.
const (
	NodeStateIdle  = "idle"
	NodeStateStale = "stale"
)
