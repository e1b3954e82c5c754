package runtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/ostorc/msbuild/metrics"
	"github.com/ostorc/msbuild/types"
)

// ResolveReport is the structured JSON report written by --report.
type ResolveReport struct {
	SessionID  string              `json:"session_id"`
	NodeID     int                 `json:"node_id"`
	Outcome    types.OutcomeStatus `json:"outcome"`
	Message    string              `json:"message"`
	ExitCode   int                 `json:"exit_code"`
	DurationMs int64               `json:"duration_ms"`

	Events   *ReportEvents     `json:"events"`
	Response *ReportResponse   `json:"response,omitempty"`
	Metrics  *metrics.Snapshot `json:"metrics"`
}

// ReportEvents holds event counts in the report.
type ReportEvents struct {
	Reported  int `json:"reported"`
	Forwarded int `json:"forwarded"`
	Dropped   int `json:"dropped"`
	Errors    int `json:"errors"`
	Warnings  int `json:"warnings"`
	Messages  int `json:"messages"`
	Custom    int `json:"custom"`
}

// ReportResponse holds response item counts in the report.
type ReportResponse struct {
	ResolvedFiles           int    `json:"resolved_files"`
	ResolvedDependencyFiles int    `json:"resolved_dependency_files"`
	CopyLocalFiles          int    `json:"copy_local_files"`
	SuggestedRedirects      int    `json:"suggested_redirects"`
	DependsOnSystemRuntime  string `json:"depends_on_system_runtime,omitempty"`
	DependsOnNETStandard    string `json:"depends_on_netstandard,omitempty"`
	UnresolvedConflicts     int    `json:"unresolved_conflicts"`
}

// BuildResolveReport composes a ResolveReport from a Resolution and metrics
// snapshot. exitCode is the process exit code that will be returned.
func BuildResolveReport(res *Resolution, snap metrics.Snapshot, exitCode int) *ResolveReport {
	report := &ResolveReport{
		SessionID:  res.Meta.SessionID,
		NodeID:     res.Meta.NodeID,
		Outcome:    res.Outcome.Status,
		Message:    res.Outcome.Message,
		ExitCode:   exitCode,
		DurationMs: res.Duration.Milliseconds(),
		Events: &ReportEvents{
			Forwarded: res.EventsForwarded,
			Dropped:   res.EventsDropped,
		},
		Metrics: &snap,
	}

	if r := res.Result; r != nil {
		report.Events.Reported = r.EventCount
		report.Events.Errors = len(r.ErrorEvents)
		report.Events.Warnings = len(r.WarningEvents)
		report.Events.Messages = len(r.MessageEvents)
		report.Events.Custom = len(r.CustomEvents)
		if resp := r.Response; resp != nil {
			report.Response = &ReportResponse{
				ResolvedFiles:           len(resp.ResolvedFiles),
				ResolvedDependencyFiles: len(resp.ResolvedDependencyFiles),
				CopyLocalFiles:          len(resp.CopyLocalFiles),
				SuggestedRedirects:      len(resp.SuggestedRedirects),
				DependsOnSystemRuntime:  resp.DependsOnSystemRuntime,
				DependsOnNETStandard:    resp.DependsOnNETStandard,
				UnresolvedConflicts:     resp.UnresolvedAssemblyConflictsNum,
			}
		}
	}

	return report
}

// WriteResolveReport writes the report as JSON to path.
// If path is "-", writes to stderr.
func WriteResolveReport(report *ResolveReport, path string) error {
	if path == "" {
		return errors.New("report path must not be empty")
	}

	if path == "-" {
		if err := writeResolveReportTo(report, os.Stderr); err != nil {
			return fmt.Errorf("failed to write report to stderr: %w", err)
		}
		return nil
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("failed to write report to %s: %w", path, err)
	}
	if err := writeResolveReportTo(report, f); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write report to %s: %w", path, err)
	}
	return f.Close()
}

// writeResolveReportTo writes report JSON to any writer.
func writeResolveReportTo(report *ResolveReport, w io.Writer) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}
