package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/ostorc/msbuild/adapter"
	"github.com/ostorc/msbuild/buildevent"
	"github.com/ostorc/msbuild/cli/config"
	"github.com/ostorc/msbuild/cli/render"
	"github.com/ostorc/msbuild/contract"
	"github.com/ostorc/msbuild/log"
	rarlode "github.com/ostorc/msbuild/lode"
	"github.com/ostorc/msbuild/metrics"
	"github.com/ostorc/msbuild/runtime"
	"github.com/ostorc/msbuild/types"
)

// launcherNodeID is the node id the launcher assigns its resolution worker.
const launcherNodeID = 1

// reportFileName is the sidecar written next to archived records.
const reportFileName = "report.json"

// ResolveResponse is what resolve prints.
type ResolveResponse struct {
	BuildID       string   `json:"build_id" yaml:"build_id"`
	Outcome       string   `json:"outcome" yaml:"outcome"`
	Message       string   `json:"message,omitempty" yaml:"message,omitempty"`
	ExitCode      int      `json:"exit_code" yaml:"exit_code"`
	DurationMs    int64    `json:"duration_ms" yaml:"duration_ms"`
	ResolvedFiles []string `json:"resolved_files" yaml:"resolved_files"`
	CopyLocal     []string `json:"copy_local_files" yaml:"copy_local_files"`
	Events        int      `json:"events" yaml:"events"`
	EventsDropped int      `json:"events_dropped" yaml:"events_dropped"`
	Archive       string   `json:"archive,omitempty" yaml:"archive,omitempty"`
}

// ResolveCommand returns the resolve command.
// It is the only command that launches a resolution worker.
func ResolveCommand() *cli.Command {
	flags := []cli.Flag{
		&cli.StringFlag{
			Name:     "input",
			Aliases:  []string{"i"},
			Usage:    "Task input file (YAML or JSON, - for stdin)",
			Required: true,
		},
		ConfigFlag,
		&cli.StringFlag{
			Name:  "build-id",
			Usage: "Build ID used for logging and archiving (default: random UUID)",
		},
		&cli.StringFlag{
			Name:  "node-exe",
			Usage: "Worker executable (default: this binary)",
		},
		&cli.BoolFlag{
			Name:  "node-reuse",
			Usage: "Leave the worker running for later builds",
			Value: true,
		},
		&cli.BoolFlag{
			Name:  "low-priority",
			Usage: "Run the worker at reduced scheduling priority",
		},
		&cli.DurationFlag{
			Name:  "handshake-timeout",
			Usage: "Bound on the fingerprint exchange",
		},
		&cli.DurationFlag{
			Name:  "idle-timeout",
			Usage: "How long a reusable worker waits for the next build",
		},
		DiscoveryDirFlag,
		&cli.StringFlag{
			Name:  "report",
			Usage: "Write a JSON report to this path (- for stderr)",
		},
		&cli.BoolFlag{
			Name:    "quiet",
			Aliases: []string{"q"},
			Usage:   "Suppress build events and the result",
		},
		FormatFlag,
		NoColorFlag,
	}
	flags = append(flags, ArchiveFlags()...)
	flags = append(flags, AdapterFlags()...)

	return &cli.Command{
		Name:   "resolve",
		Usage:  "Resolve assembly references through an out-of-process worker",
		Flags:  flags,
		Action: resolveAction,
	}
}

// nodeChoice holds the resolved worker launch settings.
type nodeChoice struct {
	params           types.BuildParameters
	handshakeTimeout time.Duration
	idleTimeout      time.Duration
	discoveryDir     string
}

func resolveNodeChoice(c *cli.Context, cfg *config.Config) (nodeChoice, error) {
	params := cfg.BuildParameters()
	params.NodeExeLocation = resolveString(c, "node-exe", params.NodeExeLocation)
	params.EnableNodeReuse = resolveBool(c, "node-reuse", params.EnableNodeReuse)
	params.LowPriority = resolveBool(c, "low-priority", params.LowPriority)

	if params.NodeExeLocation == "" {
		self, err := os.Executable()
		if err != nil {
			return nodeChoice{}, fmt.Errorf("cannot locate worker executable, pass --node-exe: %w", err)
		}
		params.NodeExeLocation = self
	}

	return nodeChoice{
		params:           params,
		handshakeTimeout: resolveDuration(c, "handshake-timeout", cfg.Node.HandshakeTimeout.Duration),
		idleTimeout:      resolveDuration(c, "idle-timeout", cfg.Node.IdleTimeout.Duration),
		discoveryDir:     resolveString(c, "discovery-dir", cfg.Node.DiscoveryDir),
	}, nil
}

func resolveAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	archive := resolveArchiveChoice(c, cfg)
	if err := archive.validate(); err != nil {
		return cli.Exit(err.Error(), runtime.ExitCode(types.OutcomeLaunchFailure))
	}
	notify, err := resolveAdapterChoice(c, cfg)
	if err != nil {
		return cli.Exit(err.Error(), runtime.ExitCode(types.OutcomeLaunchFailure))
	}
	if err := notify.validate(); err != nil {
		return cli.Exit(err.Error(), runtime.ExitCode(types.OutcomeLaunchFailure))
	}
	node, err := resolveNodeChoice(c, cfg)
	if err != nil {
		return cli.Exit(err.Error(), runtime.ExitCode(types.OutcomeLaunchFailure))
	}

	input, err := loadTaskInput(c.String("input"), os.Stdin)
	if err != nil {
		return cli.Exit(err.Error(), runtime.ExitCode(types.OutcomeTaskFailed))
	}
	req, err := contract.NewRequest(input)
	if err != nil {
		return cli.Exit(err.Error(), runtime.ExitCode(types.OutcomeTaskFailed))
	}

	buildID := c.String("build-id")
	if buildID == "" {
		buildID = uuid.NewString()
	}
	meta := &types.NodeMeta{
		SessionID: buildID,
		NodeID:    launcherNodeID,
		Mode:      "launcher",
		PID:       os.Getpid(),
	}
	logger := log.NewLogger(meta)
	defer func() { _ = logger.Sync() }()
	collector := metrics.NewCollector("launcher", archive.backend, buildID)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	provider := runtime.NewProvider(runtime.ProviderConfig{
		Parameters:       &node.params,
		DiscoveryDir:     node.discoveryDir,
		HandshakeTimeout: node.handshakeTimeout,
		IdleTimeout:      node.idleTimeout,
		Logger:           logger,
		Collector:        collector,
	})

	quiet := c.Bool("quiet")
	var sink buildevent.Sink
	if !quiet {
		sink = buildevent.SinkFunc(func(ev buildevent.Event) {
			if line := formatEventLine(ev); line != "" {
				fmt.Fprintln(os.Stderr, line)
			}
		})
	}

	orchestrator, err := runtime.NewResolveOrchestrator(&runtime.ResolveConfig{
		Meta:       meta,
		Provider:   provider,
		Parameters: node.params,
		Sink:       sink,
		Logger:     logger,
		Collector:  collector,
	})
	if err != nil {
		return fmt.Errorf("failed to create orchestrator: %w", err)
	}

	startedAt := time.Now()
	res, execErr := orchestrator.Execute(ctx, req)
	if execErr != nil {
		logger.Error("resolution failed", map[string]any{"error": execErr.Error()})
	}
	if err := provider.ShutdownAllNodes(ctx); err != nil {
		logger.Warn("failed to sweep idle nodes", map[string]any{"error": err.Error()})
	}

	exitCode := runtime.ExitCode(res.Outcome.Status)
	completedAt := time.Now()

	// Archive before taking the metrics snapshot so write counts are included.
	var archiveClient *rarlode.LodeClient
	if archive.enabled() {
		archiveClient = recordResolution(ctx, archive, buildID, startedAt, completedAt, res, exitCode, collector, logger)
	}

	report := runtime.BuildResolveReport(res, collector.Snapshot(), exitCode)
	if path := c.String("report"); path != "" {
		if err := runtime.WriteResolveReport(report, path); err != nil {
			logger.Warn("failed to write report", map[string]any{"error": err.Error()})
		}
	}
	if archiveClient != nil {
		putReport(ctx, archiveClient, report, logger)
		_ = archiveClient.Close()
	}

	archivePath := ""
	if archive.enabled() {
		archivePath = archive.location()
	}
	if err := publishCompletion(ctx, notify, res, exitCode, archivePath, completedAt); err != nil {
		logger.Warn("failed to publish completion", map[string]any{
			"adapter": notify.kind,
			"error":   err.Error(),
		})
	}

	if !quiet {
		r, err := render.NewRenderer(c)
		if err != nil {
			return err
		}
		if err := r.Render(newResolveResponse(buildID, res, exitCode, archivePath)); err != nil {
			return err
		}
	}

	msg := ""
	if res.Outcome.Status == types.OutcomeLaunchFailure || res.Outcome.Status == types.OutcomeNodeCrash {
		msg = res.Outcome.Message
	}
	return cli.Exit(msg, exitCode)
}

// loadTaskInput reads a TaskInput from path, or from stdin when path is "-".
// JSON input is accepted as YAML. Unknown keys are rejected.
func loadTaskInput(path string, stdin io.Reader) (*contract.TaskInput, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("cannot read task input %q: %w", path, err)
	}

	var in contract.TaskInput
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&in); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("invalid task input %q: %w", path, err)
	}
	return &in, nil
}

// recordResolution archives res. Failures are logged and leave the exit
// code untouched; the returned client is nil when the archive is unusable.
func recordResolution(
	ctx context.Context,
	choice archiveChoice,
	buildID string,
	startedAt, completedAt time.Time,
	res *runtime.Resolution,
	exitCode int,
	collector *metrics.Collector,
	logger *log.Logger,
) *rarlode.LodeClient {
	client, cfg, err := choice.newArchiveClient(ctx, buildID, startedAt)
	if err != nil {
		collector.IncArchiveWriteFailure()
		logger.Warn("failed to open archive", map[string]any{"error": err.Error()})
		return nil
	}

	archive := rarlode.NewArchive(cfg, rarlode.NewInstrumentedClient(client, collector))
	if err := archive.Record(ctx, res, exitCode, completedAt); err != nil {
		logger.Warn("failed to archive resolution", map[string]any{"error": err.Error()})
	}
	return client
}

func putReport(ctx context.Context, w rarlode.FileWriter, report *runtime.ResolveReport, logger *log.Logger) {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		logger.Warn("failed to marshal report", map[string]any{"error": err.Error()})
		return
	}
	if err := w.PutFile(ctx, reportFileName, data); err != nil {
		logger.Warn("failed to archive report", map[string]any{"error": err.Error()})
	}
}

func publishCompletion(ctx context.Context, choice adapterChoice, res *runtime.Resolution, exitCode int, archivePath string, completedAt time.Time) error {
	a, err := choice.newAdapter()
	if err != nil || a == nil {
		return err
	}
	defer func() { _ = a.Close() }()
	return a.Publish(ctx, adapter.NewResolveCompletedEvent(res, exitCode, archivePath, completedAt))
}

func newResolveResponse(buildID string, res *runtime.Resolution, exitCode int, archivePath string) *ResolveResponse {
	resp := &ResolveResponse{
		BuildID:       buildID,
		Outcome:       string(res.Outcome.Status),
		Message:       res.Outcome.Message,
		ExitCode:      exitCode,
		DurationMs:    res.Duration.Milliseconds(),
		ResolvedFiles: []string{},
		CopyLocal:     []string{},
		Events:        res.EventsForwarded,
		EventsDropped: res.EventsDropped,
		Archive:       archivePath,
	}
	if res.Result != nil && res.Result.Response != nil {
		for _, item := range res.Result.Response.ResolvedFiles {
			resp.ResolvedFiles = append(resp.ResolvedFiles, item.ItemSpec())
		}
		for _, item := range res.Result.Response.CopyLocalFiles {
			resp.CopyLocal = append(resp.CopyLocal, item.ItemSpec())
		}
	}
	return resp
}

// formatEventLine renders an event the way build logs show diagnostics:
// "file(line,col): error CODE: message". Low-importance messages and custom
// events are skipped.
func formatEventLine(ev buildevent.Event) string {
	switch e := ev.(type) {
	case *buildevent.ErrorEvent:
		return diagnosticLine(&e.Location, "error", e.Message)
	case *buildevent.WarningEvent:
		return diagnosticLine(&e.Location, "warning", e.Message)
	case *buildevent.MessageEvent:
		if e.Importance == buildevent.ImportanceLow {
			return ""
		}
		return e.Message
	default:
		return ""
	}
}

func diagnosticLine(loc *buildevent.Location, kind, message string) string {
	prefix := ""
	if loc.File != "" {
		prefix = loc.File
		if loc.LineNumber > 0 {
			if loc.ColumnNumber > 0 {
				prefix += fmt.Sprintf("(%d,%d)", loc.LineNumber, loc.ColumnNumber)
			} else {
				prefix += fmt.Sprintf("(%d)", loc.LineNumber)
			}
		}
		prefix += ": "
	}
	code := ""
	if loc.Code != "" {
		code = " " + loc.Code
	}
	return fmt.Sprintf("%s%s%s: %s", prefix, kind, code, message)
}
