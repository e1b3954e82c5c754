package runtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ostorc/msbuild/buildevent"
	"github.com/ostorc/msbuild/contract"
	"github.com/ostorc/msbuild/ipc"
	"github.com/ostorc/msbuild/log"
	"github.com/ostorc/msbuild/metrics"
	"github.com/ostorc/msbuild/types"
)

// ErrNodeTerminated is returned when the channel ends before a result arrives.
var ErrNodeTerminated = errors.New("resolution node terminated before returning a result")

// NodeProvider is the part of Provider the orchestrator drives.
type NodeProvider interface {
	CreateNode(ctx context.Context, nodeID int, factory PacketFactory, configuration *ipc.NodeConfiguration) error
	SendData(nodeID int, packet ipc.Packet)
	ShutdownConnectedNodes(enableReuse bool)
}

// ResolveConfig configures a single resolution invocation.
type ResolveConfig struct {
	// Meta is the session identity; Meta.NodeID is the node id to create.
	Meta *types.NodeMeta
	// Provider acquires and talks to the worker.
	Provider NodeProvider
	// Parameters are sent in the configuration packet.
	Parameters types.BuildParameters
	// Sink receives the events carried by the result, in category order.
	// If nil, events are counted and discarded.
	Sink buildevent.Sink
	// Logger overrides the logger derived from Meta.
	Logger *log.Logger
	// Collector is optional; all Collector methods are nil-safe.
	Collector *metrics.Collector
}

// Resolution is the engine-side record of one invocation.
type Resolution struct {
	Meta     *types.NodeMeta
	Outcome  *types.Outcome
	Duration time.Duration
	// Result is nil unless the worker answered.
	Result *contract.Result
	// EventsForwarded is the number of events delivered to the sink.
	EventsForwarded int
	// EventsDropped is the number of events the worker reported but that
	// did not survive decoding.
	EventsDropped int
}

// ResolveOrchestrator runs one request through a dedicated worker. It is the
// PacketFactory registered with the provider for its node.
type ResolveOrchestrator struct {
	config    *ResolveConfig
	logger    *log.Logger
	startTime time.Time

	results    chan *contract.Result
	terminated chan error
}

// NewResolveOrchestrator creates an orchestrator.
// Returns error if the session metadata is invalid.
func NewResolveOrchestrator(config *ResolveConfig) (*ResolveOrchestrator, error) {
	if config.Meta == nil {
		return nil, errors.New("invalid session metadata: meta is nil")
	}
	if err := config.Meta.Validate(); err != nil {
		return nil, fmt.Errorf("invalid session metadata: %w", err)
	}
	if config.Provider == nil {
		return nil, errors.New("provider is required")
	}
	logger := config.Logger
	if logger == nil {
		logger = log.NewLogger(config.Meta)
	}
	return &ResolveOrchestrator{
		config:     config,
		logger:     logger,
		results:    make(chan *contract.Result, 1),
		terminated: make(chan error, 1),
	}, nil
}

// RoutePacket implements PacketFactory.
func (r *ResolveOrchestrator) RoutePacket(nodeID int, p ipc.Packet) {
	res, ok := p.(*ipc.ResolveResult)
	if !ok {
		r.logger.Warn("unexpected packet from resolution node", map[string]any{
			"node_id": nodeID,
			"type":    string(p.Type()),
		})
		return
	}
	select {
	case r.results <- res.Result:
	default:
		r.logger.Warn("discarding unsolicited result", map[string]any{"node_id": nodeID})
	}
}

// NodeTerminated implements PacketFactory.
func (r *ResolveOrchestrator) NodeTerminated(_ int, err error) {
	select {
	case r.terminated <- err:
	default:
	}
}

// Execute runs the invocation end-to-end:
//  1. Create the node (launch or reuse, handshake, configuration)
//  2. Send the request
//  3. Wait for the result, termination or cancellation
//  4. Forward events to the sink
//  5. End the session, leaving the worker up if reuse is enabled
//
// The returned Resolution is always non-nil. The error is a
// *types.LaunchError, ErrNodeTerminated, a context error, or an InternalError.
// A result with TaskResult=false is an outcome, not an error.
func (r *ResolveOrchestrator) Execute(ctx context.Context, req *contract.Request) (*Resolution, error) {
	r.startTime = time.Now()
	r.config.Collector.IncResolveStarted()
	nodeID := r.config.Meta.NodeID

	if req == nil {
		err := types.NewInternalError("execute", "request is nil")
		return r.buildResult(&types.Outcome{Status: types.OutcomeNodeCrash, Message: err.Error()}, nil), err
	}

	r.logger.Info("starting resolution", map[string]any{
		"node_id":    nodeID,
		"assemblies": len(req.Assemblies),
		"files":      len(req.AssemblyFiles),
	})

	err := r.config.Provider.CreateNode(ctx, nodeID, r, &ipc.NodeConfiguration{
		NodeID:          nodeID,
		SessionID:       r.config.Meta.SessionID,
		BuildParameters: r.config.Parameters,
	})
	if err != nil {
		status := types.OutcomeLaunchFailure
		if types.IsInternalError(err) {
			status = types.OutcomeNodeCrash
		}
		return r.buildResult(&types.Outcome{Status: status, Message: err.Error()}, nil), err
	}

	r.config.Provider.SendData(nodeID, &ipc.ResolveRequest{Request: req})

	var result *contract.Result
	select {
	case result = <-r.results:
	case termErr := <-r.terminated:
		// A result routed just before termination still wins.
		select {
		case result = <-r.results:
		default:
			msg := "node closed the channel"
			if termErr != nil {
				msg = termErr.Error()
			}
			r.logger.Error("resolution node terminated", map[string]any{"error": msg})
			return r.buildResult(&types.Outcome{
				Status:  types.OutcomeNodeCrash,
				Message: fmt.Sprintf("%s: %s", ErrNodeTerminated, msg),
			}, nil), ErrNodeTerminated
		}
	case <-ctx.Done():
		r.config.Provider.ShutdownConnectedNodes(false)
		return r.buildResult(&types.Outcome{
			Status:  types.OutcomeNodeCrash,
			Message: fmt.Sprintf("resolution canceled: %v", ctx.Err()),
		}, nil), ctx.Err()
	}

	r.config.Provider.ShutdownConnectedNodes(r.config.Parameters.EnableNodeReuse)

	outcome := DetermineOutcome(result)
	res := r.buildResult(outcome, result)
	r.logger.Info("resolution completed", map[string]any{
		"outcome":  string(outcome.Status),
		"duration": res.Duration.String(),
		"events":   res.EventsForwarded,
		"dropped":  res.EventsDropped,
	})
	return res, nil
}

// buildResult constructs the final resolution and records outcome metrics.
func (r *ResolveOrchestrator) buildResult(outcome *types.Outcome, result *contract.Result) *Resolution {
	res := &Resolution{
		Meta:     r.config.Meta,
		Outcome:  outcome,
		Duration: time.Since(r.startTime),
		Result:   result,
	}

	if result != nil {
		for _, ev := range result.Events() {
			if r.config.Sink != nil {
				r.config.Sink.LogEvent(ev)
			}
			res.EventsForwarded++
		}
		if dropped := result.EventCount - res.EventsForwarded; dropped > 0 {
			res.EventsDropped = dropped
			r.logger.Warn("events dropped in transit", map[string]any{
				"reported": result.EventCount,
				"decoded":  res.EventsForwarded,
			})
		}
		r.config.Collector.AddEventsForwarded(res.EventsForwarded)
		r.config.Collector.AddEventsDropped(res.EventsDropped)
	}

	if outcome.Status == types.OutcomeSuccess {
		r.config.Collector.IncResolveSucceeded()
	} else {
		r.config.Collector.IncResolveFailed()
	}
	return res
}
