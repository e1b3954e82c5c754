// Package types defines core domain types shared by the launcher and the worker.
//
//nolint:revive // types is a common Go package naming convention
package types

import (
	"errors"
	"fmt"
)

// NodeMode identifies which kind of node a worker process hosts.
type NodeMode int

// NodeModeRAR is the dedicated assembly-resolution worker mode.
// The value matches the engine's historical /nodemode:3.
const NodeModeRAR NodeMode = 3

func (m NodeMode) String() string {
	if m == NodeModeRAR {
		return "rar"
	}
	return fmt.Sprintf("mode-%d", int(m))
}

// NodeMeta carries identity fields attached to every log line.
type NodeMeta struct {
	// SessionID identifies one launcher invocation (a build).
	SessionID string
	// NodeID is the node id assigned by the launcher. Zero before configuration.
	NodeID int
	// Mode is "launcher" or the worker node mode.
	Mode string
	// PID is the process id of the logging process.
	PID int
}

// Validate checks that the identity is usable for logging and archiving.
func (m *NodeMeta) Validate() error {
	if m.SessionID == "" {
		return errors.New("session_id must be non-empty")
	}
	if m.NodeID < 0 {
		return fmt.Errorf("node_id must be >= 0, got %d", m.NodeID)
	}
	if m.Mode == "" {
		return errors.New("mode must be non-empty")
	}
	return nil
}

// BuildParameters are the launcher-wide settings that shape the worker.
type BuildParameters struct {
	// EnableNodeReuse keeps the worker alive for later invocations.
	EnableNodeReuse bool `msgpack:"enable_node_reuse" yaml:"reuse"`
	// LowPriority runs the worker at reduced scheduling priority.
	LowPriority bool `msgpack:"low_priority" yaml:"low_priority"`
	// NodeExeLocation is the worker executable path.
	NodeExeLocation string `msgpack:"node_exe_location" yaml:"executable"`
}

// OutcomeStatus is the final classification of one resolution invocation.
type OutcomeStatus string

const (
	// OutcomeSuccess means the worker returned a result with TaskResult=true.
	OutcomeSuccess OutcomeStatus = "success"
	// OutcomeTaskFailed means the worker returned TaskResult=false.
	OutcomeTaskFailed OutcomeStatus = "task_failed"
	// OutcomeNodeCrash means the channel terminated before a result arrived.
	OutcomeNodeCrash OutcomeStatus = "node_crash"
	// OutcomeLaunchFailure means the worker could not be launched or handshaken.
	OutcomeLaunchFailure OutcomeStatus = "launch_failure"
)

// Outcome is the final outcome of one resolution invocation.
type Outcome struct {
	Status  OutcomeStatus
	Message string
}
