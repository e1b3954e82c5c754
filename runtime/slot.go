package runtime

import (
	"sync"

	"github.com/ostorc/msbuild/types"
)

// State is the lifecycle state of the dedicated worker slot.
type State int

const (
	// StateEmpty means no worker is assigned.
	StateEmpty State = iota
	// StateLaunching means CreateNode is spawning or handshaking.
	StateLaunching
	// StateLive means a connected worker is assigned.
	StateLive
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateLaunching:
		return "launching"
	case StateLive:
		return "live"
	default:
		return "unknown"
	}
}

// slot holds the single dedicated worker. All transitions happen under mu,
// so a termination callback cannot clear a slot that a newer worker owns.
type slot struct {
	mu     sync.Mutex
	state  State
	nodeID int
	ctx    *NodeContext
	// proc is nil when the worker was reused rather than spawned.
	proc Process
}

// reserve moves Empty to Launching. Any other state is an internal error.
func (s *slot) reserve(nodeID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateEmpty {
		return types.NewInternalError("create node",
			"resolution node already created (slot %s with node %d, requested %d)", s.state, s.nodeID, nodeID)
	}
	s.state = StateLaunching
	s.nodeID = nodeID
	return nil
}

// assign moves Launching to Live.
func (s *slot) assign(nodeID int, ctx *NodeContext, proc Process) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateLive
	s.nodeID = nodeID
	s.ctx = ctx
	s.proc = proc
}

// release returns a Launching slot to Empty after a failed launch.
func (s *slot) release(nodeID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateLaunching && s.nodeID == nodeID {
		s.reset()
	}
}

// clearIf empties the slot only if it still holds ctx for nodeID.
func (s *slot) clearIf(nodeID int, ctx *NodeContext) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateLive || s.nodeID != nodeID || s.ctx != ctx {
		return false
	}
	s.reset()
	return true
}

// live returns the context for nodeID, or nil if nodeID is not the live node.
func (s *slot) live(nodeID int) *NodeContext {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateLive || s.nodeID != nodeID {
		return nil
	}
	return s.ctx
}

// current returns the live node, if any.
func (s *slot) current() (int, *NodeContext, Process) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateLive {
		return 0, nil, nil
	}
	return s.nodeID, s.ctx, s.proc
}

func (s *slot) snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *slot) reset() {
	s.state = StateEmpty
	s.nodeID = 0
	s.ctx = nil
	s.proc = nil
}
