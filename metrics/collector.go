// Package metrics provides per-session counters for the resolution node fabric.
//
// A Collector accumulates counters for one launcher session or one worker
// process. It is a leaf package with no internal dependencies.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of all counters.
type Snapshot struct {
	// Node lifecycle
	NodeLaunchSuccess int64
	NodeLaunchFailure int64
	NodeReused        int64
	HandshakeFailures int64
	NodeTerminations  int64

	// Channel
	PacketsSent     int64
	PacketsReceived int64
	IPCDecodeErrors int64

	// Events
	EventsForwarded int64
	EventsDropped   int64

	// Resolution
	ResolvesStarted   int64
	ResolvesSucceeded int64
	ResolvesFailed    int64

	// Shutdown
	SweepAttempts int64
	NodesShutdown int64

	// Archive
	ArchiveWriteSuccess int64
	ArchiveWriteFailure int64

	// Dimensions (informational, set at construction)
	Mode           string
	StorageBackend string
	SessionID      string
}

// Collector accumulates counters.
// Thread-safe via sync.Mutex. All increment methods are nil-receiver safe.
type Collector struct {
	mu sync.Mutex
	s  Snapshot
}

// NewCollector creates a Collector with dimension labels.
// mode is "launcher" or "node"; storageBackend may be empty when no archive is configured.
func NewCollector(mode, storageBackend, sessionID string) *Collector {
	return &Collector{s: Snapshot{
		Mode:           mode,
		StorageBackend: storageBackend,
		SessionID:      sessionID,
	}}
}

func (c *Collector) add(field func(*Snapshot) *int64, n int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	*field(&c.s) += n
	c.mu.Unlock()
}

// --- Node lifecycle ---

// IncNodeLaunchSuccess records a worker that reached the live state.
func (c *Collector) IncNodeLaunchSuccess() {
	c.add(func(s *Snapshot) *int64 { return &s.NodeLaunchSuccess }, 1)
}

// IncNodeLaunchFailure records a failed CreateNode.
func (c *Collector) IncNodeLaunchFailure() {
	c.add(func(s *Snapshot) *int64 { return &s.NodeLaunchFailure }, 1)
}

// IncNodeReused records a live worker acquired from the discovery directory.
func (c *Collector) IncNodeReused() {
	c.add(func(s *Snapshot) *int64 { return &s.NodeReused }, 1)
}

// IncHandshakeFailure records a rejected or timed-out handshake.
func (c *Collector) IncHandshakeFailure() {
	c.add(func(s *Snapshot) *int64 { return &s.HandshakeFailures }, 1)
}

// IncNodeTermination records a channel that reported termination.
func (c *Collector) IncNodeTermination() {
	c.add(func(s *Snapshot) *int64 { return &s.NodeTerminations }, 1)
}

// --- Channel ---

// IncPacketsSent records a packet written to a channel.
func (c *Collector) IncPacketsSent() {
	c.add(func(s *Snapshot) *int64 { return &s.PacketsSent }, 1)
}

// IncPacketsReceived records a packet decoded from a channel.
func (c *Collector) IncPacketsReceived() {
	c.add(func(s *Snapshot) *int64 { return &s.PacketsReceived }, 1)
}

// IncIPCDecodeErrors records a frame or packet decode failure.
func (c *Collector) IncIPCDecodeErrors() {
	c.add(func(s *Snapshot) *int64 { return &s.IPCDecodeErrors }, 1)
}

// --- Events ---

// AddEventsForwarded records events re-emitted into the engine log.
func (c *Collector) AddEventsForwarded(n int) {
	c.add(func(s *Snapshot) *int64 { return &s.EventsForwarded }, int64(n))
}

// AddEventsDropped records events lost to per-event decode failures.
func (c *Collector) AddEventsDropped(n int) {
	if n <= 0 {
		return
	}
	c.add(func(s *Snapshot) *int64 { return &s.EventsDropped }, int64(n))
}

// --- Resolution ---

// IncResolveStarted records a request sent to a worker.
func (c *Collector) IncResolveStarted() {
	c.add(func(s *Snapshot) *int64 { return &s.ResolvesStarted }, 1)
}

// IncResolveSucceeded records a result with TaskResult=true.
func (c *Collector) IncResolveSucceeded() {
	c.add(func(s *Snapshot) *int64 { return &s.ResolvesSucceeded }, 1)
}

// IncResolveFailed records a result with TaskResult=false or no result at all.
func (c *Collector) IncResolveFailed() {
	c.add(func(s *Snapshot) *int64 { return &s.ResolvesFailed }, 1)
}

// --- Shutdown ---

// IncSweepAttempt records one connect attempt during an orphan sweep.
func (c *Collector) IncSweepAttempt() {
	c.add(func(s *Snapshot) *int64 { return &s.SweepAttempts }, 1)
}

// IncNodeShutdown records a worker that was sent a shutdown packet.
func (c *Collector) IncNodeShutdown() {
	c.add(func(s *Snapshot) *int64 { return &s.NodesShutdown }, 1)
}

// --- Archive ---

// IncArchiveWriteSuccess records a successful archive write (per call).
func (c *Collector) IncArchiveWriteSuccess() {
	c.add(func(s *Snapshot) *int64 { return &s.ArchiveWriteSuccess }, 1)
}

// IncArchiveWriteFailure records a failed archive write (per call).
func (c *Collector) IncArchiveWriteFailure() {
	c.add(func(s *Snapshot) *int64 { return &s.ArchiveWriteFailure }, 1)
}

// Snapshot returns a point-in-time copy of all counters.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.s
}
