package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/ostorc/msbuild/handshake"
	"github.com/ostorc/msbuild/ipc"
	"github.com/ostorc/msbuild/log"
	"github.com/ostorc/msbuild/metrics"
	"github.com/ostorc/msbuild/types"
)

// ErrHandshakeMismatch is returned when the worker answers with a fingerprint
// other than the expected one.
var ErrHandshakeMismatch = errors.New("handshake fingerprint mismatch")

// DefaultHandshakeTimeout bounds the fingerprint exchange.
const DefaultHandshakeTimeout = 10 * time.Second

// DispatchFunc receives each packet read from a node, in receive order.
type DispatchFunc func(nodeID int, p ipc.Packet)

// TerminateFunc is called once when a node's channel ends. err is nil for a
// clean close.
type TerminateFunc func(nodeID int, err error)

// NodeContext owns the packet channel to one worker.
//
// Reads run on a single background goroutine started by BeginAsyncRead.
// SendData may be called from any goroutine; writes are serialized.
type NodeContext struct {
	nodeID    int
	conn      net.Conn
	decoder   *ipc.FrameDecoder
	logger    *log.Logger
	collector *metrics.Collector

	writeMu sync.Mutex
	encoder *ipc.FrameEncoder

	mu          sync.Mutex
	reading     bool
	terminated  bool
	onTerminate TerminateFunc
	termErr     error

	terminateOnce sync.Once
	done          chan struct{}
}

// connectNode performs the fingerprint exchange on conn and returns a live
// context. On any failure conn is closed.
func connectNode(
	ctx context.Context,
	nodeID int,
	conn net.Conn,
	host, client handshake.Fingerprint,
	timeout time.Duration,
	logger *log.Logger,
	collector *metrics.Collector,
) (*NodeContext, error) {
	if timeout <= 0 {
		timeout = DefaultHandshakeTimeout
	}
	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("set handshake deadline: %w", err)
	}

	// Unblock the exchange if ctx is canceled before the deadline.
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Now()) })
	defer stop()

	if err := handshake.Write(conn, host); err != nil {
		_ = conn.Close()
		collector.IncHandshakeFailure()
		return nil, err
	}
	got, err := handshake.Read(conn)
	if err != nil {
		_ = conn.Close()
		collector.IncHandshakeFailure()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	if !got.Equal(client) {
		_ = conn.Close()
		collector.IncHandshakeFailure()
		return nil, fmt.Errorf("%w: got %s, want %s", ErrHandshakeMismatch, got, client)
	}

	if err := conn.SetDeadline(time.Time{}); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("clear handshake deadline: %w", err)
	}

	return newNodeContext(nodeID, conn, logger, collector), nil
}

func newNodeContext(nodeID int, conn net.Conn, logger *log.Logger, collector *metrics.Collector) *NodeContext {
	if logger == nil {
		logger = log.NewNop()
	}
	return &NodeContext{
		nodeID:    nodeID,
		conn:      conn,
		decoder:   ipc.NewFrameDecoder(conn),
		encoder:   ipc.NewFrameEncoder(conn),
		logger:    logger,
		collector: collector,
		done:      make(chan struct{}),
	}
}

// NodeID returns the id this context was created for.
func (c *NodeContext) NodeID() int {
	return c.nodeID
}

// BeginAsyncRead starts the background reader. Each decoded packet goes to
// dispatch in order. When the stream ends or a frame or packet fails to
// decode, onTerminate fires exactly once and dispatch is never called again.
// Calling it more than once, or after termination, has no effect.
func (c *NodeContext) BeginAsyncRead(dispatch DispatchFunc, onTerminate TerminateFunc) {
	c.mu.Lock()
	if c.reading || c.terminated {
		c.mu.Unlock()
		return
	}
	c.reading = true
	c.onTerminate = onTerminate
	c.mu.Unlock()

	go c.readLoop(dispatch)
}

func (c *NodeContext) readLoop(dispatch DispatchFunc) {
	for {
		p, err := c.decoder.ReadPacket()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
				c.terminate(nil)
				return
			}
			c.collector.IncIPCDecodeErrors()
			c.logger.Warn("node channel read failed", map[string]any{
				"node_id": c.nodeID,
				"error":   err.Error(),
				"fatal":   ipc.IsFatalFrameError(err),
			})
			c.terminate(err)
			return
		}
		c.collector.IncPacketsReceived()
		dispatch(c.nodeID, p)
	}
}

// terminate closes the channel and runs the termination callback once.
func (c *NodeContext) terminate(err error) {
	c.terminateOnce.Do(func() {
		c.mu.Lock()
		c.terminated = true
		c.termErr = err
		cb := c.onTerminate
		c.mu.Unlock()

		_ = c.conn.Close()
		close(c.done)
		if cb != nil {
			cb(c.nodeID, err)
		}
	})
}

// SendData writes one packet. It fails with an InternalError after termination.
func (c *NodeContext) SendData(p ipc.Packet) error {
	select {
	case <-c.done:
		return types.NewInternalError("send data", "node %d already terminated", c.nodeID)
	default:
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.encoder.WritePacket(p); err != nil {
		return fmt.Errorf("send %s to node %d: %w", p.Type(), c.nodeID, err)
	}
	c.collector.IncPacketsSent()
	return nil
}

// SendDataWithin is SendData bounded by timeout. A worker that stops reading
// cannot block the caller past it.
func (c *NodeContext) SendDataWithin(p ipc.Packet, timeout time.Duration) error {
	select {
	case <-c.done:
		return types.NewInternalError("send data", "node %d already terminated", c.nodeID)
	default:
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	defer func() { _ = c.conn.SetWriteDeadline(time.Time{}) }()

	if err := c.encoder.WritePacket(p); err != nil {
		return fmt.Errorf("send %s to node %d: %w", p.Type(), c.nodeID, err)
	}
	c.collector.IncPacketsSent()
	return nil
}

// Close closes the channel. If the reader is running it observes the close
// and fires the termination callback; otherwise the context terminates here.
func (c *NodeContext) Close() error {
	c.mu.Lock()
	reading := c.reading
	c.mu.Unlock()

	err := c.conn.Close()
	if !reading {
		c.terminate(nil)
	}
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// Done is closed once the context has terminated.
func (c *NodeContext) Done() <-chan struct{} {
	return c.done
}

// Err returns the error that ended the channel, or nil for a clean close.
// Only meaningful after Done is closed.
func (c *NodeContext) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.termErr
}
