package runtime

import (
	"context"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/ostorc/msbuild/contract"
	"github.com/ostorc/msbuild/handshake"
	"github.com/ostorc/msbuild/ipc"
)

// fakeWorker is an in-process worker served over one end of a net.Pipe.
type fakeWorker struct {
	// answer is the fingerprint sent back after reading the launcher's.
	answer handshake.Fingerprint
	// respond builds the result for a request. Nil answers TaskResult=true.
	respond func(req *contract.Request) *contract.Result
	// crashOnRequest closes the channel instead of answering.
	crashOnRequest bool

	configs   chan *ipc.NodeConfiguration
	requests  chan *contract.Request
	shutdowns chan *ipc.NodeShutdown
}

func newFakeWorker(opts handshake.Options) *fakeWorker {
	return &fakeWorker{
		answer:    handshake.ClientFingerprint(opts),
		configs:   make(chan *ipc.NodeConfiguration, 8),
		requests:  make(chan *contract.Request, 8),
		shutdowns: make(chan *ipc.NodeShutdown, 8),
	}
}

func (w *fakeWorker) serve(conn net.Conn) {
	defer func() { _ = conn.Close() }()

	if _, err := handshake.Read(conn); err != nil {
		return
	}
	if err := handshake.Write(conn, w.answer); err != nil {
		return
	}

	dec := ipc.NewFrameDecoder(conn)
	enc := ipc.NewFrameEncoder(conn)
	for {
		p, err := dec.ReadPacket()
		if err != nil {
			return
		}
		switch p := p.(type) {
		case *ipc.NodeConfiguration:
			w.configs <- p
		case *ipc.ResolveRequest:
			w.requests <- p.Request
			if w.crashOnRequest {
				return
			}
			result := contract.NewResult(true, &contract.Response{})
			if w.respond != nil {
				result = w.respond(p.Request)
			}
			if err := enc.WritePacket(&ipc.ResolveResult{Result: result}); err != nil {
				return
			}
		case *ipc.NodeShutdown:
			w.shutdowns <- p
			return
		}
	}
}

// fakeNetwork routes endpoints to fake workers.
type fakeNetwork struct {
	mu       sync.Mutex
	workers  map[string]*fakeWorker
	fallback *fakeWorker
	dials    []string
}

func newFakeNetwork(fallback *fakeWorker) *fakeNetwork {
	return &fakeNetwork{workers: make(map[string]*fakeWorker), fallback: fallback}
}

func (n *fakeNetwork) register(endpoint string, w *fakeWorker) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.workers[endpoint] = w
}

func (n *fakeNetwork) setFallback(w *fakeWorker) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.fallback = w
}

func (n *fakeNetwork) dialCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.dials)
}

func (n *fakeNetwork) dial(_ context.Context, endpoint string) (net.Conn, error) {
	n.mu.Lock()
	n.dials = append(n.dials, endpoint)
	w, ok := n.workers[endpoint]
	if !ok {
		w = n.fallback
	}
	n.mu.Unlock()

	if w == nil {
		return nil, fmt.Errorf("dial %s: connection refused", endpoint)
	}
	client, server := net.Pipe()
	go w.serve(server)
	return client, nil
}

// fakeSpawner records launches and hands out spawn-N endpoints.
type fakeSpawner struct {
	mu      sync.Mutex
	err     error
	spawned []LaunchOptions
	killed  int
}

type fakeProcess struct {
	pid     int
	spawner *fakeSpawner
}

func (p *fakeProcess) PID() int         { return p.pid }
func (p *fakeProcess) Endpoint() string { return fmt.Sprintf("spawn-%d", p.pid) }
func (p *fakeProcess) Kill() error {
	p.spawner.mu.Lock()
	defer p.spawner.mu.Unlock()
	p.spawner.killed++
	return nil
}

func (s *fakeSpawner) Spawn(_ context.Context, opts LaunchOptions) (Process, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.spawned = append(s.spawned, opts)
	if s.err != nil {
		return nil, s.err
	}
	return &fakeProcess{pid: len(s.spawned), spawner: s}, nil
}

func (s *fakeSpawner) counts() (spawned, killed int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.spawned), s.killed
}

// recordingFactory captures what a provider routes to it.
type recordingFactory struct {
	packets    chan ipc.Packet
	terminated chan error
}

func newRecordingFactory() *recordingFactory {
	return &recordingFactory{
		packets:    make(chan ipc.Packet, 16),
		terminated: make(chan error, 4),
	}
}

func (f *recordingFactory) RoutePacket(_ int, p ipc.Packet) { f.packets <- p }
func (f *recordingFactory) NodeTerminated(_ int, err error) { f.terminated <- err }

// receive waits for a value on ch or fails the test.
func receive[T any](t *testing.T, ch <-chan T, what string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
		var zero T
		return zero
	}
}

// waitFor polls cond until it holds or fails the test.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
