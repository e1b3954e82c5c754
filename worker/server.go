// Package worker hosts the resolution node: it listens on a unix socket,
// verifies the launcher's fingerprint, then answers resolution requests
// until the launcher ends the session.
package worker

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/ostorc/msbuild/handshake"
	"github.com/ostorc/msbuild/log"
	"github.com/ostorc/msbuild/metrics"
	"github.com/ostorc/msbuild/runtime"
)

// DefaultIdleTimeout is how long a reusable worker waits for a new session.
const DefaultIdleTimeout = 15 * time.Minute

// Config configures a Server.
type Config struct {
	// DiscoveryDir holds the socket and, while idle, the advertisement.
	DiscoveryDir string
	// NodeReuse keeps the worker alive between sessions.
	NodeReuse bool
	// LowPriority demotes the process at startup.
	LowPriority bool
	// IdleTimeout applies to reusable workers. Zero means DefaultIdleTimeout.
	IdleTimeout time.Duration
	// HandshakeTimeout bounds the fingerprint exchange.
	HandshakeTimeout time.Duration
	// Resolver answers requests. If nil, uses ProbingResolver.
	Resolver Resolver
	// PID overrides the pid used in the endpoint and advertisement.
	// Zero means os.Getpid().
	PID    int
	Logger *log.Logger
	// Collector is optional; all Collector methods are nil-safe.
	Collector *metrics.Collector
}

// Server is a resolution worker.
type Server struct {
	cfg         Config
	fingerprint handshake.Fingerprint
	endpoint    string
	lifecycle   *Lifecycle
	logger      *log.Logger
}

// NewServer creates a worker server. The fingerprint is derived from the
// worker's own reuse and priority settings.
func NewServer(cfg Config) (*Server, error) {
	if cfg.DiscoveryDir == "" {
		return nil, errors.New("discovery dir is required")
	}
	if cfg.PID == 0 {
		cfg.PID = os.Getpid()
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = runtime.DefaultHandshakeTimeout
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.Resolver == nil {
		cfg.Resolver = ProbingResolver{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}

	idle := time.Duration(0)
	if cfg.NodeReuse {
		idle = cfg.IdleTimeout
	}

	return &Server{
		cfg: cfg,
		fingerprint: handshake.ClientFingerprint(handshake.Options{
			NodeReuse:   cfg.NodeReuse,
			LowPriority: cfg.LowPriority,
			TaskKind:    handshake.TaskKindRAR,
		}),
		endpoint:  runtime.SocketPath(cfg.DiscoveryDir, cfg.PID),
		lifecycle: NewLifecycle(idle),
		logger:    logger,
	}, nil
}

// Endpoint returns the socket path the server listens on.
func (s *Server) Endpoint() string {
	return s.endpoint
}

// Fingerprint returns the fingerprint the server answers with.
func (s *Server) Fingerprint() handshake.Fingerprint {
	return s.fingerprint
}

// Lifecycle returns the idle lifecycle.
func (s *Server) Lifecycle() *Lifecycle {
	return s.lifecycle
}

// Serve listens on the endpoint and runs sessions one at a time until the
// worker should exit: after its session when not reusable, on a shutdown
// without reuse, on idle timeout, or when ctx is done.
func (s *Server) Serve(ctx context.Context) error {
	if s.cfg.LowPriority {
		if err := lowerPriority(); err != nil {
			s.logger.Warn("failed to lower priority", map[string]any{"error": err.Error()})
		}
	}

	if err := os.Remove(s.endpoint); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove stale socket: %w", err)
	}
	lis, err := net.Listen("unix", s.endpoint)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.endpoint, err)
	}
	if err := os.Chmod(s.endpoint, 0600); err != nil {
		_ = lis.Close()
		return fmt.Errorf("set socket permissions: %w", err)
	}
	defer s.cleanup(lis)

	s.logger.Info("resolution node listening", map[string]any{
		"endpoint":    s.endpoint,
		"node_reuse":  s.cfg.NodeReuse,
		"fingerprint": s.fingerprint.String(),
	})

	conns := make(chan net.Conn)
	acceptErr := make(chan error, 1)
	go func() {
		for {
			conn, err := lis.Accept()
			if err != nil {
				acceptErr <- err
				return
			}
			select {
			case conns <- conn:
			case <-s.lifecycle.ShutdownChan():
				_ = conn.Close()
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			s.lifecycle.Shutdown()
			return ctx.Err()
		case <-s.lifecycle.ShutdownChan():
			s.logger.Info("resolution node exiting", map[string]any{"uptime": s.lifecycle.Uptime().String()})
			return nil
		case err := <-acceptErr:
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		case conn := <-conns:
			s.lifecycle.Pause()
			end := s.serveConn(ctx, conn)
			if !s.afterSession(end) {
				s.lifecycle.Shutdown()
				s.logger.Info("resolution node exiting", map[string]any{"after": end.String()})
				return nil
			}
			s.lifecycle.ResetTimer()
		}
	}
}

// afterSession decides whether the worker stays up, and re-advertises it
// when it does.
func (s *Server) afterSession(end sessionEnd) bool {
	switch end {
	case sessionRejected:
		return true
	case sessionReuse:
	case sessionDisconnected:
		if !s.cfg.NodeReuse {
			return false
		}
	default:
		return false
	}

	if err := s.advertise(); err != nil {
		s.logger.Warn("failed to advertise node", map[string]any{"error": err.Error()})
		return false
	}
	return true
}

func (s *Server) advertise() error {
	return runtime.WithDiscoveryLock(s.cfg.DiscoveryDir, func() error {
		return runtime.WriteDiscovery(runtime.DiscoveryPath(s.cfg.DiscoveryDir, s.cfg.PID), &runtime.Discovery{
			Endpoint:    s.endpoint,
			PID:         s.cfg.PID,
			Fingerprint: s.fingerprint.String(),
			StartedAt:   time.Now().Add(-s.lifecycle.Uptime()).UTC().Format(time.RFC3339),
		})
	})
}

func (s *Server) unadvertise() {
	err := runtime.WithDiscoveryLock(s.cfg.DiscoveryDir, func() error {
		return runtime.RemoveDiscovery(s.cfg.DiscoveryDir, s.cfg.PID)
	})
	if err != nil {
		s.logger.Warn("failed to remove advertisement", map[string]any{"error": err.Error()})
	}
}

func (s *Server) cleanup(lis net.Listener) {
	s.unadvertise()
	_ = lis.Close()
	_ = os.Remove(s.endpoint)
}
