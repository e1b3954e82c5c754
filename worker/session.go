package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/ostorc/msbuild/buildevent"
	"github.com/ostorc/msbuild/contract"
	"github.com/ostorc/msbuild/handshake"
	"github.com/ostorc/msbuild/ipc"
	"github.com/ostorc/msbuild/log"
)

// sessionEnd says how a session finished.
type sessionEnd int

const (
	// sessionRejected: the launcher's fingerprint did not match.
	sessionRejected sessionEnd = iota
	// sessionDisconnected: the launcher went away without a shutdown.
	sessionDisconnected
	// sessionShutdown: the launcher asked the worker to exit.
	sessionShutdown
	// sessionReuse: the launcher asked the worker to stay up.
	sessionReuse
)

func (e sessionEnd) String() string {
	switch e {
	case sessionRejected:
		return "rejected"
	case sessionDisconnected:
		return "disconnected"
	case sessionShutdown:
		return "shutdown"
	case sessionReuse:
		return "reuse"
	default:
		return "unknown"
	}
}

// serveConn runs one session on conn and closes it.
func (s *Server) serveConn(ctx context.Context, conn net.Conn) sessionEnd {
	defer func() { _ = conn.Close() }()

	if !s.handshake(conn) {
		return sessionRejected
	}
	s.unadvertise()

	// Unblock the read loop if the worker is told to stop.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	sess := &session{server: s, conn: conn, logger: s.logger, encoder: ipc.NewFrameEncoder(conn)}
	end := sess.run(ctx)
	s.logger.Info("session ended", map[string]any{
		"end":      end.String(),
		"requests": sess.requests,
	})
	return end
}

// handshake reads the launcher fingerprint and always answers with the
// worker's own, so the launcher can report what it found.
func (s *Server) handshake(conn net.Conn) bool {
	if err := conn.SetDeadline(time.Now().Add(s.cfg.HandshakeTimeout)); err != nil {
		return false
	}
	got, err := handshake.Read(conn)
	if err != nil {
		s.logger.Debug("handshake read failed", map[string]any{"error": err.Error()})
		return false
	}
	if err := handshake.Write(conn, s.fingerprint); err != nil {
		s.logger.Debug("handshake write failed", map[string]any{"error": err.Error()})
		return false
	}
	if !got.Equal(s.fingerprint) {
		s.cfg.Collector.IncHandshakeFailure()
		s.logger.Info("rejected launcher fingerprint", map[string]any{
			"got":  got.String(),
			"want": s.fingerprint.String(),
		})
		return false
	}
	return conn.SetDeadline(time.Time{}) == nil
}

type session struct {
	server   *Server
	conn     net.Conn
	logger   *log.Logger
	encoder  *ipc.FrameEncoder
	config   *ipc.NodeConfiguration
	requests int
}

func (s *session) run(ctx context.Context) sessionEnd {
	dec := ipc.NewFrameDecoder(s.conn)
	collector := s.server.cfg.Collector

	for {
		p, err := dec.ReadPacket()
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				collector.IncIPCDecodeErrors()
				s.logger.Warn("session read failed", map[string]any{"error": err.Error()})
			}
			return sessionDisconnected
		}
		collector.IncPacketsReceived()

		switch p := p.(type) {
		case *ipc.NodeConfiguration:
			s.config = p
			s.logger = s.server.logger.WithNodeID(p.NodeID)
			s.logger.Info("configured", map[string]any{
				"session_id":   p.SessionID,
				"node_reuse":   p.BuildParameters.EnableNodeReuse,
				"low_priority": p.BuildParameters.LowPriority,
			})
		case *ipc.ResolveRequest:
			if err := s.resolve(ctx, p.Request); err != nil {
				s.logger.Warn("failed to send result", map[string]any{"error": err.Error()})
				return sessionDisconnected
			}
		case *ipc.NodeShutdown:
			collector.IncNodeShutdown()
			s.logger.Info("shutdown requested", map[string]any{
				"reason":            string(p.Reason),
				"prepare_for_reuse": p.PrepareForReuse,
			})
			if p.PrepareForReuse && s.server.cfg.NodeReuse {
				return sessionReuse
			}
			return sessionShutdown
		default:
			s.logger.Warn("unexpected packet", map[string]any{"type": string(p.Type())})
		}
	}
}

// resolve runs the resolver and sends the result back.
func (s *session) resolve(ctx context.Context, req *contract.Request) error {
	s.requests++
	collector := s.server.cfg.Collector
	collector.IncResolveStarted()

	result := contract.NewResult(false, nil)
	events := buildevent.SinkFunc(func(ev buildevent.Event) {
		if err := result.AddEvent(ev); err != nil {
			s.logger.Warn("dropping event", map[string]any{"error": err.Error()})
		}
	})

	if req == nil {
		events.LogEvent(errorEvent("request body was empty"))
	} else {
		resp, ok, err := s.server.cfg.Resolver.Resolve(ctx, req, events)
		if err != nil {
			events.LogEvent(errorEvent(fmt.Sprintf("resolution failed: %v", err)))
			ok = false
		}
		result.TaskResult = ok
		result.Response = resp
	}

	if result.TaskResult {
		collector.IncResolveSucceeded()
	} else {
		collector.IncResolveFailed()
	}
	collector.AddEventsForwarded(result.EventCount)

	if err := s.encoder.WritePacket(&ipc.ResolveResult{Result: result}); err != nil {
		return err
	}
	collector.IncPacketsSent()
	return nil
}

func errorEvent(msg string) *buildevent.ErrorEvent {
	return &buildevent.ErrorEvent{
		EventArgs: buildevent.EventArgs{Message: msg, SenderName: senderName, Timestamp: time.Now()},
	}
}
