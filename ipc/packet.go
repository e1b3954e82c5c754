package ipc

import (
	"bytes"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/ostorc/msbuild/contract"
	"github.com/ostorc/msbuild/types"
)

// PacketType is the discriminant carried as the first field of every payload.
type PacketType string

// Packet types.
const (
	PacketNodeConfiguration PacketType = "node_configuration"
	PacketResolveRequest    PacketType = "rar_request"
	PacketResolveResult     PacketType = "rar_result"
	PacketNodeShutdown      PacketType = "node_shutdown"
)

// Packet is a decoded frame payload.
type Packet interface {
	Type() PacketType
}

// NodeConfiguration is the first packet a launcher sends after the handshake.
type NodeConfiguration struct {
	NodeID          int                   `msgpack:"node_id"`
	SessionID       string                `msgpack:"session_id"`
	BuildParameters types.BuildParameters `msgpack:"build_parameters"`
}

// Type implements Packet.
func (*NodeConfiguration) Type() PacketType { return PacketNodeConfiguration }

// ResolveRequest carries one resolution request to the worker.
type ResolveRequest struct {
	Request *contract.Request
}

// Type implements Packet.
func (*ResolveRequest) Type() PacketType { return PacketResolveRequest }

// ResolveResult carries the worker's answer to a ResolveRequest.
type ResolveResult struct {
	Result *contract.Result
}

// Type implements Packet.
func (*ResolveResult) Type() PacketType { return PacketResolveResult }

// ShutdownReason says why a session is ending.
type ShutdownReason string

// Shutdown reasons.
const (
	ShutdownBuildComplete ShutdownReason = "build_complete"
	ShutdownOrphanSweep   ShutdownReason = "orphan_sweep"
	ShutdownError         ShutdownReason = "error"
)

// NodeShutdown ends a session. The worker exits unless PrepareForReuse is set.
type NodeShutdown struct {
	Reason          ShutdownReason `msgpack:"reason"`
	PrepareForReuse bool           `msgpack:"prepare_for_reuse"`
}

// Type implements Packet.
func (*NodeShutdown) Type() PacketType { return PacketNodeShutdown }

// body returns the value encoded after the type field.
func body(p Packet) (any, error) {
	switch v := p.(type) {
	case *NodeConfiguration, *NodeShutdown:
		return v, nil
	case *ResolveRequest:
		return v.Request, nil
	case *ResolveResult:
		return v.Result, nil
	default:
		return nil, types.NewInternalError("encode packet", "unsupported packet %T", p)
	}
}

// Encode serializes p as a msgpack array [type, body].
func Encode(p Packet) ([]byte, error) {
	if p == nil {
		return nil, types.NewInternalError("encode packet", "nil packet")
	}
	b, err := body(p)
	if err != nil {
		return nil, err
	}
	data, err := msgpack.Marshal([]any{string(p.Type()), b})
	if err != nil {
		return nil, fmt.Errorf("encode %s packet: %w", p.Type(), err)
	}
	return data, nil
}

// Decode parses a payload produced by Encode. An absent body leaves the
// packet's field nil.
// All failures are *FrameError with Kind=FrameErrorDecode.
func Decode(payload []byte) (Packet, error) {
	dec := msgpack.NewDecoder(bytes.NewReader(payload))
	n, err := dec.DecodeArrayLen()
	if err != nil {
		return nil, decodeError("failed to decode packet envelope", err)
	}
	if n != 2 {
		return nil, decodeError(fmt.Sprintf("packet envelope has %d fields, want 2", n), nil)
	}

	s, err := dec.DecodeString()
	if err != nil {
		return nil, decodeError("failed to decode packet type", err)
	}
	typ := PacketType(s)

	var p Packet
	var target any
	switch typ {
	case PacketNodeConfiguration:
		v := &NodeConfiguration{}
		p, target = v, v
	case PacketNodeShutdown:
		v := &NodeShutdown{}
		p, target = v, v
	case PacketResolveRequest:
		v := &ResolveRequest{}
		p, target = v, &v.Request
	case PacketResolveResult:
		v := &ResolveResult{}
		p, target = v, &v.Result
	default:
		return nil, decodeError(fmt.Sprintf("unknown packet type %q", typ), nil)
	}

	if err := dec.Decode(target); err != nil {
		return nil, decodeError(fmt.Sprintf("failed to decode %s packet", typ), err)
	}
	return p, nil
}

func decodeError(msg string, err error) *FrameError {
	return &FrameError{Kind: FrameErrorDecode, Msg: msg, Err: err}
}
