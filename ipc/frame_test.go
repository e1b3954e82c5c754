package ipc

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/ostorc/msbuild/buildevent"
	"github.com/ostorc/msbuild/contract"
	"github.com/ostorc/msbuild/types"
)

// encodeFrame encodes a payload with length prefix.
func encodeFrame(payload []byte) []byte {
	buf := make([]byte, LengthPrefixSize+len(payload))
	binary.BigEndian.PutUint32(buf[:LengthPrefixSize], uint32(len(payload)))
	copy(buf[LengthPrefixSize:], payload)
	return buf
}

// encodePacketFrame encodes a packet as a framed msgpack payload.
func encodePacketFrame(p Packet) ([]byte, error) {
	payload, err := Encode(p)
	if err != nil {
		return nil, err
	}
	return encodeFrame(payload), nil
}

func TestFrameEncoder_MatchesDecoder(t *testing.T) {
	var buf bytes.Buffer
	enc := NewFrameEncoder(&buf)

	payloads := [][]byte{[]byte("a"), {}, bytes.Repeat([]byte("z"), 1024)}
	for _, p := range payloads {
		if err := enc.WriteFrame(p); err != nil {
			t.Fatalf("WriteFrame failed: %v", err)
		}
	}

	dec := NewFrameDecoder(&buf)
	for i, want := range payloads {
		got, err := dec.ReadFrame()
		if err != nil {
			t.Fatalf("ReadFrame %d failed: %v", i, err)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("frame %d = %q, want %q", i, got, want)
		}
	}

	if _, err := dec.ReadFrame(); err != io.EOF {
		t.Errorf("expected io.EOF after last frame, got: %v", err)
	}
}

func TestFrameEncoder_RejectsOversizedPayload(t *testing.T) {
	var buf bytes.Buffer
	err := NewFrameEncoder(&buf).WriteFrame(make([]byte, MaxPayloadSize+1))

	var frameErr *FrameError
	if !errors.As(err, &frameErr) {
		t.Fatalf("expected *FrameError, got %T", err)
	}
	if frameErr.Kind != FrameErrorTooLarge {
		t.Errorf("Kind = %v, want FrameErrorTooLarge", frameErr.Kind)
	}
	if buf.Len() != 0 {
		t.Errorf("wrote %d bytes for rejected frame", buf.Len())
	}
}

func TestFrameDecoder_PacketSequence(t *testing.T) {
	req, err := contract.NewRequest(&contract.TaskInput{
		SearchPaths: []string{"/opt/lib"},
		Assemblies: contract.ItemList{
			contract.ReadOnlyTaskItem{Spec: "Foo"},
			contract.ReadOnlyTaskItem{Spec: "Bar"},
		},
	})
	if err != nil {
		t.Fatalf("NewRequest failed: %v", err)
	}

	res := contract.NewResult(true, &contract.Response{})
	if err := res.AddEvent(&buildevent.MessageEvent{EventArgs: buildevent.EventArgs{Message: "resolved"}}); err != nil {
		t.Fatalf("AddEvent failed: %v", err)
	}

	packets := []Packet{
		&NodeConfiguration{NodeID: 1, SessionID: "s-1", BuildParameters: types.BuildParameters{EnableNodeReuse: true}},
		&ResolveRequest{Request: req},
		&ResolveResult{Result: res},
		&NodeShutdown{Reason: ShutdownBuildComplete, PrepareForReuse: true},
	}

	var buf bytes.Buffer
	enc := NewFrameEncoder(&buf)
	for _, p := range packets {
		if err := enc.WritePacket(p); err != nil {
			t.Fatalf("WritePacket(%s) failed: %v", p.Type(), err)
		}
	}

	dec := NewFrameDecoder(&buf)
	for _, want := range packets {
		got, err := dec.ReadPacket()
		if err != nil {
			t.Fatalf("ReadPacket failed: %v", err)
		}
		if got.Type() != want.Type() {
			t.Fatalf("Type = %s, want %s", got.Type(), want.Type())
		}
	}
}

func TestPacket_RoundTrip(t *testing.T) {
	cfg := &NodeConfiguration{
		NodeID:    7,
		SessionID: "session-xyz",
		BuildParameters: types.BuildParameters{
			EnableNodeReuse: true,
			LowPriority:     true,
			NodeExeLocation: "/usr/local/bin/msbuild-rar",
		},
	}
	payload, err := Encode(cfg)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	decoded, err := Decode(payload)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	got, ok := decoded.(*NodeConfiguration)
	if !ok {
		t.Fatalf("decoded %T, want *NodeConfiguration", decoded)
	}
	if *got != *cfg {
		t.Errorf("got %+v, want %+v", got, cfg)
	}

	payload, err = Encode(&NodeShutdown{Reason: ShutdownOrphanSweep})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	decoded, err = Decode(payload)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	shutdown := decoded.(*NodeShutdown)
	if shutdown.Reason != ShutdownOrphanSweep || shutdown.PrepareForReuse {
		t.Errorf("got %+v", shutdown)
	}
}

func TestPacket_ResultKeepsEvents(t *testing.T) {
	res := contract.NewResult(false, nil)
	_ = res.AddEvent(&buildevent.ErrorEvent{EventArgs: buildevent.EventArgs{Message: "missing Foo"}})
	_ = res.AddEvent(&buildevent.ProjectStartedEvent{ProjectFile: "ext.proj"})

	frame, err := encodePacketFrame(&ResolveResult{Result: res})
	if err != nil {
		t.Fatalf("encodePacketFrame failed: %v", err)
	}

	p, err := NewFrameDecoder(bytes.NewReader(frame)).ReadPacket()
	if err != nil {
		t.Fatalf("ReadPacket failed: %v", err)
	}
	got := p.(*ResolveResult).Result
	if got.TaskResult {
		t.Error("TaskResult = true, want false")
	}
	if got.EventCount != 2 {
		t.Errorf("EventCount = %d, want 2", got.EventCount)
	}
	if len(got.ErrorEvents) != 1 || got.ErrorEvents[0].Message != "missing Foo" {
		t.Errorf("ErrorEvents = %+v", got.ErrorEvents)
	}
	if len(got.CustomEvents) != 1 {
		t.Errorf("CustomEvents = %d, want 1", len(got.CustomEvents))
	}
}

func TestPacket_ResultCustomEventsPrecedeOtherLists(t *testing.T) {
	res := contract.NewResult(true, nil)
	_ = res.AddEvent(&buildevent.ProjectStartedEvent{ProjectFile: "ext.proj", TargetNames: "Build"})
	_ = res.AddEvent(&buildevent.ProjectFinishedEvent{ProjectFile: "ext.proj", Succeeded: true})
	_ = res.AddEvent(&buildevent.WarningEvent{EventArgs: buildevent.EventArgs{Message: "conflict"}})
	_ = res.AddEvent(&buildevent.MessageEvent{EventArgs: buildevent.EventArgs{Message: "primary"}})

	payload, err := Encode(&ResolveResult{Result: res})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	p, err := Decode(payload)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	got := p.(*ResolveResult).Result
	if len(got.CustomEvents) != 2 {
		t.Fatalf("CustomEvents = %d, want 2", len(got.CustomEvents))
	}
	started, ok := got.CustomEvents[0].(*buildevent.ProjectStartedEvent)
	if !ok || started.TargetNames != "Build" {
		t.Errorf("CustomEvents[0] = %#v", got.CustomEvents[0])
	}
	finished, ok := got.CustomEvents[1].(*buildevent.ProjectFinishedEvent)
	if !ok || !finished.Succeeded {
		t.Errorf("CustomEvents[1] = %#v", got.CustomEvents[1])
	}
	if len(got.WarningEvents) != 1 || got.WarningEvents[0].Message != "conflict" {
		t.Errorf("WarningEvents = %+v", got.WarningEvents)
	}
	if len(got.MessageEvents) != 1 || got.MessageEvents[0].Message != "primary" {
		t.Errorf("MessageEvents = %+v", got.MessageEvents)
	}
}

func TestPacket_AbsentBody(t *testing.T) {
	for _, p := range []Packet{&ResolveRequest{}, &ResolveResult{}} {
		payload, err := Encode(p)
		if err != nil {
			t.Fatalf("Encode(%s) failed: %v", p.Type(), err)
		}
		decoded, err := Decode(payload)
		if err != nil {
			t.Fatalf("Decode(%s) failed: %v", p.Type(), err)
		}
		switch v := decoded.(type) {
		case *ResolveRequest:
			if v.Request != nil {
				t.Errorf("Request = %+v, want nil", v.Request)
			}
		case *ResolveResult:
			if v.Result != nil {
				t.Errorf("Result = %+v, want nil", v.Result)
			}
		default:
			t.Errorf("decoded %T", decoded)
		}
	}
}

func TestEncode_NilPacket(t *testing.T) {
	_, err := Encode(nil)
	if !types.IsInternalError(err) {
		t.Errorf("expected internal error, got: %v", err)
	}
}

func TestDecode_UnknownType(t *testing.T) {
	payload, _ := msgpack.Marshal([]any{"node_bogus", map[string]any{}})

	_, err := Decode(payload)
	var frameErr *FrameError
	if !errors.As(err, &frameErr) {
		t.Fatalf("expected *FrameError, got %T", err)
	}
	if frameErr.Kind != FrameErrorDecode {
		t.Errorf("Kind = %v, want FrameErrorDecode", frameErr.Kind)
	}
}

func TestDecode_WrongArity(t *testing.T) {
	payload, _ := msgpack.Marshal([]any{"node_shutdown"})

	if _, err := Decode(payload); err == nil {
		t.Fatal("expected error for single-field envelope")
	}
}

// TestFrameDecoder_PartialFrame validates fatal error for truncated frames.
func TestFrameDecoder_PartialFrame(t *testing.T) {
	frame, _ := encodePacketFrame(&NodeShutdown{Reason: ShutdownBuildComplete})

	// Keep only length prefix + half payload
	truncated := frame[:LengthPrefixSize+len(frame[LengthPrefixSize:])/2]

	decoder := NewFrameDecoder(bytes.NewReader(truncated))
	_, err := decoder.ReadFrame()

	if err == nil {
		t.Fatal("expected error for truncated frame")
	}

	if !IsFatalFrameError(err) {
		t.Errorf("expected fatal frame error, got: %v", err)
	}

	var frameErr *FrameError
	if !errors.As(err, &frameErr) {
		t.Fatalf("expected *FrameError, got %T", err)
	}

	if frameErr.Kind != FrameErrorPartial {
		t.Errorf("Kind = %v, want FrameErrorPartial", frameErr.Kind)
	}
}

// TestFrameDecoder_OversizedFrame validates fatal error for frames exceeding max size.
func TestFrameDecoder_OversizedFrame(t *testing.T) {
	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.BigEndian, uint32(MaxPayloadSize+1))

	decoder := NewFrameDecoder(&buf)
	_, err := decoder.ReadFrame()

	if !IsFatalFrameError(err) {
		t.Errorf("expected fatal frame error, got: %v", err)
	}

	var frameErr *FrameError
	if !errors.As(err, &frameErr) {
		t.Fatalf("expected *FrameError, got %T", err)
	}

	if frameErr.Kind != FrameErrorTooLarge {
		t.Errorf("Kind = %v, want FrameErrorTooLarge", frameErr.Kind)
	}
}

func TestFrameDecoder_EmptyStream(t *testing.T) {
	decoder := NewFrameDecoder(bytes.NewReader(nil))
	_, err := decoder.ReadFrame()

	if err != io.EOF {
		t.Errorf("expected io.EOF, got: %v", err)
	}
}

func TestFrameDecoder_TruncatedLengthPrefix(t *testing.T) {
	decoder := NewFrameDecoder(bytes.NewReader([]byte{0x00, 0x00}))
	_, err := decoder.ReadFrame()

	var frameErr *FrameError
	if !errors.As(err, &frameErr) {
		t.Fatalf("expected *FrameError, got %T", err)
	}

	if frameErr.Kind != FrameErrorPartial {
		t.Errorf("Kind = %v, want FrameErrorPartial", frameErr.Kind)
	}
}

// TestFrameDecoder_MalformedMsgpack validates decode error for invalid msgpack.
// Decode errors are non-fatal at the frame level: the stream is still aligned.
func TestFrameDecoder_MalformedMsgpack(t *testing.T) {
	frame := encodeFrame([]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF})

	_, err := NewFrameDecoder(bytes.NewReader(frame)).ReadPacket()
	if err == nil {
		t.Fatal("expected decode error for malformed msgpack")
	}

	var frameErr *FrameError
	if !errors.As(err, &frameErr) {
		t.Fatalf("expected *FrameError, got %T", err)
	}

	if frameErr.Kind != FrameErrorDecode {
		t.Errorf("Kind = %v, want FrameErrorDecode", frameErr.Kind)
	}

	if IsFatalFrameError(err) {
		t.Error("decode errors should not be fatal")
	}
}

func TestFrameError_ErrorMessage(t *testing.T) {
	tests := []struct {
		name     string
		err      *FrameError
		contains string
	}{
		{
			name:     "partial without underlying error",
			err:      &FrameError{Kind: FrameErrorPartial, Msg: "truncated"},
			contains: "truncated",
		},
		{
			name: "partial with underlying error",
			err: &FrameError{
				Kind: FrameErrorPartial,
				Msg:  "read failed",
				Err:  io.ErrUnexpectedEOF,
			},
			contains: "unexpected EOF",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			if !bytes.Contains([]byte(msg), []byte(tt.contains)) {
				t.Errorf("error message %q does not contain %q", msg, tt.contains)
			}
		})
	}
}

func TestIsFatalFrameError_NonFrameError(t *testing.T) {
	if IsFatalFrameError(errors.New("regular error")) {
		t.Error("regular errors should not be fatal frame errors")
	}
	if IsFatalFrameError(nil) {
		t.Error("nil should not be a fatal frame error")
	}
	if IsFatalFrameError(io.EOF) {
		t.Error("io.EOF should not be a fatal frame error")
	}
}
