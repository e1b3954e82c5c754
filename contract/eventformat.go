package contract

import (
	"bytes"
	"fmt"
	"math"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/ostorc/msbuild/buildevent"
	"github.com/ostorc/msbuild/types"
)

// eventPtr constrains the formatter to pointers of concrete event types,
// so a blank instance can be allocated for decoding.
type eventPtr[T any] interface {
	*T
	buildevent.Event
}

// EncodeEvent writes ev as a msgpack bin holding the event's own binary body.
// A nil event is written as msgpack nil.
func EncodeEvent[T any, P eventPtr[T]](enc *msgpack.Encoder, ev P) error {
	if ev == nil {
		return enc.EncodeNil()
	}
	var buf bytes.Buffer
	if err := ev.WriteTo(buildevent.NewWriter(&buf)); err != nil {
		return fmt.Errorf("write %s event: %w", ev.Category(), err)
	}
	return enc.EncodeBytes(buf.Bytes())
}

// DecodeEvent reads a value written by EncodeEvent. ok is false when the
// value was nil or its body could not be decoded; the error is reserved for
// a broken msgpack stream.
func DecodeEvent[T any, P eventPtr[T]](dec *msgpack.Decoder) (ev P, ok bool, err error) {
	body, err := dec.DecodeBytes()
	if err != nil {
		return nil, false, err
	}
	if body == nil {
		return nil, false, nil
	}
	ev = P(new(T))
	if !readBody(ev, body) {
		return nil, false, nil
	}
	return ev, true, nil
}

// readBody fills ev from body, reporting false on any failure including a panic.
func readBody(ev buildevent.Event, body []byte) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	return ev.ReadFrom(buildevent.NewReader(body), math.MaxInt32) == nil
}

// customFields is the array length of one encoded custom event: [kind, body].
const customFields = 2

// EncodeCustomEvent writes ev as a two-element array holding its uint16 kind
// tag and its body. Custom events are a closed set; anything else is an
// internal error.
func EncodeCustomEvent(enc *msgpack.Encoder, ev buildevent.CustomEvent) error {
	switch e := ev.(type) {
	case *buildevent.ProjectStartedEvent:
		if e != nil {
			return encodeCustom(enc, e.Kind(), func() error { return EncodeEvent(enc, e) })
		}
	case *buildevent.ProjectFinishedEvent:
		if e != nil {
			return encodeCustom(enc, e.Kind(), func() error { return EncodeEvent(enc, e) })
		}
	}
	return types.NewInternalError("encode custom event", "unsupported custom event %T", ev)
}

func encodeCustom(enc *msgpack.Encoder, kind buildevent.CustomKind, body func() error) error {
	if err := enc.EncodeArrayLen(customFields); err != nil {
		return err
	}
	if err := enc.EncodeUint16(uint16(kind)); err != nil {
		return err
	}
	return body()
}

// DecodeCustomEvent reads a value written by EncodeCustomEvent. An unknown
// kind tag is an internal error because it means the peer speaks another
// protocol version.
func DecodeCustomEvent(dec *msgpack.Decoder) (buildevent.CustomEvent, bool, error) {
	n, err := dec.DecodeArrayLen()
	if err != nil {
		return nil, false, err
	}
	if n < 0 {
		return nil, false, nil
	}
	if n < customFields {
		return nil, false, fmt.Errorf("custom event has %d fields, want %d", n, customFields)
	}
	tag, err := dec.DecodeUint16()
	if err != nil {
		return nil, false, err
	}
	body, err := dec.DecodeBytes()
	if err != nil {
		return nil, false, err
	}
	for i := customFields; i < n; i++ {
		if err := dec.Skip(); err != nil {
			return nil, false, err
		}
	}

	ev, err := buildevent.NewCustom(buildevent.CustomKind(tag))
	if err != nil {
		return nil, false, types.NewInternalError("decode custom event", "%v", err)
	}
	if body == nil || !readBody(ev, body) {
		return nil, false, nil
	}
	return ev, true, nil
}
