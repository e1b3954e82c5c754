package contract

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/ostorc/msbuild/buildevent"
	"github.com/ostorc/msbuild/types"
)

// resultFields is the number of positional fields in an encoded Result.
const resultFields = 7

// Result is the envelope a resolution node returns: the task outcome, its
// response, and the build events raised while producing it.
//
// On the wire it is a msgpack array in field order
// [TaskResult, Response, EventCount, Custom, Error, Message, Warning].
type Result struct {
	TaskResult bool
	Response   *Response
	// EventCount is the number of events the worker raised. Events that
	// failed to decode are dropped from the lists but still counted here.
	EventCount    int
	CustomEvents  []buildevent.CustomEvent
	ErrorEvents   []*buildevent.ErrorEvent
	MessageEvents []*buildevent.MessageEvent
	WarningEvents []*buildevent.WarningEvent
}

// NewResult creates a Result with no events.
func NewResult(taskResult bool, resp *Response) *Result {
	return &Result{TaskResult: taskResult, Response: resp}
}

// AddEvent appends ev to the list for its category and counts it.
// The worker's event collector calls this as events are raised.
func (r *Result) AddEvent(ev buildevent.Event) error {
	switch e := ev.(type) {
	case *buildevent.ErrorEvent:
		r.ErrorEvents = append(r.ErrorEvents, e)
	case *buildevent.WarningEvent:
		r.WarningEvents = append(r.WarningEvents, e)
	case *buildevent.MessageEvent:
		r.MessageEvents = append(r.MessageEvents, e)
	case buildevent.CustomEvent:
		r.CustomEvents = append(r.CustomEvents, e)
	default:
		return types.NewInternalError("add event", "unsupported event %T", ev)
	}
	r.EventCount++
	return nil
}

// Events returns all carried events in category order: errors, warnings,
// messages, then custom events.
func (r *Result) Events() []buildevent.Event {
	out := make([]buildevent.Event, 0, len(r.ErrorEvents)+len(r.WarningEvents)+len(r.MessageEvents)+len(r.CustomEvents))
	for _, e := range r.ErrorEvents {
		out = append(out, e)
	}
	for _, e := range r.WarningEvents {
		out = append(out, e)
	}
	for _, e := range r.MessageEvents {
		out = append(out, e)
	}
	for _, e := range r.CustomEvents {
		out = append(out, e)
	}
	return out
}

var (
	_ msgpack.CustomEncoder = (*Result)(nil)
	_ msgpack.CustomDecoder = (*Result)(nil)
)

// EncodeMsgpack implements msgpack.CustomEncoder.
func (r *Result) EncodeMsgpack(enc *msgpack.Encoder) error {
	if err := enc.EncodeArrayLen(resultFields); err != nil {
		return err
	}
	if err := enc.EncodeBool(r.TaskResult); err != nil {
		return err
	}
	if err := enc.Encode(r.Response); err != nil {
		return fmt.Errorf("encode response: %w", err)
	}
	if err := enc.EncodeInt(int64(r.EventCount)); err != nil {
		return err
	}
	if err := encodeList(enc, r.CustomEvents, EncodeCustomEvent); err != nil {
		return err
	}
	if err := encodeList(enc, r.ErrorEvents, EncodeEvent[buildevent.ErrorEvent]); err != nil {
		return err
	}
	if err := encodeList(enc, r.MessageEvents, EncodeEvent[buildevent.MessageEvent]); err != nil {
		return err
	}
	return encodeList(enc, r.WarningEvents, EncodeEvent[buildevent.WarningEvent])
}

// DecodeMsgpack implements msgpack.CustomDecoder. Trailing fields added by a
// newer peer are skipped.
func (r *Result) DecodeMsgpack(dec *msgpack.Decoder) error {
	n, err := dec.DecodeArrayLen()
	if err != nil {
		return err
	}
	if n < resultFields {
		return fmt.Errorf("result has %d fields, want at least %d", n, resultFields)
	}

	*r = Result{}
	if r.TaskResult, err = dec.DecodeBool(); err != nil {
		return err
	}
	if err := dec.Decode(&r.Response); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if r.EventCount, err = dec.DecodeInt(); err != nil {
		return err
	}
	if r.CustomEvents, err = decodeList(dec, DecodeCustomEvent); err != nil {
		return fmt.Errorf("decode custom events: %w", err)
	}
	if r.ErrorEvents, err = decodeList(dec, DecodeEvent[buildevent.ErrorEvent]); err != nil {
		return fmt.Errorf("decode error events: %w", err)
	}
	if r.MessageEvents, err = decodeList(dec, DecodeEvent[buildevent.MessageEvent]); err != nil {
		return fmt.Errorf("decode message events: %w", err)
	}
	if r.WarningEvents, err = decodeList(dec, DecodeEvent[buildevent.WarningEvent]); err != nil {
		return fmt.Errorf("decode warning events: %w", err)
	}

	for i := resultFields; i < n; i++ {
		if err := dec.Skip(); err != nil {
			return err
		}
	}
	return nil
}

func encodeList[E any](enc *msgpack.Encoder, list []E, encode func(*msgpack.Encoder, E) error) error {
	if list == nil {
		return enc.EncodeNil()
	}
	if err := enc.EncodeArrayLen(len(list)); err != nil {
		return err
	}
	for _, ev := range list {
		if err := encode(enc, ev); err != nil {
			return err
		}
	}
	return nil
}

// decodeList reads a list written by encodeList. Absent entries are dropped.
func decodeList[E any](dec *msgpack.Decoder, decode func(*msgpack.Decoder) (E, bool, error)) ([]E, error) {
	n, err := dec.DecodeArrayLen()
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, nil
	}
	out := make([]E, 0, n)
	for i := 0; i < n; i++ {
		ev, ok, err := decode(dec)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, ev)
		}
	}
	return out, nil
}
