package contract

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/ostorc/msbuild/buildevent"
	"github.com/ostorc/msbuild/types"
)

func TestResult_AddEvent(t *testing.T) {
	r := NewResult(true, nil)
	require.NoError(t, r.AddEvent(&buildevent.ErrorEvent{}))
	require.NoError(t, r.AddEvent(&buildevent.WarningEvent{}))
	require.NoError(t, r.AddEvent(&buildevent.MessageEvent{}))
	require.NoError(t, r.AddEvent(&buildevent.MessageEvent{}))
	require.NoError(t, r.AddEvent(&buildevent.ProjectStartedEvent{}))

	assert.Equal(t, 5, r.EventCount)
	assert.Len(t, r.ErrorEvents, 1)
	assert.Len(t, r.WarningEvents, 1)
	assert.Len(t, r.MessageEvents, 2)
	assert.Len(t, r.CustomEvents, 1)
	assert.Len(t, r.Events(), 5)

	err := r.AddEvent(nil)
	assert.True(t, types.IsInternalError(err))
	assert.Equal(t, 5, r.EventCount)
}

func TestResult_RoundTrip(t *testing.T) {
	resp := &Response{
		ResolvedFiles:          []ReadOnlyTaskItem{{Spec: "/opt/lib/Foo.dll", Meta: map[string]string{"CopyLocal": "true"}}},
		CopyLocalFiles:         []ReadOnlyTaskItem{{Spec: "/opt/lib/Foo.dll"}},
		DependsOnSystemRuntime: "false",
	}
	r := NewResult(true, resp)
	require.NoError(t, r.AddEvent(&buildevent.MessageEvent{EventArgs: args("resolved Foo")}))
	require.NoError(t, r.AddEvent(&buildevent.WarningEvent{EventArgs: args("conflict")}))
	require.NoError(t, r.AddEvent(&buildevent.ProjectFinishedEvent{EventArgs: args("done"), Succeeded: true}))

	data, err := msgpack.Marshal(r)
	require.NoError(t, err)

	var got Result
	require.NoError(t, msgpack.Unmarshal(data, &got))
	assert.Equal(t, r, &got)
}

func TestResult_RoundTripEmpty(t *testing.T) {
	r := NewResult(false, nil)
	data, err := msgpack.Marshal(r)
	require.NoError(t, err)

	var got Result
	require.NoError(t, msgpack.Unmarshal(data, &got))
	assert.Equal(t, r, &got)
	assert.Nil(t, got.Response)
	assert.Nil(t, got.ErrorEvents)
}

func TestResult_EncodedAsPositionalArray(t *testing.T) {
	data, err := msgpack.Marshal(NewResult(true, nil))
	require.NoError(t, err)

	var fields []any
	require.NoError(t, msgpack.Unmarshal(data, &fields))
	require.Len(t, fields, 7)
	assert.Equal(t, true, fields[0])
	assert.Nil(t, fields[1])
}

// encodeResultWithBodies writes a Result whose error list holds raw bodies.
func encodeResultWithBodies(t *testing.T, count int, bodies [][]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	require.NoError(t, enc.EncodeArrayLen(7))
	require.NoError(t, enc.EncodeBool(true))
	require.NoError(t, enc.EncodeNil())
	require.NoError(t, enc.EncodeInt(int64(count)))
	require.NoError(t, enc.EncodeNil())
	require.NoError(t, enc.EncodeArrayLen(len(bodies)))
	for _, b := range bodies {
		require.NoError(t, enc.EncodeBytes(b))
	}
	require.NoError(t, enc.EncodeNil())
	require.NoError(t, enc.EncodeNil())
	return buf.Bytes()
}

func TestResult_CorruptEventIsDropped(t *testing.T) {
	var good bytes.Buffer
	require.NoError(t, (&buildevent.ErrorEvent{EventArgs: args("kept")}).WriteTo(buildevent.NewWriter(&good)))

	data := encodeResultWithBodies(t, 3, [][]byte{good.Bytes(), {0x01, 0x09}, nil})

	var got Result
	require.NoError(t, msgpack.Unmarshal(data, &got))
	assert.True(t, got.TaskResult)
	assert.Equal(t, 3, got.EventCount)
	require.Len(t, got.ErrorEvents, 1)
	assert.Equal(t, "kept", got.ErrorEvents[0].Message)
}

func TestResult_UnknownCustomTagFails(t *testing.T) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	require.NoError(t, enc.EncodeArrayLen(7))
	require.NoError(t, enc.EncodeBool(true))
	require.NoError(t, enc.EncodeNil())
	require.NoError(t, enc.EncodeInt(1))
	require.NoError(t, enc.EncodeArrayLen(1))
	require.NoError(t, enc.EncodeArrayLen(2))
	require.NoError(t, enc.EncodeUint16(42))
	require.NoError(t, enc.EncodeNil())

	var got Result
	err := msgpack.Unmarshal(buf.Bytes(), &got)
	assert.True(t, types.IsInternalError(err))
}

func TestResult_TooFewFields(t *testing.T) {
	data, err := msgpack.Marshal([]any{true, nil})
	require.NoError(t, err)

	var got Result
	assert.Error(t, msgpack.Unmarshal(data, &got))
}

func TestResult_TrailingFieldsSkipped(t *testing.T) {
	base, err := msgpack.Marshal(NewResult(true, nil))
	require.NoError(t, err)

	// Rewrite fixarray header 7 -> 8 and append one extra field.
	require.Equal(t, byte(0x97), base[0])
	data := append([]byte{0x98}, base[1:]...)
	data = append(data, 0xa3, 'n', 'e', 'w')

	var got Result
	require.NoError(t, msgpack.Unmarshal(data, &got))
	assert.True(t, got.TaskResult)
}
