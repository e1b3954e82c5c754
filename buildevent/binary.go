package buildevent

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"time"
)

// ErrCorrupt is returned by Reader when the buffer cannot hold the value being read.
var ErrCorrupt = errors.New("buildevent: corrupt event buffer")

// ticksEpochOffset is the number of seconds between 0001-01-01 and 1970-01-01.
const ticksEpochOffset = 62135596800

const ticksPerSecond = 10_000_000

// dateTimeKindUTC matches DateTimeKind.Utc in the engine's own event stream.
const dateTimeKindUTC = 1

// Writer writes primitives in the engine's binary event layout:
// little-endian integers, 7-bit length-prefixed UTF-8 strings, one-byte booleans.
// Errors are sticky; check Err once after writing.
type Writer struct {
	w   io.Writer
	buf [binary.MaxVarintLen64]byte
	err error
}

// NewWriter creates a Writer over w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Err returns the first write error, if any.
func (w *Writer) Err() error {
	return w.err
}

func (w *Writer) write(p []byte) {
	if w.err != nil {
		return
	}
	_, w.err = w.w.Write(p)
}

// WriteBool writes a single byte, 1 for true.
func (w *Writer) WriteBool(v bool) {
	w.buf[0] = 0
	if v {
		w.buf[0] = 1
	}
	w.write(w.buf[:1])
}

// WriteInt32 writes a little-endian int32.
func (w *Writer) WriteInt32(v int32) {
	binary.LittleEndian.PutUint32(w.buf[:4], uint32(v))
	w.write(w.buf[:4])
}

// WriteInt64 writes a little-endian int64.
func (w *Writer) WriteInt64(v int64) {
	binary.LittleEndian.PutUint64(w.buf[:8], uint64(v))
	w.write(w.buf[:8])
}

// WriteString writes a 7-bit encoded byte length followed by the UTF-8 bytes.
func (w *Writer) WriteString(s string) {
	n := binary.PutUvarint(w.buf[:], uint64(len(s)))
	w.write(w.buf[:n])
	if w.err == nil {
		_, w.err = io.WriteString(w.w, s)
	}
}

// WriteOptionalString writes a presence byte and, when s is non-empty, the string.
func (w *Writer) WriteOptionalString(s string) {
	w.WriteBool(s != "")
	if s != "" {
		w.WriteString(s)
	}
}

// WriteTimestamp writes t as 100ns ticks since 0001-01-01 UTC plus a kind marker.
func (w *Writer) WriteTimestamp(t time.Time) {
	if t.IsZero() {
		w.WriteInt64(0)
		w.WriteInt32(0)
		return
	}
	t = t.UTC()
	ticks := (t.Unix()+ticksEpochOffset)*ticksPerSecond + int64(t.Nanosecond())/100
	w.WriteInt64(ticks)
	w.WriteInt32(dateTimeKindUTC)
}

// Reader reads values written by Writer. Errors are sticky; a failed read
// yields zero values from then on.
type Reader struct {
	r   *bytes.Reader
	err error
}

// NewReader creates a Reader over an encoded event body.
func NewReader(data []byte) *Reader {
	return &Reader{r: bytes.NewReader(data)}
}

// Err returns the first read error, if any.
func (r *Reader) Err() error {
	return r.err
}

func (r *Reader) fail(err error) {
	if r.err == nil {
		r.err = err
	}
}

func (r *Reader) read(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || n > r.r.Len() {
		r.fail(fmt.Errorf("%w: need %d bytes, have %d", ErrCorrupt, n, r.r.Len()))
		return nil
	}
	p := make([]byte, n)
	if _, err := io.ReadFull(r.r, p); err != nil {
		r.fail(fmt.Errorf("%w: %v", ErrCorrupt, err))
		return nil
	}
	return p
}

// ReadBool reads a one-byte boolean. Values other than 0 and 1 are corrupt.
func (r *Reader) ReadBool() bool {
	p := r.read(1)
	if p == nil {
		return false
	}
	switch p[0] {
	case 0:
		return false
	case 1:
		return true
	default:
		r.fail(fmt.Errorf("%w: invalid boolean byte %#x", ErrCorrupt, p[0]))
		return false
	}
}

// ReadInt32 reads a little-endian int32.
func (r *Reader) ReadInt32() int32 {
	p := r.read(4)
	if p == nil {
		return 0
	}
	return int32(binary.LittleEndian.Uint32(p))
}

// ReadInt64 reads a little-endian int64.
func (r *Reader) ReadInt64() int64 {
	p := r.read(8)
	if p == nil {
		return 0
	}
	return int64(binary.LittleEndian.Uint64(p))
}

// ReadString reads a 7-bit length-prefixed UTF-8 string.
func (r *Reader) ReadString() string {
	if r.err != nil {
		return ""
	}
	n, err := binary.ReadUvarint(r.r)
	if err != nil {
		r.fail(fmt.Errorf("%w: string length: %v", ErrCorrupt, err))
		return ""
	}
	if n > math.MaxInt32 {
		r.fail(fmt.Errorf("%w: string length %d", ErrCorrupt, n))
		return ""
	}
	return string(r.read(int(n)))
}

// ReadOptionalString reads a presence byte and, if set, a string.
func (r *Reader) ReadOptionalString() string {
	if !r.ReadBool() {
		return ""
	}
	return r.ReadString()
}

// ReadTimestamp reads a value written by WriteTimestamp.
func (r *Reader) ReadTimestamp() time.Time {
	ticks := r.ReadInt64()
	kind := r.ReadInt32()
	if r.err != nil || (ticks == 0 && kind == 0) {
		return time.Time{}
	}
	sec := ticks/ticksPerSecond - ticksEpochOffset
	nsec := (ticks % ticksPerSecond) * 100
	return time.Unix(sec, nsec).UTC()
}
