// Package handshake computes the compatibility fingerprint a launcher and a
// resolution node exchange before any packet is trusted.
//
// Both sides derive the fingerprint from the same launch options and nothing
// else, so a freshly spawned worker agrees with its launcher without further
// negotiation.
package handshake

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/cespare/xxhash/v2"

	"github.com/ostorc/msbuild/types"
)

// TaskKind marks which worker protocol a fingerprint belongs to.
type TaskKind uint8

const (
	// TaskKindGeneric is the ordinary build worker. Never accepted here; it
	// exists so the two protocols can never produce equal fingerprints.
	TaskKindGeneric TaskKind = 0
	// TaskKindRAR is the dedicated assembly-resolution worker.
	TaskKindRAR TaskKind = 1
)

// Option bits.
const (
	optNodeReuse   uint32 = 1 << 0
	optLowPriority uint32 = 1 << 1
	// Bits 8-15 carry the task kind, 16-23 the protocol version.
	taskKindShift = 8
	versionShift  = 16
)

// Size is the encoded length of a Fingerprint.
const Size = 12

// saltSeed is mixed into the salt so unrelated programs speaking a
// length-prefixed protocol on the same socket never match by accident.
const saltSeed = "msbuild-rar-node"

// Options are the launch settings a fingerprint is derived from.
type Options struct {
	NodeReuse   bool
	LowPriority bool
	TaskKind    TaskKind
}

func (o Options) String() string {
	return fmt.Sprintf("reuse=%t low=%t kind=%d", o.NodeReuse, o.LowPriority, o.TaskKind)
}

// Fingerprint is the value exchanged during the handshake.
type Fingerprint struct {
	Options uint32
	Salt    uint64
}

// Equal reports whether f and other match exactly.
func (f Fingerprint) Equal(other Fingerprint) bool {
	return f == other
}

func (f Fingerprint) String() string {
	return fmt.Sprintf("%08x:%016x", f.Options, f.Salt)
}

// HostFingerprint is the fingerprint the launcher sends.
func HostFingerprint(opts Options) Fingerprint {
	return compute(opts)
}

// ClientFingerprint is the fingerprint a worker answers with.
// It equals HostFingerprint for the same options.
func ClientFingerprint(opts Options) Fingerprint {
	return compute(opts)
}

func compute(opts Options) Fingerprint {
	var bits uint32
	if opts.NodeReuse {
		bits |= optNodeReuse
	}
	if opts.LowPriority {
		bits |= optLowPriority
	}
	bits |= uint32(opts.TaskKind) << taskKindShift
	bits |= uint32(types.ProtocolVersion&0xff) << versionShift

	d := xxhash.New()
	_, _ = d.WriteString(saltSeed)
	_, _ = d.WriteString(types.Version)
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], bits)
	_, _ = d.Write(b[:])
	return Fingerprint{Options: bits, Salt: d.Sum64()}
}

// Variants returns every option combination a launcher of kind could have
// used, for sweeping workers whose launch settings are unknown.
func Variants(kind TaskKind) []Options {
	out := make([]Options, 0, 4)
	for _, reuse := range []bool{true, false} {
		for _, low := range []bool{false, true} {
			out = append(out, Options{NodeReuse: reuse, LowPriority: low, TaskKind: kind})
		}
	}
	return out
}

// MarshalBinary returns the 12-byte big-endian encoding.
func (f Fingerprint) MarshalBinary() ([]byte, error) {
	buf := make([]byte, Size)
	binary.BigEndian.PutUint32(buf[:4], f.Options)
	binary.BigEndian.PutUint64(buf[4:], f.Salt)
	return buf, nil
}

// UnmarshalBinary decodes a value produced by MarshalBinary.
func (f *Fingerprint) UnmarshalBinary(data []byte) error {
	if len(data) != Size {
		return fmt.Errorf("fingerprint: want %d bytes, got %d", Size, len(data))
	}
	f.Options = binary.BigEndian.Uint32(data[:4])
	f.Salt = binary.BigEndian.Uint64(data[4:])
	return nil
}

// Write sends fp on w.
func Write(w io.Writer, fp Fingerprint) error {
	buf, _ := fp.MarshalBinary()
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("write fingerprint: %w", err)
	}
	return nil
}

// Read receives a fingerprint from r.
func Read(r io.Reader) (Fingerprint, error) {
	var buf [Size]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return Fingerprint{}, fmt.Errorf("read fingerprint: %w", err)
	}
	var fp Fingerprint
	_ = fp.UnmarshalBinary(buf[:])
	return fp, nil
}
