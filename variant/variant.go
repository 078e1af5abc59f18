// Package variant implements the tagged value exchanged with an external
// component-object runtime.
//
// A Variant owns one fixed 16-byte little-endian block whose layout is
// dictated by the automation ABI: bytes [0..7] hold the type discriminant
// (stored as a machine word, low 16 bits meaningful) and bytes [8..15] hold
// the payload for that discriminant. Typed read accessors coerce the block
// in place before reading, so two reads on the same value are order
// dependent: the second coercion starts from the first one's result.
//
// A Variant is not safe for concurrent use. Accessors perform
// read-modify-write on the whole block; cross-goroutine sharing requires
// external synchronization.
package variant

import (
	"encoding/binary"
	"fmt"
	"math"
	gort "runtime"

	"github.com/tliron/commonlog"
)

// BlockSize is the size of a variant memory block in bytes.
const BlockSize = 16

// PayloadOffset is the byte offset of the payload within a block.
// The discriminant word occupies bytes [0..PayloadOffset).
const PayloadOffset = 8

// Block is the raw memory image of a variant, in the external ABI's layout.
// A block is exclusively owned by one Variant; nothing else may alias it.
type Block [BlockSize]byte

// Discriminant returns the raw discriminant word.
func (b *Block) Discriminant() uint64 {
	return binary.LittleEndian.Uint64(b[:PayloadOffset])
}

// SetDiscriminant overwrites the discriminant word. The payload bytes are
// untouched, so callers must ensure they are already valid for t.
func (b *Block) SetDiscriminant(t Type) {
	binary.LittleEndian.PutUint64(b[:PayloadOffset], uint64(t))
}

// Payload returns the mutable payload region, bytes [8..15].
func (b *Block) Payload() []byte {
	return b[PayloadOffset:]
}

// Reset zeroes the whole block, leaving it Empty. It does not release any
// resource the block referenced.
func (b *Block) Reset() {
	*b = Block{}
}

// Variant is a tagged value multiplexed into a single ABI-layout block.
type Variant struct {
	block *Block
	rt    Runtime
}

var (
	leakLog   = commonlog.GetLogger("comvar.variant")
	leakCheck bool
)

// EnableLeakCheck turns on the collection-time leak diagnostic for variants
// constructed afterwards. A variant that becomes unreachable while still
// holding a non-Empty block is released best-effort and logged as a leak.
//
// This is a safety net for debugging, never the primary release path: Clear
// must be called deterministically (typically via defer) because collection
// timing is not guaranteed. Call once during start-up; not synchronized.
func EnableLeakCheck(on bool) {
	leakCheck = on
}

// New creates an empty variant bound to the given runtime. The runtime may
// be nil for values that will never be coerced or hold foreign resources.
func New(rt Runtime) *Variant {
	v := &Variant{block: &Block{}, rt: rt}
	if leakCheck {
		gort.AddCleanup(v, reclaim, scrap{block: v.block, rt: rt})
	}
	return v
}

// NewTyped creates a zero-payload variant pre-typed to t. No coercion is
// invoked: writing the discriminant directly is legal here only because the
// payload is zero and therefore type-agnostic.
func NewTyped(rt Runtime, t Type) *Variant {
	v := New(rt)
	v.block.SetDiscriminant(t)
	return v
}

// Missing is the process-wide sentinel for "argument intentionally omitted".
// It is pre-typed to Error per the automation convention, constructed once
// at package initialization, and must never be mutated.
var Missing = NewTyped(nil, TypeError)

// scrap is what the leak diagnostic keeps after the Variant itself is gone.
type scrap struct {
	block *Block
	rt    Runtime
}

func reclaim(s scrap) {
	code := s.block.Discriminant()
	if code == uint64(TypeEmpty) {
		return
	}
	t, _ := TypeOf(code)
	leakLog.Warningf("variant collected without Clear (type=%s); releasing late", t)
	if s.rt != nil {
		if err := s.rt.Release(s.block); err != nil {
			leakLog.Errorf("late release failed: %s", err.Error())
		}
	}
	s.block.Reset()
}

// Clear releases any foreign resource the block references and resets it to
// Empty. It is idempotent: clearing an Empty or already-cleared variant is a
// no-op. Call it before reusing the value and exactly once at the end of the
// value's life, typically via defer.
//
// Release failures are best-effort: the block is reset regardless, so the
// value is usable afterwards even when an error is returned.
func (v *Variant) Clear() error {
	var err error
	if v.rt != nil {
		err = v.rt.Release(v.block)
	}
	v.block.Reset()
	if err != nil {
		return fmt.Errorf("variant: clear: %w", err)
	}
	return nil
}

// GetType reads the current discriminant. It never mutates the block.
// A raw word that matches no known type code yields an
// *InvalidDiscriminantError.
func (v *Variant) GetType() (Type, error) {
	code := v.block.Discriminant()
	t, ok := TypeOf(code)
	if !ok {
		return TypeEmpty, &InvalidDiscriminantError{Code: code}
	}
	return t, nil
}

// SetType overwrites the discriminant without coercion and without
// releasing anything the block may hold. Only legal on a block known to be
// payload-zero (freshly constructed or just cleared); callers must Clear
// first if the prior discriminant could own a resource.
func (v *Variant) SetType(t Type) {
	v.block.SetDiscriminant(t)
}

// coerce asks the runtime to rewrite the block under the target type.
func (v *Variant) coerce(target Type) error {
	if v.rt == nil {
		return ErrNoRuntime
	}
	return v.rt.CoerceTo(target, v.block)
}

// AsInt32 coerces the value to Int32 in place and returns the payload.
// The discriminant is permanently Int32 afterwards.
func (v *Variant) AsInt32() (int32, error) {
	if err := v.coerce(TypeInt32); err != nil {
		return 0, err
	}
	return int32(binary.LittleEndian.Uint32(v.block.Payload())), nil
}

// AsInt64 returns the Int32 coercion result widened to 64 bits. The
// automation value format has no native 64-bit integer scalar, so a 64-bit
// read is defined as the 32-bit read; values outside the 32-bit range fail
// with a coercion error rather than widening.
func (v *Variant) AsInt64() (int64, error) {
	n, err := v.AsInt32()
	return int64(n), err
}

// AsFloat32 coerces the value to Float32 in place and returns the payload.
func (v *Variant) AsFloat32() (float32, error) {
	if err := v.coerce(TypeFloat32); err != nil {
		return 0, err
	}
	return math.Float32frombits(binary.LittleEndian.Uint32(v.block.Payload())), nil
}

// AsFloat64 coerces the value to Float64 in place and returns the payload.
func (v *Variant) AsFloat64() (float64, error) {
	if err := v.coerce(TypeFloat64); err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(v.block.Payload())), nil
}

// AsBool coerces the value to Bool in place. The payload is the automation
// boolean: int16, -1 for true and 0 for false.
func (v *Variant) AsBool() (bool, error) {
	if err := v.coerce(TypeBool); err != nil {
		return false, err
	}
	return binary.LittleEndian.Uint16(v.block.Payload()) != 0, nil
}

// AsUnknown coerces the value to the generic object discriminant and
// returns the handle. A zero handle means "no object" and performs no
// retain. A non-zero handle is retained before it is returned: the caller
// receives a new, independently-owned reference and must release it; the
// variant's own claim on the handle is untouched.
//
// Proxy construction over the returned handle is the wrapper package's job.
func (v *Variant) AsUnknown() (Handle, error) {
	if err := v.coerce(TypeUnknown); err != nil {
		return 0, err
	}
	h := Handle(binary.LittleEndian.Uint64(v.block.Payload()))
	if h == 0 {
		return 0, nil
	}
	if err := v.rt.Retain(h); err != nil {
		return 0, fmt.Errorf("variant: retain %d: %w", h, err)
	}
	return h, nil
}

// put clears the value and installs a scalar payload under t.
// The clear satisfies the payload-zero precondition of the raw
// discriminant write.
func (v *Variant) put(t Type, write func(payload []byte)) error {
	if err := v.Clear(); err != nil {
		return err
	}
	v.block.SetDiscriminant(t)
	if write != nil {
		write(v.block.Payload())
	}
	return nil
}

// SetNull makes the value the SQL-style Null.
func (v *Variant) SetNull() error {
	return v.put(TypeNull, nil)
}

// SetInt16 stores a signed 16-bit integer.
func (v *Variant) SetInt16(n int16) error {
	return v.put(TypeInt16, func(p []byte) {
		binary.LittleEndian.PutUint16(p, uint16(n))
	})
}

// SetInt32 stores a signed 32-bit integer.
func (v *Variant) SetInt32(n int32) error {
	return v.put(TypeInt32, func(p []byte) {
		binary.LittleEndian.PutUint32(p, uint32(n))
	})
}

// SetFloat32 stores an IEEE 754 single.
func (v *Variant) SetFloat32(f float32) error {
	return v.put(TypeFloat32, func(p []byte) {
		binary.LittleEndian.PutUint32(p, math.Float32bits(f))
	})
}

// SetFloat64 stores an IEEE 754 double.
func (v *Variant) SetFloat64(f float64) error {
	return v.put(TypeFloat64, func(p []byte) {
		binary.LittleEndian.PutUint64(p, math.Float64bits(f))
	})
}

// SetBool stores an automation boolean (-1/0 int16).
func (v *Variant) SetBool(b bool) error {
	return v.put(TypeBool, func(p []byte) {
		if b {
			binary.LittleEndian.PutUint16(p, 0xFFFF)
		}
	})
}

// SetDate stores an automation date: fractional days since 1899-12-30,
// float64 encoded.
func (v *Variant) SetDate(days float64) error {
	return v.put(TypeDate, func(p []byte) {
		binary.LittleEndian.PutUint64(p, math.Float64bits(days))
	})
}

// SetString stores a foreign heap string handle. Ownership of the handle
// transfers to the variant; it is released by the next Clear.
func (v *Variant) SetString(h Handle) error {
	return v.put(TypeString, func(p []byte) {
		binary.LittleEndian.PutUint64(p, uint64(h))
	})
}

// SetObject stores an object handle under the generic object discriminant.
// The handle is retained first: the variant owns one new reference and the
// caller keeps its own.
func (v *Variant) SetObject(h Handle) error {
	if err := v.Clear(); err != nil {
		return err
	}
	if h == 0 {
		v.block.SetDiscriminant(TypeUnknown)
		return nil
	}
	if v.rt == nil {
		return ErrNoRuntime
	}
	if err := v.rt.Retain(h); err != nil {
		return fmt.Errorf("variant: retain %d: %w", h, err)
	}
	v.block.SetDiscriminant(TypeUnknown)
	binary.LittleEndian.PutUint64(v.block.Payload(), uint64(h))
	return nil
}

// SetRaw installs a discriminant and raw payload bytes directly, clearing
// first. Resource-bearing discriminants are refused: their payloads are
// process-local handles that cannot be conjured from bytes.
func (v *Variant) SetRaw(t Type, payload [PayloadOffset]byte) error {
	if t.HoldsResource() {
		return &CoercionError{From: TypeEmpty, To: t, Reason: "raw payload cannot carry a foreign resource"}
	}
	return v.put(t, func(p []byte) {
		copy(p, payload[:])
	})
}

// PayloadBytes returns a copy of the payload region. Interpreting it
// requires the current discriminant; see GetType.
func (v *Variant) PayloadBytes() [PayloadOffset]byte {
	var p [PayloadOffset]byte
	copy(p[:], v.block.Payload())
	return p
}

// String renders the discriminant and raw payload for diagnostics.
func (v *Variant) String() string {
	t, err := v.GetType()
	if err != nil {
		return fmt.Sprintf("Variant(discriminant=%d?)", v.block.Discriminant())
	}
	return fmt.Sprintf("Variant(%s % x)", t, v.block.Payload())
}
