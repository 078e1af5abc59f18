package oleauto

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"github.com/chazu/comvar/variant"
)

func newBlock(t variant.Type, write func(p []byte)) *variant.Block {
	var b variant.Block
	b.SetDiscriminant(t)
	if write != nil {
		write(b.Payload())
	}
	return &b
}

func int32Block(n int32) *variant.Block {
	return newBlock(variant.TypeInt32, func(p []byte) {
		binary.LittleEndian.PutUint32(p, uint32(n))
	})
}

func float64Block(f float64) *variant.Block {
	return newBlock(variant.TypeFloat64, func(p []byte) {
		binary.LittleEndian.PutUint64(p, math.Float64bits(f))
	})
}

func stringBlock(rt *Runtime, s string) *variant.Block {
	h := rt.NewString(s)
	return newBlock(variant.TypeString, func(p []byte) {
		binary.LittleEndian.PutUint64(p, uint64(h))
	})
}

func readInt32(b *variant.Block) int32 {
	return int32(binary.LittleEndian.Uint32(b.Payload()))
}

func readFloat64(b *variant.Block) float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(b.Payload()))
}

// ---------------------------------------------------------------------------
// Numeric coercion
// ---------------------------------------------------------------------------

func TestCoerceIntWidths(t *testing.T) {
	rt := New(Options{})

	tests := []struct {
		target variant.Type
		n      int32
		ok     bool
	}{
		{variant.TypeInt8, 100, true},
		{variant.TypeInt8, 200, false},
		{variant.TypeUInt8, 200, true},
		{variant.TypeUInt8, -1, false},
		{variant.TypeInt16, 30000, true},
		{variant.TypeInt16, 40000, false},
		{variant.TypeUInt16, 40000, true},
		{variant.TypeUInt32, -1, false},
		{variant.TypeInt, 1 << 30, true},
		{variant.TypeUInt, 1 << 30, true},
	}

	for _, tt := range tests {
		b := int32Block(tt.n)
		err := rt.CoerceTo(tt.target, b)
		if tt.ok && err != nil {
			t.Errorf("CoerceTo(%s, %d) error: %v", tt.target, tt.n, err)
			continue
		}
		if !tt.ok {
			if err == nil {
				t.Errorf("CoerceTo(%s, %d) succeeded, want overflow", tt.target, tt.n)
			}
			// Failure leaves the block untouched.
			if got, _ := variant.TypeOf(b.Discriminant()); got != variant.TypeInt32 {
				t.Errorf("failed coercion changed discriminant to %s", got)
			}
		}
	}
}

func TestCoerceRoundHalfEven(t *testing.T) {
	rt := New(Options{})
	tests := []struct {
		f    float64
		want int32
	}{
		{3.9, 4}, {-3.9, -4}, {0.5, 0}, {1.5, 2}, {2.5, 2}, {3.5, 4}, {-0.5, 0},
	}
	for _, tt := range tests {
		b := float64Block(tt.f)
		if err := rt.CoerceTo(variant.TypeInt32, b); err != nil {
			t.Fatalf("CoerceTo(Int32, %g) error: %v", tt.f, err)
		}
		if got := readInt32(b); got != tt.want {
			t.Errorf("CoerceTo(Int32, %g) = %d, want %d", tt.f, got, tt.want)
		}
	}
}

func TestCoerceFloatOverflow(t *testing.T) {
	rt := New(Options{})

	b := float64Block(1e300)
	if err := rt.CoerceTo(variant.TypeFloat32, b); err == nil {
		t.Error("1e300 to Float32 succeeded, want overflow")
	}
	if err := rt.CoerceTo(variant.TypeInt32, b); err == nil {
		t.Error("1e300 to Int32 succeeded, want overflow")
	}
	if err := rt.CoerceTo(variant.TypeFloat64, float64Block(math.NaN())); err != nil {
		t.Errorf("NaN to Float64 error: %v", err)
	}
	if err := rt.CoerceTo(variant.TypeInt32, float64Block(math.NaN())); err == nil {
		t.Error("NaN to Int32 succeeded, want error")
	}
}

func TestCoerceSameTypeNoOp(t *testing.T) {
	rt := New(Options{})
	b := int32Block(-5)
	if err := rt.CoerceTo(variant.TypeInt32, b); err != nil {
		t.Fatal(err)
	}
	if got := readInt32(b); got != -5 {
		t.Errorf("payload after no-op coercion = %d, want -5", got)
	}
}

// ---------------------------------------------------------------------------
// Bool and Empty/Null
// ---------------------------------------------------------------------------

func TestCoerceBool(t *testing.T) {
	rt := New(Options{})

	b := int32Block(7)
	if err := rt.CoerceTo(variant.TypeBool, b); err != nil {
		t.Fatal(err)
	}
	// Automation true is int16 -1.
	if got := binary.LittleEndian.Uint16(b.Payload()); got != 0xFFFF {
		t.Errorf("bool payload = %#x, want 0xffff", got)
	}

	// And bool feeds back into numbers as -1.
	if err := rt.CoerceTo(variant.TypeInt32, b); err != nil {
		t.Fatal(err)
	}
	if got := readInt32(b); got != -1 {
		t.Errorf("true as Int32 = %d, want -1", got)
	}
}

func TestCoerceEmptySources(t *testing.T) {
	rt := New(Options{})

	b := newBlock(variant.TypeEmpty, nil)
	if err := rt.CoerceTo(variant.TypeInt32, b); err != nil {
		t.Fatal(err)
	}
	if got := readInt32(b); got != 0 {
		t.Errorf("Empty as Int32 = %d, want 0", got)
	}

	b = newBlock(variant.TypeEmpty, nil)
	if err := rt.CoerceTo(variant.TypeString, b); err != nil {
		t.Fatal(err)
	}
	h := payloadHandle(b)
	if s, _ := rt.StringValue(h); s != "" {
		t.Errorf("Empty as String = %q, want empty", s)
	}
}

func TestCoerceNullFails(t *testing.T) {
	rt := New(Options{})
	for _, target := range []variant.Type{
		variant.TypeInt32, variant.TypeFloat64, variant.TypeBool, variant.TypeString,
	} {
		b := newBlock(variant.TypeNull, nil)
		err := rt.CoerceTo(target, b)
		var ce *variant.CoercionError
		if !errors.As(err, &ce) {
			t.Errorf("Null to %s error = %v, want CoercionError", target, err)
		}
	}
}

func TestCoerceToEmptyReleases(t *testing.T) {
	rt := New(Options{})
	b := stringBlock(rt, "bye")
	if err := rt.CoerceTo(variant.TypeEmpty, b); err != nil {
		t.Fatal(err)
	}
	if b.Discriminant() != 0 {
		t.Errorf("discriminant = %d, want 0", b.Discriminant())
	}
	if rt.LiveStrings() != 0 {
		t.Errorf("LiveStrings = %d, want 0", rt.LiveStrings())
	}
}

// ---------------------------------------------------------------------------
// Strings and locale
// ---------------------------------------------------------------------------

func TestCoerceStringToNumber(t *testing.T) {
	rt := New(Options{})

	b := stringBlock(rt, " 1,234.5 ")
	if err := rt.CoerceTo(variant.TypeFloat64, b); err != nil {
		t.Fatal(err)
	}
	if got := readFloat64(b); got != 1234.5 {
		t.Errorf("\" 1,234.5 \" as Float64 = %g, want 1234.5", got)
	}
	// The source string is freed once converted.
	if rt.LiveStrings() != 0 {
		t.Errorf("LiveStrings = %d, want 0", rt.LiveStrings())
	}

	b = stringBlock(rt, "3.9")
	if err := rt.CoerceTo(variant.TypeInt32, b); err != nil {
		t.Fatal(err)
	}
	if got := readInt32(b); got != 4 {
		t.Errorf("\"3.9\" as Int32 = %d, want 4", got)
	}
}

func TestCoerceNumberToStringLocale(t *testing.T) {
	rt := New(Options{Locale: Locale{
		DecimalSep:   ",",
		ThousandsSep: ".",
		TrueLabel:    "Wahr",
		FalseLabel:   "Falsch",
	}})

	b := float64Block(3.5)
	if err := rt.CoerceTo(variant.TypeString, b); err != nil {
		t.Fatal(err)
	}
	if s, _ := rt.StringValue(payloadHandle(b)); s != "3,5" {
		t.Errorf("3.5 as String = %q, want \"3,5\"", s)
	}

	// The locale's labels drive bool parsing too.
	b = stringBlock(rt, "wahr")
	if err := rt.CoerceTo(variant.TypeBool, b); err != nil {
		t.Fatal(err)
	}
	if binary.LittleEndian.Uint16(b.Payload()) != 0xFFFF {
		t.Error("\"wahr\" did not parse as true")
	}
}

func TestCoerceBoolToString(t *testing.T) {
	rt := New(Options{})
	b := newBlock(variant.TypeBool, func(p []byte) {
		binary.LittleEndian.PutUint16(p, 0xFFFF)
	})
	if err := rt.CoerceTo(variant.TypeString, b); err != nil {
		t.Fatal(err)
	}
	if s, _ := rt.StringValue(payloadHandle(b)); s != "True" {
		t.Errorf("true as String = %q, want \"True\"", s)
	}
}

func TestCoerceDanglingString(t *testing.T) {
	rt := New(Options{})
	b := newBlock(variant.TypeString, func(p []byte) {
		binary.LittleEndian.PutUint64(p, 12345)
	})
	if err := rt.CoerceTo(variant.TypeInt32, b); err == nil {
		t.Error("dangling string handle coerced successfully, want error")
	}
}

// ---------------------------------------------------------------------------
// Objects
// ---------------------------------------------------------------------------

func TestCoerceObjectTargets(t *testing.T) {
	rt := New(Options{})
	h := rt.NewObject("IThing")

	b := newBlock(variant.TypeDispatch, func(p []byte) {
		binary.LittleEndian.PutUint64(p, uint64(h))
	})
	if err := rt.CoerceTo(variant.TypeUnknown, b); err != nil {
		t.Fatal(err)
	}
	if payloadHandle(b) != h {
		t.Errorf("handle after Dispatch->Unknown = %d, want %d", payloadHandle(b), h)
	}
	// Discriminant rewrite only: the refcount is untouched.
	if rc := rt.RefCount(h); rc != 1 {
		t.Errorf("RefCount = %d, want 1", rc)
	}

	if err := rt.CoerceTo(variant.TypeFloat64, b); err == nil {
		t.Error("object to Float64 succeeded, want error")
	}

	empty := newBlock(variant.TypeEmpty, nil)
	if err := rt.CoerceTo(variant.TypeUnknown, empty); err != nil {
		t.Fatal(err)
	}
	if payloadHandle(empty) != 0 {
		t.Errorf("Empty as Unknown handle = %d, want 0", payloadHandle(empty))
	}
}

func TestCoerceUnmodeledTargets(t *testing.T) {
	rt := New(Options{})
	for _, target := range []variant.Type{
		variant.TypeCurrency, variant.TypeDecimal, variant.TypeRecord,
		variant.TypeVariant, variant.TypeError,
	} {
		b := int32Block(1)
		if err := rt.CoerceTo(target, b); err == nil {
			t.Errorf("Int32 to %s succeeded, want error", target)
		}
	}
}

func TestCoerceInvalidDiscriminant(t *testing.T) {
	rt := New(Options{})
	var b variant.Block
	binary.LittleEndian.PutUint64(b[:8], 999)

	err := rt.CoerceTo(variant.TypeInt32, &b)
	var de *variant.InvalidDiscriminantError
	if !errors.As(err, &de) {
		t.Errorf("error = %v, want InvalidDiscriminantError", err)
	}
}

// ---------------------------------------------------------------------------
// Release and the handle heap
// ---------------------------------------------------------------------------

func TestReleaseEmptyNoOp(t *testing.T) {
	rt := New(Options{})
	var b variant.Block
	if err := rt.Release(&b); err != nil {
		t.Errorf("Release of Empty block error: %v", err)
	}
}

func TestReleaseObjectBlock(t *testing.T) {
	rt := New(Options{})
	h := rt.NewObject("IThing")

	b := newBlock(variant.TypeUnknown, func(p []byte) {
		binary.LittleEndian.PutUint64(p, uint64(h))
	})
	if err := rt.Release(b); err != nil {
		t.Fatal(err)
	}
	if b.Discriminant() != 0 {
		t.Errorf("discriminant after release = %d, want 0", b.Discriminant())
	}
	if rt.LiveObjects() != 0 {
		t.Errorf("LiveObjects = %d, want 0", rt.LiveObjects())
	}
}

func TestReleaseResetsOnFailure(t *testing.T) {
	rt := New(Options{})
	// A resource-bearing block whose handle is not in the heap: release
	// fails but the block is still reset (best-effort clear).
	b := newBlock(variant.TypeUnknown, func(p []byte) {
		binary.LittleEndian.PutUint64(p, 777)
	})
	if err := rt.Release(b); err == nil {
		t.Error("release of unknown handle succeeded, want error")
	}
	if b.Discriminant() != 0 {
		t.Errorf("discriminant after failed release = %d, want 0", b.Discriminant())
	}
}

func TestRefCountLifecycle(t *testing.T) {
	rt := New(Options{})
	h := rt.NewObject("IThing", "IOther")

	if !rt.Supports(h, "IThing") || !rt.Supports(h, "IOther") {
		t.Error("object should support both declared interfaces")
	}
	if rt.Supports(h, "INope") {
		t.Error("object should not support an undeclared interface")
	}

	if err := rt.Retain(h); err != nil {
		t.Fatal(err)
	}
	if rc := rt.RefCount(h); rc != 2 {
		t.Fatalf("RefCount = %d, want 2", rc)
	}

	if err := rt.ReleaseHandle(h); err != nil {
		t.Fatal(err)
	}
	if rc := rt.RefCount(h); rc != 1 {
		t.Fatalf("RefCount = %d, want 1", rc)
	}

	if err := rt.ReleaseHandle(h); err != nil {
		t.Fatal(err)
	}
	if rt.LiveObjects() != 0 {
		t.Error("object should be destroyed at refcount zero")
	}
	if err := rt.Retain(h); err == nil {
		t.Error("retain of destroyed handle succeeded, want error")
	}
}
