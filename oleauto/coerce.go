package oleauto

import (
	"encoding/binary"
	"math"
	"strconv"
	"strings"

	"github.com/chazu/comvar/variant"
)

// kind classifies a decoded block value for conversion purposes.
type kind int

const (
	kEmpty kind = iota
	kNull
	kInt    // all integer discriminants, sign-extended into i
	kFloat  // Float32, Float64, Date
	kBool   // automation boolean
	kString // heap string, s holds the contents, h the handle
	kObject // Dispatch/Unknown, h holds the handle
	kOther  // discriminants the portable runtime does not model
)

// scalar is the intermediate form a block decodes to before re-encoding
// under the target discriminant.
type scalar struct {
	kind kind
	i    int64
	f    float64
	b    bool
	s    string
	h    variant.Handle
}

// CoerceTo rewrites the block in place so it holds the same logical value
// under the target discriminant.
//
// Float-to-integer conversion uses the automation rounding rule: round half
// to even (3.9 becomes 4, 0.5 becomes 0, 2.5 becomes 2), with overflow
// checked against the target width. String conversions follow the
// runtime's locale. On failure the block is left exactly as it was.
func (rt *Runtime) CoerceTo(target variant.Type, block *variant.Block) error {
	code := block.Discriminant()
	from, ok := variant.TypeOf(code)
	if !ok {
		return &variant.InvalidDiscriminantError{Code: code}
	}
	if from == target {
		return nil
	}

	// Coercion to Empty is a release: whatever the block holds is freed.
	if target == variant.TypeEmpty {
		return rt.Release(block)
	}

	val, err := rt.decode(from, block)
	if err != nil {
		return err
	}

	var payload [variant.PayloadOffset]byte
	newHandle := variant.Handle(0)

	switch target {
	case variant.TypeInt8, variant.TypeInt16, variant.TypeInt32, variant.TypeInt,
		variant.TypeUInt8, variant.TypeUInt16, variant.TypeUInt32, variant.TypeUInt:
		n, err := rt.toInteger(val, from, target)
		if err != nil {
			return err
		}
		encodeInteger(payload[:], n, target)

	case variant.TypeFloat32:
		f, err := rt.toFloat(val, from, target)
		if err != nil {
			return err
		}
		if !math.IsInf(f, 0) && math.Abs(f) > math.MaxFloat32 {
			return fail(from, target, "overflow")
		}
		binary.LittleEndian.PutUint32(payload[:], math.Float32bits(float32(f)))

	case variant.TypeFloat64, variant.TypeDate:
		f, err := rt.toFloat(val, from, target)
		if err != nil {
			return err
		}
		binary.LittleEndian.PutUint64(payload[:], math.Float64bits(f))

	case variant.TypeBool:
		b, err := rt.toBool(val, from)
		if err != nil {
			return err
		}
		if b {
			binary.LittleEndian.PutUint16(payload[:], 0xFFFF)
		}

	case variant.TypeString:
		s, err := rt.toString(val, from)
		if err != nil {
			return err
		}
		newHandle = rt.NewString(s)
		binary.LittleEndian.PutUint64(payload[:], uint64(newHandle))

	case variant.TypeUnknown, variant.TypeDispatch:
		switch val.kind {
		case kObject:
			binary.LittleEndian.PutUint64(payload[:], uint64(val.h))
		case kEmpty:
			// Zero handle: the "no object" sentinel.
		default:
			return fail(from, target, "not an object")
		}

	case variant.TypeNull:
		return fail(from, target, "only Null coerces to Null")

	default:
		// Currency, Decimal, Record, Variant, Error: outside the modeled
		// subset. The native runtime may define these; we do not.
		return fail(from, target, "target not modeled")
	}

	// The conversion succeeded. A string source that did not carry over
	// must be freed before its handle is overwritten.
	if from == variant.TypeString && target != variant.TypeString {
		if val.h != 0 {
			if err := rt.freeString(val.h); err != nil {
				rt.log.Errorf("freeing coerced string handle %d: %s", val.h, err.Error())
			}
		}
	}

	block.Reset()
	block.SetDiscriminant(target)
	copy(block.Payload(), payload[:])
	return nil
}

// decode reads the block into the intermediate scalar form without
// mutating it.
func (rt *Runtime) decode(from variant.Type, block *variant.Block) (scalar, error) {
	p := block.Payload()
	switch from {
	case variant.TypeEmpty:
		return scalar{kind: kEmpty}, nil
	case variant.TypeNull:
		return scalar{kind: kNull}, nil
	case variant.TypeInt8:
		return scalar{kind: kInt, i: int64(int8(p[0]))}, nil
	case variant.TypeUInt8:
		return scalar{kind: kInt, i: int64(p[0])}, nil
	case variant.TypeInt16:
		return scalar{kind: kInt, i: int64(int16(binary.LittleEndian.Uint16(p)))}, nil
	case variant.TypeUInt16:
		return scalar{kind: kInt, i: int64(binary.LittleEndian.Uint16(p))}, nil
	case variant.TypeInt32, variant.TypeInt:
		return scalar{kind: kInt, i: int64(int32(binary.LittleEndian.Uint32(p)))}, nil
	case variant.TypeUInt32, variant.TypeUInt:
		return scalar{kind: kInt, i: int64(binary.LittleEndian.Uint32(p))}, nil
	case variant.TypeFloat32:
		return scalar{kind: kFloat, f: float64(math.Float32frombits(binary.LittleEndian.Uint32(p)))}, nil
	case variant.TypeFloat64, variant.TypeDate:
		return scalar{kind: kFloat, f: math.Float64frombits(binary.LittleEndian.Uint64(p))}, nil
	case variant.TypeBool:
		return scalar{kind: kBool, b: binary.LittleEndian.Uint16(p) != 0}, nil
	case variant.TypeString:
		h := payloadHandle(block)
		if h == 0 {
			return scalar{kind: kString, s: ""}, nil
		}
		s, ok := rt.StringValue(h)
		if !ok {
			return scalar{}, fail(from, from, "dangling string handle")
		}
		return scalar{kind: kString, s: s, h: h}, nil
	case variant.TypeDispatch, variant.TypeUnknown:
		return scalar{kind: kObject, h: payloadHandle(block)}, nil
	default:
		return scalar{kind: kOther}, nil
	}
}

// integer bounds per target discriminant.
var intBounds = map[variant.Type]struct{ min, max int64 }{
	variant.TypeInt8:   {math.MinInt8, math.MaxInt8},
	variant.TypeInt16:  {math.MinInt16, math.MaxInt16},
	variant.TypeInt32:  {math.MinInt32, math.MaxInt32},
	variant.TypeInt:    {math.MinInt32, math.MaxInt32},
	variant.TypeUInt8:  {0, math.MaxUint8},
	variant.TypeUInt16: {0, math.MaxUint16},
	variant.TypeUInt32: {0, math.MaxUint32},
	variant.TypeUInt:   {0, math.MaxUint32},
}

func (rt *Runtime) toInteger(val scalar, from, target variant.Type) (int64, error) {
	var n int64
	switch val.kind {
	case kEmpty:
		n = 0
	case kInt:
		n = val.i
	case kFloat:
		f := math.RoundToEven(val.f)
		if math.IsNaN(f) || f < math.MinInt64 || f >= math.MaxInt64 {
			return 0, fail(from, target, "overflow")
		}
		n = int64(f)
	case kBool:
		if val.b {
			n = -1
		}
	case kString:
		f, err := rt.parseNumber(val.s, from, target)
		if err != nil {
			return 0, err
		}
		return rt.toInteger(scalar{kind: kFloat, f: f}, from, target)
	default:
		return 0, fail(from, target, "not numeric")
	}

	b := intBounds[target]
	if n < b.min || n > b.max {
		return 0, fail(from, target, "overflow")
	}
	return n, nil
}

// encodeInteger writes n into a zeroed payload at the target's width.
func encodeInteger(p []byte, n int64, target variant.Type) {
	switch target {
	case variant.TypeInt8, variant.TypeUInt8:
		p[0] = byte(n)
	case variant.TypeInt16, variant.TypeUInt16:
		binary.LittleEndian.PutUint16(p, uint16(n))
	default:
		binary.LittleEndian.PutUint32(p, uint32(n))
	}
}

func (rt *Runtime) toFloat(val scalar, from, target variant.Type) (float64, error) {
	switch val.kind {
	case kEmpty:
		return 0, nil
	case kInt:
		return float64(val.i), nil
	case kFloat:
		return val.f, nil
	case kBool:
		if val.b {
			return -1, nil
		}
		return 0, nil
	case kString:
		return rt.parseNumber(val.s, from, target)
	default:
		return 0, fail(from, target, "not numeric")
	}
}

func (rt *Runtime) toBool(val scalar, from variant.Type) (bool, error) {
	switch val.kind {
	case kEmpty:
		return false, nil
	case kInt:
		return val.i != 0, nil
	case kFloat:
		return val.f != 0, nil
	case kBool:
		return val.b, nil
	case kString:
		if strings.EqualFold(val.s, rt.locale.TrueLabel) {
			return true, nil
		}
		if strings.EqualFold(val.s, rt.locale.FalseLabel) {
			return false, nil
		}
		f, err := rt.parseNumber(val.s, from, variant.TypeBool)
		if err != nil {
			return false, err
		}
		return f != 0, nil
	default:
		return false, fail(from, variant.TypeBool, "not convertible")
	}
}

func (rt *Runtime) toString(val scalar, from variant.Type) (string, error) {
	switch val.kind {
	case kEmpty:
		return "", nil
	case kInt:
		return strconv.FormatInt(val.i, 10), nil
	case kFloat:
		s := strconv.FormatFloat(val.f, 'g', -1, 64)
		if rt.locale.DecimalSep != "." {
			s = strings.Replace(s, ".", rt.locale.DecimalSep, 1)
		}
		return s, nil
	case kBool:
		if val.b {
			return rt.locale.TrueLabel, nil
		}
		return rt.locale.FalseLabel, nil
	case kString:
		return val.s, nil
	default:
		return "", fail(from, variant.TypeString, "not convertible")
	}
}

// parseNumber parses an automation numeric string under the runtime's
// locale. Integral targets round afterwards, so "3.9" is a legal Int32
// source.
func (rt *Runtime) parseNumber(s string, from, target variant.Type) (float64, error) {
	s = strings.TrimSpace(s)
	if rt.locale.ThousandsSep != "" {
		s = strings.ReplaceAll(s, rt.locale.ThousandsSep, "")
	}
	if rt.locale.DecimalSep != "." {
		s = strings.Replace(s, rt.locale.DecimalSep, ".", 1)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fail(from, target, "non-numeric string")
	}
	return f, nil
}

func fail(from, to variant.Type, reason string) *variant.CoercionError {
	return &variant.CoercionError{From: from, To: to, Reason: reason}
}
