package variant

import (
	"fmt"

	"github.com/chazu/comvar/comenum"
)

// Type is the discriminant identifying which payload a variant block holds.
//
// The numeric codes are fixed by the automation ABI and must match it
// bit-exactly; they are a wire contract, not an internal choice. Only the
// low 16 bits of the discriminant word are semantically meaningful, but the
// ABI stores the code as a full machine word for alignment.
type Type uint16

const (
	TypeEmpty    Type = 0  // nothing stored, payload zero
	TypeNull     Type = 1  // SQL-style NULL, distinct from Empty
	TypeInt16    Type = 2  // signed 16-bit integer
	TypeInt32    Type = 3  // signed 32-bit integer
	TypeFloat32  Type = 4  // IEEE 754 single
	TypeFloat64  Type = 5  // IEEE 754 double
	TypeCurrency Type = 6  // 64-bit fixed point, scaled by 10000 (not modeled)
	TypeDate     Type = 7  // automation date: float64 days since 1899-12-30
	TypeString   Type = 8  // foreign heap string handle
	TypeDispatch Type = 9  // dispatch-style object handle
	TypeError    Type = 10 // status code; the Missing sentinel's type
	TypeBool     Type = 11 // int16: -1 true, 0 false
	TypeVariant  Type = 12 // nested variant reference (not modeled)
	TypeUnknown  Type = 13 // generic object handle
	TypeDecimal  Type = 14 // 96-bit decimal (not modeled)
	TypeRecord   Type = 36 // user-defined record (not modeled)
	TypeInt8     Type = 16 // signed 8-bit integer
	TypeUInt8    Type = 17 // unsigned 8-bit integer
	TypeUInt16   Type = 18 // unsigned 16-bit integer
	TypeUInt32   Type = 19 // unsigned 32-bit integer
	TypeInt      Type = 22 // platform int, 32-bit in the automation ABI
	TypeUInt     Type = 23 // platform uint, 32-bit in the automation ABI
)

// Types lists every discriminant legal in a variant block, in ABI code order.
var Types = []Type{
	TypeEmpty, TypeNull, TypeInt16, TypeInt32, TypeFloat32, TypeFloat64,
	TypeCurrency, TypeDate, TypeString, TypeDispatch, TypeError, TypeBool,
	TypeVariant, TypeUnknown, TypeDecimal, TypeInt8, TypeUInt8, TypeUInt16,
	TypeUInt32, TypeInt, TypeUInt, TypeRecord,
}

var typeNames = map[Type]string{
	TypeEmpty:    "Empty",
	TypeNull:     "Null",
	TypeInt16:    "Int16",
	TypeInt32:    "Int32",
	TypeFloat32:  "Float32",
	TypeFloat64:  "Float64",
	TypeCurrency: "Currency",
	TypeDate:     "Date",
	TypeString:   "String",
	TypeDispatch: "Dispatch",
	TypeError:    "Error",
	TypeBool:     "Bool",
	TypeVariant:  "Variant",
	TypeUnknown:  "Unknown",
	TypeDecimal:  "Decimal",
	TypeRecord:   "Record",
	TypeInt8:     "Int8",
	TypeUInt8:    "UInt8",
	TypeUInt16:   "UInt16",
	TypeUInt32:   "UInt32",
	TypeInt:      "Int",
	TypeUInt:     "UInt",
}

// typeDict resolves raw discriminant codes read out of a block.
var typeDict = comenum.NewDictionary(Types)

// EnumValue returns the external ABI code for the type.
func (t Type) EnumValue() int { return int(t) }

// String returns a human-readable name for the type.
func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Type(%d)", uint16(t))
}

// TypeOf resolves a raw discriminant word to a Type. The second result is
// false when the word does not name any known discriminant, which is how a
// block written by an unexpected source is detected.
func TypeOf(code uint64) (Type, bool) {
	if code > 0xFFFF {
		return TypeEmpty, false
	}
	t, ok := typeDict.Constant(int(code))
	return t, ok
}

// HoldsResource reports whether a block with this discriminant may reference
// a foreign-owned resource that must be released before the block is reused.
func (t Type) HoldsResource() bool {
	switch t {
	case TypeString, TypeDispatch, TypeUnknown, TypeVariant, TypeRecord:
		return true
	}
	return false
}
