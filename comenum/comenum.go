// Package comenum maps external numeric codes to named enum constants.
//
// Component-object systems identify enumeration members by small integers
// fixed by their ABI. A Dictionary gives the reverse direction: given a code
// read out of a raw memory block or a wire message, recover the Go constant —
// or learn that the code is not part of the modeled enumeration at all.
package comenum

import "fmt"

// Enum is implemented by enumeration types whose members carry an
// externally-defined numeric code.
type Enum interface {
	EnumValue() int
}

// Dictionary provides reverse lookup from external codes to constants.
// Build one per enumeration type; lookups are read-only after construction.
type Dictionary[E Enum] struct {
	byValue map[int]E
}

// NewDictionary builds a dictionary over the complete member list of an
// enumeration. Duplicate codes are a programming error and panic.
func NewDictionary[E Enum](members []E) *Dictionary[E] {
	d := &Dictionary[E]{byValue: make(map[int]E, len(members))}
	for _, m := range members {
		code := m.EnumValue()
		if prev, dup := d.byValue[code]; dup {
			panic(fmt.Sprintf("comenum: code %d claimed by both %v and %v", code, prev, m))
		}
		d.byValue[code] = m
	}
	return d
}

// Constant returns the member with the given external code.
// The second result is false when the code is not part of the enumeration.
func (d *Dictionary[E]) Constant(code int) (E, bool) {
	m, ok := d.byValue[code]
	return m, ok
}

// Len returns the number of members in the dictionary.
func (d *Dictionary[E]) Len() int {
	return len(d.byValue)
}
