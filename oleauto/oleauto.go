// Package oleauto is a portable, in-process implementation of the variant
// runtime contract: block release, in-place type coercion, and handle
// reference counting.
//
// When binding against a native automation runtime, that runtime owns the
// conversion rules. This package supplies the same contract without native
// code so the rest of the module can run (and be tested) anywhere; the
// conformance package exists to pin its behavior against recordings of the
// native rules.
package oleauto

import (
	"sync"

	"github.com/tliron/commonlog"

	"github.com/chazu/comvar/variant"
)

// Locale controls the string side of coercion: how numbers and booleans are
// parsed from and formatted to automation strings.
type Locale struct {
	DecimalSep   string
	ThousandsSep string
	TrueLabel    string
	FalseLabel   string
}

// DefaultLocale returns en-US conventions.
func DefaultLocale() Locale {
	return Locale{
		DecimalSep:   ".",
		ThousandsSep: ",",
		TrueLabel:    "True",
		FalseLabel:   "False",
	}
}

// Options configures a Runtime.
type Options struct {
	// Locale for string coercion. Zero value means DefaultLocale.
	Locale Locale
}

// Runtime implements variant.Runtime in process. It owns the heap of
// foreign objects and heap strings that variant blocks reference by handle.
//
// The heap is safe for concurrent use; individual variant blocks are not,
// which is the caller's concern (one block, one owner).
type Runtime struct {
	mu      sync.Mutex
	next    uint64
	objects map[variant.Handle]*object
	strings map[variant.Handle]string

	locale Locale
	log    commonlog.Logger
}

// object is a refcounted heap entry standing in for a foreign component
// object. iids lists the interface IDs the object answers to.
type object struct {
	refs int
	iids map[string]struct{}
}

// New creates a runtime with an empty heap.
func New(opts Options) *Runtime {
	loc := opts.Locale
	if loc == (Locale{}) {
		loc = DefaultLocale()
	}
	return &Runtime{
		next:    1,
		objects: make(map[variant.Handle]*object),
		strings: make(map[variant.Handle]string),
		locale:  loc,
		log:     commonlog.GetLogger("comvar.oleauto"),
	}
}

// Release frees whatever resource the block references and resets it to
// Empty. Safe on an Empty block. A failure to release the resource is
// logged and returned, but the block is reset regardless so the rest of the
// clear is never aborted.
func (rt *Runtime) Release(block *variant.Block) error {
	code := block.Discriminant()
	t, ok := variant.TypeOf(code)
	if !ok {
		block.Reset()
		return &variant.InvalidDiscriminantError{Code: code}
	}

	var err error
	if t.HoldsResource() {
		if h := payloadHandle(block); h != 0 {
			switch t {
			case variant.TypeString:
				err = rt.freeString(h)
			default:
				err = rt.ReleaseHandle(h)
			}
		}
	}
	block.Reset()
	if err != nil {
		rt.log.Errorf("release of %s block failed: %s", t, err.Error())
	}
	return err
}
