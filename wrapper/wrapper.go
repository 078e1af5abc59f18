// Package wrapper turns raw foreign-object handles into typed proxy
// objects.
//
// Proxy types register a constructor against the interface ID they bind.
// Construction checks the handle's actual foreign interface first, so a
// request for an incompatible capability fails before any proxy exists.
// A constructed proxy owns exactly one reference to its handle and gives
// it back on Release.
package wrapper

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/chazu/comvar/variant"
)

// IID identifies a foreign interface a handle may answer to.
type IID string

// Runtime is what the factory needs from the component runtime: handle
// reference counting plus interface interrogation.
type Runtime interface {
	Retain(h variant.Handle) error
	ReleaseHandle(h variant.Handle) error
	Supports(h variant.Handle, iid string) bool
}

// Object is implemented by every proxy.
type Object interface {
	// Handle returns the foreign handle the proxy is bound to.
	Handle() variant.Handle

	// IID returns the interface the proxy was constructed for.
	IID() IID

	// Release gives back the proxy's reference to the handle.
	// Idempotent; the proxy is unusable afterwards.
	Release() error
}

// ErrNoObject indicates a zero handle where an object was required.
var ErrNoObject = errors.New("wrapper: no object")

// TypeMismatchError reports a proxy request for a capability the handle's
// actual foreign interface does not support.
type TypeMismatchError struct {
	Handle variant.Handle
	Want   IID
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("wrapper: handle %d does not support %s", e.Handle, e.Want)
}

// Proxy is the common binding embedded by concrete proxy types.
type Proxy struct {
	rt       Runtime
	handle   variant.Handle
	iid      IID
	released atomic.Bool
}

// Handle returns the bound foreign handle.
func (p *Proxy) Handle() variant.Handle { return p.handle }

// IID returns the interface the proxy was constructed for.
func (p *Proxy) IID() IID { return p.iid }

// Runtime returns the component runtime the proxy forwards through.
func (p *Proxy) Runtime() Runtime { return p.rt }

// Release gives back the proxy's reference. Only the first call releases.
func (p *Proxy) Release() error {
	if p.released.Swap(true) {
		return nil
	}
	return p.rt.ReleaseHandle(p.handle)
}

// Factory builds a concrete proxy around a bound Proxy base.
type Factory func(p *Proxy) Object

var (
	regMu     sync.RWMutex
	factories = make(map[IID]Factory)
)

// Register installs the proxy constructor for an interface ID. Usually
// called from an init function of the package defining the proxy type.
// Registering an IID twice panics.
func Register(iid IID, f Factory) {
	regMu.Lock()
	defer regMu.Unlock()
	if _, dup := factories[iid]; dup {
		panic(fmt.Sprintf("wrapper: factory for %s registered twice", iid))
	}
	factories[iid] = f
}

// Create builds a proxy of the requested capability around a handle the
// caller already owns a reference to; that reference transfers into the
// proxy. Incompatibility between the requested interface and the handle's
// actual foreign interface is detected here, before construction.
func Create(rt Runtime, h variant.Handle, iid IID) (Object, error) {
	if h == 0 {
		return nil, ErrNoObject
	}

	regMu.RLock()
	f, ok := factories[iid]
	regMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("wrapper: no proxy registered for %s", iid)
	}

	if !rt.Supports(h, string(iid)) {
		return nil, &TypeMismatchError{Handle: h, Want: iid}
	}
	return f(&Proxy{rt: rt, handle: h, iid: iid}), nil
}

// FromVariant is the object accessor: it coerces the variant to the
// generic object discriminant and wraps the resulting handle.
//
// A zero handle yields (nil, nil) — "no object" — with no retain and no
// proxy constructed. Otherwise the variant's accessor retains the handle
// once and the new reference is owned by the returned proxy; the variant's
// own claim is untouched.
func FromVariant(rt Runtime, v *variant.Variant, iid IID) (Object, error) {
	h, err := v.AsUnknown()
	if err != nil {
		return nil, err
	}
	if h == 0 {
		return nil, nil
	}

	obj, err := Create(rt, h, iid)
	if err != nil {
		// Give the accessor's reference back before reporting.
		if rerr := rt.ReleaseHandle(h); rerr != nil {
			return nil, errors.Join(err, rerr)
		}
		return nil, err
	}
	return obj, nil
}
