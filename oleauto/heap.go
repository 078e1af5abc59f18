package oleauto

import (
	"encoding/binary"
	"fmt"

	"github.com/chazu/comvar/variant"
)

// payloadHandle reads the handle stored in a block's payload.
func payloadHandle(block *variant.Block) variant.Handle {
	return variant.Handle(binary.LittleEndian.Uint64(block.Payload()))
}

func putPayloadHandle(block *variant.Block, h variant.Handle) {
	binary.LittleEndian.PutUint64(block.Payload(), uint64(h))
}

// NewObject allocates a heap object answering to the given interface IDs
// and returns a handle with one outstanding reference, owned by the caller.
func (rt *Runtime) NewObject(iids ...string) variant.Handle {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	h := variant.Handle(rt.next)
	rt.next++
	o := &object{refs: 1, iids: make(map[string]struct{}, len(iids))}
	for _, iid := range iids {
		o.iids[iid] = struct{}{}
	}
	rt.objects[h] = o
	return h
}

// NewString copies s into the runtime's string heap and returns its handle.
// The handle is owned by whoever stores it in a block; it is freed when
// that block is released.
func (rt *Runtime) NewString(s string) variant.Handle {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	h := variant.Handle(rt.next)
	rt.next++
	rt.strings[h] = s
	return h
}

// StringValue resolves a string handle to its contents.
func (rt *Runtime) StringValue(h variant.Handle) (string, bool) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	s, ok := rt.strings[h]
	return s, ok
}

// Retain increments the reference count of an object handle.
func (rt *Runtime) Retain(h variant.Handle) error {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	o, ok := rt.objects[h]
	if !ok {
		return fmt.Errorf("oleauto: retain: no object for handle %d", h)
	}
	o.refs++
	return nil
}

// ReleaseHandle decrements the reference count of an object handle,
// destroying the object when the last reference is gone.
func (rt *Runtime) ReleaseHandle(h variant.Handle) error {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	o, ok := rt.objects[h]
	if !ok {
		return fmt.Errorf("oleauto: release: no object for handle %d", h)
	}
	o.refs--
	if o.refs <= 0 {
		delete(rt.objects, h)
	}
	return nil
}

// Supports reports whether the object behind h answers to the interface ID.
func (rt *Runtime) Supports(h variant.Handle, iid string) bool {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	o, ok := rt.objects[h]
	if !ok {
		return false
	}
	_, ok = o.iids[iid]
	return ok
}

// RefCount returns the outstanding reference count of an object handle,
// or zero if the object is gone.
func (rt *Runtime) RefCount(h variant.Handle) int {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	if o, ok := rt.objects[h]; ok {
		return o.refs
	}
	return 0
}

// LiveObjects returns the number of objects still on the heap.
func (rt *Runtime) LiveObjects() int {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return len(rt.objects)
}

// LiveStrings returns the number of strings still on the heap.
func (rt *Runtime) LiveStrings() int {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return len(rt.strings)
}

// freeString removes a string handle from the heap.
func (rt *Runtime) freeString(h variant.Handle) error {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	if _, ok := rt.strings[h]; !ok {
		return fmt.Errorf("oleauto: free: no string for handle %d", h)
	}
	delete(rt.strings, h)
	return nil
}
