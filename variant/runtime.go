package variant

// Handle is an opaque, reference-counted identifier for an object or heap
// string owned by the external component system. The zero handle is the
// null sentinel and never names a live resource.
type Handle uint64

// Runtime is the contact surface with the external component runtime.
// These three operations are everything the core needs; all other variant
// behavior is memory-layout bookkeeping on this side of the boundary.
//
// Implementations mutate blocks in place and own the conversion rules
// (truncation, rounding, locale-aware string formats). The portable
// in-process implementation lives in the oleauto package.
type Runtime interface {
	// Release frees any foreign resource the block currently references
	// and resets it to Empty. Releasing an Empty block is a no-op.
	Release(block *Block) error

	// CoerceTo rewrites the block in place so that it represents the same
	// logical value under the target discriminant. On failure the block is
	// left unchanged and a *CoercionError is returned.
	CoerceTo(target Type, block *Block) error

	// Retain increments the reference count of an object handle.
	Retain(h Handle) error
}
