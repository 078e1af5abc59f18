// Package wire serializes variant blocks for diagnostics and fixture
// transport.
//
// A snapshot carries the discriminant code and the raw payload bytes,
// CBOR-encoded in canonical mode for deterministic output. Snapshots of
// resource-bearing values (strings, object handles) capture the handle
// bits but cannot be restored: handles are process-local.
package wire

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/chazu/comvar/variant"
)

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("wire: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Snapshot is the serialized form of a variant block.
type Snapshot struct {
	Type    uint16                      `cbor:"1,keyasint"`
	Payload [variant.PayloadOffset]byte `cbor:"2,keyasint"`
}

// Capture snapshots a variant without mutating it. A block with an unknown
// discriminant cannot be captured.
func Capture(v *variant.Variant) (Snapshot, error) {
	t, err := v.GetType()
	if err != nil {
		return Snapshot{}, fmt.Errorf("wire: capture: %w", err)
	}
	return Snapshot{Type: uint16(t), Payload: v.PayloadBytes()}, nil
}

// Marshal serializes a snapshot to canonical CBOR bytes.
func Marshal(s Snapshot) ([]byte, error) {
	return cborEncMode.Marshal(s)
}

// Unmarshal deserializes a snapshot from CBOR bytes.
func Unmarshal(data []byte) (Snapshot, error) {
	var s Snapshot
	if err := cbor.Unmarshal(data, &s); err != nil {
		return Snapshot{}, fmt.Errorf("wire: unmarshal snapshot: %w", err)
	}
	return s, nil
}

// Restore builds a new variant holding the snapshot's value. Snapshots of
// resource-bearing discriminants are refused: their payloads reference
// heaps of the process that captured them.
func Restore(rt variant.Runtime, s Snapshot) (*variant.Variant, error) {
	t, ok := variant.TypeOf(uint64(s.Type))
	if !ok {
		return nil, fmt.Errorf("wire: restore: %w", &variant.InvalidDiscriminantError{Code: uint64(s.Type)})
	}
	if t.HoldsResource() {
		return nil, fmt.Errorf("wire: restore: %s payload is process-local", t)
	}

	v := variant.New(rt)
	if err := v.SetRaw(t, s.Payload); err != nil {
		return nil, fmt.Errorf("wire: restore: %w", err)
	}
	return v, nil
}
