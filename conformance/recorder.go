package conformance

import (
	"errors"
	"fmt"

	"github.com/chazu/comvar/variant"
)

// Error kinds stored with failed coercions.
const (
	ErrKindCoercion    = "coercion"
	ErrKindInvalidDisc = "invalid-discriminant"
	ErrKindOther       = "error"
)

// Recorder is a variant.Runtime that records every coercion performed
// through it before delegating to the wrapped runtime. Release and Retain
// pass through untouched.
type Recorder struct {
	rt    variant.Runtime
	store *Store
}

// NewRecorder wraps a runtime so its coercions are captured into store.
func NewRecorder(rt variant.Runtime, store *Store) *Recorder {
	return &Recorder{rt: rt, store: store}
}

// Release delegates to the wrapped runtime.
func (r *Recorder) Release(block *variant.Block) error {
	return r.rt.Release(block)
}

// Retain delegates to the wrapped runtime.
func (r *Recorder) Retain(h variant.Handle) error {
	return r.rt.Retain(h)
}

// CoerceTo delegates and records the outcome. Recording failures surface
// as errors so a fixture run never silently loses rows.
func (r *Recorder) CoerceTo(target variant.Type, block *variant.Block) error {
	row := Row{To: target}
	if from, ok := variant.TypeOf(block.Discriminant()); ok {
		row.From = from
	}
	copy(row.FromPayload[:], block.Payload())

	err := r.rt.CoerceTo(target, block)
	if err == nil {
		row.OK = true
		copy(row.ToPayload[:], block.Payload())
	} else {
		row.ErrKind = errKind(err)
	}

	if rerr := r.store.Record(row); rerr != nil {
		return errors.Join(err, rerr)
	}
	return err
}

func errKind(err error) string {
	var ce *variant.CoercionError
	if errors.As(err, &ce) {
		return ErrKindCoercion
	}
	var de *variant.InvalidDiscriminantError
	if errors.As(err, &de) {
		return ErrKindInvalidDisc
	}
	return ErrKindOther
}

// Mismatch is one replayed coercion whose outcome diverged from the
// recording.
type Mismatch struct {
	Row  Row
	Got  Row
	Note string
}

func (m Mismatch) String() string {
	return fmt.Sprintf("%s->%s: %s", m.Row.From, m.Row.To, m.Note)
}

// Verify replays every recorded coercion against rt and returns the rows
// whose outcome differs. Rows whose source or target carries a foreign
// resource are skipped: their payloads are handles of the recording
// process and cannot be reconstructed here.
func (s *Store) Verify(rt variant.Runtime) ([]Mismatch, error) {
	rows, err := s.Rows()
	if err != nil {
		return nil, err
	}

	var mismatches []Mismatch
	for _, row := range rows {
		if row.From.HoldsResource() || row.To.HoldsResource() {
			continue
		}

		var block variant.Block
		block.SetDiscriminant(row.From)
		copy(block.Payload(), row.FromPayload[:])

		cerr := rt.CoerceTo(row.To, &block)
		got := Row{From: row.From, FromPayload: row.FromPayload, To: row.To}
		if cerr == nil {
			got.OK = true
			copy(got.ToPayload[:], block.Payload())
		} else {
			got.ErrKind = errKind(cerr)
		}

		switch {
		case got.OK != row.OK:
			mismatches = append(mismatches, Mismatch{Row: row, Got: got,
				Note: fmt.Sprintf("ok=%v, recorded ok=%v", got.OK, row.OK)})
		case got.OK && got.ToPayload != row.ToPayload:
			mismatches = append(mismatches, Mismatch{Row: row, Got: got,
				Note: fmt.Sprintf("payload % x, recorded % x", got.ToPayload, row.ToPayload)})
		case !got.OK && got.ErrKind != row.ErrKind:
			mismatches = append(mismatches, Mismatch{Row: row, Got: got,
				Note: fmt.Sprintf("error kind %s, recorded %s", got.ErrKind, row.ErrKind)})
		}
	}
	return mismatches, nil
}
