package conformance_test

import (
	"encoding/binary"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chazu/comvar/conformance"
	"github.com/chazu/comvar/oleauto"
	"github.com/chazu/comvar/variant"
)

func float64Block(f float64) *variant.Block {
	var b variant.Block
	b.SetDiscriminant(variant.TypeFloat64)
	binary.LittleEndian.PutUint64(b.Payload(), math.Float64bits(f))
	return &b
}

func TestStoreRecordAndRows(t *testing.T) {
	store, err := conformance.Open(":memory:")
	require.NoError(t, err)
	defer store.Close()

	row := conformance.Row{
		From:        variant.TypeFloat64,
		FromPayload: [8]byte{1, 2, 3},
		To:          variant.TypeInt32,
		OK:          true,
		ToPayload:   [8]byte{4},
	}
	require.NoError(t, store.Record(row))
	require.NoError(t, store.Record(conformance.Row{
		From:    variant.TypeNull,
		To:      variant.TypeInt32,
		ErrKind: conformance.ErrKindCoercion,
	}))

	n, err := store.Count()
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	rows, err := store.Rows()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, row, rows[0])
	assert.Equal(t, conformance.ErrKindCoercion, rows[1].ErrKind)
}

func TestStoreOnDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "coercions.db")

	store, err := conformance.Open(path)
	require.NoError(t, err)
	require.NoError(t, store.Record(conformance.Row{From: variant.TypeInt32, To: variant.TypeFloat64, OK: true}))
	require.NoError(t, store.Close())

	// Reopen and read back.
	store, err = conformance.Open(path)
	require.NoError(t, err)
	defer store.Close()

	n, err := store.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRecorderCapturesOutcomes(t *testing.T) {
	store, err := conformance.Open(":memory:")
	require.NoError(t, err)
	defer store.Close()

	rt := oleauto.New(oleauto.Options{})
	rec := conformance.NewRecorder(rt, store)

	// A successful coercion.
	b := float64Block(3.9)
	require.NoError(t, rec.CoerceTo(variant.TypeInt32, b))

	// A failing one.
	var null variant.Block
	null.SetDiscriminant(variant.TypeNull)
	require.Error(t, rec.CoerceTo(variant.TypeInt32, &null))

	rows, err := store.Rows()
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, variant.TypeFloat64, rows[0].From)
	assert.Equal(t, variant.TypeInt32, rows[0].To)
	assert.True(t, rows[0].OK)
	assert.Equal(t, int32(4), int32(binary.LittleEndian.Uint32(rows[0].ToPayload[:4])))

	assert.False(t, rows[1].OK)
	assert.Equal(t, conformance.ErrKindCoercion, rows[1].ErrKind)
}

func TestVerifyCleanReplay(t *testing.T) {
	store, err := conformance.Open(":memory:")
	require.NoError(t, err)
	defer store.Close()

	rt := oleauto.New(oleauto.Options{})
	rec := conformance.NewRecorder(rt, store)

	for _, f := range []float64{0.5, 1.5, 2.5, 3.9, -3.9, 1e300} {
		b := float64Block(f)
		// Errors are part of the recording, not a test failure.
		_ = rec.CoerceTo(variant.TypeInt32, b)
	}

	mismatches, err := store.Verify(oleauto.New(oleauto.Options{}))
	require.NoError(t, err)
	assert.Empty(t, mismatches)
}

// failingRuntime refuses every coercion, so every successful recorded row
// must show up as a mismatch on replay.
type failingRuntime struct{}

func (failingRuntime) Release(*variant.Block) error { return nil }
func (failingRuntime) Retain(variant.Handle) error  { return nil }
func (failingRuntime) CoerceTo(t variant.Type, b *variant.Block) error {
	return &variant.CoercionError{To: t, Reason: "refused"}
}

func TestVerifyDetectsDivergence(t *testing.T) {
	store, err := conformance.Open(":memory:")
	require.NoError(t, err)
	defer store.Close()

	rt := oleauto.New(oleauto.Options{})
	rec := conformance.NewRecorder(rt, store)
	require.NoError(t, rec.CoerceTo(variant.TypeInt32, float64Block(3.9)))

	mismatches, err := store.Verify(failingRuntime{})
	require.NoError(t, err)
	require.Len(t, mismatches, 1)
	assert.Contains(t, mismatches[0].String(), "Float64->Int32")
}

func TestVerifySkipsResourceRows(t *testing.T) {
	store, err := conformance.Open(":memory:")
	require.NoError(t, err)
	defer store.Close()

	// A row whose source was a string handle: not replayable here.
	require.NoError(t, store.Record(conformance.Row{
		From: variant.TypeString,
		To:   variant.TypeInt32,
		OK:   true,
	}))

	mismatches, err := store.Verify(failingRuntime{})
	require.NoError(t, err)
	assert.Empty(t, mismatches)
}
