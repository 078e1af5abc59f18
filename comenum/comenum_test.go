package comenum

import "testing"

// color is a small test enumeration with non-contiguous codes,
// mirroring how automation enums skip values.
type color int

const (
	red   color = 1
	green color = 5
	blue  color = 36
)

func (c color) EnumValue() int { return int(c) }

func TestDictionaryLookup(t *testing.T) {
	d := NewDictionary([]color{red, green, blue})

	tests := []struct {
		code int
		want color
		ok   bool
	}{
		{1, red, true},
		{5, green, true},
		{36, blue, true},
		{0, 0, false},
		{2, 0, false},
		{-1, 0, false},
	}

	for _, tt := range tests {
		got, ok := d.Constant(tt.code)
		if ok != tt.ok {
			t.Errorf("Constant(%d) ok = %v, want %v", tt.code, ok, tt.ok)
			continue
		}
		if ok && got != tt.want {
			t.Errorf("Constant(%d) = %v, want %v", tt.code, got, tt.want)
		}
	}
}

func TestDictionaryLen(t *testing.T) {
	d := NewDictionary([]color{red, green, blue})
	if d.Len() != 3 {
		t.Errorf("Len() = %d, want 3", d.Len())
	}
}

func TestDictionaryDuplicatePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("NewDictionary with duplicate codes should panic")
		}
	}()
	NewDictionary([]color{red, red})
}
