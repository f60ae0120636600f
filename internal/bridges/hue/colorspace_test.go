package hue

import (
	"errors"
	"math"
	"testing"
)

func TestHexToXY(t *testing.T) {
	tests := []struct {
		hex  string
		want XY
	}{
		{"ff0000", XY{X: 0.7006, Y: 0.2993}},
		{"FF0000", XY{X: 0.7006, Y: 0.2993}},
		{"00ff00", XY{X: 0.1724, Y: 0.7468}},
		{"0000ff", XY{X: 0.1355, Y: 0.0399}},
		{"000000", whitePoint},
	}

	for _, tt := range tests {
		t.Run(tt.hex, func(t *testing.T) {
			got, err := HexToXY(tt.hex)
			if err != nil {
				t.Fatalf("HexToXY() error = %v", err)
			}
			if math.Abs(got.X-tt.want.X) > 0.001 || math.Abs(got.Y-tt.want.Y) > 0.001 {
				t.Errorf("HexToXY(%q) = %+v, want %+v", tt.hex, got, tt.want)
			}
		})
	}
}

func TestHexToXY_Invalid(t *testing.T) {
	for _, hex := range []string{"", "fff", "gggggg", "#ff000"} {
		if _, err := HexToXY(hex); !errors.Is(err, ErrInvalidColor) {
			t.Errorf("HexToXY(%q) error = %v, want ErrInvalidColor", hex, err)
		}
	}
}

func TestHexToXY_WhiteNearWhitePoint(t *testing.T) {
	got, err := HexToXY("ffffff")
	if err != nil {
		t.Fatalf("HexToXY() error = %v", err)
	}
	if math.Abs(got.X-0.3227) > 0.01 || math.Abs(got.Y-0.329) > 0.01 {
		t.Errorf("HexToXY(ffffff) = %+v, want near (0.3227, 0.329)", got)
	}
}
