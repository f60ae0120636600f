package hue

import (
	"fmt"
	"math"
	"strconv"
)

// XY is a CIE 1931 chromaticity coordinate.
type XY struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// whitePoint is D65, used for black where chromaticity is undefined.
var whitePoint = XY{X: 0.3127, Y: 0.3290}

// HexToXY converts a six-digit RGB hex string (no '#') to CIE xy using the
// sRGB gamma curve and the wide-gamut RGB to XYZ matrix the bridge expects.
func HexToXY(hex string) (XY, error) {
	if len(hex) != 6 {
		return XY{}, fmt.Errorf("%w: %q", ErrInvalidColor, hex)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return XY{}, fmt.Errorf("%w: %q", ErrInvalidColor, hex)
	}

	r := gamma(float64((v>>16)&0xff) / 255)
	g := gamma(float64((v>>8)&0xff) / 255)
	b := gamma(float64(v&0xff) / 255)

	x := r*0.664511 + g*0.154324 + b*0.162028
	y := r*0.283881 + g*0.668433 + b*0.047685
	z := r*0.000088 + g*0.072310 + b*0.986039

	sum := x + y + z
	if sum == 0 {
		return whitePoint, nil
	}
	return XY{X: round4(x / sum), Y: round4(y / sum)}, nil
}

func gamma(c float64) float64 {
	if c > 0.04045 {
		return math.Pow((c+0.055)/1.055, 2.4)
	}
	return c / 12.92
}

func round4(f float64) float64 {
	return math.Round(f*10000) / 10000
}
