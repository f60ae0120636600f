package color

import "errors"

// ErrInvalidPalette is returned when a palette entry is not six hex digits.
var ErrInvalidPalette = errors.New("color: invalid palette entry")
