package color

import "strings"

// Result is the outcome of resolving a color token.
type Result struct {
	// Token is the normalized input.
	Token string

	// Hex is the lower-case 6-digit value. Empty when Valid is false.
	Hex string

	// Valid is false for tokens that are neither a known name nor raw hex.
	Valid bool
}

// Resolver maps audience color input to a hex value.
type Resolver struct {
	palette *Palette
}

// NewResolver creates a Resolver over an already validated palette.
func NewResolver(p *Palette) *Resolver {
	return &Resolver{palette: p}
}

// Normalize trims surrounding whitespace, lower-cases, and strips a single
// leading '#'.
func Normalize(input string) string {
	s := strings.ToLower(strings.TrimSpace(input))
	return strings.TrimPrefix(s, "#")
}

// Resolve normalizes token, then tries the named table, then the raw
// six-hex-digit rule. Anything else is invalid.
func (r *Resolver) Resolve(token string) Result {
	t := Normalize(token)

	if hex, ok := r.palette.Lookup(t); ok {
		return Result{Token: t, Hex: hex, Valid: true}
	}
	if hexPattern.MatchString(t) {
		return Result{Token: t, Hex: t, Valid: true}
	}
	return Result{Token: t}
}

// Palette returns the table the resolver uses.
func (r *Resolver) Palette() *Palette {
	return r.palette
}
