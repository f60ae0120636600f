package color

import (
	"fmt"
	"maps"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// hexPattern matches exactly six hexadecimal digits.
var hexPattern = regexp.MustCompile(`^[0-9a-fA-F]{6}$`)

// Palette is an immutable named-color table. Keys are lower-case names,
// values lower-case 6-digit hex.
type Palette struct {
	names map[string]string
}

// NewPalette validates entries and builds a Palette. Every value must be
// exactly six hex digits (an optional leading '#' is accepted); names are
// folded to lower case.
//
// Returns:
//   - *Palette: the validated table
//   - error: ErrInvalidPalette naming every bad entry
func NewPalette(entries map[string]string) (*Palette, error) {
	names := make(map[string]string, len(entries))
	var bad []string

	for name, value := range entries {
		key := strings.ToLower(strings.TrimSpace(name))
		hex := strings.TrimPrefix(strings.TrimSpace(value), "#")
		if key == "" || !hexPattern.MatchString(hex) {
			bad = append(bad, fmt.Sprintf("%q=%q", name, value))
			continue
		}
		names[key] = strings.ToLower(hex)
	}

	if len(bad) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPalette, strings.Join(bad, ", "))
	}
	return &Palette{names: names}, nil
}

// DefaultPalette returns the CSS Color Module Level 4 named colors.
func DefaultPalette() *Palette {
	return &Palette{names: maps.Clone(cssNamedColors)}
}

// Lookup returns the hex value for name, matched case-insensitively.
func (p *Palette) Lookup(name string) (string, bool) {
	hex, ok := p.names[strings.ToLower(name)]
	return hex, ok
}

// Len returns the number of named colors.
func (p *Palette) Len() int {
	return len(p.names)
}

// Names returns a copy of the table.
func (p *Palette) Names() map[string]string {
	return maps.Clone(p.names)
}

// Merge returns a new Palette containing p's entries overridden by other's.
func (p *Palette) Merge(other *Palette) *Palette {
	merged := maps.Clone(p.names)
	maps.Copy(merged, other.names)
	return &Palette{names: merged}
}

// LoadFile reads a YAML mapping of color names to hex values and merges it
// over base. Quote hex values that are all digits so YAML keeps them as
// strings:
//
//	sunset: "ff7e5f"
//	stream_purple: "9146ff"
func LoadFile(path string, base *Palette) (*Palette, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading colors file: %w", err)
	}

	var entries map[string]string
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parsing colors file: %w", err)
	}

	extra, err := NewPalette(entries)
	if err != nil {
		return nil, fmt.Errorf("colors file %s: %w", path, err)
	}
	return base.Merge(extra), nil
}
