// Package color resolves free-text audience color input.
//
// A token is normalized (trimmed, lower-cased, leading '#' removed) and
// looked up in a Palette of named colors. If it is not a known name but is
// exactly six hex digits it is accepted as-is. Anything else is reported as
// invalid so the caller can reply to the viewer instead of touching a lamp.
//
// The default palette is the CSS Color Module Level 4 named-color table.
// Palettes are validated once at construction and never mutated:
//
//	palette := color.DefaultPalette()
//	if cfg.Colors.File != "" {
//	    palette, err = color.LoadFile(cfg.Colors.File, palette)
//	}
//	resolver := color.NewResolver(palette)
//	res := resolver.Resolve("#FF0000") // {Token: "ff0000", Hex: "ff0000", Valid: true}
package color
