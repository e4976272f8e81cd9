package compositor

import (
	"image/color"
	"sort"
)

// Palette color names.
const (
	White = "white"
	Black = "black"
	Blue  = "blue"
	Green = "green"
	Red   = "red"
)

var palette = map[string]color.RGBA{
	White: {R: 0xff, G: 0xff, B: 0xff, A: 0xff},
	Black: {A: 0xff},
	Blue:  {B: 0xff, A: 0xff},
	Green: {G: 0xff, A: 0xff},
	Red:   {R: 0xff, A: 0xff},
}

// Palette returns the supported color names in sorted order.
func Palette() []string {
	names := make([]string, 0, len(palette))
	for name := range palette {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsPaletteColor reports whether name is a supported background color.
func IsPaletteColor(name string) bool {
	_, ok := palette[name]
	return ok
}
