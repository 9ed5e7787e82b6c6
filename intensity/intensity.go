// Package intensity maps a raw count onto a colour, size and opacity for
// heatmap cells and choropleth regions. Every function here is pure.
package intensity

import (
	"fmt"
	"math"

	"github.com/lucasb-eyer/go-colorful"
)

// RGB is an 8-bit colour.
type RGB struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
}

// Hex renders the colour as #rrggbb.
func (c RGB) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

func (c RGB) colorful() colorful.Color {
	return colorful.Color{R: float64(c.R) / 255, G: float64(c.G) / 255, B: float64(c.B) / 255}
}

// ParseHex parses "#rrggbb" (or "#rgb").
func ParseHex(s string) (RGB, error) {
	c, err := colorful.Hex(s)
	if err != nil {
		return RGB{}, fmt.Errorf("parse colour %q: %w", s, err)
	}
	r, g, b := c.RGB255()
	return RGB{R: r, G: g, B: b}, nil
}

// Style is the visual encoding of one value.
type Style struct {
	Color   RGB     `json:"color"`
	Size    float64 `json:"size"`
	Opacity float64 `json:"opacity"`
}

// Palette holds the reference points a visualization interpolates between.
type Palette struct {
	Low         RGB
	High        RGB
	MinSize     float64
	MaxSize     float64
	BaseOpacity float64
	// Empty is used for values <= 0 so "no data" differs from "small".
	Empty Style
}

// HeatmapPalette is the default weekly heatmap encoding.
var HeatmapPalette = Palette{
	Low:         RGB{R: 198, G: 228, B: 139},
	High:        RGB{R: 25, G: 97, B: 39},
	MinSize:     6,
	MaxSize:     18,
	BaseOpacity: 0.45,
	Empty:       Style{Color: RGB{R: 235, G: 237, B: 240}, Size: 6, Opacity: 0.3},
}

// ChoroplethPalette is the default per-country encoding. Size is unused by
// area fills but kept for bubble overlays.
var ChoroplethPalette = Palette{
	Low:         RGB{R: 222, G: 235, B: 247},
	High:        RGB{R: 8, G: 81, B: 156},
	MinSize:     4,
	MaxSize:     24,
	BaseOpacity: 0.6,
	Empty:       Style{Color: RGB{R: 240, G: 240, B: 240}, Size: 4, Opacity: 0.3},
}

// Map encodes value relative to maxValue. A non-positive maxValue is treated
// as 1; t = clamp(value/maxValue, 0, 1) drives every channel linearly.
func (p Palette) Map(value, maxValue float64) Style {
	if value <= 0 || math.IsNaN(value) {
		return p.Empty
	}
	if maxValue <= 0 || math.IsNaN(maxValue) {
		maxValue = 1
	}
	t := clamp(value/maxValue, 0, 1)

	r, g, b := p.Low.colorful().BlendRgb(p.High.colorful(), t).Clamped().RGB255()
	return Style{
		Color:   RGB{R: r, G: g, B: b},
		Size:    lerp(p.MinSize, p.MaxSize, t),
		Opacity: lerp(p.BaseOpacity, 1, t),
	}
}

// Map encodes value with the heatmap palette.
func Map(value, maxValue float64) Style {
	return HeatmapPalette.Map(value, maxValue)
}

func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
