// Package render rasterizes a composed heatmap view to PNG.
package render

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/eringen/visitgrid/heatmap"
)

// PNGOptions controls the raster layout.
type PNGOptions struct {
	// CellPitch is the distance between cell centres. Cells are drawn as
	// squares of Style.Size, capped at the pitch.
	CellPitch int
	// HiddenAlpha is the opacity of cells outside the active filter.
	HiddenAlpha float64
	Title       string
}

// DefaultPNGOptions suits the default heatmap palette.
var DefaultPNGOptions = PNGOptions{CellPitch: 22, HiddenAlpha: 0.12}

const (
	marginLeft = 40
	marginTop  = 40
	marginEnd  = 12
)

var dayNames = [heatmap.Days]string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}

// Size returns the image bounds HeatmapPNG draws for opts.
func Size(opts PNGOptions) image.Rectangle {
	pitch := max(opts.CellPitch, 4)
	return image.Rect(0, 0,
		marginLeft+heatmap.Hours*pitch+marginEnd,
		marginTop+heatmap.Days*pitch+marginEnd)
}

// Heatmap draws view onto a new RGBA image.
func Heatmap(view heatmap.View, opts PNGOptions) *image.RGBA {
	pitch := max(opts.CellPitch, 4)
	img := image.NewRGBA(Size(opts))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)

	ink := &font.Drawer{Dst: img, Src: image.NewUniform(color.Gray{Y: 0x44}), Face: basicfont.Face7x13}
	text := func(x, y int, s string) {
		ink.Dot = fixed.P(x, y)
		ink.DrawString(s)
	}

	if opts.Title != "" {
		text(marginLeft, 16, opts.Title)
	}
	for h := 0; h < heatmap.Hours; h += 3 {
		text(marginLeft+h*pitch+pitch/2-7, marginTop-6, fmt.Sprintf("%02d", h))
	}
	for d, name := range dayNames {
		text(6, marginTop+d*pitch+pitch/2+4, name)
	}

	for _, c := range view.Cells {
		if c.Day < 0 || c.Day >= heatmap.Days || c.Hour < 0 || c.Hour >= heatmap.Hours {
			continue
		}
		side := min(int(c.Style.Size+0.5), pitch-2)
		alpha := c.Style.Opacity
		if !c.Visible {
			alpha = opts.HiddenAlpha
		}
		cx := marginLeft + c.Hour*pitch + pitch/2
		cy := marginTop + c.Day*pitch + pitch/2
		rect := image.Rect(cx-side/2, cy-side/2, cx-side/2+side, cy-side/2+side)
		fill := color.NRGBA{R: c.Style.Color.R, G: c.Style.Color.G, B: c.Style.Color.B, A: alphaByte(alpha)}
		draw.Draw(img, rect, &image.Uniform{C: fill}, image.Point{}, draw.Over)
	}
	return img
}

// HeatmapPNG encodes view as a PNG to w.
func HeatmapPNG(w io.Writer, view heatmap.View, opts PNGOptions) error {
	if err := png.Encode(w, Heatmap(view, opts)); err != nil {
		return fmt.Errorf("encode heatmap png: %w", err)
	}
	return nil
}

func alphaByte(a float64) uint8 {
	switch {
	case a <= 0:
		return 0
	case a >= 1:
		return 0xff
	}
	return uint8(a*255 + 0.5)
}
