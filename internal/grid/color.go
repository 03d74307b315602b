package grid

import (
	"github.com/hinshun/vt10x"
	"github.com/lucasb-eyer/go-colorful"
)

// ColorKind classifies a highlight color: either an indexed palette
// entry (0-255), a 24-bit RGB triple, or the terminal's default.
type ColorKind int

const (
	ColorDefault ColorKind = iota
	ColorIndexed
	ColorRGB
)

// Color is one fg/bg/special slot of a Highlight.
type Color struct {
	Kind    ColorKind
	Indexed uint8  // valid when Kind == ColorIndexed
	RGB     uint32 // valid when Kind == ColorRGB; 0xRRGGBB
}

// xtermPalette is the standard 256-color xterm cube: 16 ANSI colors, a
// 6x6x6 color cube, and a 24-step grayscale ramp. Built once at init time
// rather than hand-transcribed, which is how every terminal emulator
// derives it.
var xtermPalette = buildXtermPalette()

func buildXtermPalette() [256]colorful.Color {
	var pal [256]colorful.Color
	basic := [16][3]uint8{
		{0, 0, 0}, {205, 0, 0}, {0, 205, 0}, {205, 205, 0},
		{0, 0, 238}, {205, 0, 205}, {0, 205, 205}, {229, 229, 229},
		{127, 127, 127}, {255, 0, 0}, {0, 255, 0}, {255, 255, 0},
		{92, 92, 255}, {255, 0, 255}, {0, 255, 255}, {255, 255, 255},
	}
	for i, c := range basic {
		pal[i] = colorful.Color{R: float64(c[0]) / 255, G: float64(c[1]) / 255, B: float64(c[2]) / 255}
	}
	steps := [6]uint8{0, 95, 135, 175, 215, 255}
	idx := 16
	for r := 0; r < 6; r++ {
		for g := 0; g < 6; g++ {
			for b := 0; b < 6; b++ {
				pal[idx] = colorful.Color{
					R: float64(steps[r]) / 255,
					G: float64(steps[g]) / 255,
					B: float64(steps[b]) / 255,
				}
				idx++
			}
		}
	}
	for i := 0; i < 24; i++ {
		v := uint8(8 + i*10)
		pal[232+i] = colorful.Color{R: float64(v) / 255, G: float64(v) / 255, B: float64(v) / 255}
	}
	return pal
}

// RGB24 returns the color's 24-bit RGB value, resolving an indexed color
// through the xterm palette. The caller supplies the default to use for
// ColorDefault since that depends on which of fg/bg/special is being
// resolved.
func (c Color) RGB24(dflt uint32) uint32 {
	switch c.Kind {
	case ColorRGB:
		return c.RGB
	case ColorIndexed:
		col := xtermPalette[c.Indexed]
		r, g, b := col.RGB255()
		return uint32(r)<<16 | uint32(g)<<8 | uint32(b)
	default:
		return dflt
	}
}

// colorFromVT10x converts a vt10x.Color into our Color: vt10x.DefaultFG
// and vt10x.DefaultBG map to ColorDefault, and any other value is taken
// as a palette index (its low 8 bits).
func colorFromVT10x(c vt10x.Color) Color {
	switch c {
	case vt10x.DefaultFG, vt10x.DefaultBG:
		return Color{Kind: ColorDefault}
	default:
		return Color{Kind: ColorIndexed, Indexed: uint8(c)}
	}
}

// Blend mixes two colors in RGB space by the given weight (0 = all a, 1 =
// all b), backing the highlight record's "blend" field via go-colorful's
// BlendRgb.
func Blend(a, b Color, weight float64) Color {
	ca, _ := colorful.MakeColor(rgbColor(a.RGB24(0)))
	cb, _ := colorful.MakeColor(rgbColor(b.RGB24(0)))
	blended := ca.BlendRgb(cb, weight)
	r, g, bl := blended.RGB255()
	return Color{Kind: ColorRGB, RGB: uint32(r)<<16 | uint32(g)<<8 | uint32(bl)}
}

type rgbColorAdapter struct{ r, g, b uint8 }

func (c rgbColorAdapter) RGBA() (r, g, b, a uint32) {
	r = uint32(c.r) * 0x101
	g = uint32(c.g) * 0x101
	b = uint32(c.b) * 0x101
	a = 0xffff
	return
}

func rgbColor(v uint32) rgbColorAdapter {
	return rgbColorAdapter{r: uint8(v >> 16), g: uint8(v >> 8), b: uint8(v)}
}
