package costar

import (
	"image"

	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Font is a bitmap face at an integer scale. Document font ids 1..8 map
// onto scales roughly matching the panel fonts they replace; anything
// out of range falls back to the body font.
type Font struct {
	face  *basicfont.Face
	scale int
}

var fontScales = [9]int{0, 1, 1, 2, 2, 3, 3, 4, 5}

func FontByID(id int) Font {
	if id < 1 || id > 8 {
		id = 2
	}
	return Font{face: basicfont.Face7x13, scale: fontScales[id]}
}

// LineHeight is the vertical advance for stacked lines.
func (f Font) LineHeight() int {
	return f.face.Height * f.scale
}

// Ascent is the distance from the drawing origin up to the glyph top.
func (f Font) Ascent() int {
	return f.face.Ascent * f.scale
}

func (f Font) Advance() int {
	return f.face.Advance * f.scale
}

// TextWidth measures a single-line string in pixels.
func (f Font) TextWidth(s string) int {
	return len(s) * f.Advance()
}

// Draw renders a string with its top-left corner at (x, y). Glyphs
// outside the framebuffer clip at the pixel level.
func (f Font) Draw(fb Framebuffer, x, y int, s string, color RGB565) {
	dot := fixed.P(0, f.face.Ascent)
	for _, r := range s {
		dr, mask, maskp, advance, ok := f.face.Glyph(dot, r)
		if !ok {
			dr, mask, maskp, advance, _ = f.face.Glyph(dot, '?')
		}
		f.drawGlyph(fb, x, y, dr, mask, maskp, color)
		dot.X += advance
	}
}

func (f Font) drawGlyph(fb Framebuffer, x, y int, dr image.Rectangle, mask image.Image, maskp image.Point, color RGB565) {
	alpha, ok := mask.(*image.Alpha)
	if !ok {
		return
	}
	for gy := dr.Min.Y; gy < dr.Max.Y; gy++ {
		for gx := dr.Min.X; gx < dr.Max.X; gx++ {
			mx := maskp.X + gx - dr.Min.X
			my := maskp.Y + gy - dr.Min.Y
			if alpha.AlphaAt(mx, my).A < 0x80 {
				continue
			}
			// scale each glyph pixel to a block
			px := x + gx*f.scale
			py := y + gy*f.scale
			for sy := 0; sy < f.scale; sy++ {
				for sx := 0; sx < f.scale; sx++ {
					fb.DrawPixel(px+sx, py+sy, color)
				}
			}
		}
	}
}
