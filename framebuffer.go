package costar

import "image"

// ScreenW and ScreenH are the panel dimensions.
const (
	ScreenW = 320
	ScreenH = 240
)

// Framebuffer is the drawable surface contract. The hardware display and
// the in-memory simulator buffer both implement it.
type Framebuffer interface {
	Size() (width, height int)
	DrawPixel(x, y int, c RGB565)
	FillRect(x, y, width, height int, c RGB565)
	// PushImage blits a pre-rendered RGB565 block, e.g. a raw icon.
	PushImage(x, y, width, height int, pix []RGB565)
}

// MemFramebuffer is a 2D grid of RGB565 pixels backing the renderer when
// no panel is attached, and the staging surface for the SPI display.
type MemFramebuffer struct {
	pix    []RGB565
	width  int
	height int
}

// NewMemFramebuffer creates a framebuffer with the given dimensions,
// cleared to black.
func NewMemFramebuffer(width, height int) *MemFramebuffer {
	return &MemFramebuffer{
		pix:    make([]RGB565, width*height),
		width:  width,
		height: height,
	}
}

// Size returns the framebuffer dimensions.
func (fb *MemFramebuffer) Size() (width, height int) {
	return fb.width, fb.height
}

// InBounds returns true if the given coordinates are within the buffer.
func (fb *MemFramebuffer) InBounds(x, y int) bool {
	return x >= 0 && x < fb.width && y >= 0 && y < fb.height
}

// index converts x,y coordinates to a slice index.
func (fb *MemFramebuffer) index(x, y int) int {
	return y*fb.width + x
}

// Get returns the pixel at the given coordinates, black when out of bounds.
func (fb *MemFramebuffer) Get(x, y int) RGB565 {
	if !fb.InBounds(x, y) {
		return ColorBlack
	}
	return fb.pix[fb.index(x, y)]
}

// DrawPixel sets a single pixel. Out-of-bounds writes are dropped.
func (fb *MemFramebuffer) DrawPixel(x, y int, c RGB565) {
	if !fb.InBounds(x, y) {
		return
	}
	fb.pix[fb.index(x, y)] = c
}

// Fill floods the whole buffer with one color.
func (fb *MemFramebuffer) Fill(c RGB565) {
	for i := range fb.pix {
		fb.pix[i] = c
	}
}

// Clear resets the buffer to black.
func (fb *MemFramebuffer) Clear() {
	fb.Fill(ColorBlack)
}

// FillRect fills a rectangular region, clipped to the buffer.
func (fb *MemFramebuffer) FillRect(x, y, width, height int, c RGB565) {
	x0, y0, x1, y1 := clipRect(x, y, width, height, fb.width, fb.height)
	for row := y0; row < y1; row++ {
		base := row * fb.width
		for col := x0; col < x1; col++ {
			fb.pix[base+col] = c
		}
	}
}

// PushImage blits an RGB565 block, clipped to the buffer.
func (fb *MemFramebuffer) PushImage(x, y, width, height int, pix []RGB565) {
	if len(pix) < width*height {
		return
	}
	x0, y0, x1, y1 := clipRect(x, y, width, height, fb.width, fb.height)
	for row := y0; row < y1; row++ {
		srcBase := (row - y) * width
		dstBase := row * fb.width
		for col := x0; col < x1; col++ {
			fb.pix[dstBase+col] = pix[srcBase+(col-x)]
		}
	}
}

// Pixels exposes the raw pixel slice, row-major. The SPI display pushes
// this directly to the panel.
func (fb *MemFramebuffer) Pixels() []RGB565 {
	return fb.pix
}

// Image copies the framebuffer into a standard RGBA image for the
// simulator and for golden-image tests.
func (fb *MemFramebuffer) Image() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, fb.width, fb.height))
	for y := 0; y < fb.height; y++ {
		for x := 0; x < fb.width; x++ {
			img.Set(x, y, fb.pix[fb.index(x, y)])
		}
	}
	return img
}

func clipRect(x, y, w, h, maxW, maxH int) (x0, y0, x1, y1 int) {
	x0, y0 = x, y
	x1, y1 = x+w, y+h
	if x0 < 0 {
		x0 = 0
	}
	if y0 < 0 {
		y0 = 0
	}
	if x1 > maxW {
		x1 = maxW
	}
	if y1 > maxH {
		y1 = maxH
	}
	if x1 < x0 {
		x1 = x0
	}
	if y1 < y0 {
		y1 = y0
	}
	return
}
