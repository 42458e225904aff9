package costar

import "strconv"

// RGB565 is the panel's native 16-bit color format.
type RGB565 uint16

const (
	ColorBlack RGB565 = 0x0000
	ColorWhite RGB565 = 0xFFFF
	ColorGreen RGB565 = 0x07E0
	ColorRed   RGB565 = 0xF800
)

// ToRGB565 packs 8-bit channels into 5-6-5.
func ToRGB565(r, g, b uint8) RGB565 {
	return RGB565(uint16(r&0xF8)<<8 | uint16(g&0xFC)<<3 | uint16(b)>>3)
}

// RGBA implements color.Color so framebuffer contents can be handed to
// image/draw and the simulator.
func (c RGB565) RGBA() (r, g, b, a uint32) {
	r8 := uint32(c>>11) << 3
	g8 := uint32(c>>5&0x3F) << 2
	b8 := uint32(c&0x1F) << 3
	// replicate high bits into the low bits so white is full-scale
	r8 |= r8 >> 5
	g8 |= g8 >> 6
	b8 |= b8 >> 5
	return r8 * 0x101, g8 * 0x101, b8 * 0x101, 0xFFFF
}

// ParseHexColor parses "#RRGGBB" into RGB565. Anything else fails.
func ParseHexColor(hex string) (RGB565, bool) {
	if len(hex) != 7 || hex[0] != '#' {
		return 0, false
	}
	v, err := strconv.ParseUint(hex[1:], 16, 32)
	if err != nil || v > 0xFFFFFF {
		return 0, false
	}
	return ToRGB565(uint8(v>>16), uint8(v>>8), uint8(v)), true
}

// parseColorOr parses hex and falls back when empty or malformed.
func parseColorOr(hex string, fallback RGB565) RGB565 {
	if c, ok := ParseHexColor(hex); ok {
		return c
	}
	return fallback
}
