package model

import (
	"fmt"
	"strconv"
	"strings"
)

// RGB a 24 bit color
type RGB struct {
	R uint8
	G uint8
	B uint8
}

var (
	LightGray = RGB{R: 0xCC, G: 0xCC, B: 0xCC}
	Magenta   = RGB{R: 0xFF, G: 0x00, B: 0xFF}
)

// RGBFromInt takes the lower 24 bit of v, an alpha channel is dropped
func RGBFromInt(v int64) RGB {
	return RGB{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v)}
}

// Int returns the color as 0xRRGGBB
func (c RGB) Int() int64 {
	return int64(c.R)<<16 | int64(c.G)<<8 | int64(c.B)
}

// Hex returns the color as #rrggbb
func (c RGB) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// ParseRGB parses #RRGGBB, RRGGBB or #AARRGGBB
func ParseRGB(s string) (RGB, error) {
	h := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(h) != 6 && len(h) != 8 {
		return RGB{}, fmt.Errorf("invalid color: %q", s)
	}
	v, err := strconv.ParseInt(h, 16, 64)
	if err != nil {
		return RGB{}, fmt.Errorf("invalid color: %q", s)
	}
	return RGBFromInt(v), nil
}
