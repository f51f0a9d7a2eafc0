package types

import (
	"fmt"
	"strconv"
)

type RGB struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
}

// RGBFromInt unpacks 0xRRGGBB.
func RGBFromInt(v int) RGB {
	return RGB{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v)}
}

// ParseHexColor parses exactly six hex digits.
func ParseHexColor(s string) (RGB, error) {
	if len(s) != 6 {
		return RGB{}, fmt.Errorf("hex color %q must be 6 digits", s)
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return RGB{}, fmt.Errorf("invalid hex color %q", s)
	}
	return RGBFromInt(int(v)), nil
}

func (c RGB) IsBlack() bool {
	return c == RGB{}
}

func (c RGB) Hex() string {
	return fmt.Sprintf("%02X%02X%02X", c.R, c.G, c.B)
}

type RGBW struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
	W uint8 `json:"w"`
}

// Channel returns component i (0=R,1=G,2=B,3=W).
func (c RGBW) Channel(i int) uint8 {
	switch i {
	case 0:
		return c.R
	case 1:
		return c.G
	case 2:
		return c.B
	default:
		return c.W
	}
}

// MaxRGB is the single-channel intensity of the colour.
func (c RGBW) MaxRGB() uint8 {
	return max(c.R, c.G, c.B)
}
