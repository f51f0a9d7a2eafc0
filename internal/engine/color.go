package engine

import (
	"math"

	"github.com/KevinKickass/FountainCore/internal/types"
)

// RGBToRGBW extracts the common white component when enabled.
// Disabled, the colour passes through with W=0.
func RGBToRGBW(c types.RGB, enabled bool) types.RGBW {
	if !enabled {
		return types.RGBW{R: c.R, G: c.G, B: c.B}
	}
	w := min(c.R, c.G, c.B)
	return types.RGBW{R: c.R - w, G: c.G - w, B: c.B - w, W: w}
}

// Correct multiplies every channel by the fixture's factor, truncating
// toward zero and clamping to 0..255.
func Correct(c types.RGBW, f *types.FixtureDefinition) types.RGBW {
	return types.RGBW{
		R: scale(c.R, f.Correction(0)),
		G: scale(c.G, f.Correction(1)),
		B: scale(c.B, f.Correction(2)),
		W: scale(c.W, f.Correction(3)),
	}
}

func scale(v uint8, factor float32) uint8 {
	x := int(float32(v) * factor)
	if x < 0 {
		return 0
	}
	if x > 255 {
		return 255
	}
	return uint8(x)
}

// Lerp interpolates each channel, rounding to nearest. progress is
// clamped to [0,1].
func Lerp(from, to types.RGBW, progress float64) types.RGBW {
	p := math.Max(0, math.Min(1, progress))
	mix := func(a, b uint8) uint8 {
		return uint8(math.Round(float64(a) + (float64(b)-float64(a))*p))
	}
	return types.RGBW{
		R: mix(from.R, to.R),
		G: mix(from.G, to.G),
		B: mix(from.B, to.B),
		W: mix(from.W, to.W),
	}
}
