package types

import "strings"

type PaletteTable struct {
	Colors []ColorDefinition `json:"colors"`
}

// ColorDefinition is one palette entry. Hex is always six hex digits.
type ColorDefinition struct {
	Index       int    `json:"index"`
	Hex         string `json:"hex"`
	Description string `json:"name"`
}

type FixtureTable struct {
	Fixtures []FixtureDefinition `json:"fixtures"`
}

type FixtureDefinition struct {
	ID          int           `json:"fixture"`
	Note        string        `json:"note,omitempty"`
	DMXChannel  int           `json:"dmx_channel"`
	Format      FixtureFormat `json:"format"`
	Corrections []float32     `json:"corrections,omitempty"`
}

type FixtureFormat string

const (
	FormatRGB    FixtureFormat = "RGB"
	FormatRGBW   FixtureFormat = "RGBW"
	FormatSingle FixtureFormat = "X"
)

// ParseFixtureFormat accepts the table spellings, case-insensitive.
// "SINGLE" is accepted as an alias of "X".
func ParseFixtureFormat(s string) (FixtureFormat, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "RGB":
		return FormatRGB, true
	case "RGBW":
		return FormatRGBW, true
	case "X", "SINGLE":
		return FormatSingle, true
	}
	return "", false
}

// ChannelCount returns how many consecutive DMX slots the format occupies.
func (f FixtureFormat) ChannelCount() int {
	switch f {
	case FormatRGB:
		return 3
	case FormatRGBW:
		return 4
	default:
		return 1
	}
}

// Correction returns the factor for channel i (0=R,1=G,2=B,3=W).
// Missing entries default to 1.
func (f *FixtureDefinition) Correction(i int) float32 {
	if i < 0 || i >= len(f.Corrections) {
		return 1
	}
	return f.Corrections[i]
}
