package script

import (
	"fmt"
	"strconv"

	"github.com/KevinKickass/FountainCore/internal/types"
)

const (
	MaxAddress = 999
	MaxDecimal = 999
	MaxHex     = 0xFFFFFF
)

// Command is one FCW token: an address plus either a decimal datum or an
// RGB triple packed as 0xRRGGBB.
type Command struct {
	Address    int
	Data       int
	IsHexColor bool
}

// RGB unpacks a hex command. The result is meaningless for decimal
// commands.
func (c Command) RGB() (r, g, b uint8) {
	return uint8(c.Data >> 16), uint8(c.Data >> 8), uint8(c.Data)
}

// IsBlack reports whether the command carries the literal color 000000.
func (c Command) IsBlack() bool {
	return c.IsHexColor && c.Data == 0
}

// String returns the canonical zero-padded form, e.g. "051-008" or
// "051-FF00AA".
func (c Command) String() string {
	if c.IsHexColor {
		return fmt.Sprintf("%03d-%06X", c.Address, c.Data)
	}
	return fmt.Sprintf("%03d-%03d", c.Address, c.Data)
}

// ParseCommand parses a single AAA-DDD or AAA-RRGGBB token.
func ParseCommand(token string) (Command, error) {
	if len(token) < 5 || token[3] != '-' {
		return Command{}, fmt.Errorf("%w: token %q is not AAA-DDD or AAA-RRGGBB", types.ErrParse, token)
	}

	addrText, dataText := token[:3], token[4:]
	if !isDigits(addrText) {
		return Command{}, fmt.Errorf("%w: address %q is not three digits", types.ErrParse, addrText)
	}
	address, _ := strconv.Atoi(addrText)

	switch {
	case len(dataText) == 6:
		v, err := strconv.ParseUint(dataText, 16, 32)
		if err != nil {
			return Command{}, fmt.Errorf("%w: color %q is not six hex digits", types.ErrParse, dataText)
		}
		return Command{Address: address, Data: int(v), IsHexColor: true}, nil

	case len(dataText) >= 1 && len(dataText) <= 3 && isDigits(dataText):
		v, _ := strconv.Atoi(dataText)
		return Command{Address: address, Data: v}, nil

	default:
		return Command{}, fmt.Errorf("%w: data %q is neither 1-3 decimal nor 6 hex digits", types.ErrParse, dataText)
	}
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
