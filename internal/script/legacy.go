package script

import (
	"fmt"
	"strconv"
	"strings"
)

// legacyAddresses maps the historical per-module numbering (module*100 +
// output) onto the current fixture bank numbering.
var legacyAddresses = map[int]int{
	// light module 1 -> fixture bank 500
	101: 500, 102: 501, 103: 502, 104: 503, 105: 504, 106: 505,
	107: 506, 108: 507, 109: 508, 110: 509, 111: 510, 112: 511,
	// light module 2 -> fixture bank 600
	201: 600, 202: 601, 203: 602, 204: 603, 205: 604, 206: 605,
	207: 606, 208: 607, 209: 608, 210: 609, 211: 610, 212: 611,
}

// LegacyAddress returns the current address for a historical one.
func LegacyAddress(old int) (int, bool) {
	addr, ok := legacyAddresses[old]
	return addr, ok
}

// RemapLegacy rewrites the address of every command token on timed lines
// using the legacy table. Everything else is left untouched so the result
// can be fed back to the parser.
func RemapLegacy(text string) string {
	rows := strings.Split(text, "\n")
	for i, raw := range rows {
		line := strings.TrimRight(raw, "\r")
		m := timestampRE.FindStringIndex(strings.TrimSpace(line))
		if m == nil {
			continue
		}

		fields := strings.Fields(line)
		changed := false
		for j := 1; j < len(fields); j++ {
			if remapped, ok := remapToken(fields[j]); ok {
				fields[j] = remapped
				changed = true
			}
		}
		if changed {
			rows[i] = strings.Join(fields, " ")
		}
	}
	return strings.Join(rows, "\n")
}

func remapToken(token string) (string, bool) {
	if len(token) < 5 || token[3] != '-' || !isDigits(token[:3]) {
		return token, false
	}
	old, err := strconv.Atoi(token[:3])
	if err != nil {
		return token, false
	}
	addr, ok := LegacyAddress(old)
	if !ok {
		return token, false
	}
	return fmt.Sprintf("%03d%s", addr, token[3:]), true
}
