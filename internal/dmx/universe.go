package dmx

import (
	"fmt"

	"github.com/KevinKickass/FountainCore/internal/types"
)

// Channels is the number of slots in one DMX512 universe.
const Channels = 512

// Frame is an immutable copy of a universe handed to sinks. Index 0 is
// channel 1.
type Frame [Channels]byte

// Universe is the mutable 512-slot buffer. Channels are addressed 1..512.
type Universe struct {
	slots [Channels]byte
}

// ValidChannel reports whether ch lies in 1..512.
func ValidChannel(ch int) bool {
	return ch >= 1 && ch <= Channels
}

func checkRange(start, count int) error {
	if !ValidChannel(start) || !ValidChannel(start+count-1) {
		return fmt.Errorf("%w: channels %d..%d", types.ErrChannelRange, start, start+count-1)
	}
	return nil
}

// Set writes one channel.
func (u *Universe) Set(ch int, value byte) error {
	if err := checkRange(ch, 1); err != nil {
		return err
	}
	u.slots[ch-1] = value
	return nil
}

// SetRange writes values to consecutive channels starting at start. The
// whole run is validated before anything is written.
func (u *Universe) SetRange(start int, values ...byte) error {
	if len(values) == 0 {
		return nil
	}
	if err := checkRange(start, len(values)); err != nil {
		return err
	}
	copy(u.slots[start-1:], values)
	return nil
}

// Get reads one channel.
func (u *Universe) Get(ch int) (byte, error) {
	if err := checkRange(ch, 1); err != nil {
		return 0, err
	}
	return u.slots[ch-1], nil
}

// Clear zeroes every channel.
func (u *Universe) Clear() {
	u.slots = [Channels]byte{}
}

// Snapshot returns a copy sinks can read without further locking.
func (u *Universe) Snapshot() Frame {
	return Frame(u.slots)
}
