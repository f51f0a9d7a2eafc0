package show

import (
	"sync"
	"time"
)

// Clock reports how far the show's audio has played.
type Clock interface {
	CurrentElapsedMillis() uint64
}

// PlaybackClock is a Clock that also reports transport state. Generation
// changes whenever the position jumps (seek or stop), which resets the
// dispatch cursor.
type PlaybackClock interface {
	Clock
	Playing() bool
	Generation() uint64
}

// WallClock is a headless playback clock driven by the system time. It is
// used when no audio player reports a position.
type WallClock struct {
	mu         sync.Mutex
	state      PlaybackState
	offset     time.Duration
	startedAt  time.Time
	generation uint64
	now        func() time.Time
}

func NewWallClock() *WallClock {
	return &WallClock{state: StateStopped, now: time.Now}
}

func (c *WallClock) Play() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StatePlaying {
		return
	}
	c.startedAt = c.now()
	c.state = StatePlaying
}

func (c *WallClock) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StatePlaying {
		return
	}
	c.offset = c.elapsedLocked()
	c.state = StatePaused
}

// Seek jumps to pos, keeping the transport state.
func (c *WallClock) Seek(pos time.Duration) {
	if pos < 0 {
		pos = 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.offset = pos
	c.startedAt = c.now()
	c.generation++
}

// Stop rewinds to zero.
func (c *WallClock) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.offset = 0
	c.state = StateStopped
	c.generation++
}

func (c *WallClock) elapsedLocked() time.Duration {
	if c.state != StatePlaying {
		return c.offset
	}
	return c.offset + c.now().Sub(c.startedAt)
}

func (c *WallClock) CurrentElapsedMillis() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return uint64(c.elapsedLocked() / time.Millisecond)
}

func (c *WallClock) Playing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StatePlaying
}

func (c *WallClock) State() PlaybackState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *WallClock) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}
