package engine

import (
	"sort"
	"time"

	"github.com/KevinKickass/FountainCore/internal/dmx"
	"github.com/KevinKickass/FountainCore/internal/fixtures"
	"github.com/KevinKickass/FountainCore/internal/script"
	"github.com/KevinKickass/FountainCore/internal/types"
	"go.uber.org/zap"
)

// Result tells the caller what Execute did with a command.
type Result string

const (
	ResultApplied      Result = "applied"
	ResultUnmapped     Result = "unmapped"
	ResultUnknownColor Result = "unknown_color"
	ResultLocked       Result = "locked"
)

type Options struct {
	RGBWEnabled       bool
	LockableAddresses []int
}

type fadeState struct {
	start    time.Time
	duration time.Duration
	from     types.RGBW
	to       types.RGBW
}

type fixtureState struct {
	color types.RGBW
	fade  *fadeState
}

// Engine resolves FCW commands into per-fixture RGBW state and renders it
// into a DMX universe. It has a single owner and is not safe for
// concurrent use.
type Engine struct {
	dir      *fixtures.Directory
	rgbw     bool
	lockable map[int]bool
	locked   map[int]bool
	states   map[int]*fixtureState
	logger   *zap.Logger
	now      func() time.Time
}

func New(dir *fixtures.Directory, opts Options, logger *zap.Logger) *Engine {
	lockable := make(map[int]bool, len(opts.LockableAddresses))
	for _, addr := range opts.LockableAddresses {
		lockable[addr] = true
	}

	return &Engine{
		dir:      dir,
		rgbw:     opts.RGBWEnabled,
		lockable: lockable,
		locked:   make(map[int]bool),
		states:   make(map[int]*fixtureState),
		logger:   logger,
		now:      time.Now,
	}
}

// HasMapping reports whether the address drives any fixture.
func (e *Engine) HasMapping(address int) bool {
	_, ok := e.dir.Mapping(address)
	return ok
}

// Execute applies one command.
func (e *Engine) Execute(cmd script.Command) Result {
	mapping, ok := e.dir.Mapping(cmd.Address)
	if !ok {
		e.logger.Debug("No fixture mapping for address", zap.String("command", cmd.String()))
		return ResultUnmapped
	}

	color, ok := e.resolveColor(cmd)
	if !ok {
		e.logger.Warn("Unknown palette index", zap.String("command", cmd.String()))
		return ResultUnknownColor
	}

	lockAfter := false
	if e.lockable[cmd.Address] {
		switch {
		case color.IsBlack():
			if e.locked[cmd.Address] {
				e.logger.Debug("Address unlocked", zap.Int("address", cmd.Address))
			}
			delete(e.locked, cmd.Address)
		case e.locked[cmd.Address]:
			e.logger.Debug("Address locked, command ignored", zap.String("command", cmd.String()))
			return ResultLocked
		default:
			lockAfter = true
		}
	}

	for _, fd := range mapping.Directives {
		e.applyDirective(fd, color)
	}

	if lockAfter {
		e.locked[cmd.Address] = true
	}

	return ResultApplied
}

func (e *Engine) resolveColor(cmd script.Command) (types.RGB, bool) {
	if cmd.IsHexColor {
		return types.RGBFromInt(cmd.Data), true
	}
	return e.dir.Color(cmd.Data)
}

func (e *Engine) applyDirective(fd types.FixtureDirective, color types.RGB) {
	fixture, ok := e.dir.Fixture(fd.FixtureID)
	if !ok {
		return
	}

	switch fd.Directive {
	case types.DirectiveOn:
		e.setStatic(fd.FixtureID, Correct(RGBToRGBW(color, e.rgbw), &fixture))
	case types.DirectiveFade:
		e.setStatic(fd.FixtureID, types.RGBW{})
	case types.DirectiveGreenYellow:
		gy := types.RGB{R: color.R / 2, G: color.G}
		e.setStatic(fd.FixtureID, Correct(RGBToRGBW(gy, e.rgbw), &fixture))
	case types.DirectiveWhite:
		e.setStatic(fd.FixtureID, types.RGBW{W: 255})
	}
}

func (e *Engine) state(id int) *fixtureState {
	st, ok := e.states[id]
	if !ok {
		st = &fixtureState{}
		e.states[id] = st
	}
	return st
}

func (e *Engine) setStatic(id int, c types.RGBW) {
	st := e.state(id)
	st.color = c
	st.fade = nil
}

// StartFade fades every fixture bound On or Fade under address from its
// current colour to the corrected target.
func (e *Engine) StartFade(address int, target types.RGB, duration time.Duration) int {
	mapping, ok := e.dir.Mapping(address)
	if !ok {
		e.logger.Debug("No fixture mapping for fade", zap.Int("address", address))
		return 0
	}

	now := e.now()
	started := 0
	for _, fd := range mapping.Directives {
		if fd.Directive != types.DirectiveOn && fd.Directive != types.DirectiveFade {
			continue
		}
		fixture, ok := e.dir.Fixture(fd.FixtureID)
		if !ok {
			continue
		}

		end := Correct(RGBToRGBW(target, e.rgbw), &fixture)
		if duration <= 0 {
			e.setStatic(fd.FixtureID, end)
			started++
			continue
		}

		from := e.colorAt(fd.FixtureID, now)
		st := e.state(fd.FixtureID)
		st.color = from
		st.fade = &fadeState{start: now, duration: duration, from: from, to: end}
		started++
	}

	e.logger.Debug("Fade started",
		zap.Int("address", address),
		zap.String("target", target.Hex()),
		zap.Duration("duration", duration),
		zap.Int("fixtures", started))

	return started
}

// FixtureColor returns the fixture's colour right now, interpolating an
// active fade.
func (e *Engine) FixtureColor(id int) (types.RGBW, bool) {
	if _, ok := e.dir.Fixture(id); !ok {
		return types.RGBW{}, false
	}
	return e.colorAt(id, e.now()), true
}

func (e *Engine) colorAt(id int, now time.Time) types.RGBW {
	st, ok := e.states[id]
	if !ok {
		return types.RGBW{}
	}
	if st.fade == nil {
		return st.color
	}
	return Lerp(st.fade.from, st.fade.to, fadeProgress(st.fade, now))
}

func fadeProgress(f *fadeState, now time.Time) float64 {
	return float64(now.Sub(f.start)) / float64(f.duration)
}

// ApplyToDMX renders every fixture into u and promotes finished fades to
// static colours. Writes outside 1..512 are logged and skipped.
func (e *Engine) ApplyToDMX(u *dmx.Universe) {
	now := e.now()

	for _, fixture := range e.dir.Fixtures() {
		color := e.colorAt(fixture.ID, now)

		if st, ok := e.states[fixture.ID]; ok && st.fade != nil && fadeProgress(st.fade, now) >= 1 {
			st.color = st.fade.to
			st.fade = nil
		}

		var err error
		switch fixture.Format {
		case types.FormatRGB:
			err = u.SetRange(fixture.DMXChannel, color.R, color.G, color.B)
		case types.FormatRGBW:
			err = u.SetRange(fixture.DMXChannel, color.R, color.G, color.B, color.W)
		default:
			err = u.Set(fixture.DMXChannel, color.MaxRGB())
		}
		if err != nil {
			e.logger.Warn("Skipping fixture write",
				zap.Int("fixture", fixture.ID),
				zap.Int("dmx_channel", fixture.DMXChannel),
				zap.Error(err))
		}
	}
}

// Blackout drops every fixture state, fade and lock.
func (e *Engine) Blackout() {
	e.states = make(map[int]*fixtureState)
	e.locked = make(map[int]bool)
	e.logger.Info("Blackout")
}

// Colors returns the current colour of every fixture that has state.
func (e *Engine) Colors() map[int]types.RGBW {
	now := e.now()
	out := make(map[int]types.RGBW, len(e.states))
	for id := range e.states {
		out[id] = e.colorAt(id, now)
	}
	return out
}

// ActiveFades counts fixtures whose fade has not been promoted yet.
func (e *Engine) ActiveFades() int {
	n := 0
	for _, st := range e.states {
		if st.fade != nil {
			n++
		}
	}
	return n
}

// LockedAddresses returns the latched addresses in ascending order.
func (e *Engine) LockedAddresses() []int {
	out := make([]int, 0, len(e.locked))
	for addr := range e.locked {
		out = append(out, addr)
	}
	sort.Ints(out)
	return out
}
