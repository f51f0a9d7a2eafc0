package show

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/KevinKickass/FountainCore/internal/dmx"
	"github.com/KevinKickass/FountainCore/internal/engine"
	"github.com/KevinKickass/FountainCore/internal/script"
	"github.com/KevinKickass/FountainCore/internal/types"
	"go.uber.org/zap"
)

// ErrNotRunning is returned by control calls made while Run is not active.
var ErrNotRunning = errors.New("dispatcher not running")

// ResultWater marks a command forwarded to the PLC instead of the lights.
const ResultWater engine.Result = "water"

// WaterQueue accepts textual water commands without blocking.
type WaterQueue interface {
	Queue(text string) bool
}

type Options struct {
	TickInterval time.Duration
	Window       time.Duration
}

// Dispatcher owns the fixture engine and the DMX universe. Every mutation
// happens on the goroutine running Run (or the sole caller of Tick);
// other goroutines submit work through the control channel and read the
// published Snapshot.
type Dispatcher struct {
	script   *script.Script
	engine   *engine.Engine
	sinks    []dmx.Sink
	water    WaterQueue
	clock    Clock
	interval time.Duration
	windowMs uint64
	logger   *zap.Logger

	universe  dmx.Universe
	lastFired int64
	lastNow   uint64
	lastGen   uint64
	stats     Stats

	control  chan func()
	running  atomic.Bool
	snapshot atomic.Pointer[Snapshot]
}

func NewDispatcher(
	s *script.Script,
	eng *engine.Engine,
	sinks []dmx.Sink,
	water WaterQueue,
	clock Clock,
	opts Options,
	logger *zap.Logger,
) *Dispatcher {
	d := &Dispatcher{
		script:    s,
		engine:    eng,
		sinks:     sinks,
		water:     water,
		clock:     clock,
		interval:  opts.TickInterval,
		windowMs:  uint64(opts.Window / time.Millisecond),
		logger:    logger,
		lastFired: -1,
		control:   make(chan func()),
	}
	if pc, ok := clock.(PlaybackClock); ok {
		d.lastGen = pc.Generation()
	}
	d.publish(0)
	return d
}

// Run ticks until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	if !d.running.CompareAndSwap(false, true) {
		return errors.New("dispatcher already running")
	}
	defer d.running.Store(false)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	d.logger.Info("Dispatcher started",
		zap.Duration("tick", d.interval),
		zap.Uint64("window_ms", d.windowMs),
		zap.Int("lines", d.script.Len()),
		zap.Int("sinks", len(d.sinks)))

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("Dispatcher stopped")
			return nil
		case fn := <-d.control:
			fn()
		case <-ticker.C:
			d.step()
		}
	}
}

func (d *Dispatcher) step() {
	now := d.clock.CurrentElapsedMillis()

	if pc, ok := d.clock.(PlaybackClock); ok {
		if gen := pc.Generation(); gen != d.lastGen {
			d.lastGen = gen
			d.resetCursor("clock position changed")
		}
		if !pc.Playing() {
			d.render(now)
			return
		}
	}

	d.Tick(now)
}

// Tick dispatches every line due at nowMs that has not fired yet, then
// renders the universe once and hands it to the sinks.
func (d *Dispatcher) Tick(nowMs uint64) {
	if d.lastFired >= 0 && nowMs+d.windowMs < d.lastNow {
		d.resetCursor("clock moved backwards")
	}
	d.lastNow = nowMs

	// Lines sharing a timestamp are due together, so the cursor only moves
	// once the whole batch has fired.
	cursor := d.lastFired
	for _, line := range d.script.Due(nowMs, d.windowMs) {
		if int64(line.TimeMs) <= cursor {
			continue
		}
		d.fire(line)
		d.lastFired = max(d.lastFired, int64(line.TimeMs))
	}

	d.render(nowMs)
}

// resetCursor forgets what has fired, so the next tick dispatches only what
// is due at its own time.
func (d *Dispatcher) resetCursor(reason string) {
	d.lastFired = -1
	d.lastNow = 0
	d.stats.CursorResets++
	d.logger.Debug("Dispatch cursor reset", zap.String("reason", reason))
}

func (d *Dispatcher) fire(line script.Line) {
	d.stats.LinesFired++

	if line.IsBlank {
		d.stats.SilenceCues++
		d.logger.Debug("Silence cue", zap.Uint64("time_ms", line.TimeMs))
		return
	}

	for _, cmd := range line.Commands {
		d.execute(cmd)
	}
}

func (d *Dispatcher) execute(cmd script.Command) engine.Result {
	if !d.engine.HasMapping(cmd.Address) && !cmd.IsHexColor {
		d.queueWater(cmd)
		return ResultWater
	}

	res := d.engine.Execute(cmd)
	switch res {
	case engine.ResultApplied:
		d.stats.CommandsApplied++
	case engine.ResultLocked:
		d.stats.CommandsLocked++
	default:
		d.stats.CommandsIgnored++
	}
	return res
}

func (d *Dispatcher) queueWater(cmd script.Command) {
	if d.water == nil {
		d.stats.CommandsIgnored++
		return
	}
	if d.water.Queue(cmd.String()) {
		d.stats.WaterQueued++
	} else {
		d.stats.WaterDropped++
	}
}

func (d *Dispatcher) render(nowMs uint64) {
	d.engine.ApplyToDMX(&d.universe)
	frame := d.universe.Snapshot()
	d.send(frame)
	d.stats.Frames++
	d.publish(nowMs)
}

func (d *Dispatcher) send(frame dmx.Frame) {
	for _, sink := range d.sinks {
		if err := sink.Send(frame); err != nil {
			d.logger.Debug("Sink send failed",
				zap.String("sink", sink.Name()),
				zap.Error(err))
		}
	}
}

func (d *Dispatcher) publish(nowMs uint64) {
	snap := &Snapshot{
		ElapsedMs:   nowMs,
		LastFiredMs: d.lastFired,
		Frame:       d.universe.Snapshot(),
		Colors:      d.engine.Colors(),
		Locked:      d.engine.LockedAddresses(),
		ActiveFades: d.engine.ActiveFades(),
		Stats:       d.stats,
		UpdatedAt:   time.Now(),
	}
	for _, sink := range d.sinks {
		if r, ok := sink.(dmx.StatusReporter); ok {
			snap.Sinks = append(snap.Sinks, r.Status())
		}
	}
	d.snapshot.Store(snap)
}

// Snapshot returns the state published by the last tick. Callers must not
// modify it.
func (d *Dispatcher) Snapshot() *Snapshot {
	return d.snapshot.Load()
}

// Script returns the loaded script.
func (d *Dispatcher) Script() *script.Script {
	return d.script
}

// Sinks returns the DMX sinks in dispatch order.
func (d *Dispatcher) Sinks() []dmx.Sink {
	return d.sinks
}

// submit runs fn on the dispatch goroutine and waits for it.
func (d *Dispatcher) submit(ctx context.Context, fn func()) error {
	if !d.running.Load() {
		return ErrNotRunning
	}

	finished := make(chan struct{})
	select {
	case d.control <- func() { fn(); close(finished) }:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Blackout clears every fixture, fade and lock and pushes an all-zero
// frame to the sinks immediately.
func (d *Dispatcher) Blackout(ctx context.Context) error {
	return d.submit(ctx, d.blackout)
}

func (d *Dispatcher) blackout() {
	d.engine.Blackout()
	d.universe.Clear()
	d.render(d.lastNow)
}

// ResetCursor is used after an explicit seek when the clock does not
// report generations.
func (d *Dispatcher) ResetCursor(ctx context.Context) error {
	return d.submit(ctx, func() { d.resetCursor("requested") })
}

// ExecuteCommand runs one manual FCW command as if it came from the script.
func (d *Dispatcher) ExecuteCommand(ctx context.Context, cmd script.Command) (engine.Result, error) {
	var res engine.Result
	err := d.submit(ctx, func() {
		res = d.execute(cmd)
		d.render(d.lastNow)
	})
	return res, err
}

// StartFade fades every fixture under address to target.
func (d *Dispatcher) StartFade(ctx context.Context, address int, target types.RGB, duration time.Duration) (int, error) {
	var n int
	err := d.submit(ctx, func() {
		n = d.engine.StartFade(address, target, duration)
		d.render(d.lastNow)
	})
	return n, err
}

// Close blacks out every sink and releases it. Run must have returned.
func (d *Dispatcher) Close() error {
	var errs []error
	for _, sink := range d.sinks {
		if err := sink.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
