package websocket

import (
	"context"
	"slices"
	"time"

	"github.com/KevinKickass/FountainCore/internal/dmx"
	"github.com/KevinKickass/FountainCore/internal/plc"
	"github.com/KevinKickass/FountainCore/internal/show"
	"go.uber.org/zap"
)

// DefaultFeedInterval gives roughly 10 updates per second.
const DefaultFeedInterval = 100 * time.Millisecond

type SnapshotSource interface {
	Snapshot() *show.Snapshot
}

type PLCStatusSource interface {
	Status() plc.Status
}

// Feed polls the dispatcher snapshot and pushes changes to the hub.
type Feed struct {
	hub      *Hub
	snaps    SnapshotSource
	plc      PLCStatusSource
	interval time.Duration
	logger   *zap.Logger

	last     *show.Snapshot
	plcState plc.State
	sent     bool
}

// NewFeed builds a feed; plcSource may be nil.
func NewFeed(hub *Hub, snaps SnapshotSource, plcSource PLCStatusSource, interval time.Duration, logger *zap.Logger) *Feed {
	if interval <= 0 {
		interval = DefaultFeedInterval
	}
	return &Feed{
		hub:      hub,
		snaps:    snaps,
		plc:      plcSource,
		interval: interval,
		logger:   logger,
	}
}

// Run publishes until ctx is cancelled.
func (f *Feed) Run(ctx context.Context) {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	f.logger.Debug("Live feed started", zap.Duration("interval", f.interval))

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.poll()
		}
	}
}

func (f *Feed) poll() {
	snap := f.snaps.Snapshot()
	if snap != nil && changed(f.last, snap) {
		f.hub.Broadcast(NewFixtureStateMessage(snap))
		f.last = snap
	}

	if f.plc == nil {
		return
	}
	status := f.plc.Status()
	if !f.sent || status.State != f.plcState {
		var sinks []dmx.SinkStatus
		if snap != nil {
			sinks = snap.Sinks
		}
		f.hub.Broadcast(NewSinkStatusMessage(sinks, status))
		f.plcState = status.State
		f.sent = true
	}
}

// changed ignores the elapsed time so a paused show stays quiet.
func changed(prev, next *show.Snapshot) bool {
	if prev == nil {
		return true
	}
	return prev.Frame != next.Frame ||
		prev.LastFiredMs != next.LastFiredMs ||
		prev.ActiveFades != next.ActiveFades ||
		!slices.Equal(prev.Locked, next.Locked)
}
