package show

import (
	"time"

	"github.com/KevinKickass/FountainCore/internal/dmx"
	"github.com/KevinKickass/FountainCore/internal/types"
)

type PlaybackState string

const (
	StateStopped PlaybackState = "stopped"
	StatePlaying PlaybackState = "playing"
	StatePaused  PlaybackState = "paused"
)

type Command string

const (
	CommandPlay     Command = "play"
	CommandPause    Command = "pause"
	CommandStop     Command = "stop"
	CommandSeek     Command = "seek"
	CommandBlackout Command = "blackout"
)

// Stats are running counters since the dispatcher was created.
type Stats struct {
	Frames          uint64 `json:"frames"`
	LinesFired      uint64 `json:"lines_fired"`
	SilenceCues     uint64 `json:"silence_cues"`
	CommandsApplied uint64 `json:"commands_applied"`
	CommandsLocked  uint64 `json:"commands_locked"`
	CommandsIgnored uint64 `json:"commands_ignored"`
	WaterQueued     uint64 `json:"water_queued"`
	WaterDropped    uint64 `json:"water_dropped"`
	CursorResets    uint64 `json:"cursor_resets"`
}

// Snapshot is the read-only view published after every tick.
type Snapshot struct {
	ElapsedMs   uint64             `json:"elapsed_ms"`
	LastFiredMs int64              `json:"last_fired_ms"`
	Frame       dmx.Frame          `json:"-"`
	Colors      map[int]types.RGBW `json:"colors"`
	Locked      []int              `json:"locked_addresses"`
	ActiveFades int                `json:"active_fades"`
	Sinks       []dmx.SinkStatus   `json:"sinks"`
	Stats       Stats              `json:"stats"`
	UpdatedAt   time.Time          `json:"updated_at"`
}
