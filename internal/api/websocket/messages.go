package websocket

import (
	"time"

	"github.com/KevinKickass/FountainCore/internal/dmx"
	"github.com/KevinKickass/FountainCore/internal/plc"
	"github.com/KevinKickass/FountainCore/internal/show"
	"github.com/KevinKickass/FountainCore/internal/types"
)

// MessageType defines the type of WebSocket message
type MessageType string

const (
	MessageTypeFixtureState MessageType = "fixture_state"
	MessageTypeSinkStatus   MessageType = "sink_status"
	MessageTypeSystemStatus MessageType = "system_status"
)

// Message represents a WebSocket message
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      any         `json:"data"`
}

// FixtureStateData is one published dispatcher snapshot.
type FixtureStateData struct {
	ElapsedMs   uint64             `json:"elapsed_ms"`
	LastFiredMs int64              `json:"last_fired_ms"`
	Colors      map[int]types.RGBW `json:"colors"`
	Locked      []int              `json:"locked_addresses"`
	ActiveFades int                `json:"active_fades"`
	Stats       show.Stats         `json:"stats"`
}

type SinkStatusData struct {
	Sinks []dmx.SinkStatus `json:"sinks"`
	PLC   plc.Status       `json:"plc"`
}

// NewMessage creates a new message with current timestamp
func NewMessage(msgType MessageType, data any) Message {
	return Message{
		Type:      msgType,
		Timestamp: time.Now(),
		Data:      data,
	}
}

func NewFixtureStateMessage(snap *show.Snapshot) Message {
	return NewMessage(MessageTypeFixtureState, FixtureStateData{
		ElapsedMs:   snap.ElapsedMs,
		LastFiredMs: snap.LastFiredMs,
		Colors:      snap.Colors,
		Locked:      snap.Locked,
		ActiveFades: snap.ActiveFades,
		Stats:       snap.Stats,
	})
}

func NewSinkStatusMessage(sinks []dmx.SinkStatus, status plc.Status) Message {
	return NewMessage(MessageTypeSinkStatus, SinkStatusData{
		Sinks: sinks,
		PLC:   status,
	})
}

func NewSystemStatusMessage(status any) Message {
	return NewMessage(MessageTypeSystemStatus, status)
}
