package plc

import "time"

type State string

const (
	// StateDisabled never performs I/O and always reports healthy.
	StateDisabled     State = "disabled"
	StateDisconnected State = "disconnected"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
)

type Status struct {
	State           State     `json:"state"`
	Address         string    `json:"address,omitempty"`
	Healthy         bool      `json:"healthy"`
	Queued          int       `json:"queued"`
	BatchesSent     uint64    `json:"batches_sent"`
	BatchesDropped  uint64    `json:"batches_dropped"`
	CommandsDropped uint64    `json:"commands_dropped"`
	LastError       string    `json:"last_error,omitempty"`
	LastStateChange time.Time `json:"last_state_change"`
}
