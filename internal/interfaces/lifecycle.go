package interfaces

import (
	"context"

	"github.com/KevinKickass/FountainCore/internal/config"
	"github.com/KevinKickass/FountainCore/internal/fixtures"
	"github.com/KevinKickass/FountainCore/internal/plc"
	"github.com/KevinKickass/FountainCore/internal/show"
)

// SystemStatus represents the current system state
type SystemStatus struct {
	State       string             `json:"state"`
	Playback    show.PlaybackState `json:"playback"`
	ElapsedMs   uint64             `json:"elapsed_ms"`
	DurationMs  uint64             `json:"duration_ms"`
	ScriptLines int                `json:"script_lines"`
	Fixtures    int                `json:"fixtures"`
	PLC         plc.State          `json:"plc"`
	Error       string             `json:"error,omitempty"`
}

type LifecycleManager interface {
	Config() *config.Config
	Directory() *fixtures.Directory
	Dispatcher() *show.Dispatcher
	Clock() *show.WallClock
	PLC() *plc.Client
	GetCurrentStatus() SystemStatus
	Shutdown(ctx context.Context) error
}
