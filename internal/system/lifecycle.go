package system

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/KevinKickass/FountainCore/internal/api/rest"
	"github.com/KevinKickass/FountainCore/internal/api/websocket"
	"github.com/KevinKickass/FountainCore/internal/config"
	"github.com/KevinKickass/FountainCore/internal/dmx"
	"github.com/KevinKickass/FountainCore/internal/engine"
	"github.com/KevinKickass/FountainCore/internal/fixtures"
	"github.com/KevinKickass/FountainCore/internal/interfaces"
	"github.com/KevinKickass/FountainCore/internal/plc"
	"github.com/KevinKickass/FountainCore/internal/script"
	"github.com/KevinKickass/FountainCore/internal/show"
	"github.com/KevinKickass/FountainCore/internal/types"
	"go.uber.org/zap"
)

type LifecycleManager struct {
	config     *config.Config
	directory  *fixtures.Directory
	script     *script.Script
	engine     *engine.Engine
	clock      *show.WallClock
	dispatcher *show.Dispatcher
	plcClient  *plc.Client
	plcSender  *plc.Sender
	wsHub      *websocket.Hub
	feed       *websocket.Feed
	logger     *zap.Logger

	restServer *rest.Server

	// cancels the dispatcher, hub and feed goroutines
	runCancel context.CancelFunc
	runWG     sync.WaitGroup

	stateMu      sync.RWMutex
	currentState SystemState
	lastError    error

	listenersMu     sync.RWMutex
	statusListeners []chan SystemStatus

	shutdownChan chan struct{}
	shutdownOnce sync.Once
}

// NewLifecycleManager loads the directory and script and builds every
// component. Nothing runs until Start.
func NewLifecycleManager(cfg *config.Config, logger *zap.Logger) (*LifecycleManager, error) {
	directory, err := fixtures.LoadDirectory(cfg.Directory, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load fixture directory: %w", err)
	}

	parser := script.NewParser(logger, script.WithLegacyMarker(cfg.Show.LegacyMarker))
	sc, err := parser.ParseFile(cfg.Show.Script)
	if err != nil {
		return nil, err
	}

	eng := engine.New(directory, engine.Options{
		RGBWEnabled:       cfg.Show.RGBWEnabled,
		LockableAddresses: cfg.Show.LockableAddresses,
	}, logger)

	sinks, err := openSinks(cfg, logger)
	if err != nil {
		return nil, err
	}

	plcClient := plc.NewClient(plc.Options{
		Enabled:        cfg.PLC.Enabled,
		Address:        cfg.PLC.Address,
		ConnectTimeout: cfg.PLC.ConnectTimeout,
	}, logger)

	clock := show.NewWallClock()
	dispatcher := show.NewDispatcher(sc, eng, sinks, plcClient, clock, show.Options{
		TickInterval: cfg.Show.TickInterval,
		Window:       cfg.Show.DispatchWindow,
	}, logger)

	wsHub := websocket.NewHub(logger)

	return &LifecycleManager{
		config:       cfg,
		directory:    directory,
		script:       sc,
		engine:       eng,
		clock:        clock,
		dispatcher:   dispatcher,
		plcClient:    plcClient,
		plcSender:    plc.NewSender(plcClient, cfg.PLC.SendInterval, logger),
		wsHub:        wsHub,
		feed:         websocket.NewFeed(wsHub, dispatcher, plcClient, websocket.DefaultFeedInterval, logger),
		logger:       logger,
		currentState: StateInitializing,
		shutdownChan: make(chan struct{}),
	}, nil
}

// openSinks builds the serial and network DMX outputs. Missing hardware is
// not fatal: the serial side falls back to a no-op sink.
func openSinks(cfg *config.Config, logger *zap.Logger) ([]dmx.Sink, error) {
	var sinks []dmx.Sink

	if cfg.Serial.Enabled {
		serialSink, err := dmx.OpenSerialSink(dmx.SerialOptions{
			PortName:       cfg.Serial.Port,
			BaudRate:       cfg.Serial.BaudRate,
			IOTimeout:      cfg.Serial.IOTimeout,
			VendorID:       cfg.Serial.VendorID,
			ProductIDs:     cfg.Serial.ProductIDs,
			ReopenInterval: cfg.Serial.ReopenInterval,
		}, logger)
		if err != nil {
			logger.Warn("Serial DMX unavailable, continuing without it", zap.Error(err))
			sinks = append(sinks, dmx.NewNopSink("serial"))
		} else {
			sinks = append(sinks, serialSink)
		}
	}

	if cfg.SACN.Enabled {
		filter, err := dmx.ParseFilterMode(cfg.SACN.Filter)
		if err != nil {
			return nil, err
		}

		netSink, err := dmx.NewNetworkSink(dmx.NetworkOptions{
			Universe:          cfg.SACN.Universe,
			Destination:       cfg.SACN.Destination,
			SourceName:        cfg.SACN.SourceName,
			CID:               cfg.SACN.CID,
			Priority:          cfg.SACN.Priority,
			Filter:            filter,
			KeepAliveInterval: cfg.SACN.KeepAliveInterval,
		}, logger)
		switch {
		case errors.Is(err, types.ErrConfig):
			return nil, err
		case err != nil:
			logger.Warn("Network DMX unavailable, continuing without it", zap.Error(err))
			sinks = append(sinks, dmx.NewNopSink("sacn"))
		default:
			sinks = append(sinks, netSink)
		}
	}

	return sinks, nil
}

// Start starts the entire system
func (lm *LifecycleManager) Start() error {
	lm.logger.Info("Starting FountainCore",
		zap.Int("script_lines", lm.script.Len()),
		zap.Uint64("duration_ms", lm.script.TotalDurationMs()),
		zap.Int("fixtures", len(lm.directory.Fixtures())))

	lm.broadcastStatus()

	if lm.config.PLC.Enabled {
		if err := lm.plcClient.Connect(); err != nil {
			// The sender reconnects on the first failed batch.
			lm.logger.Warn("PLC not reachable at startup", zap.Error(err))
		}
	}
	if err := lm.plcSender.Start(); err != nil {
		lm.setError(fmt.Errorf("failed to start PLC sender: %w", err))
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	lm.runCancel = cancel

	lm.runWG.Add(3)
	go func() {
		defer lm.runWG.Done()
		lm.wsHub.Run(ctx)
	}()
	go func() {
		defer lm.runWG.Done()
		lm.feed.Run(ctx)
	}()
	go func() {
		defer lm.runWG.Done()
		if err := lm.dispatcher.Run(ctx); err != nil {
			lm.logger.Error("Dispatcher failed", zap.Error(err))
			lm.setError(err)
		}
	}()

	if err := lm.startRESTServer(); err != nil {
		lm.setError(fmt.Errorf("failed to start REST API: %w", err))
		return err
	}

	if lm.config.Show.AutoPlay {
		lm.clock.Play()
	}

	lm.setState(StateRunning)
	lm.broadcastStatus()

	lm.logger.Info("System started successfully",
		zap.String("http_addr", lm.restServer.Addr()),
		zap.Bool("auto_play", lm.config.Show.AutoPlay))

	return nil
}

func (lm *LifecycleManager) startRESTServer() error {
	lm.restServer = rest.NewServer(lm.config, lm, lm.logger, lm.wsHub)
	return lm.restServer.Start()
}

// Shutdown gracefully shuts down the system
func (lm *LifecycleManager) Shutdown(ctx context.Context) error {
	var shutdownErr error

	lm.shutdownOnce.Do(func() {
		lm.logger.Info("Shutting down system")

		lm.setState(StateStopping)
		lm.broadcastStatus()

		shutdownErr = lm.gracefulShutdown(ctx)

		lm.setState(StateStopped)
		lm.broadcastStatus()

		close(lm.shutdownChan)
	})

	return shutdownErr
}

func (lm *LifecycleManager) gracefulShutdown(ctx context.Context) error {
	var wg sync.WaitGroup
	errChan := make(chan error, 3)

	// 1. Stop the dispatch loop, then black out and release both DMX sinks
	wg.Add(1)
	go func() {
		defer wg.Done()
		if lm.runCancel != nil {
			lm.runCancel()
		}
		lm.runWG.Wait()
		if err := lm.dispatcher.Close(); err != nil {
			errChan <- fmt.Errorf("dmx sink close failed: %w", err)
		}
	}()

	// 2. Flush the last water batch and close the PLC session
	wg.Add(1)
	go func() {
		defer wg.Done()
		lm.plcSender.Stop()
		if err := lm.plcClient.Close(); err != nil {
			errChan <- fmt.Errorf("plc close failed: %w", err)
		}
	}()

	// 3. REST API Server graceful shutdown
	if lm.restServer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			shutdownCtx, cancel := context.WithTimeout(ctx, lm.config.Server.ShutdownTimeout)
			defer cancel()

			if err := lm.restServer.Shutdown(shutdownCtx); err != nil {
				errChan <- fmt.Errorf("rest api shutdown failed: %w", err)
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		close(errChan)
		var errs []error
		for err := range errChan {
			errs = append(errs, err)
		}
		if len(errs) > 0 {
			return errors.Join(errs...)
		}
		lm.logger.Info("Graceful shutdown completed")
		return nil
	case <-ctx.Done():
		lm.logger.Warn("Shutdown timeout, forcing stop")
		return fmt.Errorf("shutdown timeout exceeded")
	}
}

// Done is closed once Shutdown has finished.
func (lm *LifecycleManager) Done() <-chan struct{} {
	return lm.shutdownChan
}

func (lm *LifecycleManager) setState(state SystemState) {
	lm.stateMu.Lock()
	defer lm.stateMu.Unlock()

	if err := ValidateTransition(lm.currentState, state); err != nil {
		lm.logger.Warn("Ignoring state change", zap.Error(err))
		return
	}
	lm.logger.Debug("System state changed",
		zap.Stringer("from", lm.currentState),
		zap.Stringer("to", state))
	lm.currentState = state
}

func (lm *LifecycleManager) setError(err error) {
	lm.stateMu.Lock()
	lm.lastError = err
	lm.stateMu.Unlock()

	lm.setState(StateError)
	lm.broadcastStatus()
}

// State returns the lifecycle state.
func (lm *LifecycleManager) State() SystemState {
	lm.stateMu.RLock()
	defer lm.stateMu.RUnlock()
	return lm.currentState
}

// GetCurrentStatus returns current system status (Interface implementation)
func (lm *LifecycleManager) GetCurrentStatus() interfaces.SystemStatus {
	lm.stateMu.RLock()
	state, lastErr := lm.currentState, lm.lastError
	lm.stateMu.RUnlock()

	status := interfaces.SystemStatus{
		State:       state.String(),
		Playback:    lm.clock.State(),
		ElapsedMs:   lm.clock.CurrentElapsedMillis(),
		DurationMs:  lm.script.TotalDurationMs(),
		ScriptLines: lm.script.Len(),
		Fixtures:    len(lm.directory.Fixtures()),
		PLC:         lm.plcClient.State(),
	}
	if lastErr != nil {
		status.Error = lastErr.Error()
	}
	return status
}

func (lm *LifecycleManager) getStatusInternal() SystemStatus {
	lm.stateMu.RLock()
	defer lm.stateMu.RUnlock()

	status := SystemStatus{
		State:     lm.currentState,
		StateName: lm.currentState.String(),
		Timestamp: time.Now().Unix(),
	}
	if lm.lastError != nil {
		status.Error = lm.lastError.Error()
	}
	return status
}

func (lm *LifecycleManager) broadcastStatus() {
	status := lm.getStatusInternal()

	lm.wsHub.Broadcast(websocket.NewSystemStatusMessage(status))

	lm.listenersMu.RLock()
	defer lm.listenersMu.RUnlock()

	for _, listener := range lm.statusListeners {
		select {
		case listener <- status:
		default:
			// Channel full, skip
		}
	}
}

// SubscribeStatus subscribes to status updates
func (lm *LifecycleManager) SubscribeStatus() chan SystemStatus {
	ch := make(chan SystemStatus, 10)

	lm.listenersMu.Lock()
	lm.statusListeners = append(lm.statusListeners, ch)
	lm.listenersMu.Unlock()

	return ch
}

// UnsubscribeStatus unsubscribes from status updates
func (lm *LifecycleManager) UnsubscribeStatus(ch chan SystemStatus) {
	lm.listenersMu.Lock()
	defer lm.listenersMu.Unlock()

	for i, listener := range lm.statusListeners {
		if listener == ch {
			lm.statusListeners = append(lm.statusListeners[:i], lm.statusListeners[i+1:]...)
			close(ch)
			break
		}
	}
}

// Config returns the configuration
func (lm *LifecycleManager) Config() *config.Config {
	return lm.config
}

func (lm *LifecycleManager) Directory() *fixtures.Directory {
	return lm.directory
}

func (lm *LifecycleManager) Dispatcher() *show.Dispatcher {
	return lm.dispatcher
}

func (lm *LifecycleManager) Clock() *show.WallClock {
	return lm.clock
}

func (lm *LifecycleManager) PLC() *plc.Client {
	return lm.plcClient
}

// RESTAddr returns the bound HTTP address after Start.
func (lm *LifecycleManager) RESTAddr() string {
	if lm.restServer == nil {
		return ""
	}
	return lm.restServer.Addr()
}
