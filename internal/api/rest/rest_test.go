package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

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
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeLifecycle struct {
	cfg        *config.Config
	dir        *fixtures.Directory
	dispatcher *show.Dispatcher
	clock      *show.WallClock
	plc        *plc.Client
}

func (f *fakeLifecycle) Config() *config.Config { return f.cfg }

func (f *fakeLifecycle) Directory() *fixtures.Directory { return f.dir }

func (f *fakeLifecycle) Dispatcher() *show.Dispatcher { return f.dispatcher }

func (f *fakeLifecycle) Clock() *show.WallClock { return f.clock }

func (f *fakeLifecycle) PLC() *plc.Client { return f.plc }

func (f *fakeLifecycle) Shutdown(ctx context.Context) error { return nil }

func (f *fakeLifecycle) GetCurrentStatus() interfaces.SystemStatus {
	return interfaces.SystemStatus{State: "RUNNING", Playback: f.clock.State()}
}

// newTestServer wires a real dispatcher over one RGB fixture on address 500.
// When run is set the dispatch loop is started for the test's lifetime.
func newTestServer(t *testing.T, run bool) (*Server, *fakeLifecycle) {
	t.Helper()
	logger := zaptest.NewLogger(t)

	dir, err := fixtures.NewDirectory(
		&types.PaletteTable{Colors: []types.ColorDefinition{{Index: 1, Hex: "00FF00"}}},
		&types.FixtureTable{Fixtures: []types.FixtureDefinition{
			{ID: 1, DMXChannel: 1, Format: types.FormatRGB},
			{ID: 2, DMXChannel: 4, Format: types.FormatRGB},
		}},
		&types.GroupTable{Groups: []types.LightGroup{{Name: "front", OnCode: 500, Fixtures: []int{1, 2}}}},
		logger,
	)
	require.NoError(t, err)

	client := plc.NewClient(plc.Options{Enabled: false}, logger)
	t.Cleanup(func() { client.Close() })

	clock := show.NewWallClock()
	eng := engine.New(dir, engine.Options{}, logger)
	d := show.NewDispatcher(script.NewParser(logger).Parse(""), eng, []dmx.Sink{dmx.NewNopSink("test")},
		client, clock, show.Options{TickInterval: 5 * time.Millisecond, Window: 25 * time.Millisecond}, logger)

	if run {
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			d.Run(ctx)
			close(done)
		}()
		t.Cleanup(func() {
			cancel()
			<-done
		})
	}

	lm := &fakeLifecycle{cfg: config.Default(), dir: dir, dispatcher: d, clock: clock, plc: client}
	s := NewServer(lm.cfg, lm, logger, websocket.NewHub(logger))

	if run {
		// Control requests need the loop to be accepting.
		require.Eventually(t, func() bool {
			return perform(s, http.MethodPost, "/api/v1/show/blackout", "").Code == http.StatusOK
		}, time.Second, 5*time.Millisecond)
	}
	return s, lm
}

func perform(s *Server, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v))
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp types.ErrorResponse
	decode(t, w, &resp)
	return resp.Error.Code
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t, false)

	w := perform(s, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(requestIDHeader))

	var body map[string]any
	decode(t, w, &body)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "RUNNING", body["state"])
}

func TestCORSPreflight(t *testing.T) {
	s, _ := newTestServer(t, false)

	w := perform(s, http.MethodOptions, "/api/v1/commands", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestControlWithoutDispatcherLoop(t *testing.T) {
	s, _ := newTestServer(t, false)

	w := perform(s, http.MethodPost, "/api/v1/show/blackout", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "SHOW_503", errorCode(t, w))
}

func TestShowTransport(t *testing.T) {
	s, lm := newTestServer(t, true)

	w := perform(s, http.MethodPost, "/api/v1/show/play", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, show.StatePlaying, lm.clock.State())

	w = perform(s, http.MethodPost, "/api/v1/show/pause", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, show.StatePaused, lm.clock.State())

	w = perform(s, http.MethodPost, "/api/v1/show/seek", `{"position_ms": 12000}`)
	require.Equal(t, http.StatusOK, w.Code)
	var st showStatus
	decode(t, w, &st)
	assert.Equal(t, uint64(12000), st.ElapsedMs)
	assert.Equal(t, show.StatePaused, st.State)

	w = perform(s, http.MethodPost, "/api/v1/show/seek", `{"position_ms": -1}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = perform(s, http.MethodPost, "/api/v1/show/seek", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = perform(s, http.MethodPost, "/api/v1/show/stop", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, show.StateStopped, lm.clock.State())
	assert.Equal(t, uint64(0), lm.clock.CurrentElapsedMillis())

	w = perform(s, http.MethodGet, "/api/v1/show/status", "")
	require.Equal(t, http.StatusOK, w.Code)
}

func TestManualCommandAndFixtureColor(t *testing.T) {
	s, _ := newTestServer(t, true)

	w := perform(s, http.MethodPost, "/api/v1/commands", `{"command": "500-001"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var res map[string]string
	decode(t, w, &res)
	assert.Equal(t, "500-001", res["command"])
	assert.Equal(t, string(engine.ResultApplied), res["result"])

	w = perform(s, http.MethodGet, "/api/v1/fixtures/2/color", "")
	require.Equal(t, http.StatusOK, w.Code)
	var color map[string]any
	decode(t, w, &color)
	assert.Equal(t, "00FF00", color["hex"])

	w = perform(s, http.MethodPost, "/api/v1/commands", `{"command": "051-008"}`)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &res)
	assert.Equal(t, string(show.ResultWater), res["result"])

	w = perform(s, http.MethodPost, "/api/v1/commands", `{"command": "5-1"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "COMMAND_400", errorCode(t, w))
}

func TestFixtureEndpoints(t *testing.T) {
	s, lm := newTestServer(t, true)

	w := perform(s, http.MethodGet, "/api/v1/fixtures", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Fixtures []fixtureView `json:"fixtures"`
		Count    int           `json:"count"`
	}
	decode(t, w, &list)
	assert.Equal(t, 2, list.Count)
	assert.Equal(t, 4, list.Fixtures[1].DMXChannel)

	w = perform(s, http.MethodGet, "/api/v1/fixtures/abc/color", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = perform(s, http.MethodGet, "/api/v1/fixtures/99/color", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "FIXTURE_404", errorCode(t, w))

	w = perform(s, http.MethodPost, "/api/v1/fixtures/fade", `{"address": 500, "color": "0000FF", "duration_ms": 3600000}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	var fade map[string]any
	decode(t, w, &fade)
	assert.Equal(t, float64(2), fade["fixtures"])
	assert.Equal(t, 2, lm.dispatcher.Snapshot().ActiveFades)

	w = perform(s, http.MethodPost, "/api/v1/fixtures/fade", `{"address": 777, "color": "0000FF"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = perform(s, http.MethodPost, "/api/v1/fixtures/fade", `{"address": 500, "color": "blue"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPLCEndpoints(t *testing.T) {
	s, _ := newTestServer(t, false)

	w := perform(s, http.MethodPost, "/api/v1/plc/commands", `{"command": "051-008"}`)
	require.Equal(t, http.StatusAccepted, w.Code)

	w = perform(s, http.MethodPost, "/api/v1/plc/commands", `{"command": "nope"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "PLC_400", errorCode(t, w))

	w = perform(s, http.MethodGet, "/api/v1/plc/status", "")
	require.Equal(t, http.StatusOK, w.Code)
	var st plc.Status
	decode(t, w, &st)
	assert.Equal(t, plc.StateDisabled, st.State)
	assert.True(t, st.Healthy)
}

func TestWebsocketStatus(t *testing.T) {
	s, _ := newTestServer(t, false)

	w := perform(s, http.MethodGet, "/api/v1/ws/status", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"connected_clients": 0}`, w.Body.String())
}
