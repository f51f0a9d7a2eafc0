package system

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/KevinKickass/FountainCore/internal/config"
	"github.com/KevinKickass/FountainCore/internal/dmx"
	"github.com/KevinKickass/FountainCore/internal/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
)

func TestValidateTransition(t *testing.T) {
	tests := []struct {
		from, to SystemState
		ok       bool
	}{
		{StateInitializing, StateRunning, true},
		{StateInitializing, StateStopping, true},
		{StateRunning, StateStopping, true},
		{StateRunning, StateInitializing, false},
		{StateStopping, StateStopped, true},
		{StateStopped, StateRunning, false},
		{StateStopped, StateInitializing, true},
		{StateError, StateStopping, true},
		{SystemState(42), StateRunning, false},
	}

	for _, tt := range tests {
		err := ValidateTransition(tt.from, tt.to)
		if tt.ok {
			assert.NoError(t, err, "%s -> %s", tt.from, tt.to)
		} else {
			assert.Error(t, err, "%s -> %s", tt.from, tt.to)
		}
	}
	assert.Equal(t, "UNKNOWN", SystemState(42).String())
}

const (
	testPalette  = "colors:\n  - index: 1\n    hex: FF0000\n"
	testFixtures = "fixtures:\n  - fixture: 1\n    dmx_channel: 1\n    format: rgb\n"
	testGroups   = "groups:\n  - name: front\n    on_code: 500\n    fixtures: [1]\n"
	testShow     = "FOUNTAIN CTL 2.0\n00:00.0 500-FF0000\n00:30.0 500-000000\n"
)

func testConfig(t *testing.T, sacnDest string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	for name, content := range map[string]string{
		"palette.yaml":  testPalette,
		"fixtures.yaml": testFixtures,
		"groups.yaml":   testGroups,
		"show.ctl":      testShow,
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}

	cfg := config.Default()
	cfg.Server.HTTPPort = 0
	cfg.Show.Script = filepath.Join(dir, "show.ctl")
	cfg.Show.TickInterval = 10 * time.Millisecond
	cfg.Show.RGBWEnabled = false
	cfg.Directory.SearchPaths = []string{dir}
	cfg.Serial.Enabled = false
	cfg.SACN.Destination = sacnDest
	cfg.SACN.CID = "6ba7b810-9dad-11d1-80b4-00c04fd430c8"
	cfg.PLC.Enabled = false
	return cfg
}

func TestNewLifecycleManagerRejectsMissingTables(t *testing.T) {
	cfg := testConfig(t, "127.0.0.1:5568")
	cfg.Directory.SearchPaths = []string{t.TempDir()}

	_, err := NewLifecycleManager(cfg, zaptest.NewLogger(t))
	assert.Error(t, err)
}

func TestLifecycleStartAndShutdown(t *testing.T) {
	defer goleak.VerifyNone(t)

	peer, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer peer.Close()

	lm, err := NewLifecycleManager(testConfig(t, peer.LocalAddr().String()), zaptest.NewLogger(t))
	require.NoError(t, err)

	statusCh := lm.SubscribeStatus()

	require.NoError(t, lm.Start())
	assert.Equal(t, StateRunning, lm.State())

	_, port, err := net.SplitHostPort(lm.RESTAddr())
	require.NoError(t, err)
	base := "http://127.0.0.1:" + port
	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}, Timeout: 2 * time.Second}

	resp, err := client.Get(base + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = client.Post(base+"/api/v1/show/play", "application/json", bytes.NewReader(nil))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.Eventually(t, func() bool {
		return lm.Dispatcher().Snapshot().Stats.LinesFired == 1
	}, 2*time.Second, 10*time.Millisecond)

	resp, err = client.Get(base + "/api/v1/system/status")
	require.NoError(t, err)
	var status interfaces.SystemStatus
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	resp.Body.Close()
	assert.Equal(t, "RUNNING", status.State)
	assert.Equal(t, 2, status.ScriptLines)
	assert.Equal(t, 1, status.Fixtures)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, lm.Shutdown(ctx))
	require.NoError(t, lm.Shutdown(ctx), "second shutdown is a no-op")

	select {
	case <-lm.Done():
	default:
		t.Fatal("Done not closed after shutdown")
	}
	assert.Equal(t, StateStopped, lm.State())

	var states []SystemState
	for len(statusCh) > 0 {
		states = append(states, (<-statusCh).State)
	}
	assert.Equal(t, []SystemState{StateInitializing, StateRunning, StateStopping, StateStopped}, states)
	lm.UnsubscribeStatus(statusCh)

	// The network sink saw red, then the teardown blackout.
	var last []byte
	sawRed := false
	buf := make([]byte, 1024)
	for {
		require.NoError(t, peer.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
		n, _, err := peer.ReadFromUDP(buf)
		if err != nil {
			break
		}
		last = append(last[:0], buf[:n]...)
		if n == 638 && last[126] == 255 {
			sawRed = true
		}
	}
	assert.True(t, sawRed)
	require.Len(t, last, 638)
	assert.Equal(t, make([]byte, dmx.Channels), last[126:])
}
