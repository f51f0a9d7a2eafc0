package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "show:\n  script: shows/demo.ctl\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "shows/demo.ctl", cfg.Show.Script)
	assert.Equal(t, 20*time.Millisecond, cfg.Show.TickInterval)
	assert.Equal(t, 25*time.Millisecond, cfg.Show.DispatchWindow)
	assert.Equal(t, 57600, cfg.Serial.BaudRate)
	assert.Equal(t, "0403", cfg.Serial.VendorID)
	assert.Equal(t, []string{"6001", "6015"}, cfg.Serial.ProductIDs)
	assert.Equal(t, uint16(1), cfg.SACN.Universe)
	assert.False(t, cfg.PLC.Enabled)
}

func TestLoadOverridesFromFile(t *testing.T) {
	path := writeConfig(t, `
sacn:
  filter: code900
  keepalive_interval: 1s
plc:
  enabled: true
  address: 10.0.0.5:2000
show:
  lockable_addresses: [501, 502]
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "code900", cfg.SACN.Filter)
	assert.Equal(t, time.Second, cfg.SACN.KeepAliveInterval)
	assert.True(t, cfg.PLC.Enabled)
	assert.Equal(t, "10.0.0.5:2000", cfg.PLC.Address)
	assert.Equal(t, []int{501, 502}, cfg.Show.LockableAddresses)
}

func TestLoadRejectsUnknownFilter(t *testing.T) {
	path := writeConfig(t, "sacn:\n  filter: some\n")

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidateRejectsTickCoarserThanWindow(t *testing.T) {
	cfg := Default()
	cfg.Show.TickInterval = 100 * time.Millisecond
	cfg.Show.DispatchWindow = 25 * time.Millisecond
	assert.Error(t, cfg.Validate())

	cfg.Show.TickInterval = 50 * time.Millisecond
	assert.NoError(t, cfg.Validate())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.True(t, cfg.Show.RGBWEnabled)
}

func TestLoadShippedConfig(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "configs", "config.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, []int{504, 505, 506}, cfg.Show.LockableAddresses)
	assert.Equal(t, []string{"6001", "6015"}, cfg.Serial.ProductIDs)
	assert.False(t, cfg.PLC.Enabled)
}
