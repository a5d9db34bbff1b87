package diag

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"lautenbacher.net/ppmswitch/config"
)

func TestOpen_NothingEnabled(t *testing.T) {
	sinks, err := Open(config.Default().Diagnostics)
	require.NoError(t, err)
	assert.Empty(t, sinks)
	assert.NoError(t, CloseAll(sinks))
}

func TestOpen_SerialPortMissing(t *testing.T) {
	cfg := config.Default().Diagnostics
	cfg.Serial.Enabled = true
	cfg.Serial.Port = filepath.Join(t.TempDir(), "ttyUSB9")

	sinks, err := Open(cfg)
	assert.ErrorContains(t, err, "can't open serial port")
	assert.Nil(t, sinks)
}
