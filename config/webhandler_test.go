package config

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"lautenbacher.net/ppmswitch/ppm"
)

func postRuntime(t *testing.T, cfile string, rc RuntimeConfig) *httptest.ResponseRecorder {
	body, err := json.Marshal(rc)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/config", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	ConfigHandler(cfile).ServeHTTP(rr, req)
	return rr
}

func TestConfigHandler_Get(t *testing.T) {
	configFile := createConfigFile(t, getBaseConfig())

	req := httptest.NewRequest(http.MethodGet, "/api/config", nil)
	rr := httptest.NewRecorder()
	ConfigHandler(configFile).ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	var rc RuntimeConfig
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&rc))
	assert.Equal(t, 10, rc.Switch.CalibrationSamples)
	assert.Equal(t, ppm.Half, rc.Switch.DeflectionFraction)
	assert.Equal(t, 500*time.Millisecond, rc.Switch.SettleDelay)
}

func TestConfigHandler_Set(t *testing.T) {
	configFile := createConfigFile(t, getBaseConfig())
	conf, err := ReadConfig(configFile)
	require.NoError(t, err)

	rc := conf.Runtime()
	rc.Switch.CalibrationSamples = 7
	rc.Switch.DeflectionFraction = ppm.FortyPercent
	rr := postRuntime(t, configFile, rc)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	updated, err := ReadConfig(configFile)
	require.NoError(t, err)
	assert.Equal(t, 7, updated.Switch.CalibrationSamples)
	assert.Equal(t, ppm.FortyPercent, updated.Switch.DeflectionFraction)
	assert.Equal(t, 500*time.Millisecond, updated.Switch.SettleDelay)
	assert.Equal(t, conf.Hardware, updated.Hardware, "hardware settings must survive")
	assert.Equal(t, conf.Logging, updated.Logging)
}

func TestConfigHandler_SetValidation(t *testing.T) {
	configFile := createConfigFile(t, getBaseConfig())
	before, err := os.ReadFile(configFile)
	require.NoError(t, err)
	conf, err := ReadConfig(configFile)
	require.NoError(t, err)

	tests := []struct {
		name   string
		modify func(rc *RuntimeConfig)
	}{
		{"zero samples", func(rc *RuntimeConfig) { rc.Switch.CalibrationSamples = 0 }},
		{"fraction above one", func(rc *RuntimeConfig) { rc.Switch.DeflectionFraction = ppm.Fraction{Numerator: 3, Denominator: 2} }},
		{"unknown sampler", func(rc *RuntimeConfig) { rc.Switch.Sampler = "sonar" }},
		{"mqtt without broker", func(rc *RuntimeConfig) {
			rc.Diagnostics.MQTT.Enabled = true
			rc.Diagnostics.MQTT.Broker = ""
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rc := conf.Runtime()
			tt.modify(&rc)
			rr := postRuntime(t, configFile, rc)
			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assert.Contains(t, rr.Body.String(), "Invalid configuration")

			after, err := os.ReadFile(configFile)
			require.NoError(t, err)
			assert.Equal(t, before, after, "rejected config must not be written")
		})
	}
}

func TestConfigHandler_BadRequests(t *testing.T) {
	configFile := createConfigFile(t, getBaseConfig())
	handler := ConfigHandler(configFile)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/config", bytes.NewBufferString("{not json")))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/api/config", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)

	rr = httptest.NewRecorder()
	ConfigHandler(configFile+".missing").ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/config", nil))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}
