package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(body), 0644))
	return dir
}

func TestLoad_WithValidConfigFile(t *testing.T) {
	t.Cleanup(viper.Reset)

	dir := writeConfig(t, `{
		"logLevel": "debug",
		"api": { "serverUrl": "https://map.example.com", "sessionToken": "tok" },
		"storage": { "postgres": { "host": "10.0.0.1", "port": "5433" } }
	}`)

	err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "debug", viper.GetString("logLevel"))
	assert.Equal(t, "https://map.example.com", viper.GetString("api.serverUrl"))
	assert.Equal(t, "tok", viper.GetString("api.sessionToken"))
	assert.Equal(t, "10.0.0.1", viper.GetString("storage.postgres.host"))
	assert.Equal(t, "5433", viper.GetString("storage.postgres.port"))
}

func TestLoad_DefaultValues(t *testing.T) {
	t.Cleanup(viper.Reset)

	require.NoError(t, Load(writeConfig(t, `{}`)))

	assert.Equal(t, "info", viper.GetString("logLevel"))
	assert.Equal(t, "./tenchilogs", viper.GetString("logsDir"))
	assert.Equal(t, "http://localhost:8080", viper.GetString("api.serverUrl"))
	assert.Equal(t, "", viper.GetString("api.sessionToken"))
	assert.Equal(t, 13, viper.GetInt("map.zoom"))
	assert.Equal(t, "memory", viper.GetString("storage.type"))
	assert.Equal(t, "./history", viper.GetString("storage.memory.outputDir"))
	assert.Equal(t, true, viper.GetBool("storage.memory.compressOutput"))
	assert.Equal(t, "localhost", viper.GetString("storage.postgres.host"))
	assert.Equal(t, "5432", viper.GetString("storage.postgres.port"))
	assert.Equal(t, false, viper.GetBool("influx.enabled"))
	assert.Equal(t, false, viper.GetBool("graylog.enabled"))
	assert.Equal(t, "localhost:12201", viper.GetString("graylog.address"))
	assert.Equal(t, false, viper.GetBool("otel.enabled"))
	assert.Equal(t, "tenchi-map", viper.GetString("otel.serviceName"))
	assert.Equal(t, "1m", viper.GetString("watch.interval"))
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	t.Cleanup(viper.Reset)

	require.NoError(t, Load("/nonexistent/path"))
	assert.Equal(t, "info", viper.GetString("logLevel"))
}

func TestLoad_InvalidJSON(t *testing.T) {
	t.Cleanup(viper.Reset)

	err := Load(writeConfig(t, `{ not json`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error reading config file")
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Cleanup(viper.Reset)
	t.Setenv("TENCHI_API_SERVERURL", "https://env.example.com")
	t.Setenv("TENCHI_STORAGE_TYPE", "sqlite")

	require.NoError(t, Load(writeConfig(t, `{}`)))

	s, err := Get()
	require.NoError(t, err)
	assert.Equal(t, "https://env.example.com", s.API.ServerURL)
	assert.Equal(t, "sqlite", s.Storage.Type)
}

func TestGet_Defaults(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{}`)))

	s, err := Get()
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, s.API.Timeout)
	assert.Equal(t, 5*time.Second, s.Storage.FlushInterval)
	assert.Equal(t, time.Minute, s.Storage.SQLite.DumpInterval)
	assert.Equal(t, 5*time.Second, s.OTel.BatchTimeout)
	assert.Equal(t, time.Minute, s.Watch.Interval)
	assert.InDelta(t, 35.681236, s.Map.CenterLatitude, 1e-9)
	assert.False(t, s.Viewer.Known)
}

func TestGet_Override(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{
		"viewer": { "latitude": 35.1, "longitude": 139.2, "known": true },
		"storage": {
			"type": "postgres",
			"memory": { "outputDir": "/tmp/out", "compressOutput": false },
			"sqlite": { "dumpInterval": "10m" }
		},
		"watch": { "interval": "30s" }
	}`)))

	s, err := Get()
	require.NoError(t, err)

	assert.True(t, s.Viewer.Known)
	assert.InDelta(t, 139.2, s.Viewer.Longitude, 1e-9)
	assert.Equal(t, "postgres", s.Storage.Type)
	assert.Equal(t, "/tmp/out", s.Storage.Memory.OutputDir)
	assert.False(t, s.Storage.Memory.CompressOutput)
	assert.Equal(t, 10*time.Minute, s.Storage.SQLite.DumpInterval)
	assert.Equal(t, 30*time.Second, s.Watch.Interval)
}

func TestGet_Validation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bad storage type", `{"storage": {"type": "mongo"}}`},
		{"bad log level", `{"logLevel": "verbose"}`},
		{"bad server url", `{"api": {"serverUrl": "not a url"}}`},
		{"latitude out of range", `{"viewer": {"latitude": 91}}`},
		{"zoom out of range", `{"map": {"zoom": 25}}`},
		{"watch too short", `{"watch": {"interval": "10ms"}}`},
		{"graylog without address", `{"graylog": {"enabled": true, "address": ""}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Cleanup(viper.Reset)
			require.NoError(t, Load(writeConfig(t, tt.body)))

			_, err := Get()
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid config")
		})
	}
}

func TestGetString(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("testKey", "testValue")
	assert.Equal(t, "testValue", GetString("testKey"))
}

func TestGetInt(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("testInt", 42)
	assert.Equal(t, 42, GetInt("testInt"))
}

func TestGetBool(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("testBool", true)
	assert.Equal(t, true, GetBool("testBool"))
}
