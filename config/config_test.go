//go:build linux

package config

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cdoenges/misclib/server"
)

const sample = `
wait_timeout = "100ms"
client_policy = "single"
accept_errors = "skip-transient"
backlog = 16
metrics_addr = "127.0.0.1:9100"
log_level = "debug"
log_format = "json"

[[port]]
port = 9000
app = "upper"

[[port]]
port = 9001
app = "upper"

[[port]]
port = 9999
app = "stop"
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "misclib.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, sample))
	require.NoError(t, err)

	assert.Equal(t, 100*time.Millisecond, cfg.WaitTimeout)
	assert.Equal(t, "127.0.0.1:9100", cfg.MetricsAddr)
	assert.Equal(t, []Port{{9000, AppUpper}, {9001, AppUpper}, {9999, AppStop}}, cfg.Ports)

	level, err := cfg.Level()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)

	opts, err := cfg.Options()
	require.NoError(t, err)
	assert.Equal(t, server.ClientPolicySingle, opts.ClientPolicy)
	assert.Equal(t, server.AcceptErrorSkipTransient, opts.AcceptErrors)
	assert.Equal(t, 16, opts.Backlog)
	assert.False(t, opts.ExitOnIdle)

	confs, err := cfg.PortConfigurations(slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	require.Len(t, confs, 3)
	assert.Equal(t, uint16(9999), confs[2].Port)
	_, err = server.NewRegistry(confs...)
	assert.NoError(t, err)
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "[[port]]\nport = 7\napp = \"echo\"\n"))
	require.NoError(t, err)
	assert.Equal(t, server.DefaultWaitTimeout, cfg.WaitTimeout)
	assert.Equal(t, "multi", cfg.ClientPolicy)
	assert.Equal(t, "text", cfg.LogFormat)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	_, err := Load(writeConfig(t, "wait = \"1s\"\n"))
	assert.ErrorContains(t, err, "unknown keys: wait")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		toml string
	}{
		{"bad policy", `client_policy = "many"`},
		{"bad accept errors", `accept_errors = "ignore"`},
		{"bad level", `log_level = "loud"`},
		{"bad format", `log_format = "xml"`},
		{"negative backlog", `backlog = -1`},
		{"bad app", "[[port]]\nport = 1\napp = \"http\""},
		{"duplicate port", "[[port]]\nport = 1\napp = \"echo\"\n[[port]]\nport = 1\napp = \"upper\""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.toml)
			assert.Error(t, err)
		})
	}
}

func TestParsePortFlag(t *testing.T) {
	p, err := ParsePortFlag("9000:upper")
	require.NoError(t, err)
	assert.Equal(t, Port{Port: 9000, App: AppUpper}, p)

	for _, bad := range []string{"9000", "x:echo", "70000:echo", "9000:http"} {
		_, err := ParsePortFlag(bad)
		assert.Error(t, err, bad)
	}
}
