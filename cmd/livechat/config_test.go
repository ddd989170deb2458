package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"), false)
	require.NoError(t, err)
	require.Equal(t, "http://localhost:8080/api/v1", cfg.APIURL)
	require.Equal(t, "ws://localhost:8080/api/v1/ws", cfg.WSURL)
	require.Equal(t, time.Second, cfg.BackoffInitial)
	require.Equal(t, 30*time.Second, cfg.BackoffMax)
	require.False(t, cfg.Redis.Enabled)
	require.NoError(t, cfg.Validate())
}

func TestLoadConfig_MissingExplicitFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"), true)
	require.Error(t, err)
}

func TestLoadConfig_YAMLThenEnv(t *testing.T) {
	path := writeConfig(t, `
api_url: https://rent.example.com/api/v1
token: from-file
page_size: 20
backoff_initial: 2s
backoff_max: 1m
redis:
  enabled: true
  addr: redis:6379
`)
	t.Setenv("LIVECHAT_TOKEN", "from-env")
	t.Setenv("LIVECHAT_REDIS_GROUP", "ops")

	cfg, err := LoadConfig(path, true)
	require.NoError(t, err)
	require.Equal(t, "https://rent.example.com/api/v1", cfg.APIURL)
	require.Equal(t, "ws://localhost:8080/api/v1/ws", cfg.WSURL)
	require.Equal(t, "from-env", cfg.Token)
	require.Equal(t, 20, cfg.PageSize)
	require.Equal(t, 2*time.Second, cfg.BackoffInitial)
	require.Equal(t, time.Minute, cfg.BackoffMax)
	require.True(t, cfg.Redis.Enabled)
	require.Equal(t, "redis:6379", cfg.Redis.Addr)
	require.Equal(t, "ops", cfg.Redis.Group)
	require.Equal(t, "ui-1", cfg.Redis.Consumer)
}

func TestLoadConfig_BadYAML(t *testing.T) {
	path := writeConfig(t, "page_size: [1, 2\n")
	_, err := LoadConfig(path, true)
	require.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PageSize = 0
	require.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.BackoffMax = cfg.BackoffInitial / 2
	require.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.WSURL = ""
	require.Error(t, cfg.Validate())
}

func TestRootCommand_FlagsOverrideConfig(t *testing.T) {
	path := writeConfig(t, "api_url: http://file.example/api/v1\nws_url: ws://file.example/ws\nlog_level: debug\n")
	t.Setenv("LIVECHAT_API_URL", "http://env.example/api/v1")
	t.Setenv("LIVECHAT_WS_URL", "ws://env.example/ws")

	a := &app{}
	root, err := newRootCommand(a)
	require.NoError(t, err)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"--config", path, "--api-url", "http://flag.example/api/v1", "--cache", "", "conversations"})
	require.NoError(t, root.Execute())

	require.Equal(t, "http://flag.example/api/v1", a.cfg.APIURL)
	require.Equal(t, "ws://env.example/ws", a.cfg.WSURL)
	require.Equal(t, "debug", a.cfg.LogLevel)
	require.Empty(t, a.cfg.CachePath)
	require.Contains(t, out.String(), "no cached conversations")
}

func TestRootCommand_RejectsBadLogLevel(t *testing.T) {
	root, err := newRootCommand(&app{})
	require.NoError(t, err)
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"--config", writeConfig(t, "page_size: 10\n"), "--log-level", "loud", "--cache", "", "conversations"})
	require.Error(t, root.Execute())
}

func TestRootCommand_TailCarriesRedisSection(t *testing.T) {
	root, err := newRootCommand(&app{})
	require.NoError(t, err)
	tail, _, err := root.Find([]string{"tail"})
	require.NoError(t, err)
	require.Equal(t, "tail", tail.Name())
	for _, name := range []string{"redis-enabled", "redis-addr", "redis-group", "redis-consumer"} {
		require.NotNil(t, tail.Flags().Lookup(name), name)
	}
}
