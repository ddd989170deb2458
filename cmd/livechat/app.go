package main

import (
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/livechat/pkg/chat/auth"
	"github.com/go-go-golems/livechat/pkg/chat/channel"
	"github.com/go-go-golems/livechat/pkg/chat/history"
	"github.com/go-go-golems/livechat/pkg/persistence/chatstore"
)

// app holds the resolved configuration shared by all subcommands.
type app struct {
	cfg Config
	out io.Writer
}

func (a *app) init(cmd *cobra.Command) error {
	fs := cmd.Flags()
	path, _ := fs.GetString("config")
	explicit := fs.Changed("config")
	if path == "" && !explicit {
		path = defaultConfigPath()
	}
	cfg, err := LoadConfig(path, explicit)
	if err != nil {
		return err
	}
	if err := applyFlags(cmd, &cfg); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	// the config file may carry a level when --log-level is not given
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil && cfg.LogLevel != "" {
		zerolog.SetGlobalLevel(lvl)
	}

	a.cfg = cfg
	a.out = cmd.OutOrStdout()
	return nil
}

func (a *app) stdout() io.Writer {
	if a.out == nil {
		return os.Stdout
	}
	return a.out
}

func (a *app) credential() (auth.Credential, error) {
	cred, err := auth.NewCredential(a.cfg.Token)
	if err != nil {
		return auth.Credential{}, errors.Wrap(err, "token (set --token or LIVECHAT_TOKEN)")
	}
	if a.cfg.UserID != "" {
		cred = cred.WithUserID(a.cfg.UserID)
	}
	return cred, nil
}

// openStore opens the SQLite cache, or an in-memory store when caching is off.
func (a *app) openStore() (chatstore.MessageStore, error) {
	if a.cfg.CachePath == "" {
		return chatstore.NewInMemoryStore(), nil
	}
	if err := os.MkdirAll(filepath.Dir(a.cfg.CachePath), 0o755); err != nil {
		return nil, errors.Wrap(err, "create cache dir")
	}
	dsn, err := chatstore.SQLiteDSNForFile(a.cfg.CachePath)
	if err != nil {
		return nil, err
	}
	return chatstore.NewSQLiteStore(dsn)
}

// remoteLoader reads from the API and writes every page into store.
func (a *app) remoteLoader(cred auth.Credential, store chatstore.MessageStore, pageSize int) *history.CachingLoader {
	l := history.NewHTTPLoader(a.cfg.APIURL, cred)
	l.PageSize = pageSize
	return &history.CachingLoader{Loader: l, Store: store}
}

func (a *app) dialer() *channel.WebSocketDialer {
	d := channel.NewWebSocketDialer(a.cfg.WSURL)
	if a.cfg.PingInterval > 0 {
		d.PingInterval = a.cfg.PingInterval
	}
	return d
}

func (a *app) directory(cred auth.Credential, store chatstore.MessageStore) *history.CachingDirectory {
	return &history.CachingDirectory{Directory: history.NewHTTPDirectory(a.cfg.APIURL, cred), Store: store}
}
