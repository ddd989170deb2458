package main

import (
	"fmt"
	"os"

	clay "github.com/go-go-golems/clay/pkg"
	"github.com/go-go-golems/glazed/pkg/cmds/logging"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func main() {
	root, err := newRootCommand(&app{})
	cobra.CheckErr(err)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCommand(a *app) (*cobra.Command, error) {
	root := &cobra.Command{
		Use:           "livechat",
		Short:         "Chat with buyers and vendors about a vehicle listing",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// reinitialize the logger now that --log-level and co are parsed
			if err := logging.InitLoggerFromCobra(cmd); err != nil {
				return err
			}
			return a.init(cmd)
		},
	}
	if err := clay.InitGlazed("livechat", root); err != nil {
		return nil, errors.Wrap(err, "init glazed")
	}

	pf := root.PersistentFlags()
	if pf.Lookup("config") == nil {
		pf.String("config", defaultConfigPath(), "Path to the YAML config file")
	}
	if pf.Lookup("log-level") == nil {
		pf.String("log-level", "info", "Log level (trace, debug, info, warn, error)")
	}
	pf.String("api-url", "", "REST API base URL")
	pf.String("ws-url", "", "Live channel URL")
	pf.String("token", "", "Bearer token")
	pf.String("user-id", "", "Override the user id carried by the token")
	pf.String("cache", "", "SQLite cache file (an explicit empty value disables caching)")

	tail, err := newTailCobraCommand(a)
	if err != nil {
		return nil, err
	}
	root.AddCommand(newChatCommand(a), newHistoryCommand(a), newConversationsCommand(a), tail)
	return root, nil
}

// applyFlags copies explicitly set persistent flags over cfg. Flags left
// alone keep the value from the config file or the environment.
func applyFlags(cmd *cobra.Command, cfg *Config) error {
	fs := cmd.Flags()
	bind := map[string]*string{
		"log-level": &cfg.LogLevel,
		"api-url":   &cfg.APIURL,
		"ws-url":    &cfg.WSURL,
		"token":     &cfg.Token,
		"user-id":   &cfg.UserID,
		"cache":     &cfg.CachePath,
	}
	for name, dst := range bind {
		if !fs.Changed(name) {
			continue
		}
		v, err := fs.GetString(name)
		if err != nil {
			return errors.Wrapf(err, "flag --%s", name)
		}
		*dst = v
	}
	return nil
}
