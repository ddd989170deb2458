package redisstream

import (
	"github.com/go-go-golems/glazed/pkg/cmds/fields"
	"github.com/go-go-golems/glazed/pkg/cmds/schema"
)

// Settings holds Redis Streams transport configuration for Watermill.
// When Enabled is false an in-memory gochannel is used instead.
type Settings struct {
	Enabled  bool   `yaml:"enabled" env:"ENABLED" glazed:"redis-enabled" glazed.help:"Enable Redis Streams fan-out of timeline messages"`
	Addr     string `yaml:"addr" env:"ADDR" glazed:"redis-addr" glazed.help:"Redis address host:port"`
	Group    string `yaml:"group" env:"GROUP" glazed:"redis-group" glazed.help:"Redis consumer group"`
	Consumer string `yaml:"consumer" env:"CONSUMER" glazed:"redis-consumer" glazed.help:"Redis consumer name"`
}

// DefaultSettings mirrors the defaults of the chat UI deployment.
func DefaultSettings() Settings {
	return Settings{
		Enabled:  false,
		Addr:     "localhost:6379",
		Group:    "chat-ui",
		Consumer: "ui-1",
	}
}

// NewParameterLayer returns a section definition for Redis Streams settings.
// The fields carry no defaults: flags that are not given leave the values
// loaded from the config file untouched.
func NewParameterLayer() (schema.Section, error) {
	return schema.NewSection(
		"redis",
		"Redis configuration for Watermill Redis Streams",
		schema.WithFields(
			fields.New("redis-enabled", fields.TypeBool, fields.WithHelp("Enable Redis Streams fan-out of timeline messages")),
			fields.New("redis-addr", fields.TypeString, fields.WithHelp("Redis address host:port (default localhost:6379)")),
			fields.New("redis-group", fields.TypeString, fields.WithHelp("Redis consumer group (default chat-ui)")),
			fields.New("redis-consumer", fields.TypeString, fields.WithHelp("Redis consumer name (default ui-1)")),
		),
	)
}

// Override applies the non-empty fields of o on top of s. Enabled can only
// be switched on.
func (s Settings) Override(o Settings) Settings {
	if o.Enabled {
		s.Enabled = true
	}
	if o.Addr != "" {
		s.Addr = o.Addr
	}
	if o.Group != "" {
		s.Group = o.Group
	}
	if o.Consumer != "" {
		s.Consumer = o.Consumer
	}
	return s
}
