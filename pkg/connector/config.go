// Copyright 2024-2026 Aiku AI

package connector

import (
	_ "embed"
	"errors"
	"fmt"
	"net/url"
	"os"

	"github.com/bwmarrin/discordgo"
	"go.mau.fi/zeroconfig"
	up "go.mau.fi/util/configupgrade"
	"gopkg.in/yaml.v3"
	"maunium.net/go/mautrix/id"
)

//go:embed example-config.yaml
var ExampleConfig string

// Config holds the bridge configuration.
type Config struct {
	Discord    DiscordConfig    `yaml:"discord"`
	Homeserver HomeserverConfig `yaml:"homeserver"`
	Bridge     BridgeConfig     `yaml:"bridge"`

	Logging zeroconfig.Config `yaml:"logging"`

	channelTypes map[discordgo.ChannelType]struct{} `yaml:"-"`
	invites      []id.UserID                        `yaml:"-"`
}

type DiscordConfig struct {
	Token         string   `yaml:"token"`
	ChannelTypes  []string `yaml:"channel_types"`
	SyncOnConnect bool     `yaml:"sync_on_connect"`
}

type HomeserverConfig struct {
	Address     string `yaml:"address"`
	Domain      string `yaml:"domain"`
	AccessToken string `yaml:"access_token"`
}

type BridgeConfig struct {
	Invites  []string `yaml:"invites"`
	LinkRoom string   `yaml:"link_room"`
	// AdminAPIAddr is the listen address for the admin HTTP API. Empty
	// disables the API.
	AdminAPIAddr string `yaml:"admin_api_addr"`
}

// channelTypeNames maps config names to Discord channel types.
var channelTypeNames = map[string]discordgo.ChannelType{
	"text":  discordgo.ChannelTypeGuildText,
	"news":  discordgo.ChannelTypeGuildNews,
	"forum": discordgo.ChannelTypeGuildForum,
	"voice": discordgo.ChannelTypeGuildVoice,
	"stage": discordgo.ChannelTypeGuildStageVoice,
	"media": discordgo.ChannelTypeGuildMedia,
}

func (c *Config) UnmarshalYAML(node *yaml.Node) error {
	type rawConfig Config
	return node.Decode((*rawConfig)(c))
}

// Validate checks that every required value is present and precomputes the
// channel type filter and invite list. A validation error is fatal at startup.
func (c *Config) Validate() error {
	var errs []error
	if c.Discord.Token == "" {
		errs = append(errs, errors.New("discord.token is required"))
	}
	if c.Homeserver.Address == "" {
		errs = append(errs, errors.New("homeserver.address is required"))
	} else if u, err := url.Parse(c.Homeserver.Address); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("homeserver.address %q is not a valid URL", c.Homeserver.Address))
	}
	if c.Homeserver.Domain == "" {
		errs = append(errs, errors.New("homeserver.domain is required"))
	}
	if c.Homeserver.AccessToken == "" {
		errs = append(errs, errors.New("homeserver.access_token is required"))
	}

	c.invites = c.invites[:0]
	if len(c.Bridge.Invites) == 0 {
		errs = append(errs, errors.New("bridge.invites must list at least one user"))
	}
	for _, raw := range c.Bridge.Invites {
		userID := id.UserID(raw)
		if _, _, err := userID.Parse(); err != nil {
			errs = append(errs, fmt.Errorf("bridge.invites: invalid user ID %q: %w", raw, err))
			continue
		}
		c.invites = append(c.invites, userID)
	}

	c.channelTypes = make(map[discordgo.ChannelType]struct{}, len(c.Discord.ChannelTypes))
	for _, name := range c.Discord.ChannelTypes {
		chType, ok := channelTypeNames[name]
		if !ok {
			errs = append(errs, fmt.Errorf("discord.channel_types: unknown channel type %q", name))
			continue
		}
		c.channelTypes[chType] = struct{}{}
	}
	if len(c.Discord.ChannelTypes) == 0 {
		c.channelTypes[discordgo.ChannelTypeGuildText] = struct{}{}
	}

	return errors.Join(errs...)
}

// Invites returns the validated invite list.
func (c *Config) Invites() []id.UserID {
	return c.invites
}

// IsBridgeableType reports whether rooms are created for channels of the
// given type. Only meaningful after Validate.
func (c *Config) IsBridgeableType(chType discordgo.ChannelType) bool {
	_, ok := c.channelTypes[chType]
	return ok
}

func upgradeConfig(helper up.Helper) {
	helper.Copy(up.Str, "discord", "token")
	helper.Copy(up.List, "discord", "channel_types")
	helper.Copy(up.Bool, "discord", "sync_on_connect")
	helper.Copy(up.Str, "homeserver", "address")
	helper.Copy(up.Str, "homeserver", "domain")
	helper.Copy(up.Str, "homeserver", "access_token")
	helper.Copy(up.List, "bridge", "invites")
	helper.Copy(up.Str, "bridge", "link_room")
	helper.Copy(up.Str, "bridge", "admin_api_addr")
	helper.Copy(up.Map, "logging")
}

// Upgrader returns the config upgrader that merges a user config onto the
// embedded example config.
func Upgrader() up.BaseUpgrader {
	return &up.StructUpgrader{
		SimpleUpgrader: up.SimpleUpgrader(upgradeConfig),
		Blocks: [][]string{
			{"homeserver"},
			{"bridge"},
			{"logging"},
		},
		Base: ExampleConfig,
	}
}

// LoadConfig reads the config at path, fills in keys missing from it with
// the example defaults, and validates the result. When save is true the
// upgraded file is written back.
func LoadConfig(path string, save bool) (*Config, error) {
	data, _, err := up.Do(path, save, Upgrader())
	if err != nil {
		return nil, fmt.Errorf("failed to upgrade config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// WriteExampleConfig writes the embedded example config to path.
func WriteExampleConfig(path string) error {
	return os.WriteFile(path, []byte(ExampleConfig), 0o600)
}
