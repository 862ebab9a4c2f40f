// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package connector

import (
	"fmt"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
)

// guildSource lists the guilds currently known to the Discord connection.
type guildSource interface {
	Guilds() []*discordgo.Guild
}

// DiscordClient owns the discordgo gateway session. Channel events are
// delivered to the DiscordHandler registered on it.
type DiscordClient struct {
	session *discordgo.Session

	stopOnce sync.Once
	log      zerolog.Logger
}

var _ guildSource = (*DiscordClient)(nil)

// NewDiscordClient creates a gateway session for a bot token and registers
// handler on it. The session is not opened until Connect.
func NewDiscordClient(token string, handler *DiscordHandler, log zerolog.Logger) (*DiscordClient, error) {
	if !strings.HasPrefix(token, "Bot ") {
		token = "Bot " + token
	}
	session, err := discordgo.New(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds
	session.StateEnabled = true

	dc := &DiscordClient{
		session: session,
		log:     log.With().Str("component", "discord_client").Logger(),
	}
	handler.Register(session)
	session.AddHandler(dc.onReady)
	return dc, nil
}

// Connect opens the gateway connection.
func (d *DiscordClient) Connect() error {
	d.log.Info().Msg("Connecting to Discord")
	if err := d.session.Open(); err != nil {
		return fmt.Errorf("failed to open discord gateway: %w", err)
	}
	return nil
}

// Disconnect closes the gateway connection. No handler is invoked after it
// returns, apart from those already running.
func (d *DiscordClient) Disconnect() {
	d.stopOnce.Do(func() {
		if err := d.session.Close(); err != nil {
			d.log.Warn().Err(err).Msg("Error closing Discord session")
		}
	})
}

// Guilds returns a copy of the guilds and channels in the session state
// cache. The state is updated in place by the gateway, so callers must not
// hold on to the cached pointers.
func (d *DiscordClient) Guilds() []*discordgo.Guild {
	state := d.session.State
	state.RLock()
	defer state.RUnlock()
	guilds := make([]*discordgo.Guild, 0, len(state.Guilds))
	for _, g := range state.Guilds {
		guild := &discordgo.Guild{
			ID:          g.ID,
			Name:        g.Name,
			Unavailable: g.Unavailable,
			Channels:    make([]*discordgo.Channel, 0, len(g.Channels)),
		}
		for _, ch := range g.Channels {
			chCopy := *ch
			guild.Channels = append(guild.Channels, &chCopy)
		}
		guilds = append(guilds, guild)
	}
	return guilds
}

func (d *DiscordClient) onReady(_ *discordgo.Session, evt *discordgo.Ready) {
	evtLog := d.log.Info().Int("guilds", len(evt.Guilds))
	if evt.User != nil {
		evtLog = evtLog.Str("username", evt.User.Username).Str("user_id", evt.User.ID)
	}
	evtLog.Msg("Connected to Discord")
}
