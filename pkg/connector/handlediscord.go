// Copyright 2024-2026 Aiku AI

package connector

import (
	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
)

// DiscordHandler turns discordgo channel callbacks into ChannelEvents. The
// callbacks run on discordgo's own goroutines, concurrently; the handler
// only snapshots and enqueues, provisioning happens in the Worker.
type DiscordHandler struct {
	sender        eventSender
	isBridgeable  func(discordgo.ChannelType) bool
	syncOnConnect bool
	log           zerolog.Logger
}

// NewDiscordHandler creates a handler that enqueues into sender. Created
// events are restricted to the channel types accepted by cfg.
func NewDiscordHandler(sender eventSender, cfg *Config, log zerolog.Logger) *DiscordHandler {
	return &DiscordHandler{
		sender:        sender,
		isBridgeable:  cfg.IsBridgeableType,
		syncOnConnect: cfg.Discord.SyncOnConnect,
		log:           log.With().Str("component", "discord").Logger(),
	}
}

// Register adds the channel callbacks to a discordgo session.
func (h *DiscordHandler) Register(session *discordgo.Session) {
	session.AddHandler(h.OnChannelCreate)
	session.AddHandler(h.OnChannelUpdate)
	session.AddHandler(h.OnChannelDelete)
	session.AddHandler(h.OnGuildCreate)
}

// isGuildChannel reports whether ch lives in a guild. DMs and group DMs
// carry no guild ID and can never be bridged.
func isGuildChannel(ch *discordgo.Channel) bool {
	if ch == nil || ch.GuildID == "" {
		return false
	}
	return ch.Type != discordgo.ChannelTypeDM && ch.Type != discordgo.ChannelTypeGroupDM
}

// hasBridgeableIDs reports whether both IDs of s are snowflakes. Anything
// else could map two channels onto one alias.
func (h *DiscordHandler) hasBridgeableIDs(s ChannelSnapshot) bool {
	if IsSnowflake(s.ID) && IsSnowflake(s.ServerID) {
		return true
	}
	h.log.Debug().
		Str("channel_id", s.ID).
		Str("server_id", s.ServerID).
		Msg("Ignoring channel with malformed ID")
	return false
}

// OnChannelCreate queues a Created event for new guild channels of a
// bridged type.
func (h *DiscordHandler) OnChannelCreate(_ *discordgo.Session, evt *discordgo.ChannelCreate) {
	if evt == nil || !isGuildChannel(evt.Channel) {
		return
	}
	if !h.isBridgeable(evt.Type) {
		h.log.Debug().
			Str("channel_id", evt.ID).
			Int("channel_type", int(evt.Type)).
			Msg("Ignoring created channel of unbridged type")
		return
	}
	snapshot := snapshotChannel(evt.Channel, "")
	if !h.hasBridgeableIDs(snapshot) {
		return
	}
	h.log.Info().
		Str("channel_name", snapshot.Name).
		Str("channel_id", snapshot.ID).
		Str("server_id", snapshot.ServerID).
		Msg("Channel created")
	h.enqueue(ChannelCreated{Channel: snapshot})
}

// OnChannelUpdate drops updates discordgo could not pair with a cached
// previous state, and updates involving non-guild channels. Both are
// expected noise, not errors.
func (h *DiscordHandler) OnChannelUpdate(_ *discordgo.Session, evt *discordgo.ChannelUpdate) {
	if evt == nil || evt.BeforeUpdate == nil {
		return
	}
	if !isGuildChannel(evt.BeforeUpdate) || !isGuildChannel(evt.Channel) {
		return
	}
	updated, err := NewChannelUpdated(snapshotChannel(evt.BeforeUpdate, ""), snapshotChannel(evt.Channel, ""))
	if err != nil {
		h.log.Debug().Err(err).Msg("Ignoring inconsistent channel update")
		return
	}
	if !h.hasBridgeableIDs(updated.After) {
		return
	}
	h.log.Info().
		Str("channel_id", updated.After.ID).
		Str("server_id", updated.After.ServerID).
		Str("old_name", updated.Before.Name).
		Str("new_name", updated.After.Name).
		Msg("Channel updated")
	h.enqueue(updated)
}

// OnChannelDelete queues a Deleted event for any removed guild channel,
// whatever its type.
func (h *DiscordHandler) OnChannelDelete(_ *discordgo.Session, evt *discordgo.ChannelDelete) {
	if evt == nil || !isGuildChannel(evt.Channel) {
		return
	}
	snapshot := snapshotChannel(evt.Channel, "")
	if !h.hasBridgeableIDs(snapshot) {
		return
	}
	h.log.Info().
		Str("channel_name", snapshot.Name).
		Str("channel_id", snapshot.ID).
		Str("server_id", snapshot.ServerID).
		Msg("Channel deleted")
	h.enqueue(ChannelDeleted{Channel: snapshot})
}

// OnGuildCreate replays the channels of a guild as Created events when the
// gateway delivers it, so channels that appeared while the bridge was down
// still get a room.
func (h *DiscordHandler) OnGuildCreate(_ *discordgo.Session, evt *discordgo.GuildCreate) {
	if !h.syncOnConnect || evt == nil || evt.Guild == nil {
		return
	}
	h.syncGuild(evt.Guild)
}

// SyncGuilds replays the channels of every given guild and returns the
// number of events queued.
func (h *DiscordHandler) SyncGuilds(guilds []*discordgo.Guild) int {
	total := 0
	for _, guild := range guilds {
		total += h.syncGuild(guild)
	}
	return total
}

func (h *DiscordHandler) syncGuild(guild *discordgo.Guild) int {
	if guild == nil || guild.Unavailable {
		return 0
	}
	queued := 0
	for _, ch := range guild.Channels {
		if ch == nil || ch.Type == discordgo.ChannelTypeDM || ch.Type == discordgo.ChannelTypeGroupDM {
			continue
		}
		if !h.isBridgeable(ch.Type) {
			continue
		}
		snapshot := snapshotChannel(ch, guild.ID)
		if !h.hasBridgeableIDs(snapshot) {
			continue
		}
		if h.enqueue(ChannelCreated{Channel: snapshot}) {
			queued++
		}
	}
	h.log.Info().
		Str("server_id", guild.ID).
		Str("server_name", guild.Name).
		Int("queued", queued).
		Msg("Synced guild channels")
	return queued
}

func (h *DiscordHandler) enqueue(evt ChannelEvent) bool {
	if err := h.sender.Send(evt); err != nil {
		h.log.Error().Err(err).
			Str("event_kind", string(evt.Kind())).
			Msg("Failed to queue channel event, dropping it")
		return false
	}
	return true
}
