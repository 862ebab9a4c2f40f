// Copyright 2024-2026 Aiku AI

package connector

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
)

// ChannelSnapshot is the state of a Discord channel at the moment an event
// was observed. It is passed around by value; a later change to the live
// channel produces a new snapshot.
type ChannelSnapshot struct {
	ID       string
	Name     string
	ServerID string
	Topic    string
	Type     discordgo.ChannelType
}

// snapshotChannel copies the fields the bridge cares about out of a
// discordgo channel. guildID is used when the channel itself carries none,
// which is the case for channels embedded in a GUILD_CREATE payload.
func snapshotChannel(ch *discordgo.Channel, guildID string) ChannelSnapshot {
	serverID := ch.GuildID
	if serverID == "" {
		serverID = guildID
	}
	return ChannelSnapshot{
		ID:       ch.ID,
		Name:     ch.Name,
		ServerID: serverID,
		Topic:    ch.Topic,
		Type:     ch.Type,
	}
}

// EventKind names the lifecycle transition an event describes.
type EventKind string

const (
	EventKindCreated EventKind = "created"
	EventKindUpdated EventKind = "updated"
	EventKindDeleted EventKind = "deleted"
)

// ChannelEvent is one of ChannelCreated, ChannelUpdated or ChannelDeleted.
// The set is closed: the unexported marker keeps other packages from adding
// variants the worker does not know how to dispatch.
type ChannelEvent interface {
	Kind() EventKind
	channelEvent()
}

// ChannelCreated is queued when a new guild channel appears.
type ChannelCreated struct {
	Channel ChannelSnapshot
}

// ChannelUpdated carries the channel before and after a change. Both
// snapshots always refer to the same channel ID.
type ChannelUpdated struct {
	Before ChannelSnapshot
	After  ChannelSnapshot
}

// ChannelDeleted is queued when a guild channel is removed.
type ChannelDeleted struct {
	Channel ChannelSnapshot
}

var (
	_ ChannelEvent = ChannelCreated{}
	_ ChannelEvent = ChannelUpdated{}
	_ ChannelEvent = ChannelDeleted{}
)

func (ChannelCreated) Kind() EventKind { return EventKindCreated }
func (ChannelUpdated) Kind() EventKind { return EventKindUpdated }
func (ChannelDeleted) Kind() EventKind { return EventKindDeleted }

func (ChannelCreated) channelEvent() {}
func (ChannelUpdated) channelEvent() {}
func (ChannelDeleted) channelEvent() {}

// NewChannelUpdated builds an update event, rejecting snapshots that refer
// to different channels.
func NewChannelUpdated(before, after ChannelSnapshot) (ChannelUpdated, error) {
	if before.ID != after.ID {
		return ChannelUpdated{}, fmt.Errorf("channel update mixes channels %q and %q", before.ID, after.ID)
	}
	return ChannelUpdated{Before: before, After: after}, nil
}
