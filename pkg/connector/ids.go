// Copyright 2024-2026 Aiku AI

package connector

import (
	"strings"

	"maunium.net/go/mautrix/id"
)

// BridgeAliasPrefix is the alias namespace shared with the Discord
// appservice bridges, so rooms provisioned here line up with theirs.
const BridgeAliasPrefix = "_discord_"

// IsSnowflake reports whether s looks like a Discord ID: a non-empty run of
// ASCII decimal digits.
func IsSnowflake(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// BridgeAliasLocalpart returns the Matrix alias localpart for a Discord
// channel.
//
// Both IDs must satisfy IsSnowflake. The mapping is only injective when
// neither ID contains an underscore: ("1_2", "3") and ("1", "2_3") share an
// alias. The Discord handler drops channels with non-snowflake IDs before
// they are queued.
func BridgeAliasLocalpart(serverID, channelID string) string {
	return BridgeAliasPrefix + serverID + "_" + channelID
}

// ParseBridgeAlias extracts the Discord server and channel IDs from an alias
// localpart created by BridgeAliasLocalpart.
func ParseBridgeAlias(localpart string) (serverID, channelID string, ok bool) {
	rest, found := strings.CutPrefix(localpart, BridgeAliasPrefix)
	if !found {
		return "", "", false
	}
	serverID, channelID, found = strings.Cut(rest, "_")
	if !found || serverID == "" || channelID == "" || strings.Contains(channelID, "_") {
		return "", "", false
	}
	return serverID, channelID, true
}

// MakeRoomAlias builds the full room alias for a localpart on the given
// homeserver domain.
func MakeRoomAlias(localpart, domain string) id.RoomAlias {
	return id.NewRoomAlias(localpart, domain)
}

// snapshotAliasLocalpart returns the alias localpart of a channel snapshot.
func snapshotAliasLocalpart(s ChannelSnapshot) string {
	return BridgeAliasLocalpart(s.ServerID, s.ID)
}
