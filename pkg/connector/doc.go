// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package connector provisions a public Matrix room for every Discord guild
// channel a bot can see.
//
// Channel lifecycle events arrive from the Discord gateway on discordgo's
// handler goroutines. [DiscordHandler] snapshots each channel and pushes a
// [ChannelEvent] onto an [EventQueue]; it never talks to Matrix itself. A
// single [Worker] drains the queue in order and asks a [RoomProvisioner] to
// create the room behind the channel's alias.
//
// # Room Aliases
//
// Every channel maps to #_discord_<guild>_<channel>:<domain>, the namespace
// used by the Discord appservice bridges. Room creation is idempotent: if
// the alias is taken the existing room is reported instead of an error, so
// replaying channels after a restart or via POST /api/resync is safe.
//
// # Core Types
//
// [Connector] owns the Discord session, the queue, the worker and the admin
// API, and is what the command starts and stops.
//
// [MatrixProvisioner] creates rooms through the Matrix client-server API.
//
// [LinkRoomAnnouncer] optionally posts a notice for every new room into a
// configured Matrix room.
//
// # Sub-packages
//
//   - discordfmt converts Discord markdown (channel topics) to Matrix HTML.
package connector
