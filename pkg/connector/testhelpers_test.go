// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package connector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/id"
)

const (
	testDomain  = "example.com"
	testToken   = "test-access-token"
	testBotMXID = "@discordbot:example.com"
)

// mockEventSender captures queued channel events for test assertions.
type mockEventSender struct {
	mu     sync.Mutex
	events []ChannelEvent
	err    error
}

func (m *mockEventSender) Send(evt ChannelEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, evt)
	return nil
}

func (m *mockEventSender) Events() []ChannelEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]ChannelEvent, len(m.events))
	copy(cp, m.events)
	return cp
}

// provisionCall records one EnsureRoom invocation.
type provisionCall struct {
	Localpart string
}

// fakeProvisioner is an in-memory RoomProvisioner. The first call for an
// alias creates a room, later calls report it as existing.
type fakeProvisioner struct {
	mu    sync.Mutex
	calls []provisionCall
	rooms map[string]id.RoomID
	// Fail makes EnsureRoom return the error for the given localpart.
	Fail map[string]error
	// Block, when set, is waited on before every call returns.
	Block chan struct{}
}

func newFakeProvisioner() *fakeProvisioner {
	return &fakeProvisioner{
		rooms: make(map[string]id.RoomID),
		Fail:  make(map[string]error),
	}
}

func (f *fakeProvisioner) EnsureRoom(_ context.Context, localpart string) (*ProvisionResult, error) {
	if f.Block != nil {
		<-f.Block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, provisionCall{Localpart: localpart})
	alias := MakeRoomAlias(localpart, testDomain)
	if err, ok := f.Fail[localpart]; ok {
		return nil, &ProvisionError{Alias: alias, Err: err}
	}
	if roomID, ok := f.rooms[localpart]; ok {
		return &ProvisionResult{Alias: alias, RoomID: roomID}, nil
	}
	roomID := id.RoomID(fmt.Sprintf("!room%d:%s", len(f.rooms)+1, testDomain))
	f.rooms[localpart] = roomID
	return &ProvisionResult{Alias: alias, RoomID: roomID, Created: true}, nil
}

func (f *fakeProvisioner) Calls() []provisionCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]provisionCall, len(f.calls))
	copy(cp, f.calls)
	return cp
}

// fakeAnnouncer records announced rooms.
type fakeAnnouncer struct {
	mu        sync.Mutex
	announced []ChannelSnapshot
	err       error
}

func (f *fakeAnnouncer) AnnounceRoom(_ context.Context, channel ChannelSnapshot, _ *ProvisionResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.announced = append(f.announced, channel)
	return f.err
}

// endpointCall records which homeserver endpoints were hit during a test.
type endpointCall struct {
	Method string
	Path   string
	Body   string
}

// fakeHomeserver is a test helper that wraps an httptest.Server simulating
// the parts of the Matrix client-server API the bridge uses.
type fakeHomeserver struct {
	Server *httptest.Server

	mu    sync.Mutex
	calls []endpointCall
	// rooms maps full aliases to room IDs.
	rooms map[id.RoomAlias]id.RoomID
	// sent records m.room.message contents per room.
	sent map[id.RoomID][]map[string]any

	// FailCreate makes createRoom fail for the given localpart with the
	// given status code and errcode, or by dropping the connection.
	FailCreate map[string]fakeError
	// FailResolve makes alias resolution fail with M_NOT_FOUND.
	FailResolve bool
}

type fakeError struct {
	Status  int
	ErrCode string
	// Drop closes the connection without writing a response.
	Drop bool
}

func newFakeHomeserver() *fakeHomeserver {
	f := &fakeHomeserver{
		rooms:      make(map[id.RoomAlias]id.RoomID),
		sent:       make(map[id.RoomID][]map[string]any),
		FailCreate: make(map[string]fakeError),
	}
	f.Server = httptest.NewServer(http.HandlerFunc(f.handler))
	return f
}

func (f *fakeHomeserver) Close() {
	f.Server.Close()
}

// Client returns a mautrix client authenticated against the fake server.
func (f *fakeHomeserver) Client(t *testing.T) *mautrix.Client {
	t.Helper()
	client, err := mautrix.NewClient(f.Server.URL, testBotMXID, testToken)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client
}

func (f *fakeHomeserver) Calls() []endpointCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]endpointCall, len(f.calls))
	copy(cp, f.calls)
	return cp
}

// CallsTo returns the recorded calls whose path ends with suffix.
func (f *fakeHomeserver) CallsTo(suffix string) []endpointCall {
	var out []endpointCall
	for _, c := range f.Calls() {
		if strings.HasSuffix(c.Path, suffix) {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeHomeserver) RoomCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rooms)
}

func (f *fakeHomeserver) Sent(roomID id.RoomID) []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[string]any(nil), f.sent[roomID]...)
}

func writeMatrixError(w http.ResponseWriter, status int, errcode, msg string) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"errcode": errcode, "error": msg})
}

func dropConnection(w http.ResponseWriter) {
	conn, _, err := w.(http.Hijacker).Hijack()
	if err != nil {
		panic(err)
	}
	_ = conn.Close()
}

func (f *fakeHomeserver) handler(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.calls = append(f.calls, endpointCall{Method: r.Method, Path: r.URL.Path, Body: string(body)})
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if r.Header.Get("Authorization") != "Bearer "+testToken {
		writeMatrixError(w, http.StatusUnauthorized, "M_UNKNOWN_TOKEN", "Invalid access token")
		return
	}

	const prefix = "/_matrix/client/v3/"
	path := strings.TrimPrefix(r.URL.Path, prefix)

	switch {
	case r.Method == http.MethodGet && path == "account/whoami":
		_ = json.NewEncoder(w).Encode(map[string]string{"user_id": testBotMXID})

	case r.Method == http.MethodPost && path == "createRoom":
		var req struct {
			Visibility    string   `json:"visibility"`
			RoomAliasName string   `json:"room_alias_name"`
			Invite        []string `json:"invite"`
		}
		if err := json.Unmarshal(body, &req); err != nil {
			writeMatrixError(w, http.StatusBadRequest, "M_NOT_JSON", "bad json")
			return
		}
		if fail, ok := f.FailCreate[req.RoomAliasName]; ok {
			if fail.Drop {
				dropConnection(w)
				return
			}
			writeMatrixError(w, fail.Status, fail.ErrCode, "forced failure")
			return
		}
		alias := id.NewRoomAlias(req.RoomAliasName, testDomain)
		f.mu.Lock()
		if _, exists := f.rooms[alias]; exists {
			f.mu.Unlock()
			writeMatrixError(w, http.StatusBadRequest, "M_ROOM_IN_USE", "Room alias already taken")
			return
		}
		roomID := id.RoomID(fmt.Sprintf("!created%d:%s", len(f.rooms)+1, testDomain))
		f.rooms[alias] = roomID
		f.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]string{"room_id": string(roomID)})

	case r.Method == http.MethodGet && strings.HasPrefix(path, "directory/room/"):
		alias := id.RoomAlias(strings.TrimPrefix(path, "directory/room/"))
		f.mu.Lock()
		roomID, ok := f.rooms[alias]
		failResolve := f.FailResolve
		f.mu.Unlock()
		if !ok || failResolve {
			writeMatrixError(w, http.StatusNotFound, "M_NOT_FOUND", "Room alias not found")
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"room_id": roomID, "servers": []string{testDomain}})

	case r.Method == http.MethodPut && strings.HasPrefix(path, "rooms/") && strings.Contains(path, "/send/m.room.message/"):
		roomID := id.RoomID(strings.SplitN(strings.TrimPrefix(path, "rooms/"), "/", 2)[0])
		var content map[string]any
		_ = json.Unmarshal(body, &content)
		f.mu.Lock()
		f.sent[roomID] = append(f.sent[roomID], content)
		f.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]string{"event_id": "$sent"})

	default:
		writeMatrixError(w, http.StatusNotFound, "M_UNRECOGNIZED", "not found: "+r.URL.Path)
	}
}

// newTestConfig returns a validated config for the handler and connector.
func newTestConfig(t *testing.T) *Config {
	t.Helper()
	cfg := &Config{
		Discord: DiscordConfig{
			Token:         "discord-token",
			ChannelTypes:  []string{"text", "news"},
			SyncOnConnect: true,
		},
		Homeserver: HomeserverConfig{
			Address:     "https://matrix.example.com",
			Domain:      testDomain,
			AccessToken: testToken,
		},
		Bridge: BridgeConfig{
			Invites: []string{"@hjarrell:example.com"},
		},
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	return cfg
}

// newLogBuffer returns a JSON logger writing into a buffer.
func newLogBuffer() (zerolog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return zerolog.New(&buf), &buf
}

// errorLines returns the log lines at error level.
func errorLines(buf *bytes.Buffer) []string {
	var out []string
	for _, line := range strings.Split(buf.String(), "\n") {
		if strings.Contains(line, `"level":"error"`) {
			out = append(out, line)
		}
	}
	return out
}

// guildChannel builds a discordgo guild channel for tests.
func guildChannel(id, name, guildID string) *discordgo.Channel {
	return &discordgo.Channel{
		ID:      id,
		Name:    name,
		GuildID: guildID,
		Type:    discordgo.ChannelTypeGuildText,
	}
}
