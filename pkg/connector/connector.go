// Copyright 2024-2026 Aiku AI

package connector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/id"
)

// Connector wires the Discord session, the event queue, the bridge worker
// and the Matrix client together, and serves the admin API.
type Connector struct {
	Config  *Config
	Log     zerolog.Logger
	Matrix  *mautrix.Client
	Queue   *EventQueue
	Handler *DiscordHandler
	Worker  *Worker

	discord     *DiscordClient
	guilds      guildSource
	adminServer *http.Server
	workerDone  chan struct{}
}

// NewConnector builds every component from a validated config. Nothing
// touches the network until Start.
func NewConnector(cfg *Config, log zerolog.Logger) (*Connector, error) {
	client, err := mautrix.NewClient(cfg.Homeserver.Address, "", cfg.Homeserver.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create matrix client: %w", err)
	}
	client.Log = log.With().Str("component", "matrix_client").Logger()

	queue := NewEventQueue()
	handler := NewDiscordHandler(queue, cfg, log)
	discord, err := NewDiscordClient(cfg.Discord.Token, handler, log)
	if err != nil {
		return nil, err
	}

	var announcer Announcer
	if cfg.Bridge.LinkRoom != "" {
		announcer = NewLinkRoomAnnouncer(client, id.RoomID(cfg.Bridge.LinkRoom), log)
	}
	provisioner := NewMatrixProvisioner(client, cfg.Homeserver.Domain, cfg.Invites(), log)

	return &Connector{
		Config:  cfg,
		Log:     log,
		Matrix:  client,
		Queue:   queue,
		Handler: handler,
		Worker:  NewWorker(queue, provisioner, announcer, log),
		discord: discord,
		guilds:  discord,
	}, nil
}

// Start verifies the Matrix session, starts the bridge worker and the admin
// API, then connects to Discord. An error here is fatal.
func (c *Connector) Start(ctx context.Context) error {
	whoami, err := c.Matrix.Whoami(ctx)
	if err != nil {
		return fmt.Errorf("failed to verify matrix session: %w", err)
	}
	c.Matrix.UserID = whoami.UserID
	c.Log.Info().Str("user_id", string(whoami.UserID)).Msg("Matrix session verified")

	c.workerDone = make(chan struct{})
	go func() {
		defer close(c.workerDone)
		c.Worker.Run(context.WithoutCancel(ctx))
	}()

	if addr := c.Config.Bridge.AdminAPIAddr; addr != "" {
		c.startAdminAPI(addr)
	}

	if err := c.discord.Connect(); err != nil {
		return err
	}
	return nil
}

// Stop disconnects from Discord, closes the queue and waits for the worker
// to drain it. Events still queued are provisioned before Stop returns.
func (c *Connector) Stop(ctx context.Context) {
	if c.discord != nil {
		c.discord.Disconnect()
	}
	c.Queue.Close()
	if c.workerDone != nil {
		select {
		case <-c.workerDone:
		case <-ctx.Done():
			c.Log.Warn().Int("pending", c.Queue.Len()).Msg("Timed out waiting for bridge worker to drain")
		}
	}
	if c.adminServer != nil {
		if err := c.adminServer.Shutdown(ctx); err != nil {
			c.Log.Warn().Err(err).Msg("Failed to shut down admin API")
		}
	}
}

func (c *Connector) startAdminAPI(addr string) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/stats", c.HandleStats)
	mux.HandleFunc("/api/resync", c.HandleResync)
	c.adminServer = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	log := c.Log.With().Str("component", "admin_api").Logger()
	go func() {
		log.Info().Str("addr", addr).Msg("Starting bridge admin API")
		if err := c.adminServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Bridge admin API error")
		}
	}()
}

// statsResponse is the body of GET /api/stats.
type statsResponse struct {
	WorkerStats
	Pending int `json:"pending"`
}

// HandleStats is an HTTP handler for GET /api/stats.
func (c *Connector) HandleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	resp := statsResponse{
		WorkerStats: c.Worker.Stats(),
		Pending:     c.Queue.Len(),
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		c.Log.Warn().Err(err).Msg("Failed to write stats response")
	}
}

// HandleResync is an HTTP handler for POST /api/resync. It replays every
// cached guild channel through the queue; rooms that exist are left alone.
func (c *Connector) HandleResync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if c.guilds == nil {
		http.Error(w, "discord not connected", http.StatusServiceUnavailable)
		return
	}

	guilds := c.guilds.Guilds()
	c.Log.Info().
		Str("remote_addr", r.RemoteAddr).
		Int("guilds", len(guilds)).
		Msg("Channel resync requested")
	queued := c.Handler.SyncGuilds(guilds)

	resp := map[string]int{
		"guilds": len(guilds),
		"queued": queued,
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		c.Log.Warn().Err(err).Msg("Failed to write resync response")
	}
}
