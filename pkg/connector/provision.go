// Copyright 2024-2026 Aiku AI

package connector

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/id"
)

// ProvisionResult describes the room behind a bridge alias.
type ProvisionResult struct {
	Alias  id.RoomAlias
	RoomID id.RoomID
	// Created is false when the alias was already taken. RoomID may then be
	// empty if the alias could not be resolved.
	Created bool
}

// ProvisionError is returned when a room could not be created for a reason
// other than the alias already existing.
type ProvisionError struct {
	Alias id.RoomAlias
	Err   error
}

func (e *ProvisionError) Error() string {
	return fmt.Sprintf("failed to provision room %s: %v", e.Alias, e.Err)
}

func (e *ProvisionError) Unwrap() error {
	return e.Err
}

// RoomProvisioner ensures a room exists for an alias localpart.
type RoomProvisioner interface {
	EnsureRoom(ctx context.Context, localpart string) (*ProvisionResult, error)
}

// MatrixProvisioner creates public bridge rooms on a Matrix homeserver.
type MatrixProvisioner struct {
	client  *mautrix.Client
	domain  string
	invites []id.UserID
	log     zerolog.Logger
}

var _ RoomProvisioner = (*MatrixProvisioner)(nil)

// NewMatrixProvisioner creates a provisioner using an authenticated client.
// Every room it creates invites the given users.
func NewMatrixProvisioner(client *mautrix.Client, domain string, invites []id.UserID, log zerolog.Logger) *MatrixProvisioner {
	return &MatrixProvisioner{
		client:  client,
		domain:  domain,
		invites: invites,
		log:     log.With().Str("component", "provisioner").Logger(),
	}
}

// EnsureRoom creates the room for localpart, or reports the existing one
// when the alias is already in use. It makes a single attempt; failures are
// returned as *ProvisionError.
func (p *MatrixProvisioner) EnsureRoom(ctx context.Context, localpart string) (*ProvisionResult, error) {
	alias := MakeRoomAlias(localpart, p.domain)
	p.log.Debug().Str("alias", string(alias)).Msg("Creating bridge room")

	resp, err := p.client.CreateRoom(ctx, &mautrix.ReqCreateRoom{
		Visibility:    "public",
		RoomAliasName: localpart,
		Invite:        p.invites,
	})
	if err == nil {
		p.log.Info().
			Str("alias", string(alias)).
			Str("room_id", string(resp.RoomID)).
			Msg("Created bridge room")
		return &ProvisionResult{Alias: alias, RoomID: resp.RoomID, Created: true}, nil
	}
	if !errors.Is(err, mautrix.MRoomInUse) {
		return nil, &ProvisionError{Alias: alias, Err: err}
	}

	result := &ProvisionResult{Alias: alias}
	resolved, resolveErr := p.client.ResolveAlias(ctx, alias)
	if resolveErr != nil {
		p.log.Warn().Err(resolveErr).
			Str("alias", string(alias)).
			Msg("Bridge room already exists but its alias could not be resolved")
		return result, nil
	}
	result.RoomID = resolved.RoomID
	p.log.Debug().
		Str("alias", string(alias)).
		Str("room_id", string(resolved.RoomID)).
		Msg("Bridge room already exists")
	return result, nil
}
