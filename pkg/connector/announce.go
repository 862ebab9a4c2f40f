// Copyright 2024-2026 Aiku AI

package connector

import (
	"context"
	"fmt"
	"html"
	"net/url"

	"github.com/aiku/matrix-discord-sync/pkg/connector/discordfmt"
	"github.com/rs/zerolog"
	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"
)

// Announcer publishes newly bridged channels somewhere humans can find them.
type Announcer interface {
	AnnounceRoom(ctx context.Context, channel ChannelSnapshot, result *ProvisionResult) error
}

// LinkRoomAnnouncer posts a notice into a fixed Matrix room for every room
// the bridge creates.
type LinkRoomAnnouncer struct {
	client *mautrix.Client
	roomID id.RoomID
	log    zerolog.Logger
}

var _ Announcer = (*LinkRoomAnnouncer)(nil)

// NewLinkRoomAnnouncer creates an announcer that posts into roomID.
func NewLinkRoomAnnouncer(client *mautrix.Client, roomID id.RoomID, log zerolog.Logger) *LinkRoomAnnouncer {
	return &LinkRoomAnnouncer{
		client: client,
		roomID: roomID,
		log:    log.With().Str("component", "announcer").Logger(),
	}
}

// AnnounceRoom sends an m.notice linking the new room alias to the link room.
func (a *LinkRoomAnnouncer) AnnounceRoom(ctx context.Context, channel ChannelSnapshot, result *ProvisionResult) error {
	content := linkNoticeContent(channel, result.Alias)
	resp, err := a.client.SendMessageEvent(ctx, a.roomID, event.EventMessage, content)
	if err != nil {
		return fmt.Errorf("failed to send link notice: %w", err)
	}
	a.log.Debug().
		Str("alias", string(result.Alias)).
		Str("event_id", string(resp.EventID)).
		Msg("Announced bridge room")
	return nil
}

// linkNoticeContent renders the notice for a newly bridged channel. The
// channel topic is Discord markdown and is converted to Matrix HTML.
func linkNoticeContent(channel ChannelSnapshot, alias id.RoomAlias) *event.MessageEventContent {
	body := fmt.Sprintf("#%s is now bridged to %s", channel.Name, alias)
	formatted := fmt.Sprintf(`<strong>#%s</strong> is now bridged to <a href="%s">%s</a>`,
		html.EscapeString(channel.Name), matrixToURL(alias), html.EscapeString(string(alias)))
	if channel.Topic != "" {
		topic := discordfmt.Parse(channel.Topic)
		topicHTML := topic.FormattedBody
		if topic.Format != event.FormatHTML {
			topicHTML = html.EscapeString(topic.Body)
		}
		body += "\n" + channel.Topic
		formatted += "<br/>" + topicHTML
	}
	return &event.MessageEventContent{
		MsgType:       event.MsgNotice,
		Body:          body,
		Format:        event.FormatHTML,
		FormattedBody: formatted,
	}
}

func matrixToURL(alias id.RoomAlias) string {
	return "https://matrix.to/#/" + url.PathEscape(string(alias))
}
