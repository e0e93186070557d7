package chat

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/omochice/monrst/internal/model"
	"github.com/omochice/monrst/pkg/protocol"
)

// dispatch applies one client event. Store failures are reported back to the
// sender only; the store itself is left unchanged by them. Channel events also
// reach the other sessions of the channel's participants.
func (h *Hub) dispatch(ctx context.Context, log *slog.Logger, client *Client, event protocol.Event) {
	var (
		reply        protocol.Event
		participants []model.ID
		err          error
	)

	switch event.Kind {
	case protocol.EventPing:
		reply = protocol.Event{Kind: protocol.EventPong}
	case protocol.EventRegisterUser:
		reply, err = h.registerUser(ctx, client, event)
	case protocol.EventOpenDirectMessage:
		reply, err = h.openDirectMessage(ctx, event)
	case protocol.EventSendMessage:
		reply, participants, err = h.sendMessage(ctx, log, event)
	case protocol.EventDeleteChannel:
		reply, participants, err = h.deleteChannel(ctx, event)
	default:
		err = fmt.Errorf("%w: %s is not a client event", protocol.ErrUnknownEvent, event.Kind)
	}

	if err != nil {
		log.Info("Event failed", "kind", event.Kind.String(), "error", err)
		h.reply(ctx, client, protocol.ErrorEvent(err))
		return
	}
	log.Debug("Event served", "kind", event.Kind.String(), "reply", reply.Kind.String())
	h.reply(ctx, client, reply)
	if len(participants) > 0 {
		h.broadcast(reply, client, participants)
	}
}

func (h *Hub) registerUser(ctx context.Context, client *Client, event protocol.Event) (protocol.Event, error) {
	user := model.NewUser(event.Username)
	if err := h.store.UserInsert(ctx, user); err != nil {
		return protocol.Event{}, err
	}
	if err := h.attach(client, user.ID); err != nil {
		return protocol.Event{}, err
	}
	return protocol.Event{
		Kind:          protocol.EventUserRegistered,
		ID:            user.ID.String(),
		Username:      user.Username,
		Discriminator: user.Discriminator.String(),
	}, nil
}

func (h *Hub) openDirectMessage(ctx context.Context, event protocol.Event) (protocol.Event, error) {
	author, err := parseID("author", event.Author)
	if err != nil {
		return protocol.Event{}, err
	}
	peer, err := parseID("peer", event.Peer)
	if err != nil {
		return protocol.Event{}, err
	}

	channel := model.NewDirectMessage(author, peer)
	if err := h.store.ChannelInsert(ctx, channel); err != nil {
		return protocol.Event{}, err
	}
	return protocol.Event{
		Kind:   protocol.EventChannelOpened,
		ID:     channel.ID.String(),
		Author: author.String(),
		Peer:   peer.String(),
	}, nil
}

func (h *Hub) sendMessage(ctx context.Context, log *slog.Logger, event protocol.Event) (protocol.Event, []model.ID, error) {
	channelID, err := parseID("channel", event.Channel)
	if err != nil {
		return protocol.Event{}, nil, err
	}
	author, err := parseID("author", event.Author)
	if err != nil {
		return protocol.Event{}, nil, err
	}

	message := model.NewMessage(channelID, author, event.Content)
	if err := h.store.MessageInsert(ctx, message); err != nil {
		return protocol.Event{}, nil, err
	}
	reply := protocol.Event{
		Kind:    protocol.EventMessageSent,
		ID:      message.ID.String(),
		Channel: channelID.String(),
		Author:  author.String(),
		Content: message.Content,
	}

	// The channel may be gone already; then only the author hears back.
	channel, err := h.store.ChannelFetch(ctx, channelID)
	if err != nil {
		log.Debug("Channel vanished after send", "channel", channelID, "error", err)
		return reply, nil, nil
	}
	return reply, channel.Participants(), nil
}

func (h *Hub) deleteChannel(ctx context.Context, event protocol.Event) (protocol.Event, []model.ID, error) {
	channelID, err := parseID("channel", event.Channel)
	if err != nil {
		return protocol.Event{}, nil, err
	}
	channel, err := h.store.ChannelFetch(ctx, channelID)
	if err != nil {
		return protocol.Event{}, nil, err
	}
	if err := h.store.ChannelDelete(ctx, channelID); err != nil {
		return protocol.Event{}, nil, err
	}
	return protocol.Event{Kind: protocol.EventChannelDeleted, Channel: channelID.String()}, channel.Participants(), nil
}

func parseID(field, s string) (model.ID, error) {
	id, err := model.ParseID(s)
	if err != nil {
		return model.ID{}, fmt.Errorf("%w: %s %q: %v", model.ErrInvalid, field, s, err)
	}
	return id, nil
}
