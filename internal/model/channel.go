package model

import "github.com/google/uuid"

// ChannelKind tells which variant a Channel is.
type ChannelKind int

const (
	// KindDirectMessage is a channel between two users, or a user and themself.
	KindDirectMessage ChannelKind = iota
)

// String returns the string representation of ChannelKind
func (k ChannelKind) String() string {
	switch k {
	case KindDirectMessage:
		return "direct_message"
	default:
		return "unknown"
	}
}

// Channel is a place where messages between users are sent.
type Channel struct {
	ID    ID
	Kind  ChannelKind
	Users [2]ID
}

// NewDirectMessage creates a direct message channel between two users.
// Passing the same user twice makes a self channel.
func NewDirectMessage(user1, user2 ID) Channel {
	return Channel{
		ID:    uuid.New(),
		Kind:  KindDirectMessage,
		Users: [2]ID{user1, user2},
	}
}

// Participants returns the users the channel references.
func (c Channel) Participants() []ID {
	return c.Users[:]
}

// Message is a piece of content sent by a user in a channel.
type Message struct {
	ID      ID
	Channel ID
	Author  ID
	Content string `validate:"utf8"`
}

// NewMessage creates a message with a fresh id.
func NewMessage(channel, author ID, content string) Message {
	return Message{
		ID:      uuid.New(),
		Channel: channel,
		Author:  author,
		Content: content,
	}
}

// Validate checks the message's attributes.
func (m Message) Validate() error {
	return validateStruct("message", m)
}
