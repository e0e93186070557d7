// Package client defines the common interface for chat clients.
package client

import (
	"context"

	"github.com/omochice/monrst/pkg/protocol"
)

// Client defines the interface for chat clients.
type Client interface {
	Connect(ctx context.Context) error
	Disconnect()
	IsConnected() bool
	Send(event protocol.Event) error
	Events() <-chan protocol.Event

	Ping() error
	RegisterUser(username string) error
	OpenDirectMessage(author, peer string) error
	SendMessage(channel, author, content string) error
	DeleteChannel(channel string) error
}
