// Package store is the single source of truth for users, channels, messages
// and servers. Every mutation checks referential integrity before it is
// applied, and every operation is atomic with respect to the others.
package store

import (
	"context"
	"errors"

	"github.com/omochice/monrst/internal/model"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrDuplicateID      = errors.New("duplicate id")
	ErrUnknownReference = errors.New("unknown reference")
)

// Store is the repository contract shared by every engine.
//
// Fetches return copies. A failed insert or delete leaves the store unchanged.
type Store interface {
	ChannelFetch(ctx context.Context, id model.ID) (model.Channel, error)
	// ChannelInsert fails with ErrUnknownReference unless every participant exists.
	ChannelInsert(ctx context.Context, channel model.Channel) error
	// ChannelDelete also deletes every message sent in the channel.
	ChannelDelete(ctx context.Context, id model.ID) error

	MessageFetch(ctx context.Context, id model.ID) (model.Message, error)
	// MessageInsert fails with ErrUnknownReference unless both the author and
	// the channel exist.
	MessageInsert(ctx context.Context, message model.Message) error
	MessageDelete(ctx context.Context, id model.ID) error

	UserFetch(ctx context.Context, id model.ID) (model.User, error)
	UserInsert(ctx context.Context, user model.User) error
	// UserDelete does not touch channels or messages referencing the user.
	UserDelete(ctx context.Context, id model.ID) error

	ServerFetch(ctx context.Context, id model.ID) (model.Server, error)
	// ServerInsert fails with ErrUnknownReference unless the owner exists.
	ServerInsert(ctx context.Context, server model.Server) error
	ServerDelete(ctx context.Context, id model.ID) error

	Close() error
}
