package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/samber/lo"

	"github.com/omochice/monrst/internal/model"
)

// Memory keeps everything in maps. Nothing survives Close; it is meant for
// tests and as the reference behaviour other engines are checked against.
type Memory struct {
	mu       sync.RWMutex
	channels map[model.ID]model.Channel
	messages map[model.ID]model.Message
	users    map[model.ID]model.User
	servers  map[model.ID]model.Server
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		channels: make(map[model.ID]model.Channel),
		messages: make(map[model.ID]model.Message),
		users:    make(map[model.ID]model.User),
		servers:  make(map[model.ID]model.Server),
	}
}

var _ Store = (*Memory)(nil)

func (m *Memory) ChannelFetch(ctx context.Context, id model.ID) (model.Channel, error) {
	if err := ctx.Err(); err != nil {
		return model.Channel{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return fetch(m.channels, "channel", id)
}

func (m *Memory) ChannelInsert(ctx context.Context, channel model.Channel) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.channels[channel.ID]; ok {
		return fmt.Errorf("%w: channel %s", ErrDuplicateID, channel.ID)
	}
	for _, user := range channel.Participants() {
		if _, ok := m.users[user]; !ok {
			return fmt.Errorf("%w: channel %s references unknown user %s", ErrUnknownReference, channel.ID, user)
		}
	}
	m.channels[channel.ID] = channel
	return nil
}

func (m *Memory) ChannelDelete(ctx context.Context, id model.ID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.channels[id]; !ok {
		return fmt.Errorf("%w: channel %s", ErrNotFound, id)
	}
	delete(m.channels, id)

	// Snapshot first: the map must not change while it is ranged over.
	orphans := lo.FilterMap(lo.Values(m.messages), func(msg model.Message, _ int) (model.ID, bool) {
		return msg.ID, msg.Channel == id
	})
	for _, messageID := range orphans {
		// Already gone means there is nothing left to cascade to.
		_ = m.messageDelete(messageID)
	}
	return nil
}

func (m *Memory) MessageFetch(ctx context.Context, id model.ID) (model.Message, error) {
	if err := ctx.Err(); err != nil {
		return model.Message{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return fetch(m.messages, "message", id)
}

func (m *Memory) MessageInsert(ctx context.Context, message model.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := message.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.messages[message.ID]; ok {
		return fmt.Errorf("%w: message %s", ErrDuplicateID, message.ID)
	}
	if _, ok := m.users[message.Author]; !ok {
		return fmt.Errorf("%w: message %s has unknown author %s", ErrUnknownReference, message.ID, message.Author)
	}
	if _, ok := m.channels[message.Channel]; !ok {
		return fmt.Errorf("%w: message %s sent in unknown channel %s", ErrUnknownReference, message.ID, message.Channel)
	}
	m.messages[message.ID] = message
	return nil
}

func (m *Memory) MessageDelete(ctx context.Context, id model.ID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.messageDelete(id)
}

func (m *Memory) messageDelete(id model.ID) error {
	if _, ok := m.messages[id]; !ok {
		return fmt.Errorf("%w: message %s", ErrNotFound, id)
	}
	delete(m.messages, id)
	return nil
}

func (m *Memory) UserFetch(ctx context.Context, id model.ID) (model.User, error) {
	if err := ctx.Err(); err != nil {
		return model.User{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return fetch(m.users, "user", id)
}

func (m *Memory) UserInsert(ctx context.Context, user model.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := user.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[user.ID]; ok {
		return fmt.Errorf("%w: user %s", ErrDuplicateID, user.ID)
	}
	m.users[user.ID] = user
	return nil
}

func (m *Memory) UserDelete(ctx context.Context, id model.ID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[id]; !ok {
		return fmt.Errorf("%w: user %s", ErrNotFound, id)
	}
	delete(m.users, id)
	return nil
}

func (m *Memory) ServerFetch(ctx context.Context, id model.ID) (model.Server, error) {
	if err := ctx.Err(); err != nil {
		return model.Server{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return fetch(m.servers, "server", id)
}

func (m *Memory) ServerInsert(ctx context.Context, server model.Server) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := server.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.servers[server.ID]; ok {
		return fmt.Errorf("%w: server %s", ErrDuplicateID, server.ID)
	}
	if _, ok := m.users[server.Owner]; !ok {
		return fmt.Errorf("%w: server %s owned by unknown user %s", ErrUnknownReference, server.ID, server.Owner)
	}
	m.servers[server.ID] = server
	return nil
}

func (m *Memory) ServerDelete(ctx context.Context, id model.ID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.servers[id]; !ok {
		return fmt.Errorf("%w: server %s", ErrNotFound, id)
	}
	delete(m.servers, id)
	return nil
}

// Close implements Store.
func (m *Memory) Close() error {
	return nil
}

func fetch[T any](entities map[model.ID]T, kind string, id model.ID) (T, error) {
	entity, ok := entities[id]
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s %s", ErrNotFound, kind, id)
	}
	return entity, nil
}
