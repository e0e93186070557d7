package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/dgraph-io/badger/v4"

	"github.com/omochice/monrst/internal/model"
)

// Key layout:
//
//	user:{id}                      user record
//	channel:{id}                   channel record
//	message:{id}                   message record
//	server:{id}                    server record
//	channel-message:{channel}:{id} empty value, lists the messages of a channel
const (
	prefixUser           = "user:"
	prefixChannel        = "channel:"
	prefixMessage        = "message:"
	prefixServer         = "server:"
	prefixChannelMessage = "channel-message:"
)

func entityKey(prefix string, id model.ID) []byte {
	return []byte(prefix + id.String())
}

func channelMessageKey(channel, message model.ID) []byte {
	return []byte(prefixChannelMessage + channel.String() + ":" + message.String())
}

// BadgerOptions configures OpenBadger.
type BadgerOptions struct {
	// Path of the database directory. Empty keeps the whole database in memory.
	Path string
	// MemTableSize overrides Badger's memtable size when positive. It also
	// bounds how many writes fit into one transaction.
	MemTableSize int64
	Logger       *slog.Logger
}

// Badger is the production engine. Each operation runs in a single Badger
// transaction, except the cascade of ChannelDelete, which is split into as
// many batches as Badger needs.
type Badger struct {
	// Badger detects conflicting transactions but does not queue them;
	// serializing writers here keeps ErrConflict from reaching callers.
	mu  sync.RWMutex
	db  *badger.DB
	log *slog.Logger
}

var _ Store = (*Badger)(nil)

// OpenBadger opens (or creates) a Badger database.
func OpenBadger(opts BadgerOptions) (*Badger, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	options := badger.DefaultOptions(opts.Path).
		WithLogger(badgerLogger{logger.With("component", "badger")}).
		WithLoggingLevel(badger.WARNING)
	if opts.Path == "" {
		options = options.WithInMemory(true)
	}
	if opts.MemTableSize > 0 {
		// Badger refuses a value threshold above its batch size, 15% of the
		// memtable.
		options = options.
			WithMemTableSize(opts.MemTableSize).
			WithValueThreshold(min(options.ValueThreshold, opts.MemTableSize*15/100))
	}

	db, err := badger.Open(options)
	if err != nil {
		return nil, fmt.Errorf("database opening failed: %w", err)
	}
	logger.Info("Store opened", "path", opts.Path, "in_memory", opts.Path == "")
	return &Badger{db: db, log: logger}, nil
}

// Close flushes and releases the database.
func (b *Badger) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.db.Close()
}

func (b *Badger) view(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.db.View(fn)
}

func (b *Badger) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.db.Update(fn)
}

// get loads the value under key and decodes it. A missing key is ErrNotFound.
func get[T any](txn *badger.Txn, key []byte, decode func([]byte) (T, error)) (T, error) {
	var entity T
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return entity, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return entity, err
	}
	err = item.Value(func(val []byte) error {
		entity, err = decode(val)
		return err
	})
	return entity, err
}

func exists(txn *badger.Txn, key []byte) (bool, error) {
	_, err := txn.Get(key)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, badger.ErrKeyNotFound):
		return false, nil
	default:
		return false, err
	}
}

func set[T any](txn *badger.Txn, key []byte, entity T, encode func(T) ([]byte, error)) error {
	data, err := encode(entity)
	if err != nil {
		return err
	}
	return txn.Set(key, data)
}

// remove deletes key, failing with ErrNotFound when it is absent.
func remove(txn *badger.Txn, key []byte) error {
	ok, err := exists(txn, key)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return txn.Delete(key)
}

func (b *Badger) ChannelFetch(ctx context.Context, id model.ID) (channel model.Channel, err error) {
	err = b.view(ctx, func(txn *badger.Txn) error {
		channel, err = get(txn, entityKey(prefixChannel, id), decodeChannel)
		return err
	})
	return channel, err
}

func (b *Badger) ChannelInsert(ctx context.Context, channel model.Channel) error {
	return b.update(ctx, func(txn *badger.Txn) error {
		key := entityKey(prefixChannel, channel.ID)
		if ok, err := exists(txn, key); err != nil {
			return err
		} else if ok {
			return fmt.Errorf("%w: channel %s", ErrDuplicateID, channel.ID)
		}
		for _, user := range channel.Participants() {
			ok, err := exists(txn, entityKey(prefixUser, user))
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%w: channel %s references unknown user %s", ErrUnknownReference, channel.ID, user)
			}
		}
		return set(txn, key, channel, encodeChannel)
	})
}

func (b *Badger) ChannelDelete(ctx context.Context, id model.ID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	// Held for the whole cascade: readers never see it half done.
	b.mu.Lock()
	defer b.mu.Unlock()

	channelKey := entityKey(prefixChannel, id)
	prefix := []byte(prefixChannelMessage + id.String() + ":")
	var indexKeys [][]byte
	err := b.db.View(func(txn *badger.Txn) error {
		if ok, err := exists(txn, channelKey); err != nil {
			return err
		} else if !ok {
			return fmt.Errorf("%w: %s", ErrNotFound, channelKey)
		}
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		options.Prefix = prefix
		it := txn.NewIterator(options)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			indexKeys = append(indexKeys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return err
	}

	// A channel can hold more messages than one transaction accepts.
	batch := b.db.NewWriteBatch()
	defer batch.Cancel()
	for _, indexKey := range indexKeys {
		messageID, err := model.ParseID(string(indexKey[len(prefix):]))
		if err != nil {
			return fmt.Errorf("corrupted index %q: %w", indexKey, err)
		}
		if err := batch.Delete(entityKey(prefixMessage, messageID)); err != nil {
			return err
		}
		if err := batch.Delete(indexKey); err != nil {
			return err
		}
	}
	if err := batch.Flush(); err != nil {
		return fmt.Errorf("channel %s: deleting messages: %w", id, err)
	}

	// The channel goes last so that a failed cascade can be retried.
	if err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(channelKey)
	}); err != nil {
		return err
	}
	b.log.Debug("Channel deleted", "channel", id, "messages", len(indexKeys))
	return nil
}

func (b *Badger) MessageFetch(ctx context.Context, id model.ID) (message model.Message, err error) {
	err = b.view(ctx, func(txn *badger.Txn) error {
		message, err = get(txn, entityKey(prefixMessage, id), decodeMessage)
		return err
	})
	return message, err
}

func (b *Badger) MessageInsert(ctx context.Context, message model.Message) error {
	if err := message.Validate(); err != nil {
		return err
	}
	return b.update(ctx, func(txn *badger.Txn) error {
		key := entityKey(prefixMessage, message.ID)
		if ok, err := exists(txn, key); err != nil {
			return err
		} else if ok {
			return fmt.Errorf("%w: message %s", ErrDuplicateID, message.ID)
		}
		if ok, err := exists(txn, entityKey(prefixUser, message.Author)); err != nil {
			return err
		} else if !ok {
			return fmt.Errorf("%w: message %s has unknown author %s", ErrUnknownReference, message.ID, message.Author)
		}
		if ok, err := exists(txn, entityKey(prefixChannel, message.Channel)); err != nil {
			return err
		} else if !ok {
			return fmt.Errorf("%w: message %s sent in unknown channel %s", ErrUnknownReference, message.ID, message.Channel)
		}
		if err := set(txn, key, message, encodeMessage); err != nil {
			return err
		}
		return txn.Set(channelMessageKey(message.Channel, message.ID), nil)
	})
}

func (b *Badger) MessageDelete(ctx context.Context, id model.ID) error {
	return b.update(ctx, func(txn *badger.Txn) error {
		message, err := get(txn, entityKey(prefixMessage, id), decodeMessage)
		if err != nil {
			return err
		}
		if err := txn.Delete(entityKey(prefixMessage, id)); err != nil {
			return err
		}
		return txn.Delete(channelMessageKey(message.Channel, id))
	})
}

func (b *Badger) UserFetch(ctx context.Context, id model.ID) (user model.User, err error) {
	err = b.view(ctx, func(txn *badger.Txn) error {
		user, err = get(txn, entityKey(prefixUser, id), decodeUser)
		return err
	})
	return user, err
}

func (b *Badger) UserInsert(ctx context.Context, user model.User) error {
	if err := user.Validate(); err != nil {
		return err
	}
	return b.update(ctx, func(txn *badger.Txn) error {
		key := entityKey(prefixUser, user.ID)
		if ok, err := exists(txn, key); err != nil {
			return err
		} else if ok {
			return fmt.Errorf("%w: user %s", ErrDuplicateID, user.ID)
		}
		return set(txn, key, user, encodeUser)
	})
}

func (b *Badger) UserDelete(ctx context.Context, id model.ID) error {
	return b.update(ctx, func(txn *badger.Txn) error {
		return remove(txn, entityKey(prefixUser, id))
	})
}

func (b *Badger) ServerFetch(ctx context.Context, id model.ID) (server model.Server, err error) {
	err = b.view(ctx, func(txn *badger.Txn) error {
		server, err = get(txn, entityKey(prefixServer, id), decodeServer)
		return err
	})
	return server, err
}

func (b *Badger) ServerInsert(ctx context.Context, server model.Server) error {
	if err := server.Validate(); err != nil {
		return err
	}
	return b.update(ctx, func(txn *badger.Txn) error {
		key := entityKey(prefixServer, server.ID)
		if ok, err := exists(txn, key); err != nil {
			return err
		} else if ok {
			return fmt.Errorf("%w: server %s", ErrDuplicateID, server.ID)
		}
		if ok, err := exists(txn, entityKey(prefixUser, server.Owner)); err != nil {
			return err
		} else if !ok {
			return fmt.Errorf("%w: server %s owned by unknown user %s", ErrUnknownReference, server.ID, server.Owner)
		}
		return set(txn, key, server, encodeServer)
	})
}

func (b *Badger) ServerDelete(ctx context.Context, id model.ID) error {
	return b.update(ctx, func(txn *badger.Txn) error {
		return remove(txn, entityKey(prefixServer, id))
	})
}

// badgerLogger routes Badger's printf-style logging into slog.
type badgerLogger struct {
	log *slog.Logger
}

func (l badgerLogger) Errorf(format string, args ...any) {
	l.log.Error(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l badgerLogger) Warningf(format string, args ...any) {
	l.log.Warn(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l badgerLogger) Infof(format string, args ...any) {
	l.log.Info(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l badgerLogger) Debugf(format string, args ...any) {
	l.log.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}
