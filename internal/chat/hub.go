package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/omochice/monrst/internal/model"
	"github.com/omochice/monrst/internal/store"
	"github.com/omochice/monrst/pkg/protocol"
)

// Client represents an admitted connection.
type Client struct {
	Conn   Conn
	Config protocol.Configuration
	// Info.AttachedUsers only changes under the hub's lock.
	Info     model.Client
	Outgoing chan protocol.Event

	codec protocol.Codec
}

// NewClient prepares a client speaking the negotiated configuration.
func NewClient(conn Conn, config protocol.Configuration, info model.Client, buffer int) (*Client, error) {
	codec, err := protocol.CodecFor(config.Format)
	if err != nil {
		return nil, err
	}
	return &Client{
		Conn:     conn,
		Config:   config,
		Info:     info,
		Outgoing: make(chan protocol.Event, buffer),
		codec:    codec,
	}, nil
}

// Hub manages all connected clients and handles broadcast.
// Every transport shares a single Hub instance.
type Hub struct {
	clients map[*Client]bool
	mu      sync.RWMutex
	store   store.Store
	log     *slog.Logger
}

// NewHub creates a new Hub applying client events to s.
func NewHub(s store.Store, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients: make(map[*Client]bool),
		store:   s,
		log:     logger,
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client] = true
}

// Unregister removes a client from the hub.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, client)
}

// ClientCount returns number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Serve registers client and runs its read and write loops until the
// connection ends or ctx is cancelled. The caller closes the connection.
func (h *Hub) Serve(ctx context.Context, client *Client) error {
	h.Register(client)
	defer h.Unregister(client)

	g, ctx := errgroup.WithContext(ctx)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g.Go(func() error {
		defer cancel()
		return h.HandleClient(ctx, client)
	})
	g.Go(func() error {
		return h.WriteLoop(ctx, client)
	})
	return g.Wait()
}

// HandleClient reads events from the client and dispatches them until the
// peer goes away. A frame that cannot be decoded is answered with an error
// event and the session goes on.
func (h *Hub) HandleClient(ctx context.Context, client *Client) error {
	log := h.log.With("remote", client.Conn.RemoteAddr())
	for {
		data, err := client.Conn.Read(ctx)
		if err != nil {
			if isClosed(ctx, err) {
				log.Debug("Client disconnected")
				return nil
			}
			return fmt.Errorf("read failed: %w", err)
		}

		event, err := client.codec.Decode(data)
		if err != nil {
			log.Warn("Failed to decode event", "error", err)
			h.reply(ctx, client, protocol.ErrorEvent(err))
			continue
		}
		h.dispatch(ctx, log, client, event)
	}
}

// WriteLoop encodes queued events and writes them to the connection.
func (h *Hub) WriteLoop(ctx context.Context, client *Client) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case event := <-client.Outgoing:
			data, err := client.codec.Encode(event)
			if err != nil {
				h.log.Error("Failed to encode event", "kind", event.Kind.String(), "error", err)
				continue
			}
			if err := client.Conn.Write(ctx, data); err != nil {
				if isClosed(ctx, err) {
					return nil
				}
				return fmt.Errorf("write failed: %w", err)
			}
		}
	}
}

// reply queues an event for the client itself. It blocks while the queue is
// full, unlike broadcast.
func (h *Hub) reply(ctx context.Context, client *Client, event protocol.Event) {
	select {
	case client.Outgoing <- event:
	case <-ctx.Done():
	}
}

// attach records user as signed in on client.
func (h *Hub) attach(client *Client, user model.ID) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return client.Info.Attach(user)
}

// broadcast sends an event to every other client holding one of the
// participants. A client whose queue is full misses it.
func (h *Hub) broadcast(event protocol.Event, sender *Client, participants []model.ID) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		if client == sender || !lo.Some(client.Info.AttachedUsers, participants) {
			continue
		}
		select {
		case client.Outgoing <- event:
		default:
			h.log.Warn("Client channel full, skipping", "remote", client.Conn.RemoteAddr())
		}
	}
}

func isClosed(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed)
}
