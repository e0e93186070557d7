// Package ws provides a WebSocket client for the chat server.
package ws

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/gobwas/ws"

	"github.com/omochice/monrst/internal/client"
	"github.com/omochice/monrst/internal/handshake"
	"github.com/omochice/monrst/internal/model"
	transportws "github.com/omochice/monrst/internal/transport/ws"
	"github.com/omochice/monrst/pkg/protocol"
)

// ErrRejected is returned by Connect when the server refuses the handshake.
var ErrRejected = errors.New("connection rejected")

// ErrNotConnected is returned when sending without a connection.
var ErrNotConnected = errors.New("not connected to server")

// Options configures a Client. The zero value speaks the binary format with
// this build's protocol version.
type Options struct {
	Version   protocol.Version
	Format    protocol.Format
	Kind      model.ClientKind
	TLSConfig *tls.Config
	Logger    *slog.Logger
}

// Client represents a WebSocket chat client.
type Client struct {
	address string
	options Options
	codec   protocol.Codec
	log     *slog.Logger

	conn   *transportws.Conn
	events chan protocol.Event
	mu     sync.RWMutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var _ client.Client = (*Client)(nil)

// New creates a new WebSocket Client instance. address is either host:port
// or a ws:// or wss:// URL.
func New(address string, options Options) (*Client, error) {
	if options.Version == (protocol.Version{}) {
		options.Version = protocol.ServerVersion()
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}
	codec, err := protocol.CodecFor(options.Format)
	if err != nil {
		return nil, err
	}
	return &Client{
		address: address,
		options: options,
		codec:   codec,
		log:     options.Logger,
		events:  make(chan protocol.Event, 10),
	}, nil
}

// URL returns the address to dial, negotiation parameters included.
func (c *Client) URL() (string, error) {
	address := c.address
	if !strings.Contains(address, "://") {
		scheme := "ws"
		if c.options.TLSConfig != nil {
			scheme = "wss"
		}
		address = scheme + "://" + address
	}
	u, err := url.Parse(address)
	if err != nil {
		return "", fmt.Errorf("invalid address %q: %w", c.address, err)
	}
	if u.Path == "" {
		u.Path = "/"
	}

	query := u.Query()
	query.Set(handshake.ParamVersion, c.options.Version.String())
	query.Set(handshake.ParamFormat, c.options.Format.String())
	if c.options.Kind != model.ClientKindUnknown {
		query.Set(handshake.ParamClient, c.options.Kind.String())
	}
	u.RawQuery = query.Encode()
	return u.String(), nil
}

// Connect dials the server and runs the handshake. A refused handshake
// returns an error wrapping ErrRejected with the server's reason.
func (c *Client) Connect(ctx context.Context) error {
	address, err := c.URL()
	if err != nil {
		return err
	}

	var reason string
	dialer := ws.Dialer{
		TLSConfig: c.options.TLSConfig,
		OnStatusError: func(status int, _ []byte, resp io.Reader) {
			r, err := http.ReadResponse(bufio.NewReader(resp), nil)
			if err != nil {
				return
			}
			reason = r.Header.Get(transportws.ReasonHeader)
		},
	}

	conn, br, _, err := dialer.Dial(ctx, address)
	if err != nil {
		var status ws.StatusError
		if errors.As(err, &status) {
			return fmt.Errorf("%w (%d): %s", ErrRejected, int(status), reason)
		}
		return fmt.Errorf("failed to connect to server: %w", err)
	}

	readCtx, cancel := context.WithCancel(context.Background())
	wsConn := transportws.NewClientConn(conn, br, c.options.Format)
	events := make(chan protocol.Event, 10)

	c.mu.Lock()
	c.conn = wsConn
	c.events = events
	c.cancel = cancel
	c.mu.Unlock()

	c.log.Debug("Connected", "url", address)

	c.wg.Add(1)
	go c.receiveEvents(readCtx, wsConn, events)

	return nil
}

// Disconnect closes the WebSocket connection.
func (c *Client) Disconnect() {
	c.mu.Lock()
	if c.conn != nil {
		c.cancel()
		c.conn.Close()
		c.conn = nil
	}
	c.mu.Unlock()

	c.wg.Wait()
}

// IsConnected returns whether the client is connected.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil
}

// Events returns the channel of events received on the current connection.
// It is closed once that connection ends.
func (c *Client) Events() <-chan protocol.Event {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.events
}

// Send encodes and writes an event.
func (c *Client) Send(event protocol.Event) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil {
		return ErrNotConnected
	}

	data, err := c.codec.Encode(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	if err := conn.Write(context.Background(), data); err != nil {
		return fmt.Errorf("failed to send event: %w", err)
	}

	return nil
}

// Ping asks the server for a pong.
func (c *Client) Ping() error {
	return c.Send(protocol.Event{Kind: protocol.EventPing})
}

// RegisterUser creates a user. The server answers with user_registered.
func (c *Client) RegisterUser(username string) error {
	return c.Send(protocol.Event{Kind: protocol.EventRegisterUser, Username: username})
}

// OpenDirectMessage opens a direct message channel between two users.
func (c *Client) OpenDirectMessage(author, peer string) error {
	return c.Send(protocol.Event{Kind: protocol.EventOpenDirectMessage, Author: author, Peer: peer})
}

// SendMessage posts content to a channel.
func (c *Client) SendMessage(channel, author, content string) error {
	return c.Send(protocol.Event{Kind: protocol.EventSendMessage, Channel: channel, Author: author, Content: content})
}

// DeleteChannel deletes a channel and all of its messages.
func (c *Client) DeleteChannel(channel string) error {
	return c.Send(protocol.Event{Kind: protocol.EventDeleteChannel, Channel: channel})
}

func (c *Client) receiveEvents(ctx context.Context, conn *transportws.Conn, events chan<- protocol.Event) {
	defer c.wg.Done()
	defer close(events)

	for {
		data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, io.EOF) {
				c.log.Warn("Error reading from server", "error", err)
			}
			return
		}

		event, err := c.codec.Decode(data)
		if err != nil {
			c.log.Warn("Failed to decode event", "error", err)
			continue
		}

		select {
		case events <- event:
		case <-ctx.Done():
			return
		}
	}
}
