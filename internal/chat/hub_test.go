package chat_test

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/omochice/monrst/internal/chat"
	"github.com/omochice/monrst/internal/model"
	"github.com/omochice/monrst/internal/store"
	"github.com/omochice/monrst/pkg/protocol"
)

func newClient(t *testing.T, conn chat.Conn, format protocol.Format) *chat.Client {
	t.Helper()
	client, err := chat.NewClient(conn, protocol.Configuration{Format: format}, model.NewClient(model.ClientKindTui), 10)
	require.NoError(t, err)
	return client
}

// session runs hub.Serve for conn in the background.
type session struct {
	conn   *mockConn
	client *chat.Client
	codec  protocol.Codec
	done   chan error
}

func startSession(t *testing.T, hub *chat.Hub, format protocol.Format) *session {
	t.Helper()
	conn := newMockConn("127.0.0.1:1234")
	codec, err := protocol.CodecFor(format)
	require.NoError(t, err)
	s := &session{
		conn:   conn,
		client: newClient(t, conn, format),
		codec:  codec,
		done:   make(chan error, 1),
	}
	go func() {
		s.done <- hub.Serve(context.Background(), s.client)
	}()
	return s
}

func (s *session) send(t *testing.T, event protocol.Event) {
	t.Helper()
	data, err := s.codec.Encode(event)
	require.NoError(t, err)
	s.conn.readCh <- data
}

func (s *session) receive(t *testing.T) protocol.Event {
	t.Helper()
	select {
	case data := <-s.conn.writtenCh:
		event, err := s.codec.Decode(data)
		require.NoError(t, err)
		return event
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for event")
		return protocol.Event{}
	}
}

// expectNothing fails if an event reaches the session shortly.
func (s *session) expectNothing(t *testing.T) {
	t.Helper()
	select {
	case data := <-s.conn.writtenCh:
		t.Fatalf("unexpected event: %s", data)
	case <-time.After(100 * time.Millisecond):
	}
}

func (s *session) close(t *testing.T) {
	t.Helper()
	close(s.conn.readCh)
	select {
	case err := <-s.done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("session did not end")
	}
}

func TestHub_Register(t *testing.T) {
	hub := chat.NewHub(store.NewMemory(), nil)
	client := newClient(t, &mockConn{remoteAddr: "127.0.0.1:1234"}, protocol.FormatJSON)

	hub.Register(client)

	if got := hub.ClientCount(); got != 1 {
		t.Errorf("ClientCount() = %d, want 1", got)
	}

	hub.Unregister(client)

	if got := hub.ClientCount(); got != 0 {
		t.Errorf("ClientCount() = %d, want 0", got)
	}
}

func TestHub_Register_MultipleClients(t *testing.T) {
	hub := chat.NewHub(store.NewMemory(), nil)

	for i := 0; i < 3; i++ {
		hub.Register(newClient(t, &mockConn{remoteAddr: "127.0.0.1:1234"}, protocol.FormatBinary))
	}

	if got := hub.ClientCount(); got != 3 {
		t.Errorf("ClientCount() = %d, want 3", got)
	}
}

func TestNewClient_UnknownFormat(t *testing.T) {
	_, err := chat.NewClient(newMockConn("x"), protocol.Configuration{Format: protocol.Format(9)}, model.Client{}, 1)
	require.ErrorIs(t, err, protocol.ErrUnknownFormat)
}

func TestHub_Serve_Ping(t *testing.T) {
	for _, format := range []protocol.Format{protocol.FormatBinary, protocol.FormatJSON} {
		t.Run(format.String(), func(t *testing.T) {
			hub := chat.NewHub(store.NewMemory(), nil)
			s := startSession(t, hub, format)

			s.send(t, protocol.Event{Kind: protocol.EventPing})
			require.Equal(t, protocol.Event{Kind: protocol.EventPong}, s.receive(t))

			s.close(t)
			require.Equal(t, 0, hub.ClientCount())
		})
	}
}

func TestHub_Serve_Conversation(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	db := store.NewMemory()
	hub := chat.NewHub(db, nil)
	s := startSession(t, hub, protocol.FormatJSON)

	s.send(t, protocol.Event{Kind: protocol.EventRegisterUser, Username: "Alice"})
	alice := s.receive(t)
	req.Equal(protocol.EventUserRegistered, alice.Kind)
	req.Equal("Alice", alice.Username)
	req.Len(alice.Discriminator, 6)

	s.send(t, protocol.Event{Kind: protocol.EventRegisterUser, Username: "Bob"})
	bob := s.receive(t)
	req.Equal(protocol.EventUserRegistered, bob.Kind)

	s.send(t, protocol.Event{Kind: protocol.EventOpenDirectMessage, Author: alice.ID, Peer: bob.ID})
	opened := s.receive(t)
	req.Equal(protocol.EventChannelOpened, opened.Kind)
	req.Equal(alice.ID, opened.Author)
	req.Equal(bob.ID, opened.Peer)

	s.send(t, protocol.Event{Kind: protocol.EventSendMessage, Channel: opened.ID, Author: alice.ID, Content: "Hello"})
	sent := s.receive(t)
	req.Equal(protocol.EventMessageSent, sent.Kind)
	req.Equal("Hello", sent.Content)

	messageID, err := model.ParseID(sent.ID)
	req.NoError(err)
	message, err := db.MessageFetch(ctx, messageID)
	req.NoError(err)
	req.Equal("Hello", message.Content)

	s.send(t, protocol.Event{Kind: protocol.EventDeleteChannel, Channel: opened.ID})
	req.Equal(protocol.Event{Kind: protocol.EventChannelDeleted, Channel: opened.ID}, s.receive(t))

	_, err = db.MessageFetch(ctx, messageID)
	req.ErrorIs(err, store.ErrNotFound)

	s.close(t)
	req.Len(s.client.Info.AttachedUsers, 2)
}

func TestHub_Serve_Failures(t *testing.T) {
	hub := chat.NewHub(store.NewMemory(), nil)
	s := startSession(t, hub, protocol.FormatJSON)

	tests := []struct {
		name  string
		event protocol.Event
	}{
		{"unknown author", protocol.Event{Kind: protocol.EventOpenDirectMessage, Author: model.NewUser("x").ID.String(), Peer: model.NewUser("y").ID.String()}},
		{"malformed id", protocol.Event{Kind: protocol.EventSendMessage, Channel: "nope", Author: "nope"}},
		{"missing channel", protocol.Event{Kind: protocol.EventDeleteChannel, Channel: model.NewUser("x").ID.String()}},
		{"empty username", protocol.Event{Kind: protocol.EventRegisterUser}},
		{"server event", protocol.Event{Kind: protocol.EventPong}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s.send(t, tt.event)
			got := s.receive(t)
			require.Equal(t, protocol.EventError, got.Kind)
			require.NotEmpty(t, got.Reason)
		})
	}

	// Garbage is answered, and the session keeps going.
	s.conn.readCh <- []byte("{not json")
	require.Equal(t, protocol.EventError, s.receive(t).Kind)
	s.send(t, protocol.Event{Kind: protocol.EventPing})
	require.Equal(t, protocol.EventPong, s.receive(t).Kind)

	s.close(t)
}

func TestHub_Serve_Broadcast(t *testing.T) {
	req := require.New(t)
	hub := chat.NewHub(store.NewMemory(), nil)
	alice := startSession(t, hub, protocol.FormatJSON)
	bob := startSession(t, hub, protocol.FormatBinary)
	carol := startSession(t, hub, protocol.FormatJSON)
	req.Eventually(func() bool { return hub.ClientCount() == 3 }, time.Second, 10*time.Millisecond)

	register := func(s *session, name string) protocol.Event {
		s.send(t, protocol.Event{Kind: protocol.EventRegisterUser, Username: name})
		user := s.receive(t)
		req.Equal(protocol.EventUserRegistered, user.Kind)
		return user
	}
	aliceUser := register(alice, "Alice")
	bobUser := register(bob, "Bob")
	register(carol, "Carol")

	alice.send(t, protocol.Event{Kind: protocol.EventOpenDirectMessage, Author: aliceUser.ID, Peer: bobUser.ID})
	channel := alice.receive(t)

	alice.send(t, protocol.Event{Kind: protocol.EventSendMessage, Channel: channel.ID, Author: aliceUser.ID, Content: "hi"})
	ack := alice.receive(t)
	req.Equal(protocol.EventMessageSent, ack.Kind)

	// Bob decodes the same event with his own format.
	req.Equal(ack, bob.receive(t))
	carol.expectNothing(t)

	alice.send(t, protocol.Event{Kind: protocol.EventDeleteChannel, Channel: channel.ID})
	deleted := alice.receive(t)
	req.Equal(protocol.EventChannelDeleted, deleted.Kind)
	req.Equal(deleted, bob.receive(t))
	carol.expectNothing(t)

	alice.close(t)
	bob.close(t)
	carol.close(t)
}

func TestHub_Serve_ReadError(t *testing.T) {
	hub := chat.NewHub(store.NewMemory(), nil)
	conn := newMockConn("127.0.0.1:1234")
	conn.readErr = errors.New("connection reset")

	err := hub.Serve(context.Background(), newClient(t, conn, protocol.FormatJSON))
	require.ErrorContains(t, err, "connection reset")
	require.Equal(t, 0, hub.ClientCount())
}

func TestHub_Serve_WriteError(t *testing.T) {
	hub := chat.NewHub(store.NewMemory(), nil)
	conn := newMockConn("127.0.0.1:1234")
	conn.writeErr = io.ErrClosedPipe
	client := newClient(t, conn, protocol.FormatJSON)

	done := make(chan error, 1)
	go func() { done <- hub.Serve(context.Background(), client) }()

	codec, err := protocol.CodecFor(protocol.FormatJSON)
	require.NoError(t, err)
	data, err := codec.Encode(protocol.Event{Kind: protocol.EventPing})
	require.NoError(t, err)
	conn.readCh <- data

	select {
	case err := <-done:
		require.ErrorIs(t, err, io.ErrClosedPipe)
	case <-time.After(2 * time.Second):
		t.Fatal("session did not end")
	}
}

func TestHub_Serve_ContextCancelled(t *testing.T) {
	hub := chat.NewHub(store.NewMemory(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	client := newClient(t, newMockConn("127.0.0.1:1234"), protocol.FormatJSON)

	done := make(chan error, 1)
	go func() { done <- hub.Serve(ctx, client) }()
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("session did not end")
	}
	require.Equal(t, 0, hub.ClientCount())
}
