package ws_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"testing"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/stretchr/testify/require"

	transportws "github.com/omochice/monrst/internal/transport/ws"
	"github.com/omochice/monrst/pkg/protocol"
)

// tcpPair returns both ends of a loopback TCP connection.
func tcpPair(t *testing.T) (server, client net.Conn) {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := listener.Accept()
		if err != nil {
			close(accepted)
			return
		}
		accepted <- conn
	}()

	client, err = net.Dial("tcp", listener.Addr().String())
	require.NoError(t, err)
	server = <-accepted
	require.NotNil(t, server)
	t.Cleanup(func() {
		server.Close()
		client.Close()
	})
	return server, client
}

func TestConn_Read(t *testing.T) {
	server, client := tcpPair(t)
	conn := transportws.NewServerConn(server, protocol.FormatBinary)

	require.NoError(t, wsutil.WriteClientBinary(client, []byte("test message")))

	data, err := conn.Read(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != "test message" {
		t.Errorf("Read() = %q, want %q", string(data), "test message")
	}
}

func TestConn_Write(t *testing.T) {
	tests := []struct {
		format protocol.Format
		op     ws.OpCode
	}{
		{protocol.FormatBinary, ws.OpBinary},
		{protocol.FormatJSON, ws.OpText},
	}

	for _, tt := range tests {
		t.Run(tt.format.String(), func(t *testing.T) {
			server, client := tcpPair(t)
			conn := transportws.NewServerConn(server, tt.format)

			require.NoError(t, conn.Write(context.Background(), []byte("test message")))

			data, op, err := wsutil.ReadServerData(client)
			require.NoError(t, err)
			require.Equal(t, tt.op, op)
			require.Equal(t, "test message", string(data))
		})
	}
}

func TestConn_ClientServerRoundTrip(t *testing.T) {
	server, client := tcpPair(t)
	serverConn := transportws.NewServerConn(server, protocol.FormatJSON)
	clientConn := transportws.NewClientConn(client, nil, protocol.FormatJSON)
	ctx := context.Background()

	require.NoError(t, clientConn.Write(ctx, []byte(`{"kind":"ping"}`)))
	data, err := serverConn.Read(ctx)
	require.NoError(t, err)
	require.Equal(t, `{"kind":"ping"}`, string(data))

	require.NoError(t, serverConn.Write(ctx, []byte(`{"kind":"pong"}`)))
	data, err = clientConn.Read(ctx)
	require.NoError(t, err)
	require.Equal(t, `{"kind":"pong"}`, string(data))

	require.Equal(t, client.LocalAddr().String(), serverConn.RemoteAddr())
}

func TestConn_Close(t *testing.T) {
	server, client := tcpPair(t)
	serverConn := transportws.NewServerConn(server, protocol.FormatBinary)
	clientConn := transportws.NewClientConn(client, nil, protocol.FormatBinary)

	require.NoError(t, serverConn.Close())
	require.ErrorIs(t, serverConn.Close(), net.ErrClosed)

	_, err := clientConn.Read(context.Background())
	require.ErrorIs(t, err, io.EOF)
}

func TestConn_Read_ContextCancelled(t *testing.T) {
	server, _ := tcpPair(t)
	conn := transportws.NewServerConn(server, protocol.FormatBinary)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	_, err := conn.Read(ctx)
	require.True(t, errors.Is(err, context.Canceled), "got %v", err)
}

// Pongs answered by Read share the socket with frames sent by Write. The peer
// must see every frame whole and in order.
func TestConn_ConcurrentPingsAndWrites(t *testing.T) {
	tests := []struct {
		name string
		wrap func(conn net.Conn) *transportws.Conn
		ping func(w io.Writer, p []byte) error
	}{
		{
			name: "server side",
			wrap: func(conn net.Conn) *transportws.Conn {
				return transportws.NewServerConn(conn, protocol.FormatBinary)
			},
			ping: func(w io.Writer, p []byte) error { return wsutil.WriteClientMessage(w, ws.OpPing, p) },
		},
		{
			name: "client side",
			wrap: func(conn net.Conn) *transportws.Conn {
				return transportws.NewClientConn(conn, nil, protocol.FormatBinary)
			},
			ping: func(w io.Writer, p []byte) error { return wsutil.WriteServerMessage(w, ws.OpPing, p) },
		},
	}

	const frames = 3000
	payload := func(i int) []byte {
		return bytes.Repeat([]byte(fmt.Sprintf("%06d", i)), 64)
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			local, peer := tcpPair(t)
			conn := tt.wrap(local)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			go func() {
				for {
					if _, err := conn.Read(ctx); err != nil {
						return
					}
				}
			}()
			go func() {
				for i := 0; i < frames; i++ {
					if err := conn.Write(ctx, payload(i)); err != nil {
						return
					}
				}
			}()
			go func() {
				for i := 0; i < frames; i++ {
					if err := tt.ping(peer, []byte("are you there")); err != nil {
						return
					}
				}
			}()

			require.NoError(t, peer.SetReadDeadline(time.Now().Add(10*time.Second)))
			for i := 0; i < frames; {
				frame, err := ws.ReadFrame(peer)
				require.NoError(t, err, "after %d frames", i)
				if frame.Header.Masked {
					frame = ws.UnmaskFrameInPlace(frame)
				}
				switch frame.Header.OpCode {
				case ws.OpPong:
					require.Equal(t, "are you there", string(frame.Payload))
				case ws.OpBinary:
					require.Equal(t, payload(i), frame.Payload, "frame %d", i)
					i++
				default:
					t.Fatalf("frame %d: unexpected opcode %v", i, frame.Header.OpCode)
				}
			}
		})
	}
}
