// Package ws runs the WebSocket upgrade, negotiates the session
// configuration during it and adapts upgraded connections to chat.Conn.
package ws

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/omochice/monrst/pkg/protocol"
)

// Conn adapts an upgraded gobwas/ws connection to the chat.Conn interface.
// One goroutine may read while others write.
type Conn struct {
	conn net.Conn
	// src is conn, or the dialer's buffered reader in front of it.
	src  io.Reader
	side ws.State
	op   ws.OpCode

	// wmu keeps frames whole: data frames from Write and Close, and control
	// replies sent by Read.
	wmu       sync.Mutex
	closeOnce sync.Once
}

// NewServerConn wraps the server side of an upgraded connection.
func NewServerConn(conn net.Conn, format protocol.Format) *Conn {
	return &Conn{conn: conn, src: conn, side: ws.StateServerSide, op: OpFor(format)}
}

// NewClientConn wraps the client side of a dialed connection. br is the
// reader returned by ws.Dial and may be nil.
func NewClientConn(conn net.Conn, br *bufio.Reader, format protocol.Format) *Conn {
	var src io.Reader = conn
	if br != nil {
		src = br
	}
	return &Conn{conn: conn, src: src, side: ws.StateClientSide, op: OpFor(format)}
}

// lockedWriter writes to the connection under the write lock. Control
// replies fit in a single Write.
type lockedWriter struct {
	c *Conn
}

func (w lockedWriter) Write(p []byte) (int, error) {
	w.c.wmu.Lock()
	defer w.c.wmu.Unlock()
	return w.c.conn.Write(p)
}

// OpFor returns the frame opcode carrying the given format: text frames for
// JSON, binary frames otherwise.
func OpFor(format protocol.Format) ws.OpCode {
	if format == protocol.FormatJSON {
		return ws.OpText
	}
	return ws.OpBinary
}

// Read implements chat.Conn.
// Control frames are answered internally. A close frame reads as io.EOF.
func (c *Conn) Read(ctx context.Context) ([]byte, error) {
	stop := interruptOnDone(ctx, c.conn.SetReadDeadline)
	defer stop()

	data, err := c.readData()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		var closed wsutil.ClosedError
		if errors.As(err, &closed) {
			return nil, io.EOF
		}
		return nil, err
	}
	return data, nil
}

// readData returns the payload of the next text or binary message. Pings and
// closes met on the way are answered through lockedWriter.
func (c *Conn) readData() ([]byte, error) {
	control := wsutil.ControlFrameHandler(lockedWriter{c}, c.side)
	rd := wsutil.Reader{
		Source:         c.src,
		State:          c.side,
		CheckUTF8:      true,
		OnIntermediate: control,
	}
	for {
		hdr, err := rd.NextFrame()
		if err != nil {
			return nil, err
		}
		if hdr.OpCode.IsControl() {
			if err := control(hdr, &rd); err != nil {
				return nil, err
			}
			continue
		}
		if hdr.OpCode&(ws.OpText|ws.OpBinary) == 0 {
			if err := rd.Discard(); err != nil {
				return nil, err
			}
			continue
		}
		return io.ReadAll(&rd)
	}
}

// Write implements chat.Conn.
func (c *Conn) Write(ctx context.Context, data []byte) error {
	stop := interruptOnDone(ctx, c.conn.SetWriteDeadline)
	defer stop()

	c.wmu.Lock()
	defer c.wmu.Unlock()
	if err := wsutil.WriteMessage(c.conn, c.side, c.op, data); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	return nil
}

// Close implements chat.Conn. It sends a close frame before closing the
// underlying connection.
func (c *Conn) Close() error {
	err := net.ErrClosed
	c.closeOnce.Do(func() {
		// The deadline also releases a Write stuck on a peer that stopped reading.
		_ = c.conn.SetWriteDeadline(time.Now().Add(time.Second))
		c.wmu.Lock()
		_ = wsutil.WriteMessage(c.conn, c.side, ws.OpClose, ws.NewCloseFrameBody(ws.StatusNormalClosure, ""))
		c.wmu.Unlock()
		err = c.conn.Close()
	})
	return err
}

// RemoteAddr implements chat.Conn.
func (c *Conn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// interruptOnDone unblocks a pending read or write once ctx is done by moving
// its deadline into the past.
func interruptOnDone(ctx context.Context, setDeadline func(time.Time) error) (stop func() bool) {
	return context.AfterFunc(ctx, func() {
		_ = setDeadline(time.Unix(1, 0))
	})
}
