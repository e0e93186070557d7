package ws

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gobwas/ws"

	"github.com/omochice/monrst/internal/chat"
	"github.com/omochice/monrst/internal/handshake"
	"github.com/omochice/monrst/internal/model"
)

// ReasonHeader carries the rejection reason of a refused upgrade.
const ReasonHeader = "X-Monrst-Reason"

// Options tunes a Handler.
type Options struct {
	// HandshakeTimeout bounds the time between accept and a completed upgrade.
	HandshakeTimeout time.Duration
	// OutgoingBuffer is the size of each client's outgoing event queue.
	OutgoingBuffer int
}

// Handler upgrades raw connections to WebSocket. The upgrade is only
// accepted when the request query negotiates a configuration; admitted
// connections are then served by the hub.
type Handler struct {
	hub        *chat.Hub
	controller *handshake.Controller
	options    Options
	log        *slog.Logger
}

// NewHandler creates a Handler.
func NewHandler(hub *chat.Hub, controller *handshake.Controller, options Options, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if options.HandshakeTimeout <= 0 {
		options.HandshakeTimeout = 10 * time.Second
	}
	if options.OutgoingBuffer <= 0 {
		options.OutgoingBuffer = 10
	}
	return &Handler{
		hub:        hub,
		controller: controller,
		options:    options,
		log:        logger,
	}
}

// ServeConn runs the handshake on conn and, once admitted, the session.
// It closes conn before returning.
func (h *Handler) ServeConn(ctx context.Context, conn net.Conn) {
	log := h.log.With("remote", conn.RemoteAddr().String())

	attempt := h.controller.Begin()
	var info model.Client

	upgrader := ws.Upgrader{
		OnRequest: func(uri []byte) error {
			params, err := handshake.ParseQuery(string(uri))
			if err != nil {
				attempt.Reject(err)
				return reject(err)
			}
			if _, err := attempt.Resolve(params); err != nil {
				return reject(err)
			}
			kind, _ := params.Get(handshake.ParamClient)
			info = model.NewClient(model.ParseClientKind(kind))
			return nil
		},
	}

	_ = conn.SetDeadline(time.Now().Add(h.options.HandshakeTimeout))
	if _, err := upgrader.Upgrade(conn); err != nil {
		if isTimeout(err) {
			attempt.Expire()
		} else {
			attempt.Reject(err)
		}
		// An admitted attempt stays admitted; the request then failed as a
		// WebSocket upgrade and err tells why.
		_, reason := attempt.Outcome()
		if reason == nil {
			reason = err
		}
		log.Info("Connection rejected", "state", attempt.State().String(), "reason", reason)
		_ = conn.Close()
		return
	}
	_ = conn.SetDeadline(time.Time{})

	config, _ := attempt.Outcome()
	wsConn := NewServerConn(conn, config.Format)
	defer wsConn.Close()

	client, err := chat.NewClient(wsConn, config, info, h.options.OutgoingBuffer)
	if err != nil {
		log.Error("Failed to create client", "error", err)
		return
	}

	log = log.With("client", info.ID, "kind", info.Kind.String(), "format", config.Format.String())
	log.Info("Connection admitted")
	if err := h.hub.Serve(ctx, client); err != nil {
		log.Warn("Session ended with error", "error", err)
		return
	}
	log.Info("Session ended")
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.Is(err, os.ErrDeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout())
}

// reject answers the upgrade request with 400 and the reason, both in the
// body and in ReasonHeader.
func reject(err error) error {
	reason := strings.NewReplacer("\r", " ", "\n", " ").Replace(err.Error())
	return ws.RejectConnectionError(
		ws.RejectionStatus(http.StatusBadRequest),
		ws.RejectionReason(reason),
		ws.RejectionHeader(ws.HandshakeHeaderHTTP(http.Header{ReasonHeader: []string{reason}})),
	)
}
