package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	gfshutdown "github.com/gelmium/graceful-shutdown"

	"github.com/omochice/monrst/internal/chat"
	"github.com/omochice/monrst/internal/config"
	"github.com/omochice/monrst/internal/handshake"
	"github.com/omochice/monrst/internal/logging"
	"github.com/omochice/monrst/internal/store"
	"github.com/omochice/monrst/internal/transport/tcp"
	"github.com/omochice/monrst/internal/transport/ws"
	"github.com/omochice/monrst/pkg/protocol"
)

// Exit codes reported to the service manager.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Server terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run wires every component and blocks until SIGINT/SIGTERM or a fatal
// listener error. On a signal the listener stops first and the store closes
// after it, both within the configured shutdown timeout.
func run(args []string) (int, error) {
	cfg, err := config.Load(args)
	if errors.Is(err, flag.ErrHelp) {
		return exitOK, nil
	}
	if err != nil {
		return exitConfig, err
	}

	logger, logFile, err := logging.New(cfg.LogDir, cfg.LogLevel, os.Stderr)
	if err != nil {
		return exitConfig, err
	}
	defer logFile.Close()

	tlsConfig, err := tcp.LoadTLSConfig(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return exitConfig, err
	}

	db, err := store.OpenBadger(store.BadgerOptions{Path: cfg.StorePath, Logger: logger})
	if err != nil {
		return exitRuntime, err
	}

	version := protocol.ServerVersion()
	logger.Info("Starting server", "version", version.String(), "host", cfg.Host, "tls", cfg.TLS())

	hub := chat.NewHub(db, logger.With("component", "hub"))
	handler := ws.NewHandler(hub, handshake.New(version), ws.Options{
		HandshakeTimeout: cfg.HandshakeTimeout,
		OutgoingBuffer:   cfg.OutgoingBuffer,
	}, logger.With("component", "ws"))
	srv := tcp.New(cfg.Host, tlsConfig, handler, logger.With("component", "tcp"))

	// One operation: the store must outlive every handler.
	wait := gfshutdown.GracefulShutdown(context.Background(), cfg.ShutdownTimeout, map[string]gfshutdown.Operation{
		"server": func(ctx context.Context) error {
			logger.Info("Shutting down...")
			stopErr := srv.Stop(ctx)
			logger.Info("Closing store...")
			return errors.Join(stopErr, db.Close())
		},
	})

	served := make(chan error, 1)
	go func() { served <- srv.Start() }()

	if err := <-served; err != nil {
		_ = db.Close()
		return exitRuntime, err
	}
	if code := <-wait; code != exitOK {
		return exitRuntime, fmt.Errorf("shutdown finished with exit code %d", code)
	}
	logger.Info("Server stopped")
	return exitOK, nil
}
