// Package tcp accepts TCP connections, optionally terminates TLS on them and
// hands each one to a Handler on its own goroutine.
package tcp

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
)

// Handler serves one accepted connection. It owns conn and must close it.
type Handler interface {
	ServeConn(ctx context.Context, conn net.Conn)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, conn net.Conn)

func (f HandlerFunc) ServeConn(ctx context.Context, conn net.Conn) {
	f(ctx, conn)
}

// Server accepts connections and dispatches them to a Handler.
type Server struct {
	address   string
	tlsConfig *tls.Config
	handler   Handler
	log       *slog.Logger

	mu       sync.Mutex
	listener net.Listener
	ctx      context.Context
	cancel   context.CancelFunc
	quit     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a server listening on address. tlsConfig may be nil for plain
// TCP.
func New(address string, tlsConfig *tls.Config, handler Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		address:   address,
		tlsConfig: tlsConfig,
		handler:   handler,
		log:       logger,
		ctx:       ctx,
		cancel:    cancel,
		quit:      make(chan struct{}),
		stopped:   make(chan struct{}),
	}
}

// Start starts accepting connections. It blocks until Stop is called.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("failed to start TCP server: %w", err)
	}
	if s.tlsConfig != nil {
		listener = tls.NewListener(listener, s.tlsConfig)
	}

	s.mu.Lock()
	select {
	case <-s.quit:
		s.mu.Unlock()
		listener.Close()
		return nil
	default:
	}
	s.listener = listener
	s.mu.Unlock()

	s.log.Info("Server started", "address", listener.Addr().String(), "tls", s.tlsConfig != nil)

	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-s.quit:
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			s.log.Warn("Failed to accept connection", "error", err)
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handler.ServeConn(s.ctx, conn)
		}()
	}
}

// Stop stops accepting connections, cancels the context handed to every
// running handler and waits for them to return. It gives up when ctx is done
// first; the handlers keep draining in the background.
func (s *Server) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		close(s.quit)
		if s.listener != nil {
			s.listener.Close()
		}
		s.mu.Unlock()

		s.cancel()
		go func() {
			s.wg.Wait()
			s.log.Info("Server stopped")
			close(s.stopped)
		}()
	})

	select {
	case <-s.stopped:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("handlers still running: %w", ctx.Err())
	}
}

// Addr returns the listening address.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

// LoadTLSConfig loads a certificate pair. Both paths empty means no TLS.
func LoadTLSConfig(certFile, keyFile string) (*tls.Config, error) {
	if certFile == "" && keyFile == "" {
		return nil, nil
	}
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load certificate: %w", err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}
