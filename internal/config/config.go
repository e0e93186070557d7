// Package config loads the server configuration from the environment, an
// optional .env file and command-line flags, in increasing precedence.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// ErrInvalid is returned when the loaded values are inconsistent.
var ErrInvalid = errors.New("invalid configuration")

type Config struct {
	Host             string        `env:"HOST" envDefault:"0.0.0.0:13009"`
	CertFile         string        `env:"CERT_FILE"`
	KeyFile          string        `env:"KEY_FILE"`
	LogDir           string        `env:"LOG_DIR" envDefault:"logs"`
	LogLevel         slog.Level    `env:"LOG_LEVEL" envDefault:"INFO"`
	StorePath        string        `env:"STORE_PATH"`
	HandshakeTimeout time.Duration `env:"HANDSHAKE_TIMEOUT" envDefault:"10s"`
	OutgoingBuffer   int           `env:"OUTGOING_BUFFER" envDefault:"10"`
	ShutdownTimeout  time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// TLS reports whether a certificate is configured.
func (c Config) TLS() bool {
	return c.CertFile != ""
}

// Load reads .env from the working directory if there is one, then the
// process environment, then args (without the program name).
func Load(args []string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return Parse(args, env.ToMap(os.Environ()), os.Stderr)
}

// Parse builds a Config from environ and args. Usage errors are written to
// output.
func Parse(args []string, environ map[string]string, output io.Writer) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: environ}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	flags := flag.NewFlagSet("monrst-server", flag.ContinueOnError)
	flags.SetOutput(output)
	flags.StringVar(&cfg.Host, "host", cfg.Host, "Address to listen on (e.g., 0.0.0.0:13009)")
	flags.StringVar(&cfg.CertFile, "c", cfg.CertFile, "TLS certificate file (PEM)")
	flags.StringVar(&cfg.KeyFile, "k", cfg.KeyFile, "TLS private key file (PEM)")
	if err := flags.Parse(args); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values that are only meaningful together.
func (c Config) Validate() error {
	if (c.CertFile == "") != (c.KeyFile == "") {
		return fmt.Errorf("%w: certificate and key must be given together", ErrInvalid)
	}
	if c.Host == "" {
		return fmt.Errorf("%w: empty host", ErrInvalid)
	}
	if c.HandshakeTimeout <= 0 {
		return fmt.Errorf("%w: handshake timeout must be positive, got %s", ErrInvalid, c.HandshakeTimeout)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("%w: shutdown timeout must be positive, got %s", ErrInvalid, c.ShutdownTimeout)
	}
	if c.OutgoingBuffer <= 0 {
		return fmt.Errorf("%w: outgoing buffer must be positive, got %d", ErrInvalid, c.OutgoingBuffer)
	}
	return nil
}
