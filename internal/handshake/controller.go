// Package handshake decides whether a new connection is admitted into a
// session and, if so, with which Configuration.
package handshake

import (
	"fmt"

	"github.com/omochice/monrst/pkg/protocol"
)

// Controller validates negotiation parameters against the server version.
// It holds no mutable state and is safe for concurrent use.
type Controller struct {
	server protocol.Version
}

// New creates a Controller negotiating against server.
func New(server protocol.Version) *Controller {
	return &Controller{server: server}
}

// Server returns the version the controller negotiates against.
func (c *Controller) Server() protocol.Version {
	return c.server
}

// Negotiate checks, in order: presence of version, presence of format,
// version syntax, format name, compatibility with the server version.
// The first failing check decides the returned *Error.
func (c *Controller) Negotiate(params Params) (protocol.Configuration, error) {
	rawVersion, ok := params.Get(ParamVersion)
	if !ok {
		return protocol.Configuration{}, &Error{Kind: ErrMissingParameter, Param: ParamVersion}
	}
	rawFormat, ok := params.Get(ParamFormat)
	if !ok {
		return protocol.Configuration{}, &Error{Kind: ErrMissingParameter, Param: ParamFormat}
	}

	version, err := protocol.ParseVersion(rawVersion)
	if err != nil {
		return protocol.Configuration{}, &Error{Kind: ErrMalformedVersion, Param: ParamVersion, Cause: err}
	}
	format, err := protocol.ParseFormat(rawFormat)
	if err != nil {
		return protocol.Configuration{}, &Error{Kind: ErrUnknownFormat, Param: ParamFormat, Cause: err}
	}

	if !protocol.AreCompatible(version, c.server) {
		return protocol.Configuration{}, &Error{
			Kind:  ErrIncompatibleVersion,
			Cause: fmt.Errorf("client %s, server %s", version, c.server),
		}
	}

	return protocol.Configuration{Format: format}, nil
}
