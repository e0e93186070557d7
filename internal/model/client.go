package model

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// ErrAlreadyAttached is returned when attaching a user twice to a client.
var ErrAlreadyAttached = errors.New("user already attached to client")

// ClientKind is the application a client runs in.
type ClientKind int

const (
	ClientKindUnknown ClientKind = iota
	ClientKindTui
	ClientKindDesktop
	ClientKindMobile
	ClientKindWeb
)

var clientKindNames = []string{"unknown", "tui", "desktop", "mobile", "web"}

// ParseClientKind matches a kind name ignoring case. Anything else is
// ClientKindUnknown.
func ParseClientKind(s string) ClientKind {
	_, index, ok := lo.FindIndexOf(clientKindNames, func(name string) bool {
		return strings.EqualFold(name, s)
	})
	if !ok {
		return ClientKindUnknown
	}
	return ClientKind(index)
}

func (k ClientKind) String() string {
	if k < 0 || int(k) >= len(clientKindNames) {
		return clientKindNames[ClientKindUnknown]
	}
	return clientKindNames[k]
}

// Client is one running application. A user may be signed in on several
// clients, and a client may hold several users.
type Client struct {
	ID            ID
	Kind          ClientKind
	AttachedUsers []ID
}

// NewClient creates a client with no attached user.
func NewClient(kind ClientKind) Client {
	return Client{
		ID:   uuid.New(),
		Kind: kind,
	}
}

// Attach adds a user to the client.
func (c *Client) Attach(user ID) error {
	if lo.Contains(c.AttachedUsers, user) {
		return fmt.Errorf("%w: %s", ErrAlreadyAttached, user)
	}
	c.AttachedUsers = append(c.AttachedUsers, user)
	return nil
}
