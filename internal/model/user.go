// Package model holds the entities shared by the store and the session layer.
package model

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// ID identifies every entity.
type ID = uuid.UUID

// ParseID reads the canonical text form of an ID.
func ParseID(s string) (ID, error) {
	return uuid.Parse(s)
}

var (
	// ErrInvalid is wrapped by every validation failure.
	ErrInvalid = errors.New("invalid entity")
	// ErrMalformedDiscriminator is returned when a discriminator is not 6 hex digits.
	ErrMalformedDiscriminator = errors.New("malformed discriminator")
)

var validate = newValidator()

// newValidator adds the "utf8" rule: stored text must be valid UTF-8.
func newValidator() *validator.Validate {
	v := validator.New()
	if err := v.RegisterValidation("utf8", func(fl validator.FieldLevel) bool {
		return utf8.ValidString(fl.Field().String())
	}); err != nil {
		panic(err)
	}
	return v
}

func validateStruct(kind string, v any) error {
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalid, kind, err)
	}
	return nil
}

// Discriminator tells apart users sharing a username.
type Discriminator [3]byte

// GenerateDiscriminator returns a random discriminator.
func GenerateDiscriminator() Discriminator {
	var d Discriminator
	_, _ = rand.Read(d[:])
	return d
}

// ParseDiscriminator reads exactly six hexadecimal digits.
func ParseDiscriminator(s string) (Discriminator, error) {
	var d Discriminator
	if len(s) != 2*len(d) {
		return d, fmt.Errorf("%w: %q must be %d hex digits", ErrMalformedDiscriminator, s, 2*len(d))
	}
	if _, err := hex.Decode(d[:], []byte(s)); err != nil {
		return Discriminator{}, fmt.Errorf("%w: %q: %v", ErrMalformedDiscriminator, s, err)
	}
	return d, nil
}

func (d Discriminator) String() string {
	return strings.ToUpper(hex.EncodeToString(d[:]))
}

// User is an account owned by a person, as opposed to a bot.
type User struct {
	ID            ID
	Username      string `validate:"required,utf8"`
	Discriminator Discriminator
	Online        bool
}

// NewUser creates an offline user with a fresh id and a random discriminator.
func NewUser(username string) User {
	return User{
		ID:            uuid.New(),
		Username:      username,
		Discriminator: GenerateDiscriminator(),
	}
}

// Tag renders "username#DISCRIMINATOR".
func (u User) Tag() string {
	return u.Username + "#" + u.Discriminator.String()
}

// Validate checks the user's attributes.
func (u User) Validate() error {
	return validateStruct("user", u)
}
