package model

import "github.com/google/uuid"

// Server is a community owned by one user.
type Server struct {
	ID          ID
	Owner       ID
	Name        string `validate:"required,utf8"`
	Description string `validate:"utf8"`
}

// NewServer creates a server with a fresh id.
func NewServer(owner ID, name, description string) Server {
	return Server{
		ID:          uuid.New(),
		Owner:       owner,
		Name:        name,
		Description: description,
	}
}

// Validate checks the server's attributes.
func (s Server) Validate() error {
	return validateStruct("server", s)
}
