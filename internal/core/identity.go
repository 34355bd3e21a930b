package core

import (
	"github.com/google/uuid"
)

// Identity is the stable handle of a node within a process.
type Identity struct {
	ID string
}

// NewIdentity generates a fresh random identity.
func NewIdentity() *Identity {
	return &Identity{ID: uuid.NewString()}
}

// ShortID trims an identifier for log fields.
func ShortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
