package models

import (
	"strings"

	"github.com/google/uuid"
)

// localIDPrefix marks records created locally that the server has not
// confirmed yet. Confirmed records always carry a plain server id.
const localIDPrefix = "local-"

// NewLocalID returns a provisional identifier for an optimistic record.
func NewLocalID() string {
	return localIDPrefix + uuid.New().String()
}

// IsLocalID reports whether id is a provisional identifier.
func IsLocalID(id string) bool {
	return strings.HasPrefix(id, localIDPrefix)
}
