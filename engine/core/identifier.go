package core

import (
	"strings"

	"github.com/google/uuid"
)

// NewRunID returns the identifier attached to every log line of one batch run.
func NewRunID() string {
	return uuid.New().String()
}

// ShortID trims an identifier to its first block for compact log prefixes.
func ShortID(id string) string {
	if i := strings.IndexByte(id, '-'); i > 0 {
		return id[:i]
	}
	return id
}
