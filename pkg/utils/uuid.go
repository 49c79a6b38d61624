package utils

import (
	"fmt"

	"github.com/google/uuid"
)

// NewUUID generates a new UUIDv7 (time-based).
func NewUUID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("failed to generate UUID: %w", err)
	}
	return id.String(), nil
}

// NewID generates a time-ordered entity id, falling back to a random UUIDv4
// when the v7 generator fails.
func NewID() string {
	id, err := NewUUID()
	if err != nil {
		return uuid.NewString()
	}
	return id
}

// ValidateUUID reports whether s parses as a UUID.
func ValidateUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
