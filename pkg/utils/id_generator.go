// Package utils holds small helpers shared by the services.
package utils

import (
	"github.com/google/uuid"
)

// GenerateID returns a random UUID v4 string. SOS alerts and rides use it as
// their document id, so ids can be minted before the write and are the same
// across the memory and Firestore backends.
func GenerateID() string {
	return uuid.New().String()
}
