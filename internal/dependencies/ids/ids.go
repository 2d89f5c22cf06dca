package ids

import "github.com/google/uuid"

// Generator produces unique identifiers that can be mocked for testing
type Generator interface {
	// NewID returns a new unique identifier
	NewID() string
}

// UUIDGenerator implements Generator using random (v4) UUIDs
type UUIDGenerator struct{}

// New creates a new UUIDGenerator
func New() *UUIDGenerator {
	return &UUIDGenerator{}
}

// NewID returns a new random UUID string
func (g *UUIDGenerator) NewID() string {
	return uuid.NewString()
}
