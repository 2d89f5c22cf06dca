package mocks

import (
	"fmt"
	"sync"

	"github.com/mcoot/clanadmin/internal/dependencies/ids"
)

// MockIDs is a mock implementation of ids.Generator for testing
type MockIDs struct {
	mu sync.Mutex

	// Queued is a queue of ids to return from NewID
	Queued []string
	index  int

	// fallback counter once the queue is exhausted
	counter int
}

// Ensure MockIDs implements Generator
var _ ids.Generator = (*MockIDs)(nil)

// NewMockIDs creates a new MockIDs
func NewMockIDs() *MockIDs {
	return &MockIDs{}
}

// NewID returns the next queued id, or a sequential "member-N" id if none remain
func (g *MockIDs) NewID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.index < len(g.Queued) {
		id := g.Queued[g.index]
		g.index++
		return id
	}
	g.counter++
	return fmt.Sprintf("member-%d", g.counter)
}

// Queue adds ids to the result queue
func (g *MockIDs) Queue(values ...string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Queued = append(g.Queued, values...)
}
