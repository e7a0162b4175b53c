package deploy

import (
	"context"
	"sync"
)

// Guard allows at most one deploy at a time without queueing: a second
// caller is turned away instead of waiting.
type Guard struct {
	mu sync.Mutex
}

// TryLock attempts to take the guard. It never blocks.
func (g *Guard) TryLock() bool {
	return g.mu.TryLock()
}

// Unlock releases the guard taken by a successful TryLock.
func (g *Guard) Unlock() {
	g.mu.Unlock()
}

// Serialized wraps a Deployer so overlapping runs fail with ErrDeployInProgress.
func Serialized(d Deployer) Deployer {
	return &serialized{next: d}
}

type serialized struct {
	guard Guard
	next  Deployer
}

func (s *serialized) Run(ctx context.Context, req Request) (*Result, error) {
	if !s.guard.TryLock() {
		return nil, ErrDeployInProgress
	}
	defer s.guard.Unlock()

	return s.next.Run(ctx, req)
}
