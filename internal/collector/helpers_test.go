package collector

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dyra-12/cogniviz/internal/snapshot"
)

// #region mock

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fakePublisher struct {
	mu        sync.Mutex
	published []snapshot.Snapshot
}

func (p *fakePublisher) Publish(_ string, data snapshot.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, data)
}

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.published)
}

type fakePersister struct {
	saved map[string]snapshot.Snapshot
	err   error
}

func (p *fakePersister) SaveSnapshot(_ context.Context, key string, data snapshot.Snapshot) error {
	if p.err != nil {
		return p.err
	}
	if p.saved == nil {
		p.saved = make(map[string]snapshot.Snapshot)
	}
	p.saved[key] = data
	return nil
}

var errDiskFull = errors.New("disk full")

// #endregion mock
