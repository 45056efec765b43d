package proxy

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Gopher0727/GlobalChat/internal/models"
	"github.com/Gopher0727/GlobalChat/internal/repositories"
)

type seqIDs struct{ n atomic.Int64 }

func (s *seqIDs) NextID() (int64, error) { return s.n.Add(1), nil }

// fakeClock only moves when told to.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

var errDown = errors.New("connection refused")

// flakyStore wraps a MemoryStore and fails writes while down is set.
type flakyStore struct {
	*repositories.MemoryStore
	down atomic.Bool
}

func newFlakyStore() *flakyStore {
	return &flakyStore{MemoryStore: repositories.NewMemoryStore()}
}

func (s *flakyStore) SaveProxyMember(ctx context.Context, m *models.ProxyMember) error {
	if s.down.Load() {
		return errDown
	}
	return s.MemoryStore.SaveProxyMember(ctx, m)
}

func (s *flakyStore) SaveSettings(ctx context.Context, v *models.ProxySettings) error {
	if s.down.Load() {
		return errDown
	}
	return s.MemoryStore.SaveSettings(ctx, v)
}

type fixture struct {
	store    *flakyStore
	clock    *fakeClock
	members  *Catalogue
	engine   *Engine
	resolver *Resolver
}

func newFixture() *fixture {
	f := &fixture{store: newFlakyStore(), clock: newFakeClock()}
	f.members = NewCatalogue(f.store, &seqIDs{}, nil)
	f.members.SetClock(f.clock.Now)
	f.engine = NewEngine(f.store, nil)
	f.engine.SetClock(f.clock.Now)
	f.resolver = NewResolver(f.members, f.engine, nil)
	return f
}

func ptr[T any](v T) *T { return &v }
