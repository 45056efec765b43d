package globalchat

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Gopher0727/GlobalChat/internal/errs"
	"github.com/Gopher0727/GlobalChat/internal/models"
	"github.com/Gopher0727/GlobalChat/internal/repositories"
)

type seqIDs struct{ n atomic.Int64 }

func (s *seqIDs) NextID() (int64, error) { return s.n.Add(1), nil }

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
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

// countingStore counts channel writes.
type countingStore struct {
	*repositories.MemoryStore
	saves atomic.Int32
	down  atomic.Bool
}

func (s *countingStore) SaveGlobalChatChannel(ctx context.Context, c *models.GlobalChatChannel) error {
	if s.down.Load() {
		return errors.New("connection reset")
	}
	s.saves.Add(1)
	return s.MemoryStore.SaveGlobalChatChannel(ctx, c)
}

type fixture struct {
	store *countingStore
	clock *fakeClock
	reg   *Registry
}

const owner = "owner"

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store: &countingStore{MemoryStore: repositories.NewMemoryStore()},
		clock: &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)},
	}
	f.reg = NewRegistry(f.store, &seqIDs{}, nil)
	f.reg.SetClock(f.clock.Now)
	return f
}

// channel creates a public channel with guilds linked through "c-<guild>".
func (f *fixture) channel(t *testing.T, guilds ...string) int64 {
	t.Helper()
	ctx := context.Background()
	c, err := f.reg.Create(ctx, owner, CreateOptions{Name: "lobby"})
	require.NoError(t, err)
	for _, g := range guilds {
		_, err := f.reg.Link(ctx, c.ID, g, "c-"+g, "")
		require.NoError(t, err)
	}
	return c.ID
}

func TestCreate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c, err := f.reg.Create(ctx, owner, CreateOptions{Name: " Lobby ", Description: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "Lobby", c.Name)
	assert.Equal(t, models.VisibilityPublic, c.Visibility)
	assert.Empty(t, c.JoinKeyHash)

	_, err = f.reg.Create(ctx, "other", CreateOptions{Name: "lobby"})
	assert.ErrorIs(t, err, errs.ErrDuplicateName)

	_, err = f.reg.Create(ctx, owner, CreateOptions{Name: "secret", Visibility: models.VisibilityPrivate})
	assert.ErrorIs(t, err, errs.ErrInvalidArgument)

	got, err := f.reg.GetByName(ctx, "LOBBY")
	require.NoError(t, err)
	assert.Equal(t, c.ID, got.ID)

	stored, err := f.store.LoadGlobalChatChannel(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "Lobby", stored.Name)
}

func TestListPublic(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, _ = f.reg.Create(ctx, owner, CreateOptions{Name: "zeta"})
	_, _ = f.reg.Create(ctx, owner, CreateOptions{Name: "Alpha"})
	_, _ = f.reg.Create(ctx, owner, CreateOptions{Name: "hidden", Visibility: models.VisibilityPrivate, JoinKey: "k"})

	list := f.reg.ListPublic()
	require.Len(t, list, 2)
	assert.Equal(t, "Alpha", list[0].Name)
	assert.Equal(t, "zeta", list[1].Name)
}

func TestLink(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.channel(t, "g1")

	linked, err := f.reg.IsLinked(ctx, id, "g1")
	require.NoError(t, err)
	assert.True(t, linked)
	dest, err := f.reg.DestinationFor(ctx, id, "g1")
	require.NoError(t, err)
	assert.Equal(t, "c-g1", dest)

	// one destination per guild
	_, err = f.reg.Link(ctx, id, "g1", "another", "")
	assert.ErrorIs(t, err, errs.ErrAlreadyLinked)
	_, ok := f.reg.dests.Get("another")
	assert.False(t, ok, "failed link must release its reservation")

	// one channel per destination
	_, err = f.reg.Link(ctx, id, "g2", "c-g1", "")
	assert.ErrorIs(t, err, errs.ErrAlreadyLinked)

	other, err := f.reg.Create(ctx, owner, CreateOptions{Name: "other"})
	require.NoError(t, err)
	_, err = f.reg.Link(ctx, other.ID, "g1", "c-g1", "")
	assert.ErrorIs(t, err, errs.ErrAlreadyLinked)

	_, err = f.reg.DestinationFor(ctx, id, "g9")
	assert.ErrorIs(t, err, errs.ErrNotFound)
	linked, err = f.reg.IsLinked(ctx, id, "g9")
	require.NoError(t, err)
	assert.False(t, linked)

	_, err = f.reg.Link(ctx, 12345, "g1", "x", "")
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestLinkPrivateChannel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c, err := f.reg.Create(ctx, owner, CreateOptions{Name: "secret", Visibility: models.VisibilityPrivate, JoinKey: "open sesame"})
	require.NoError(t, err)
	assert.NotEmpty(t, c.JoinKeyHash)

	_, err = f.reg.Link(ctx, c.ID, "g1", "c-g1", "wrong")
	assert.ErrorIs(t, err, errs.ErrForbidden)

	_, err = f.reg.Link(ctx, c.ID, "g1", "c-g1", "open sesame")
	assert.NoError(t, err)
}

func TestUnlinkIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.channel(t, "g1")

	_, err := f.reg.Unlink(ctx, id, "g1")
	require.NoError(t, err)
	before, err := f.reg.Get(ctx, id)
	require.NoError(t, err)
	saves := f.store.saves.Load()

	after, err := f.reg.Unlink(ctx, id, "g1")
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, saves, f.store.saves.Load())

	_, _, ok := f.reg.Lookup("c-g1")
	assert.False(t, ok)

	// the destination is free again
	_, err = f.reg.Link(ctx, id, "g2", "c-g1", "")
	assert.NoError(t, err)
}

func TestWarmRebuildsIndexes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.channel(t, "g1", "g2")

	fresh := NewRegistry(f.store, &seqIDs{}, nil)
	require.NoError(t, fresh.Warm(ctx))

	got, guild, ok := fresh.Lookup("c-g2")
	require.True(t, ok)
	assert.Equal(t, id, got)
	assert.Equal(t, "g2", guild)

	_, err := fresh.Create(ctx, owner, CreateOptions{Name: "LOBBY"})
	assert.ErrorIs(t, err, errs.ErrDuplicateName)
}

func TestStoreUnavailable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.channel(t)

	f.store.down.Store(true)
	_, err := f.reg.Link(ctx, id, "g1", "c-g1", "")
	assert.ErrorIs(t, err, errs.ErrStoreUnavailable)

	// memory is not rolled back
	linked, err := f.reg.IsLinked(ctx, id, "g1")
	require.NoError(t, err)
	assert.True(t, linked)
}

func TestManagementRoles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.channel(t)

	_, err := f.reg.AddCoOwner(ctx, "stranger", id, "co")
	assert.ErrorIs(t, err, errs.ErrForbidden)
	_, err = f.reg.AddCoOwner(ctx, owner, id, "co")
	require.NoError(t, err)

	// co-owners manage moderators but not co-owners
	_, err = f.reg.AddCoOwner(ctx, "co", id, "co2")
	assert.ErrorIs(t, err, errs.ErrForbidden)
	_, err = f.reg.AddModerator(ctx, "co", id, "mod")
	require.NoError(t, err)
	_, err = f.reg.AddModerator(ctx, "co", id, "co")
	assert.ErrorIs(t, err, errs.ErrInvalidArgument)

	// moderators cannot manage
	_, err = f.reg.SetRules(ctx, "mod", id, []string{"be nice"})
	assert.ErrorIs(t, err, errs.ErrForbidden)
	c, err := f.reg.SetRules(ctx, "co", id, []string{" be nice ", "", "no spam"})
	require.NoError(t, err)
	assert.Equal(t, []string{"be nice", "no spam"}, c.Rules)

	prefix := "[Hub]"
	c, err = f.reg.SetFormat(ctx, owner, id, &prefix, nil)
	require.NoError(t, err)
	require.NotNil(t, c.MessagePrefix)
	assert.Equal(t, "[Hub]", *c.MessagePrefix)
	assert.Nil(t, c.MessageSuffix)

	_, err = f.reg.RemoveModerator(ctx, "co", id, "mod")
	require.NoError(t, err)
	_, err = f.reg.RemoveModerator(ctx, "co", id, "mod")
	assert.ErrorIs(t, err, errs.ErrNotFound)
	_, err = f.reg.RemoveCoOwner(ctx, owner, id, "co")
	require.NoError(t, err)
}
