package proxy

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Gopher0727/GlobalChat/internal/errs"
	"github.com/Gopher0727/GlobalChat/internal/models"
)

func TestCreateAndGet(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	m, err := f.members.Create(ctx, "u1", models.GlobalScope(), "  Alice ")
	require.NoError(t, err)
	assert.Equal(t, "Alice", m.Name)
	assert.Equal(t, "u1", m.OwnerID)
	assert.Equal(t, m.CreatedAt, m.UpdatedAt)

	got, err := f.members.Get(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, m, got)

	stored, err := f.store.LoadProxyMember(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, "Alice", stored.Name)

	_, err = f.members.Get(ctx, 999)
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestCreateRejectsBadNames(t *testing.T) {
	f := newFixture()
	_, err := f.members.Create(context.Background(), "u1", models.GlobalScope(), "   ")
	assert.ErrorIs(t, err, errs.ErrInvalidArgument)
}

func TestDuplicateNames(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	guild := models.GuildScope("g1")

	_, err := f.members.Create(ctx, "u1", models.GlobalScope(), "Alice")
	require.NoError(t, err)

	_, err = f.members.Create(ctx, "u1", models.GlobalScope(), "alice")
	assert.ErrorIs(t, err, errs.ErrDuplicateName)

	// another owner is unaffected
	_, err = f.members.Create(ctx, "u2", models.GlobalScope(), "Alice")
	assert.NoError(t, err)

	// a guild member cannot reuse a global name
	_, err = f.members.Create(ctx, "u1", guild, "ALICE")
	assert.ErrorIs(t, err, errs.ErrDuplicateName)

	// nor a global member a guild one
	_, err = f.members.Create(ctx, "u1", guild, "Bob")
	require.NoError(t, err)
	_, err = f.members.Create(ctx, "u1", models.GlobalScope(), "bob")
	assert.ErrorIs(t, err, errs.ErrDuplicateName)

	// members of different guilds never meet
	_, err = f.members.Create(ctx, "u1", models.GuildScope("g2"), "Bob")
	assert.NoError(t, err)

	visible, err := f.members.Visible(ctx, "u1", guild)
	require.NoError(t, err)
	assert.Len(t, visible, 2)
}

func TestGuildMemberShadowsStoredGlobal(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	guild := models.GuildScope("g1")

	// records written before cross-scope checks may still collide
	require.NoError(t, f.store.SaveProxyMember(ctx, &models.ProxyMember{ID: 100, OwnerID: "u1", Scope: models.GlobalScope(), Name: "Alice"}))
	require.NoError(t, f.store.SaveProxyMember(ctx, &models.ProxyMember{ID: 101, OwnerID: "u1", Scope: guild, Name: "alice"}))

	got, err := f.members.GetByName(ctx, "u1", guild, "ALICE")
	require.NoError(t, err)
	assert.EqualValues(t, 101, got.ID)

	got, err = f.members.GetByName(ctx, "u1", models.GuildScope("g2"), "alice")
	require.NoError(t, err)
	assert.EqualValues(t, 100, got.ID)
}

func TestRenameChecksDuplicates(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.members.Create(ctx, "u1", models.GlobalScope(), "Alice")
	require.NoError(t, err)
	bob, err := f.members.Create(ctx, "u1", models.GlobalScope(), "Bob")
	require.NoError(t, err)

	_, err = f.members.Edit(ctx, "u1", bob.ID, FieldName, "alice")
	assert.ErrorIs(t, err, errs.ErrDuplicateName)

	carol, err := f.members.Create(ctx, "u1", models.GuildScope("g1"), "Carol")
	require.NoError(t, err)
	_, err = f.members.Edit(ctx, "u1", carol.ID, FieldName, "ALICE")
	assert.ErrorIs(t, err, errs.ErrDuplicateName)

	// renaming to a different case of itself is allowed
	renamed, err := f.members.Edit(ctx, "u1", bob.ID, FieldName, "BOB")
	require.NoError(t, err)
	assert.Equal(t, "BOB", renamed.Name)
}

func TestEditRoundTrip(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	m, err := f.members.Create(ctx, "u1", models.GlobalScope(), "Alice")
	require.NoError(t, err)

	edits := []struct {
		field Field
		value string
		check func(*models.ProxyMember)
	}{
		{FieldDisplayName, "Alice ✿", func(m *models.ProxyMember) { assert.Equal(t, "Alice ✿", m.DisplayName) }},
		{FieldPronouns, "she/her", func(m *models.ProxyMember) { assert.Equal(t, "she/her", m.Pronouns) }},
		{FieldAvatar, "https://cdn.example.com/a.png", func(m *models.ProxyMember) { assert.Equal(t, "https://cdn.example.com/a.png", m.AvatarURL) }},
		{FieldDescription, "first", func(m *models.ProxyMember) { assert.Equal(t, "first", m.Description) }},
		{FieldColor, "FF00aa", func(m *models.ProxyMember) { assert.Equal(t, "#ff00aa", m.Color) }},
		{FieldKeepProxy, "true", func(m *models.ProxyMember) { assert.True(t, m.KeepProxyText) }},
		{FieldGroup, "42", func(m *models.ProxyMember) { assert.Equal(t, ptr(int64(42)), m.GroupID) }},
		{FieldGroup, "none", func(m *models.ProxyMember) { assert.Nil(t, m.GroupID) }},
	}

	last := m.UpdatedAt
	for _, e := range edits {
		// the clock is frozen; UpdatedAt must still move forward
		edited, err := f.members.Edit(ctx, "u1", m.ID, e.field, e.value)
		require.NoError(t, err, e.field)
		e.check(edited)
		assert.True(t, edited.UpdatedAt.After(last), e.field)
		last = edited.UpdatedAt

		got, err := f.members.Get(ctx, m.ID)
		require.NoError(t, err)
		assert.Equal(t, edited, got)
	}

	f.clock.Advance(time.Hour)
	edited, err := f.members.Edit(ctx, "u1", m.ID, FieldDescription, "second")
	require.NoError(t, err)
	assert.Equal(t, f.clock.Now(), edited.UpdatedAt)
}

func TestEditValidation(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	m, err := f.members.Create(ctx, "u1", models.GlobalScope(), "Alice")
	require.NoError(t, err)

	for field, value := range map[Field]string{
		FieldColor:     "red",
		FieldAvatar:    "ftp://x/y.png",
		FieldKeepProxy: "maybe",
		FieldGroup:     "abc",
		Field("age"):   "3",
	} {
		_, err := f.members.Edit(ctx, "u1", m.ID, field, value)
		assert.ErrorIs(t, err, errs.ErrInvalidArgument, field)
	}

	// another owner cannot see the member
	_, err = f.members.Edit(ctx, "u2", m.ID, FieldDescription, "x")
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestTags(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	m, err := f.members.Create(ctx, "u1", models.GlobalScope(), "Alice")
	require.NoError(t, err)

	_, idx, err := f.members.AddTag(ctx, "u1", m.ID, models.ProxyTag{Prefix: "A:"})
	require.NoError(t, err)
	assert.Equal(t, 0, idx)
	_, idx, err = f.members.AddTag(ctx, "u1", m.ID, models.ProxyTag{Suffix: "-a"})
	require.NoError(t, err)
	assert.Equal(t, 1, idx)

	_, _, err = f.members.AddTag(ctx, "u1", m.ID, models.ProxyTag{})
	assert.ErrorIs(t, err, errs.ErrInvalidArgument)

	before, err := f.members.Get(ctx, m.ID)
	require.NoError(t, err)
	for _, bad := range []int{-1, 2, 10} {
		_, err = f.members.RemoveTag(ctx, "u1", m.ID, bad)
		assert.ErrorIs(t, err, errs.ErrInvalidIndex)
	}
	after, err := f.members.Get(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	removed, err := f.members.RemoveTag(ctx, "u1", m.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, []models.ProxyTag{{Suffix: "-a"}}, removed.Tags)
}

func TestListAndVisibleOrder(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	guild := models.GuildScope("g1")

	carol, _ := f.members.Create(ctx, "u1", models.GlobalScope(), "carol")
	f.clock.Advance(time.Second)
	bob, _ := f.members.Create(ctx, "u1", guild, "Bob")
	f.clock.Advance(time.Second)
	alice, _ := f.members.Create(ctx, "u1", models.GlobalScope(), "alice")
	_, _ = f.members.Create(ctx, "u1", models.GuildScope("g2"), "dave")

	list, err := f.members.List(ctx, "u1", guild)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []int64{alice.ID, bob.ID, carol.ID}, []int64{list[0].ID, list[1].ID, list[2].ID})

	visible, err := f.members.Visible(ctx, "u1", guild)
	require.NoError(t, err)
	require.Len(t, visible, 3)
	assert.Equal(t, []int64{bob.ID, carol.ID, alice.ID}, []int64{visible[0].ID, visible[1].ID, visible[2].ID})

	global, err := f.members.List(ctx, "u1", models.GlobalScope())
	require.NoError(t, err)
	assert.Len(t, global, 2)
}

func TestDelete(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	m, err := f.members.Create(ctx, "u1", models.GlobalScope(), "Alice")
	require.NoError(t, err)

	require.NoError(t, f.members.Delete(ctx, "u1", m.ID))
	_, err = f.members.Get(ctx, m.ID)
	assert.ErrorIs(t, err, errs.ErrNotFound)
	_, err = f.store.LoadProxyMember(ctx, m.ID)
	assert.ErrorIs(t, err, errs.ErrNotFound)

	assert.ErrorIs(t, f.members.Delete(ctx, "u1", m.ID), errs.ErrNotFound)

	// the name is free again
	_, err = f.members.Create(ctx, "u1", models.GlobalScope(), "Alice")
	assert.NoError(t, err)
}

func TestStoreUnavailableKeepsMemory(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	m, err := f.members.Create(ctx, "u1", models.GlobalScope(), "Alice")
	require.NoError(t, err)

	f.store.down.Store(true)
	edited, err := f.members.Edit(ctx, "u1", m.ID, FieldPronouns, "they/them")
	assert.ErrorIs(t, err, errs.ErrStoreUnavailable)
	assert.ErrorIs(t, err, errDown)
	require.NotNil(t, edited)

	got, err := f.members.Get(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, "they/them", got.Pronouns)

	// the next successful write carries the latest state
	f.store.down.Store(false)
	_, err = f.members.Edit(ctx, "u1", m.ID, FieldDescription, "hi")
	require.NoError(t, err)
	stored, err := f.store.LoadProxyMember(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, "they/them", stored.Pronouns)
	assert.Equal(t, "hi", stored.Description)
}

func TestCatalogueLoadsFromStore(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	m, err := f.members.Create(ctx, "u1", models.GlobalScope(), "Alice")
	require.NoError(t, err)

	fresh := NewCatalogue(f.store, &seqIDs{}, nil)
	got, err := fresh.Get(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, "Alice", got.Name)

	_, err = fresh.Create(ctx, "u1", models.GlobalScope(), "alice")
	assert.ErrorIs(t, err, errs.ErrDuplicateName)
}

func TestConcurrentCreateSameName(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	var ok atomic.Int32
	var wg sync.WaitGroup
	for range 32 {
		wg.Go(func() {
			if _, err := f.members.Create(ctx, "u1", models.GlobalScope(), "Alice"); err == nil {
				ok.Add(1)
			}
		})
	}
	wg.Wait()

	assert.Equal(t, int32(1), ok.Load())
	list, err := f.store.ListProxyMembers(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
