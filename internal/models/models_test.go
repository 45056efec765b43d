package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScope(t *testing.T) {
	g := GuildScope("123")
	assert.False(t, g.IsGlobal())
	id, ok := g.GuildID()
	assert.True(t, ok)
	assert.Equal(t, "123", id)
	assert.Equal(t, "guild:123", g.Key())

	assert.True(t, GlobalScope().IsGlobal())
	assert.True(t, GuildScope("").IsGlobal())
	assert.Equal(t, "global", GlobalScope().Key())

	assert.True(t, GlobalScope().Contains(g))
	assert.True(t, g.Contains(GuildScope("123")))
	assert.False(t, g.Contains(GuildScope("456")))
	assert.False(t, g.Contains(GlobalScope()))
}

func TestScopeSQLRoundTrip(t *testing.T) {
	for _, s := range []Scope{GlobalScope(), GuildScope("987")} {
		v, err := s.Value()
		require.NoError(t, err)

		var back Scope
		require.NoError(t, back.Scan(v))
		assert.Equal(t, s, back)
	}

	var s Scope
	require.NoError(t, s.Scan([]byte("42")))
	assert.Equal(t, GuildScope("42"), s)
	assert.Error(t, s.Scan(42))
}

func TestScopeKeyNeverCollidesWithGlobal(t *testing.T) {
	g := GuildScope("global")
	assert.Equal(t, "guild:global", g.Key())
	assert.Equal(t, g, ParseScopeKey(g.Key()))
	assert.False(t, ParseScopeKey(g.Key()).IsGlobal())

	b, err := json.Marshal(struct{ S Scope }{g})
	require.NoError(t, err)
	var back struct{ S Scope }
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, g, back.S)

	assert.True(t, ParseScopeKey("global").IsGlobal())
}

func TestParseAutoproxyMode(t *testing.T) {
	cases := map[string]AutoproxyMode{
		"off":    AutoproxyOff,
		"FRONT":  AutoproxyFront,
		"latch":  AutoproxyFront,
		"member": AutoproxyMember,
		"Sticky": AutoproxySticky,
	}
	for in, want := range cases {
		got, ok := ParseAutoproxyMode(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}
	_, ok := ParseAutoproxyMode("always")
	assert.False(t, ok)
}

func TestStringSetJSON(t *testing.T) {
	b, err := json.Marshal(NewStringSet("b", "a"))
	require.NoError(t, err)
	assert.JSONEq(t, `["a","b"]`, string(b))

	var s StringSet
	require.NoError(t, json.Unmarshal([]byte(`["x","y","x"]`), &s))
	assert.Len(t, s, 2)
	assert.True(t, s.Has("x"))
}

func TestGlobalChatChannelCloneIsDeep(t *testing.T) {
	prefix := "[A]"
	c := &GlobalChatChannel{OwnerID: "o", MessagePrefix: &prefix}
	c.Normalize()
	c.LinkedChannels["g1"] = "c1"
	c.Warnings["g1"] = []string{"spam"}

	cp := c.Clone()
	cp.LinkedChannels["g2"] = "c2"
	cp.Warnings["g1"][0] = "changed"
	*cp.MessagePrefix = "[B]"

	assert.Len(t, c.LinkedChannels, 1)
	assert.Equal(t, "spam", c.Warnings["g1"][0])
	assert.Equal(t, "[A]", *c.MessagePrefix)
}

func TestRoleOf(t *testing.T) {
	c := &GlobalChatChannel{OwnerID: "owner"}
	c.Normalize()
	c.CoOwners["co"] = struct{}{}
	c.Moderators["mod"] = struct{}{}

	assert.Equal(t, RoleOwner, c.RoleOf("owner"))
	assert.Equal(t, RoleCoOwner, c.RoleOf("co"))
	assert.Equal(t, RoleModerator, c.RoleOf("mod"))
	assert.Equal(t, RoleNone, c.RoleOf("someone"))
	assert.True(t, RoleOwner > RoleCoOwner && RoleCoOwner > RoleModerator)
}

func TestProxyMemberDisplay(t *testing.T) {
	m := &ProxyMember{Name: "alice"}
	assert.Equal(t, "alice", m.Display())
	m.DisplayName = "Alice ✿"
	assert.Equal(t, "Alice ✿", m.Display())
}
