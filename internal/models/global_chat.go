package models

import (
	"encoding/json"
	"maps"
	"slices"
	"time"
)

type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// StringSet is persisted as a sorted JSON array.
type StringSet map[string]struct{}

func NewStringSet(items ...string) StringSet {
	s := make(StringSet, len(items))
	for _, it := range items {
		s[it] = struct{}{}
	}
	return s
}

func (s StringSet) Has(v string) bool {
	_, ok := s[v]
	return ok
}

func (s StringSet) Sorted() []string {
	return slices.Sorted(maps.Keys(s))
}

func (s StringSet) MarshalJSON() ([]byte, error) {
	if s == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s.Sorted())
}

func (s *StringSet) UnmarshalJSON(b []byte) error {
	var items []string
	if err := json.Unmarshal(b, &items); err != nil {
		return err
	}
	*s = NewStringSet(items...)
	return nil
}

// GlobalChatChannel 跨服务器共享的逻辑频道
type GlobalChatChannel struct {
	ID          int64      `gorm:"primaryKey;autoIncrement:false" json:"id,string"`
	Name        string     `gorm:"not null;uniqueIndex" json:"name"`
	Description string     `json:"description"`
	Visibility  Visibility `gorm:"type:varchar(16);not null" json:"visibility"`
	JoinKeyHash string     `json:"join_key_hash,omitempty"`

	OwnerID    string    `gorm:"not null;index" json:"owner_id"`
	CoOwners   StringSet `gorm:"serializer:json" json:"co_owners"`
	Moderators StringSet `gorm:"serializer:json" json:"moderators"`
	Rules      []string  `gorm:"serializer:json" json:"rules"`

	// LinkedChannels maps guild id to the destination channel in that guild.
	LinkedChannels map[string]string `gorm:"serializer:json" json:"linked_channels"`
	BannedGuilds   StringSet         `gorm:"serializer:json" json:"banned_guilds"`
	// MutedGuilds maps guild id to the unmute time in epoch millis; 0 is permanent.
	MutedGuilds  map[string]int64    `gorm:"serializer:json" json:"muted_guilds"`
	Warnings     map[string][]string `gorm:"serializer:json" json:"warnings"`
	KickedGuilds StringSet           `gorm:"serializer:json" json:"kicked_guilds"`

	MessagePrefix *string `json:"message_prefix,omitempty"`
	MessageSuffix *string `json:"message_suffix,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime:false" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime:false" json:"updated_at"`
}

func (GlobalChatChannel) TableName() string {
	return "global_chat_channels"
}

// Normalize replaces nil collections so callers can write into them.
func (c *GlobalChatChannel) Normalize() {
	if c.CoOwners == nil {
		c.CoOwners = StringSet{}
	}
	if c.Moderators == nil {
		c.Moderators = StringSet{}
	}
	if c.LinkedChannels == nil {
		c.LinkedChannels = map[string]string{}
	}
	if c.BannedGuilds == nil {
		c.BannedGuilds = StringSet{}
	}
	if c.MutedGuilds == nil {
		c.MutedGuilds = map[string]int64{}
	}
	if c.Warnings == nil {
		c.Warnings = map[string][]string{}
	}
	if c.KickedGuilds == nil {
		c.KickedGuilds = StringSet{}
	}
}

func (c *GlobalChatChannel) Clone() *GlobalChatChannel {
	if c == nil {
		return nil
	}
	out := *c
	out.CoOwners = maps.Clone(c.CoOwners)
	out.Moderators = maps.Clone(c.Moderators)
	out.Rules = slices.Clone(c.Rules)
	out.LinkedChannels = maps.Clone(c.LinkedChannels)
	out.BannedGuilds = maps.Clone(c.BannedGuilds)
	out.MutedGuilds = maps.Clone(c.MutedGuilds)
	out.KickedGuilds = maps.Clone(c.KickedGuilds)
	out.Warnings = make(map[string][]string, len(c.Warnings))
	for g, w := range c.Warnings {
		out.Warnings[g] = slices.Clone(w)
	}
	if c.MessagePrefix != nil {
		p := *c.MessagePrefix
		out.MessagePrefix = &p
	}
	if c.MessageSuffix != nil {
		s := *c.MessageSuffix
		out.MessageSuffix = &s
	}
	out.Normalize()
	return &out
}

// Role is a user's standing in a global chat channel. Higher values
// include every permission of lower ones.
type Role uint8

const (
	RoleNone Role = iota
	RoleModerator
	RoleCoOwner
	RoleOwner
)

func (r Role) String() string {
	switch r {
	case RoleOwner:
		return "owner"
	case RoleCoOwner:
		return "co-owner"
	case RoleModerator:
		return "moderator"
	default:
		return "none"
	}
}

func (c *GlobalChatChannel) RoleOf(userID string) Role {
	switch {
	case userID == c.OwnerID:
		return RoleOwner
	case c.CoOwners.Has(userID):
		return RoleCoOwner
	case c.Moderators.Has(userID):
		return RoleModerator
	default:
		return RoleNone
	}
}
