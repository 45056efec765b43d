package models

import (
	"database/sql/driver"
	"fmt"
	"strings"
)

const (
	globalScopeKey = "global"
	guildKeyPrefix = "guild:"
)

// Scope is where a proxy member or a settings record applies: everywhere
// (global) or in exactly one guild. The zero value is the global scope.
type Scope struct {
	guildID string
}

func GlobalScope() Scope { return Scope{} }

// GuildScope returns the scope of one guild. An empty id yields the global
// scope, which is also what a message outside any guild resolves in.
func GuildScope(guildID string) Scope { return Scope{guildID: guildID} }

func (s Scope) IsGlobal() bool { return s.guildID == "" }

func (s Scope) GuildID() (string, bool) { return s.guildID, s.guildID != "" }

// Key is the persisted form: "global" or "guild:<id>", so no guild id can
// read back as the global scope.
func (s Scope) Key() string {
	if s.guildID == "" {
		return globalScopeKey
	}
	return guildKeyPrefix + s.guildID
}

func (s Scope) String() string { return s.Key() }

// Contains reports whether a record in s is visible from the lookup scope
// other: global records are visible everywhere, guild records only in their
// own guild.
func (s Scope) Contains(other Scope) bool {
	return s.IsGlobal() || s.guildID == other.guildID
}

// ParseScopeKey reverses Key. A bare id is read as a guild, the form rows
// had before keys carried a prefix.
func ParseScopeKey(key string) Scope {
	if key == globalScopeKey || key == "" {
		return GlobalScope()
	}
	if id, ok := strings.CutPrefix(key, guildKeyPrefix); ok {
		return GuildScope(id)
	}
	return GuildScope(key)
}

func (s Scope) Value() (driver.Value, error) {
	return s.Key(), nil
}

func (s *Scope) Scan(src any) error {
	switch v := src.(type) {
	case string:
		*s = ParseScopeKey(v)
	case []byte:
		*s = ParseScopeKey(string(v))
	case nil:
		*s = GlobalScope()
	default:
		return fmt.Errorf("models: cannot scan %T into Scope", src)
	}
	return nil
}

func (s Scope) MarshalText() ([]byte, error) { return []byte(s.Key()), nil }

func (s *Scope) UnmarshalText(b []byte) error {
	*s = ParseScopeKey(string(b))
	return nil
}

// GormDataType keeps the column a plain string.
func (Scope) GormDataType() string { return "string" }
