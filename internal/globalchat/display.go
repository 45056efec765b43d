package globalchat

import (
	"strings"
	"unicode/utf8"

	"github.com/Gopher0727/GlobalChat/internal/models"
)

// MaxDisplayName is the longest author name a platform accepts.
const MaxDisplayName = 80

// Identity is the name and avatar a relayed message is posted under.
type Identity struct {
	Name      string
	AvatarURL string
}

// Author is who wrote a message, as seen by the relay.
type Author struct {
	UserName  string
	AvatarURL string
	GuildName string
	// Member is the resolved proxy member, if any.
	Member        *models.ProxyMember
	ShowIndicator bool
}

// Compose builds the identity for a relayed message. A resolved member is
// shown as itself; otherwise the name is "<prefix> <user> • <server><suffix>"
// where the channel's MessagePrefix and MessageSuffix, when set, replace
// defaultPrefix and the empty suffix.
func Compose(defaultPrefix string, route Route, a Author) Identity {
	if m := a.Member; m != nil {
		name := m.Display()
		if m.Pronouns != "" {
			name += " (" + m.Pronouns + ")"
		}
		if a.ShowIndicator && a.UserName != "" {
			name += " • " + a.UserName
		}
		avatar := m.AvatarURL
		if avatar == "" {
			avatar = a.AvatarURL
		}
		return Identity{Name: clipName(name), AvatarURL: avatar}
	}

	prefix, suffix := defaultPrefix, ""
	if route.Prefix != nil {
		prefix = *route.Prefix
	}
	if route.Suffix != nil {
		suffix = *route.Suffix
	}

	var b strings.Builder
	if prefix != "" {
		b.WriteString(prefix)
		b.WriteByte(' ')
	}
	b.WriteString(a.UserName)
	if a.GuildName != "" {
		b.WriteString(" • ")
		b.WriteString(a.GuildName)
	}
	b.WriteString(suffix)
	return Identity{Name: clipName(b.String()), AvatarURL: a.AvatarURL}
}

func clipName(s string) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= MaxDisplayName {
		return s
	}
	return string([]rune(s)[:MaxDisplayName])
}
