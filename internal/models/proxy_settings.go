package models

import (
	"strings"
	"time"
)

// AutoproxyMode is the persisted autoproxy state. "latch" is accepted as an
// input spelling of front and never stored.
type AutoproxyMode string

const (
	AutoproxyOff    AutoproxyMode = "off"
	AutoproxyFront  AutoproxyMode = "front"
	AutoproxyMember AutoproxyMode = "member"
	AutoproxySticky AutoproxyMode = "sticky"
)

// ParseAutoproxyMode normalises user input. ok is false for unknown modes.
func ParseAutoproxyMode(s string) (AutoproxyMode, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "off", "disable", "disabled":
		return AutoproxyOff, true
	case "front", "latch":
		return AutoproxyFront, true
	case "member":
		return AutoproxyMember, true
	case "sticky":
		return AutoproxySticky, true
	}
	return "", false
}

// ProxySettings 每个用户在每个作用域（全局或某个服务器）下的代理设置
type ProxySettings struct {
	OwnerID string `gorm:"primaryKey" json:"owner_id"`
	Scope   Scope  `gorm:"primaryKey;type:varchar(32)" json:"scope"`

	ProxyEnabled      bool          `json:"proxy_enabled"`
	AutoproxyMode     AutoproxyMode `gorm:"type:varchar(16)" json:"autoproxy_mode"`
	AutoproxyMemberID *int64        `json:"autoproxy_member_id,omitempty"`
	ShowIndicator     bool          `json:"show_indicator"`
	CaseSensitiveTags bool          `json:"case_sensitive_tags"`

	LastProxiedMemberID *int64     `json:"last_proxied_member_id,omitempty"`
	LastSwitchTime      *time.Time `json:"last_switch_time,omitempty"`

	UpdatedAt time.Time `gorm:"autoUpdateTime:false" json:"updated_at"`
}

func (ProxySettings) TableName() string {
	return "proxy_settings"
}

// DefaultSettings is what a user gets on first access in a scope.
func DefaultSettings(ownerID string, scope Scope, now time.Time) *ProxySettings {
	return &ProxySettings{
		OwnerID:       ownerID,
		Scope:         scope,
		ProxyEnabled:  true,
		AutoproxyMode: AutoproxyOff,
		UpdatedAt:     now,
	}
}

func (s *ProxySettings) Clone() *ProxySettings {
	if s == nil {
		return nil
	}
	c := *s
	c.AutoproxyMemberID = cloneID(s.AutoproxyMemberID)
	c.LastProxiedMemberID = cloneID(s.LastProxiedMemberID)
	if s.LastSwitchTime != nil {
		t := *s.LastSwitchTime
		c.LastSwitchTime = &t
	}
	return &c
}

func cloneID(id *int64) *int64 {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}
