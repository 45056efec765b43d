package models

import (
	"slices"
	"time"
)

// ProxyTag is the text envelope prefix+content+suffix that marks a message
// as written by one proxy member. At least one side is non-empty.
type ProxyTag struct {
	Prefix string `json:"prefix"`
	Suffix string `json:"suffix"`
}

func (t ProxyTag) IsEmpty() bool { return t.Prefix == "" && t.Suffix == "" }

func (t ProxyTag) String() string { return t.Prefix + "text" + t.Suffix }

// ProxyMember 用户自定义的代理身份
type ProxyMember struct {
	ID          int64  `gorm:"primaryKey;autoIncrement:false" json:"id,string"`
	OwnerID     string `gorm:"not null;index:idx_member_owner_scope" json:"owner_id"`
	Scope       Scope  `gorm:"not null;index:idx_member_owner_scope;type:varchar(32)" json:"scope"`
	Name        string `gorm:"not null" json:"name"`
	DisplayName string `json:"display_name"`
	Pronouns    string `json:"pronouns"`
	AvatarURL   string `json:"avatar_url"`
	Description string `json:"description"`
	Color       string `gorm:"size:7" json:"color"`

	// Tags are matched in slice order; the first match wins.
	Tags          []ProxyTag `gorm:"serializer:json" json:"tags"`
	KeepProxyText bool       `json:"keep_proxy_text"`
	GroupID       *int64     `json:"group_id,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime:false" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime:false" json:"updated_at"`
}

func (ProxyMember) TableName() string {
	return "proxy_members"
}

// Clone returns a deep copy safe to hand out of a registry lock.
func (m *ProxyMember) Clone() *ProxyMember {
	if m == nil {
		return nil
	}
	c := *m
	c.Tags = slices.Clone(m.Tags)
	if m.GroupID != nil {
		g := *m.GroupID
		c.GroupID = &g
	}
	return &c
}

// Display is the name shown when the member authors a message.
func (m *ProxyMember) Display() string {
	if m.DisplayName != "" {
		return m.DisplayName
	}
	return m.Name
}
