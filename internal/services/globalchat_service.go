package services

import (
	"context"
	"time"

	"github.com/Gopher0727/GlobalChat/internal/errs"
	"github.com/Gopher0727/GlobalChat/internal/globalchat"
	"github.com/Gopher0727/GlobalChat/internal/models"
)

// GlobalChatService 跨服务器频道的管理与审核命令
type GlobalChatService struct {
	reg *globalchat.Registry
}

func NewGlobalChatService(reg *globalchat.Registry) *GlobalChatService {
	return &GlobalChatService{reg: reg}
}

type CreateChannelRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	Visibility  string `json:"visibility"`
	JoinKey     string `json:"join_key"`
}

type LinkRequest struct {
	GuildID   string `json:"guild_id" binding:"required"`
	ChannelID string `json:"channel_id" binding:"required"`
	JoinKey   string `json:"join_key"`
}

type UnlinkRequest struct {
	GuildID string `json:"guild_id" binding:"required"`
}

// ModerationRequest Duration 只对 mute 有效，为空或 0 表示永久禁言
type ModerationRequest struct {
	Action   string `json:"action" binding:"required"`
	GuildID  string `json:"guild_id" binding:"required"`
	Duration string `json:"duration"`
	Reason   string `json:"reason"`
}

type RoleRequest struct {
	UserID string `json:"user_id" binding:"required"`
	Role   string `json:"role" binding:"required"`
	Remove bool   `json:"remove"`
}

type UpdateChannelRequest struct {
	Description *string   `json:"description"`
	Rules       *[]string `json:"rules"`
	Prefix      *string   `json:"prefix"`
	Suffix      *string   `json:"suffix"`
}

// ChannelView 对外展示的频道信息，不包含入群口令的哈希
type ChannelView struct {
	ID             string              `json:"id"`
	Name           string              `json:"name"`
	Description    string              `json:"description"`
	Visibility     models.Visibility   `json:"visibility"`
	OwnerID        string              `json:"owner_id"`
	CoOwners       []string            `json:"co_owners"`
	Moderators     []string            `json:"moderators"`
	Rules          []string            `json:"rules"`
	LinkedChannels map[string]string   `json:"linked_channels"`
	BannedGuilds   []string            `json:"banned_guilds"`
	MutedGuilds    map[string]int64    `json:"muted_guilds"`
	Warnings       map[string][]string `json:"warnings"`
	KickedGuilds   []string            `json:"kicked_guilds"`
	MessagePrefix  *string             `json:"message_prefix,omitempty"`
	MessageSuffix  *string             `json:"message_suffix,omitempty"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
}

func NewChannelView(c *models.GlobalChatChannel) *ChannelView {
	return &ChannelView{
		ID:             formatID(c.ID),
		Name:           c.Name,
		Description:    c.Description,
		Visibility:     c.Visibility,
		OwnerID:        c.OwnerID,
		CoOwners:       c.CoOwners.Sorted(),
		Moderators:     c.Moderators.Sorted(),
		Rules:          c.Rules,
		LinkedChannels: c.LinkedChannels,
		BannedGuilds:   c.BannedGuilds.Sorted(),
		MutedGuilds:    c.MutedGuilds,
		Warnings:       c.Warnings,
		KickedGuilds:   c.KickedGuilds.Sorted(),
		MessagePrefix:  c.MessagePrefix,
		MessageSuffix:  c.MessageSuffix,
		CreatedAt:      c.CreatedAt,
		UpdatedAt:      c.UpdatedAt,
	}
}

// GuildStatusView 某个服务器在频道中的状态
type GuildStatusView struct {
	GuildID     string   `json:"guild_id"`
	Linked      bool     `json:"linked"`
	Destination string   `json:"destination,omitempty"`
	Banned      bool     `json:"banned"`
	Kicked      bool     `json:"kicked"`
	Muted       bool     `json:"muted"`
	Permanent   bool     `json:"permanent,omitempty"`
	RemainingMs int64    `json:"remaining_ms,omitempty"`
	Warnings    []string `json:"warnings"`
	Eligible    bool     `json:"eligible"`
}

func (s *GlobalChatService) view(c *models.GlobalChatChannel, err error) (*ChannelView, error) {
	if err != nil {
		return nil, err
	}
	return NewChannelView(c), nil
}

func (s *GlobalChatService) Create(ctx context.Context, ownerID string, req *CreateChannelRequest) (*ChannelView, error) {
	return s.view(s.reg.Create(ctx, ownerID, globalchat.CreateOptions{
		Name:        req.Name,
		Description: req.Description,
		Visibility:  models.Visibility(req.Visibility),
		JoinKey:     req.JoinKey,
	}))
}

func (s *GlobalChatService) Get(ctx context.Context, id int64) (*ChannelView, error) {
	return s.view(s.reg.Get(ctx, id))
}

func (s *GlobalChatService) GetByName(ctx context.Context, name string) (*ChannelView, error) {
	return s.view(s.reg.GetByName(ctx, name))
}

func (s *GlobalChatService) ListPublic() []*ChannelView {
	list := s.reg.ListPublic()
	out := make([]*ChannelView, len(list))
	for i, c := range list {
		out[i] = NewChannelView(c)
	}
	return out
}

func (s *GlobalChatService) Link(ctx context.Context, id int64, req *LinkRequest) (*ChannelView, error) {
	return s.view(s.reg.Link(ctx, id, req.GuildID, req.ChannelID, req.JoinKey))
}

func (s *GlobalChatService) Unlink(ctx context.Context, id int64, req *UnlinkRequest) (*ChannelView, error) {
	return s.view(s.reg.Unlink(ctx, id, req.GuildID))
}

// Moderate 执行一次审核操作，权限检查由 Registry 完成
func (s *GlobalChatService) Moderate(ctx context.Context, actorID string, id int64, req *ModerationRequest) (*ChannelView, error) {
	switch req.Action {
	case "ban":
		return s.view(s.reg.Ban(ctx, actorID, id, req.GuildID))
	case "unban":
		return s.view(s.reg.Unban(ctx, actorID, id, req.GuildID))
	case "kick":
		return s.view(s.reg.Kick(ctx, actorID, id, req.GuildID))
	case "mute":
		var d time.Duration
		if req.Duration != "" {
			parsed, err := time.ParseDuration(req.Duration)
			if err != nil {
				return nil, errs.New(errs.KindInvalidArgument, "duration %q", req.Duration)
			}
			d = parsed
		}
		return s.view(s.reg.Mute(ctx, actorID, id, req.GuildID, d))
	case "unmute":
		return s.view(s.reg.Unmute(ctx, actorID, id, req.GuildID))
	case "warn":
		return s.view(s.reg.Warn(ctx, actorID, id, req.GuildID, req.Reason))
	case "unwarn":
		return s.view(s.reg.Unwarn(ctx, actorID, id, req.GuildID))
	}
	return nil, errs.New(errs.KindInvalidArgument, "unknown action %q", req.Action)
}

// SetRole 管理协管员与审核员
func (s *GlobalChatService) SetRole(ctx context.Context, actorID string, id int64, req *RoleRequest) (*ChannelView, error) {
	switch {
	case req.Role == "co_owner" && !req.Remove:
		return s.view(s.reg.AddCoOwner(ctx, actorID, id, req.UserID))
	case req.Role == "co_owner":
		return s.view(s.reg.RemoveCoOwner(ctx, actorID, id, req.UserID))
	case req.Role == "moderator" && !req.Remove:
		return s.view(s.reg.AddModerator(ctx, actorID, id, req.UserID))
	case req.Role == "moderator":
		return s.view(s.reg.RemoveModerator(ctx, actorID, id, req.UserID))
	}
	return nil, errs.New(errs.KindInvalidArgument, "unknown role %q", req.Role)
}

// Update 修改描述、规则与消息格式，未提供的字段保持不变
func (s *GlobalChatService) Update(ctx context.Context, actorID string, id int64, req *UpdateChannelRequest) (*ChannelView, error) {
	var (
		c   *models.GlobalChatChannel
		err error
	)
	if req.Description != nil {
		if c, err = s.reg.SetDescription(ctx, actorID, id, *req.Description); err != nil {
			return nil, err
		}
	}
	if req.Rules != nil {
		if c, err = s.reg.SetRules(ctx, actorID, id, *req.Rules); err != nil {
			return nil, err
		}
	}
	if req.Prefix != nil || req.Suffix != nil {
		if c, err = s.reg.SetFormat(ctx, actorID, id, req.Prefix, req.Suffix); err != nil {
			return nil, err
		}
	}
	if c == nil {
		return nil, errs.New(errs.KindInvalidArgument, "nothing to update")
	}
	return NewChannelView(c), nil
}

func (s *GlobalChatService) Status(ctx context.Context, id int64, guildID string) (*GuildStatusView, error) {
	st, err := s.reg.Status(ctx, id, guildID)
	if err != nil {
		return nil, err
	}
	return &GuildStatusView{
		GuildID:     st.GuildID,
		Linked:      st.Linked,
		Destination: st.Destination,
		Banned:      st.Banned,
		Kicked:      st.Kicked,
		Muted:       st.Mute.Muted,
		Permanent:   st.Mute.Permanent,
		RemainingMs: st.Mute.Remaining.Milliseconds(),
		Warnings:    st.Warnings,
		Eligible:    st.Eligible(),
	}, nil
}
