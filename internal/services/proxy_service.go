package services

import (
	"context"
	"strconv"
	"strings"

	"github.com/Gopher0727/GlobalChat/internal/errs"
	"github.com/Gopher0727/GlobalChat/internal/models"
	"github.com/Gopher0727/GlobalChat/internal/proxy"
)

// ProxyService 代理身份相关的命令：成员管理、标签、自动代理设置
type ProxyService struct {
	members *proxy.Catalogue
	engine  *proxy.Engine
}

func NewProxyService(members *proxy.Catalogue, engine *proxy.Engine) *ProxyService {
	return &ProxyService{members: members, engine: engine}
}

type CreateMemberRequest struct {
	Name    string `json:"name" binding:"required"`
	GuildID string `json:"guild_id"`
}

type EditMemberRequest struct {
	Field string `json:"field" binding:"required"`
	Value string `json:"value"`
}

type TagRequest struct {
	Prefix string `json:"prefix"`
	Suffix string `json:"suffix"`
}

type AutoproxyRequest struct {
	GuildID  string `json:"guild_id"`
	Mode     string `json:"mode" binding:"required"`
	MemberID string `json:"member_id"`
}

type SwitchRequest struct {
	GuildID  string `json:"guild_id"`
	MemberID string `json:"member_id"`
}

// SettingsRequest 只修改非空字段
type SettingsRequest struct {
	GuildID           string `json:"guild_id"`
	ProxyEnabled      *bool  `json:"proxy_enabled"`
	ShowIndicator     *bool  `json:"show_indicator"`
	CaseSensitiveTags *bool  `json:"case_sensitive_tags"`
}

// parseMemberID 空字符串表示未指定成员
func parseMemberID(raw string) (*int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, errs.New(errs.KindInvalidArgument, "member id %q", raw)
	}
	return &id, nil
}

// exists 返回 ownerID 在 scope 下可见成员的判定函数
func (s *ProxyService) exists(ctx context.Context, ownerID string, scope models.Scope) (proxy.Exists, error) {
	visible, err := s.members.Visible(ctx, ownerID, scope)
	if err != nil {
		return nil, err
	}
	ids := make(map[int64]struct{}, len(visible))
	for _, m := range visible {
		ids[m.ID] = struct{}{}
	}
	return func(id int64) bool {
		_, ok := ids[id]
		return ok
	}, nil
}

func (s *ProxyService) CreateMember(ctx context.Context, ownerID string, req *CreateMemberRequest) (*models.ProxyMember, error) {
	return s.members.Create(ctx, ownerID, models.GuildScope(req.GuildID), req.Name)
}

// GetMember 只返回 ownerID 自己的成员
func (s *ProxyService) GetMember(ctx context.Context, ownerID string, id int64) (*models.ProxyMember, error) {
	m, err := s.members.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if m.OwnerID != ownerID {
		return nil, errs.New(errs.KindNotFound, "member %d", id)
	}
	return m, nil
}

func (s *ProxyService) ListMembers(ctx context.Context, ownerID, guildID string) ([]*models.ProxyMember, error) {
	return s.members.List(ctx, ownerID, models.GuildScope(guildID))
}

func (s *ProxyService) EditMember(ctx context.Context, ownerID string, id int64, req *EditMemberRequest) (*models.ProxyMember, error) {
	return s.members.Edit(ctx, ownerID, id, proxy.Field(req.Field), req.Value)
}

func (s *ProxyService) AddTag(ctx context.Context, ownerID string, id int64, req *TagRequest) (*models.ProxyMember, int, error) {
	return s.members.AddTag(ctx, ownerID, id, models.ProxyTag{Prefix: req.Prefix, Suffix: req.Suffix})
}

func (s *ProxyService) RemoveTag(ctx context.Context, ownerID string, id int64, index int) (*models.ProxyMember, error) {
	return s.members.RemoveTag(ctx, ownerID, id, index)
}

func (s *ProxyService) DeleteMember(ctx context.Context, ownerID string, id int64) error {
	return s.members.Delete(ctx, ownerID, id)
}

// GetSettings 读取设置，已删除成员的引用显示为空
func (s *ProxyService) GetSettings(ctx context.Context, ownerID, guildID string) (*models.ProxySettings, error) {
	scope := models.GuildScope(guildID)
	exists, err := s.exists(ctx, ownerID, scope)
	if err != nil {
		return nil, err
	}
	return s.engine.Get(ctx, ownerID, scope, exists)
}

func (s *ProxyService) SetAutoproxy(ctx context.Context, ownerID string, req *AutoproxyRequest) (*models.ProxySettings, error) {
	scope := models.GuildScope(req.GuildID)
	exists, err := s.exists(ctx, ownerID, scope)
	if err != nil {
		return nil, err
	}
	memberID, err := parseMemberID(req.MemberID)
	if err != nil {
		return nil, err
	}
	return s.engine.SetAutoproxy(ctx, ownerID, scope, req.Mode, memberID, exists)
}

// Switch 切换前台成员；MemberID 为空表示清除
func (s *ProxyService) Switch(ctx context.Context, ownerID string, req *SwitchRequest) (*models.ProxySettings, error) {
	scope := models.GuildScope(req.GuildID)
	memberID, err := parseMemberID(req.MemberID)
	if err != nil {
		return nil, err
	}
	if memberID != nil {
		exists, err := s.exists(ctx, ownerID, scope)
		if err != nil {
			return nil, err
		}
		if !exists(*memberID) {
			return nil, errs.New(errs.KindNotFound, "member %d", *memberID)
		}
	}
	return s.engine.Switch(ctx, ownerID, scope, memberID)
}

func (s *ProxyService) UpdateSettings(ctx context.Context, ownerID string, req *SettingsRequest) (*models.ProxySettings, error) {
	return s.engine.Update(ctx, ownerID, models.GuildScope(req.GuildID), func(v *models.ProxySettings) error {
		if req.ProxyEnabled != nil {
			v.ProxyEnabled = *req.ProxyEnabled
		}
		if req.ShowIndicator != nil {
			v.ShowIndicator = *req.ShowIndicator
		}
		if req.CaseSensitiveTags != nil {
			v.CaseSensitiveTags = *req.CaseSensitiveTags
		}
		return nil
	})
}
