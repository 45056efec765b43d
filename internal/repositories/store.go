package repositories

import (
	"context"

	"github.com/Gopher0727/GlobalChat/internal/models"
)

// Store 系统的持久化接口。找不到记录返回 errs.KindNotFound，其余失败返回 errs.KindStoreUnavailable。
type Store interface {
	LoadProxyMember(ctx context.Context, id int64) (*models.ProxyMember, error)
	SaveProxyMember(ctx context.Context, m *models.ProxyMember) error
	DeleteProxyMember(ctx context.Context, id int64) error
	ListProxyMembers(ctx context.Context, ownerID string) ([]*models.ProxyMember, error)

	LoadSettings(ctx context.Context, ownerID string, scope models.Scope) (*models.ProxySettings, error)
	SaveSettings(ctx context.Context, s *models.ProxySettings) error

	LoadGlobalChatChannel(ctx context.Context, id int64) (*models.GlobalChatChannel, error)
	SaveGlobalChatChannel(ctx context.Context, c *models.GlobalChatChannel) error
	ListGlobalChatChannels(ctx context.Context) ([]*models.GlobalChatChannel, error)
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*GormStore)(nil)
	_ Store = (*CachedStore)(nil)
)
