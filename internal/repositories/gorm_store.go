package repositories

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Gopher0727/GlobalChat/internal/errs"
	"github.com/Gopher0727/GlobalChat/internal/models"
)

// GormStore PostgreSQL 上的系统记录
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// classify 把 gorm 错误映射到统一的错误类型
func classify(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errs.New(errs.KindNotFound, format, args...)
	}
	return errs.Wrap(errs.KindStoreUnavailable, err, format, args...)
}

// upsert 按主键插入或整行覆盖
func (s *GormStore) upsert(ctx context.Context, v any) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(v).Error
}

func (s *GormStore) LoadProxyMember(ctx context.Context, id int64) (*models.ProxyMember, error) {
	var m models.ProxyMember
	if err := s.db.WithContext(ctx).First(&m, id).Error; err != nil {
		return nil, classify(err, "member %d", id)
	}
	return &m, nil
}

func (s *GormStore) SaveProxyMember(ctx context.Context, m *models.ProxyMember) error {
	return classify(s.upsert(ctx, m), "save member %d", m.ID)
}

func (s *GormStore) DeleteProxyMember(ctx context.Context, id int64) error {
	res := s.db.WithContext(ctx).Delete(&models.ProxyMember{}, id)
	if res.Error != nil {
		return classify(res.Error, "delete member %d", id)
	}
	if res.RowsAffected == 0 {
		return errs.New(errs.KindNotFound, "member %d", id)
	}
	return nil
}

func (s *GormStore) ListProxyMembers(ctx context.Context, ownerID string) ([]*models.ProxyMember, error) {
	var list []*models.ProxyMember
	err := s.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at, id").
		Find(&list).Error
	if err != nil {
		return nil, classify(err, "list members of %s", ownerID)
	}
	return list, nil
}

func (s *GormStore) LoadSettings(ctx context.Context, ownerID string, scope models.Scope) (*models.ProxySettings, error) {
	var v models.ProxySettings
	err := s.db.WithContext(ctx).
		Where("owner_id = ? AND scope = ?", ownerID, scope).
		First(&v).Error
	if err != nil {
		return nil, classify(err, "settings of %s in %s", ownerID, scope)
	}
	return &v, nil
}

func (s *GormStore) SaveSettings(ctx context.Context, v *models.ProxySettings) error {
	return classify(s.upsert(ctx, v), "save settings of %s in %s", v.OwnerID, v.Scope)
}

func (s *GormStore) LoadGlobalChatChannel(ctx context.Context, id int64) (*models.GlobalChatChannel, error) {
	var c models.GlobalChatChannel
	if err := s.db.WithContext(ctx).First(&c, id).Error; err != nil {
		return nil, classify(err, "global chat %d", id)
	}
	c.Normalize()
	return &c, nil
}

func (s *GormStore) SaveGlobalChatChannel(ctx context.Context, c *models.GlobalChatChannel) error {
	return classify(s.upsert(ctx, c), "save global chat %d", c.ID)
}

func (s *GormStore) ListGlobalChatChannels(ctx context.Context) ([]*models.GlobalChatChannel, error) {
	var list []*models.GlobalChatChannel
	if err := s.db.WithContext(ctx).Order("id").Find(&list).Error; err != nil {
		return nil, classify(err, "list global chats")
	}
	for _, c := range list {
		c.Normalize()
	}
	return list, nil
}
