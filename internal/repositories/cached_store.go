package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Gopher0727/GlobalChat/internal/models"
	logger "github.com/Gopher0727/GlobalChat/middleware/log"
)

const keyPrefix = "globalchat:"

// CachedStore 在 Store 前加一层 Redis 读缓存。
// 读：先查 Redis，未命中再回源并回填；写：先写后端，再删除缓存键。
// Redis 出错时只记录日志并直接回源，缓存不可用不影响正确性。
type CachedStore struct {
	Store
	rdb *redis.Client
	ttl time.Duration
	log *logger.Logger
}

func NewCachedStore(backing Store, rdb *redis.Client, ttl time.Duration, log *logger.Logger) *CachedStore {
	if log == nil {
		log = logger.NewNop()
	}
	return &CachedStore{Store: backing, rdb: rdb, ttl: ttl, log: log}
}

func memberKey(id int64) string { return fmt.Sprintf("%smember:%d", keyPrefix, id) }

func settingsCacheKey(ownerID string, scope models.Scope) string {
	return keyPrefix + "settings:" + ownerID + ":" + scope.Key()
}

func channelKey(id int64) string { return fmt.Sprintf("%schannel:%d", keyPrefix, id) }

// readThrough 通用的读穿透逻辑
func readThrough[T any](ctx context.Context, s *CachedStore, key string, load func() (*T, error)) (*T, error) {
	raw, err := s.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var v T
		if jerr := json.Unmarshal(raw, &v); jerr == nil {
			return &v, nil
		}
		s.log.Warn("discarding corrupt cache entry", zap.String("key", key))
	case !errors.Is(err, redis.Nil):
		s.log.Warn("redis get failed", zap.String("key", key), zap.Error(err))
	}

	v, err := load()
	if err != nil {
		return nil, err
	}
	if b, jerr := json.Marshal(v); jerr == nil {
		if serr := s.rdb.Set(ctx, key, b, s.ttl).Err(); serr != nil {
			s.log.Warn("redis set failed", zap.String("key", key), zap.Error(serr))
		}
	}
	return v, nil
}

func (s *CachedStore) invalidate(ctx context.Context, key string) {
	if err := s.rdb.Del(ctx, key).Err(); err != nil {
		s.log.Warn("redis del failed", zap.String("key", key), zap.Error(err))
	}
}

func (s *CachedStore) LoadProxyMember(ctx context.Context, id int64) (*models.ProxyMember, error) {
	return readThrough(ctx, s, memberKey(id), func() (*models.ProxyMember, error) {
		return s.Store.LoadProxyMember(ctx, id)
	})
}

func (s *CachedStore) SaveProxyMember(ctx context.Context, m *models.ProxyMember) error {
	if err := s.Store.SaveProxyMember(ctx, m); err != nil {
		return err
	}
	s.invalidate(ctx, memberKey(m.ID))
	return nil
}

func (s *CachedStore) DeleteProxyMember(ctx context.Context, id int64) error {
	err := s.Store.DeleteProxyMember(ctx, id)
	s.invalidate(ctx, memberKey(id))
	return err
}

func (s *CachedStore) LoadSettings(ctx context.Context, ownerID string, scope models.Scope) (*models.ProxySettings, error) {
	return readThrough(ctx, s, settingsCacheKey(ownerID, scope), func() (*models.ProxySettings, error) {
		return s.Store.LoadSettings(ctx, ownerID, scope)
	})
}

func (s *CachedStore) SaveSettings(ctx context.Context, v *models.ProxySettings) error {
	if err := s.Store.SaveSettings(ctx, v); err != nil {
		return err
	}
	s.invalidate(ctx, settingsCacheKey(v.OwnerID, v.Scope))
	return nil
}

func (s *CachedStore) LoadGlobalChatChannel(ctx context.Context, id int64) (*models.GlobalChatChannel, error) {
	c, err := readThrough(ctx, s, channelKey(id), func() (*models.GlobalChatChannel, error) {
		return s.Store.LoadGlobalChatChannel(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	c.Normalize()
	return c, nil
}

func (s *CachedStore) SaveGlobalChatChannel(ctx context.Context, c *models.GlobalChatChannel) error {
	if err := s.Store.SaveGlobalChatChannel(ctx, c); err != nil {
		return err
	}
	s.invalidate(ctx, channelKey(c.ID))
	return nil
}
