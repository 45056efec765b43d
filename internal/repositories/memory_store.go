package repositories

import (
	"context"
	"sync"

	"github.com/Gopher0727/GlobalChat/internal/errs"
	"github.com/Gopher0727/GlobalChat/internal/models"
)

// MemoryStore 内存实现，用于本地调试和测试。所有读写都拷贝，调用方拿到的对象可以随意修改。
type MemoryStore struct {
	mu       sync.RWMutex
	members  map[int64]*models.ProxyMember
	settings map[string]*models.ProxySettings
	channels map[int64]*models.GlobalChatChannel
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		members:  make(map[int64]*models.ProxyMember),
		settings: make(map[string]*models.ProxySettings),
		channels: make(map[int64]*models.GlobalChatChannel),
	}
}

func settingsKey(ownerID string, scope models.Scope) string {
	return ownerID + ":" + scope.Key()
}

func (s *MemoryStore) LoadProxyMember(_ context.Context, id int64) (*models.ProxyMember, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.members[id]
	if !ok {
		return nil, errs.New(errs.KindNotFound, "member %d", id)
	}
	return m.Clone(), nil
}

func (s *MemoryStore) SaveProxyMember(_ context.Context, m *models.ProxyMember) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.members[m.ID] = m.Clone()
	return nil
}

func (s *MemoryStore) DeleteProxyMember(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.members[id]; !ok {
		return errs.New(errs.KindNotFound, "member %d", id)
	}
	delete(s.members, id)
	return nil
}

func (s *MemoryStore) ListProxyMembers(_ context.Context, ownerID string) ([]*models.ProxyMember, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.ProxyMember
	for _, m := range s.members {
		if m.OwnerID == ownerID {
			out = append(out, m.Clone())
		}
	}
	return out, nil
}

func (s *MemoryStore) LoadSettings(_ context.Context, ownerID string, scope models.Scope) (*models.ProxySettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.settings[settingsKey(ownerID, scope)]
	if !ok {
		return nil, errs.New(errs.KindNotFound, "settings of %s in %s", ownerID, scope)
	}
	return v.Clone(), nil
}

func (s *MemoryStore) SaveSettings(_ context.Context, v *models.ProxySettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings[settingsKey(v.OwnerID, v.Scope)] = v.Clone()
	return nil
}

func (s *MemoryStore) LoadGlobalChatChannel(_ context.Context, id int64) (*models.GlobalChatChannel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.channels[id]
	if !ok {
		return nil, errs.New(errs.KindNotFound, "global chat %d", id)
	}
	return c.Clone(), nil
}

func (s *MemoryStore) SaveGlobalChatChannel(_ context.Context, c *models.GlobalChatChannel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channels[c.ID] = c.Clone()
	return nil
}

func (s *MemoryStore) ListGlobalChatChannels(_ context.Context) ([]*models.GlobalChatChannel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.GlobalChatChannel, 0, len(s.channels))
	for _, c := range s.channels {
		out = append(out, c.Clone())
	}
	return out, nil
}
