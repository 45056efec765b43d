package proxy

import (
	"cmp"
	"context"
	"errors"
	"net/url"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/Gopher0727/GlobalChat/internal/errs"
	"github.com/Gopher0727/GlobalChat/internal/models"
	logger "github.com/Gopher0727/GlobalChat/middleware/log"
	"github.com/Gopher0727/GlobalChat/utils/shardmap"
)

const maxNameLength = 100

var (
	errEmptyTag = errs.New(errs.KindInvalidArgument, "a proxy tag needs a prefix or a suffix")
	colorRe     = regexp.MustCompile(`^#?([0-9a-fA-F]{6})$`)
)

// MemberStore persists proxy members.
type MemberStore interface {
	LoadProxyMember(ctx context.Context, id int64) (*models.ProxyMember, error)
	SaveProxyMember(ctx context.Context, m *models.ProxyMember) error
	DeleteProxyMember(ctx context.Context, id int64) error
	ListProxyMembers(ctx context.Context, ownerID string) ([]*models.ProxyMember, error)
}

type IDGenerator interface {
	NextID() (int64, error)
}

// Field names a member attribute that Edit can change.
type Field string

const (
	FieldName        Field = "name"
	FieldDisplayName Field = "display_name"
	FieldPronouns    Field = "pronouns"
	FieldAvatar      Field = "avatar"
	FieldDescription Field = "description"
	FieldColor       Field = "color"
	FieldKeepProxy   Field = "keep_proxy"
	FieldGroup       Field = "group"
)

// ownerEntry holds every member of one owner. mu guards members; writeMu
// orders store writes so the newest snapshot is always the last one saved.
type ownerEntry struct {
	mu      sync.Mutex
	writeMu sync.Mutex
	loaded  bool
	members map[int64]*models.ProxyMember
}

// Catalogue owns ProxyMember records. Operations on different owners never
// contend; operations on one owner are serialised, which is also the scope
// of the name uniqueness rule.
type Catalogue struct {
	store  MemberStore
	ids    IDGenerator
	now    func() time.Time
	log    *logger.Logger
	owners *shardmap.Map[*ownerEntry]
	// byID maps member id to owner id for Get.
	byID *shardmap.Map[string]
}

func NewCatalogue(store MemberStore, ids IDGenerator, log *logger.Logger) *Catalogue {
	if log == nil {
		log = logger.NewNop()
	}
	return &Catalogue{
		store:  store,
		ids:    ids,
		now:    time.Now,
		log:    log,
		owners: shardmap.New[*ownerEntry](0),
		byID:   shardmap.New[string](0),
	}
}

// SetClock replaces the time source; tests only.
func (c *Catalogue) SetClock(now func() time.Time) { c.now = now }

func (c *Catalogue) entry(ctx context.Context, ownerID string) (*ownerEntry, error) {
	e, _ := c.owners.GetOrCreate(ownerID, func() *ownerEntry {
		return &ownerEntry{members: make(map[int64]*models.ProxyMember)}
	})

	e.mu.Lock()
	loaded := e.loaded
	e.mu.Unlock()
	if loaded {
		return e, nil
	}

	list, err := c.store.ListProxyMembers(ctx, ownerID)
	if err != nil {
		return nil, storeError(err, "list members of %s", ownerID)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.loaded {
		for _, m := range list {
			e.members[m.ID] = m
			c.byID.Set(strconv.FormatInt(m.ID, 10), ownerID)
		}
		e.loaded = true
	}
	return e, nil
}

// persist writes the current state of member id, or deletes it if it is
// no longer in the entry. Must be called without e.mu held.
func (c *Catalogue) persist(ctx context.Context, e *ownerEntry, id int64) error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	e.mu.Lock()
	m, ok := e.members[id]
	var snapshot *models.ProxyMember
	if ok {
		snapshot = m.Clone()
	}
	e.mu.Unlock()

	if !ok {
		err := c.store.DeleteProxyMember(ctx, id)
		if err != nil && !errors.Is(err, errs.ErrNotFound) {
			return storeError(err, "delete member %d", id)
		}
		return nil
	}
	if err := c.store.SaveProxyMember(ctx, snapshot); err != nil {
		return storeError(err, "save member %d", id)
	}
	return nil
}

// touch bumps UpdatedAt, keeping it strictly increasing even when the
// clock has not advanced.
func (c *Catalogue) touch(m *models.ProxyMember) {
	now := c.now().UTC().Truncate(time.Microsecond)
	if !now.After(m.UpdatedAt) {
		now = m.UpdatedAt.Add(time.Microsecond)
	}
	m.UpdatedAt = now
}

// findByName looks name up as seen from scope. Guild members shadow global
// ones, which only happens for records written before names were checked
// across scopes. Caller holds e.mu.
func findByName(e *ownerEntry, scope models.Scope, name string) *models.ProxyMember {
	var global *models.ProxyMember
	for _, m := range e.members {
		if !strings.EqualFold(m.Name, name) || !m.Scope.Contains(scope) {
			continue
		}
		if !m.Scope.IsGlobal() {
			return m
		}
		global = m
	}
	return global
}

// nameTaken reports whether a member called name would be visible together
// with another of the owner's members of the same name: a guild name clashes
// with global members and that guild's members, a global name with all of
// them. Caller holds e.mu.
func nameTaken(e *ownerEntry, scope models.Scope, name string, skip int64) bool {
	for _, m := range e.members {
		if m.ID == skip || !strings.EqualFold(m.Name, name) {
			continue
		}
		if m.Scope.Contains(scope) || scope.Contains(m.Scope) {
			return true
		}
	}
	return false
}

func normalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errs.New(errs.KindInvalidArgument, "member name is empty")
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return "", errs.New(errs.KindInvalidArgument, "member name is longer than %d characters", maxNameLength)
	}
	return name, nil
}

// Create adds a member named name in scope. It fails with DuplicateName if
// the name is already used by one of the owner's members visible wherever
// the new member is.
func (c *Catalogue) Create(ctx context.Context, ownerID string, scope models.Scope, name string) (*models.ProxyMember, error) {
	name, err := normalizeName(name)
	if err != nil {
		return nil, err
	}
	e, err := c.entry(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	id, err := c.ids.NextID()
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	if nameTaken(e, scope, name, 0) {
		e.mu.Unlock()
		return nil, errs.New(errs.KindDuplicateName, "%q in %s", name, scope)
	}
	m := &models.ProxyMember{
		ID:      id,
		OwnerID: ownerID,
		Scope:   scope,
		Name:    name,
	}
	c.touch(m)
	m.CreatedAt = m.UpdatedAt
	e.members[id] = m
	out := m.Clone()
	e.mu.Unlock()

	c.byID.Set(strconv.FormatInt(id, 10), ownerID)
	c.log.Debug("proxy member created",
		zap.String("owner_id", ownerID),
		zap.Int64("member_id", id),
		zap.Stringer("scope", scope),
	)
	if err := c.persist(ctx, e, id); err != nil {
		return out, err
	}
	return out, nil
}

// Get returns a copy of member id regardless of owner.
func (c *Catalogue) Get(ctx context.Context, id int64) (*models.ProxyMember, error) {
	key := strconv.FormatInt(id, 10)
	ownerID, ok := c.byID.Get(key)
	if !ok {
		m, err := c.store.LoadProxyMember(ctx, id)
		if err != nil {
			return nil, storeError(err, "load member %d", id)
		}
		ownerID = m.OwnerID
	}

	e, err := c.entry(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	m, ok := e.members[id]
	if !ok {
		return nil, errs.New(errs.KindNotFound, "member %d", id)
	}
	return m.Clone(), nil
}

func (c *Catalogue) GetByName(ctx context.Context, ownerID string, scope models.Scope, name string) (*models.ProxyMember, error) {
	e, err := c.entry(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	m := findByName(e, scope, strings.TrimSpace(name))
	if m == nil {
		return nil, errs.New(errs.KindNotFound, "member %q", name)
	}
	return m.Clone(), nil
}

// List returns the owner's members visible from scope ordered by name.
func (c *Catalogue) List(ctx context.Context, ownerID string, scope models.Scope) ([]*models.ProxyMember, error) {
	out, err := c.visible(ctx, ownerID, scope)
	if err != nil {
		return nil, err
	}
	slices.SortFunc(out, func(a, b *models.ProxyMember) int {
		return cmp.Or(
			cmp.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name)),
			cmp.Compare(a.ID, b.ID),
		)
	})
	return out, nil
}

// Visible returns the owner's members visible from scope in tag matching
// precedence: guild members before global ones, then oldest first.
func (c *Catalogue) Visible(ctx context.Context, ownerID string, scope models.Scope) ([]*models.ProxyMember, error) {
	out, err := c.visible(ctx, ownerID, scope)
	if err != nil {
		return nil, err
	}
	slices.SortFunc(out, func(a, b *models.ProxyMember) int {
		ag, bg := !a.Scope.IsGlobal(), !b.Scope.IsGlobal()
		if ag != bg {
			if ag {
				return -1
			}
			return 1
		}
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), cmp.Compare(a.ID, b.ID))
	})
	return out, nil
}

func (c *Catalogue) visible(ctx context.Context, ownerID string, scope models.Scope) ([]*models.ProxyMember, error) {
	e, err := c.entry(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*models.ProxyMember, 0, len(e.members))
	for _, m := range e.members {
		if m.Scope.Contains(scope) {
			out = append(out, m.Clone())
		}
	}
	return out, nil
}

// mutate runs fn on the owner's member id under the owner lock, bumps
// UpdatedAt on success and writes the result through the store.
func (c *Catalogue) mutate(ctx context.Context, ownerID string, id int64, fn func(e *ownerEntry, m *models.ProxyMember) error) (*models.ProxyMember, error) {
	e, err := c.entry(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	m, ok := e.members[id]
	if !ok {
		e.mu.Unlock()
		return nil, errs.New(errs.KindNotFound, "member %d", id)
	}
	if err := fn(e, m); err != nil {
		e.mu.Unlock()
		return nil, err
	}
	c.touch(m)
	out := m.Clone()
	e.mu.Unlock()

	if err := c.persist(ctx, e, id); err != nil {
		return out, err
	}
	return out, nil
}

// Edit sets one field of a member owned by ownerID.
func (c *Catalogue) Edit(ctx context.Context, ownerID string, id int64, field Field, value string) (*models.ProxyMember, error) {
	return c.mutate(ctx, ownerID, id, func(e *ownerEntry, m *models.ProxyMember) error {
		return applyEdit(e, m, field, value)
	})
}

func applyEdit(e *ownerEntry, m *models.ProxyMember, field Field, value string) error {
	switch field {
	case FieldName:
		name, err := normalizeName(value)
		if err != nil {
			return err
		}
		if nameTaken(e, m.Scope, name, m.ID) {
			return errs.New(errs.KindDuplicateName, "%q in %s", name, m.Scope)
		}
		m.Name = name
	case FieldDisplayName:
		m.DisplayName = strings.TrimSpace(value)
	case FieldPronouns:
		m.Pronouns = strings.TrimSpace(value)
	case FieldDescription:
		m.Description = value
	case FieldAvatar:
		value = strings.TrimSpace(value)
		if value != "" {
			u, err := url.Parse(value)
			if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
				return errs.New(errs.KindInvalidArgument, "avatar must be an http(s) URL")
			}
		}
		m.AvatarURL = value
	case FieldColor:
		value = strings.TrimSpace(value)
		if value == "" {
			m.Color = ""
			return nil
		}
		match := colorRe.FindStringSubmatch(value)
		if match == nil {
			return errs.New(errs.KindInvalidArgument, "color must look like #rrggbb")
		}
		m.Color = "#" + strings.ToLower(match[1])
	case FieldKeepProxy:
		keep, err := strconv.ParseBool(strings.TrimSpace(value))
		if err != nil {
			return errs.New(errs.KindInvalidArgument, "keep_proxy must be true or false")
		}
		m.KeepProxyText = keep
	case FieldGroup:
		value = strings.TrimSpace(value)
		if value == "" || strings.EqualFold(value, "none") {
			m.GroupID = nil
			return nil
		}
		gid, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return errs.New(errs.KindInvalidArgument, "group must be an id or none")
		}
		m.GroupID = &gid
	default:
		return errs.New(errs.KindInvalidArgument, "unknown field %q", field)
	}
	return nil
}

// AddTag appends tag and returns its index.
func (c *Catalogue) AddTag(ctx context.Context, ownerID string, id int64, tag models.ProxyTag) (*models.ProxyMember, int, error) {
	if err := ValidateTag(tag); err != nil {
		return nil, -1, err
	}
	idx := -1
	m, err := c.mutate(ctx, ownerID, id, func(_ *ownerEntry, m *models.ProxyMember) error {
		m.Tags = append(m.Tags, tag)
		idx = len(m.Tags) - 1
		return nil
	})
	return m, idx, err
}

// RemoveTag drops the tag at index. An out of range index leaves the member
// untouched and reports InvalidIndex.
func (c *Catalogue) RemoveTag(ctx context.Context, ownerID string, id int64, index int) (*models.ProxyMember, error) {
	return c.mutate(ctx, ownerID, id, func(_ *ownerEntry, m *models.ProxyMember) error {
		if index < 0 || index >= len(m.Tags) {
			return errs.New(errs.KindInvalidIndex, "member has %d tags, got index %d", len(m.Tags), index)
		}
		m.Tags = slices.Delete(m.Tags, index, index+1)
		return nil
	})
}

// Delete removes a member. Settings that still point at it are left alone
// and read as "no member" from then on.
func (c *Catalogue) Delete(ctx context.Context, ownerID string, id int64) error {
	e, err := c.entry(ctx, ownerID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	if _, ok := e.members[id]; !ok {
		e.mu.Unlock()
		return errs.New(errs.KindNotFound, "member %d", id)
	}
	delete(e.members, id)
	e.mu.Unlock()

	c.byID.Delete(strconv.FormatInt(id, 10))
	c.log.Debug("proxy member deleted", zap.String("owner_id", ownerID), zap.Int64("member_id", id))
	return c.persist(ctx, e, id)
}

// storeError keeps typed store errors (NotFound, StoreUnavailable) and
// classifies anything else as StoreUnavailable.
func storeError(err error, format string, args ...any) error {
	if errs.KindOf(err) != errs.KindUnknown {
		return err
	}
	return errs.Wrap(errs.KindStoreUnavailable, err, format, args...)
}
