package proxy

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Gopher0727/GlobalChat/internal/errs"
	"github.com/Gopher0727/GlobalChat/internal/models"
	logger "github.com/Gopher0727/GlobalChat/middleware/log"
	"github.com/Gopher0727/GlobalChat/utils/shardmap"
)

// SettingsStore persists ProxySettings.
type SettingsStore interface {
	LoadSettings(ctx context.Context, ownerID string, scope models.Scope) (*models.ProxySettings, error)
	SaveSettings(ctx context.Context, s *models.ProxySettings) error
}

// Exists reports whether a member id still resolves. References for which
// it returns false are treated as unset.
type Exists func(id int64) bool

// autoResolver picks the autoproxy member for a message that matched no
// tag. One per mode.
type autoResolver func(s *models.ProxySettings, exists Exists) (int64, bool, error)

var autoResolvers = map[models.AutoproxyMode]autoResolver{
	models.AutoproxyOff:    resolveOff,
	models.AutoproxyFront:  resolveLastProxied,
	models.AutoproxySticky: resolveLastProxied,
	models.AutoproxyMember: resolvePinned,
}

// stickyModes also record members chosen by autoproxy as last proxied.
var stickyModes = map[models.AutoproxyMode]bool{
	models.AutoproxySticky: true,
}

func resolveOff(*models.ProxySettings, Exists) (int64, bool, error) {
	return 0, false, nil
}

func resolveLastProxied(s *models.ProxySettings, exists Exists) (int64, bool, error) {
	if s.LastProxiedMemberID == nil || !exists(*s.LastProxiedMemberID) {
		return 0, false, nil
	}
	return *s.LastProxiedMemberID, true, nil
}

func resolvePinned(s *models.ProxySettings, exists Exists) (int64, bool, error) {
	if s.AutoproxyMemberID == nil || !exists(*s.AutoproxyMemberID) {
		return 0, false, errs.New(errs.KindInvalidAutoproxyMode, "member mode has no member")
	}
	return *s.AutoproxyMemberID, true, nil
}

type settingsEntry struct {
	mu      sync.Mutex
	writeMu sync.Mutex
	loaded  bool
	s       *models.ProxySettings
}

// Engine owns ProxySettings per (owner, scope) and runs the autoproxy
// state machine. Each key is serialised by its own mutex.
type Engine struct {
	store   SettingsStore
	now     func() time.Time
	log     *logger.Logger
	entries *shardmap.Map[*settingsEntry]
}

func NewEngine(store SettingsStore, log *logger.Logger) *Engine {
	if log == nil {
		log = logger.NewNop()
	}
	return &Engine{
		store:   store,
		now:     time.Now,
		log:     log,
		entries: shardmap.New[*settingsEntry](0),
	}
}

// SetClock replaces the time source; tests only.
func (en *Engine) SetClock(now func() time.Time) { en.now = now }

func settingsKey(ownerID string, scope models.Scope) string {
	return ownerID + "/" + scope.Key()
}

// entry returns the loaded entry for (owner, scope), creating and saving
// default settings on first access.
func (en *Engine) entry(ctx context.Context, ownerID string, scope models.Scope) (*settingsEntry, error) {
	e, _ := en.entries.GetOrCreate(settingsKey(ownerID, scope), func() *settingsEntry {
		return &settingsEntry{}
	})

	e.mu.Lock()
	loaded := e.loaded
	e.mu.Unlock()
	if loaded {
		return e, nil
	}

	s, err := en.store.LoadSettings(ctx, ownerID, scope)
	created := false
	if errors.Is(err, errs.ErrNotFound) {
		s, err, created = models.DefaultSettings(ownerID, scope, en.stamp(time.Time{})), nil, true
	}
	if err != nil {
		return nil, storeError(err, "load settings of %s in %s", ownerID, scope)
	}

	e.mu.Lock()
	if e.loaded {
		created = false
	} else {
		e.s = s
		e.loaded = true
	}
	e.mu.Unlock()

	if created {
		if err := en.persist(ctx, e); err != nil {
			return nil, err
		}
	}
	return e, nil
}

func (en *Engine) persist(ctx context.Context, e *settingsEntry) error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	e.mu.Lock()
	snapshot := e.s.Clone()
	e.mu.Unlock()

	if err := en.store.SaveSettings(ctx, snapshot); err != nil {
		return storeError(err, "save settings of %s in %s", snapshot.OwnerID, snapshot.Scope)
	}
	return nil
}

func (en *Engine) stamp(prev time.Time) time.Time {
	now := en.now().UTC().Truncate(time.Microsecond)
	if !now.After(prev) {
		now = prev.Add(time.Microsecond)
	}
	return now
}

// Get returns the settings for (owner, scope). When exists is non-nil,
// references to members it does not know are reported as unset.
func (en *Engine) Get(ctx context.Context, ownerID string, scope models.Scope, exists Exists) (*models.ProxySettings, error) {
	e, err := en.entry(ctx, ownerID, scope)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	out := e.s.Clone()
	e.mu.Unlock()

	if exists != nil {
		if out.AutoproxyMemberID != nil && !exists(*out.AutoproxyMemberID) {
			out.AutoproxyMemberID = nil
		}
		if out.LastProxiedMemberID != nil && !exists(*out.LastProxiedMemberID) {
			out.LastProxiedMemberID = nil
			out.LastSwitchTime = nil
		}
	}
	return out, nil
}

// Update applies fn atomically and writes the result back.
func (en *Engine) Update(ctx context.Context, ownerID string, scope models.Scope, fn func(s *models.ProxySettings) error) (*models.ProxySettings, error) {
	e, err := en.entry(ctx, ownerID, scope)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	working := e.s.Clone()
	if err := fn(working); err != nil {
		e.mu.Unlock()
		return nil, err
	}
	working.UpdatedAt = en.stamp(e.s.UpdatedAt)
	e.s = working
	out := working.Clone()
	e.mu.Unlock()

	if err := en.persist(ctx, e); err != nil {
		return out, err
	}
	return out, nil
}

// SetAutoproxy changes the autoproxy mode. Member mode needs memberID to
// be set and to exist.
func (en *Engine) SetAutoproxy(ctx context.Context, ownerID string, scope models.Scope, mode string, memberID *int64, exists Exists) (*models.ProxySettings, error) {
	parsed, ok := models.ParseAutoproxyMode(mode)
	if !ok {
		return nil, errs.New(errs.KindInvalidAutoproxyMode, "unknown mode %q", mode)
	}
	if parsed == models.AutoproxyMember && (memberID == nil || exists == nil || !exists(*memberID)) {
		return nil, errs.New(errs.KindInvalidAutoproxyMode, "member mode needs an existing member")
	}

	return en.Update(ctx, ownerID, scope, func(s *models.ProxySettings) error {
		s.AutoproxyMode = parsed
		s.AutoproxyMemberID = nil
		if parsed == models.AutoproxyMember {
			id := *memberID
			s.AutoproxyMemberID = &id
		}
		return nil
	})
}

// Switch records memberID as the current fronter, or clears the fronter
// when memberID is nil. Works in every autoproxy mode.
func (en *Engine) Switch(ctx context.Context, ownerID string, scope models.Scope, memberID *int64) (*models.ProxySettings, error) {
	return en.Update(ctx, ownerID, scope, func(s *models.ProxySettings) error {
		if memberID == nil {
			s.LastProxiedMemberID = nil
			s.LastSwitchTime = nil
			return nil
		}
		id := *memberID
		now := en.now().UTC()
		s.LastProxiedMemberID = &id
		s.LastSwitchTime = &now
		return nil
	})
}

// Decision is the outcome of one autoproxy step.
type Decision struct {
	MemberID int64
	Proxied  bool
	// Explicit is set when the member came from a tag match.
	Explicit bool
	Settings *models.ProxySettings
}

// Advance runs one message through the state machine. explicit is the
// member whose tag matched, or nil. A tag match always wins and becomes
// the last proxied member in every mode; otherwise the mode's resolver
// decides. Sticky mode also records members picked by autoproxy.
//
// A member-mode misconfiguration yields no proxy together with an
// InvalidAutoproxyMode error the caller may log.
func (en *Engine) Advance(ctx context.Context, ownerID string, scope models.Scope, explicit *int64, exists Exists) (Decision, error) {
	e, err := en.entry(ctx, ownerID, scope)
	if err != nil {
		return Decision{}, err
	}

	e.mu.Lock()
	s := e.s
	if !s.ProxyEnabled {
		out := Decision{Settings: s.Clone()}
		e.mu.Unlock()
		return out, nil
	}

	var (
		d       Decision
		changed bool
		warn    error
	)
	if explicit != nil {
		now := en.now().UTC()
		id := *explicit
		d = Decision{MemberID: id, Proxied: true, Explicit: true}

		next := s.Clone()
		next.LastProxiedMemberID = &id
		next.LastSwitchTime = &now
		e.s, changed = next, true
	} else {
		resolve, ok := autoResolvers[s.AutoproxyMode]
		if !ok {
			warn = errs.New(errs.KindInvalidAutoproxyMode, "stored mode %q", s.AutoproxyMode)
		} else {
			id, proxied, rerr := resolve(s, exists)
			warn = rerr
			if proxied {
				d = Decision{MemberID: id, Proxied: true}
				if stickyModes[s.AutoproxyMode] && (s.LastProxiedMemberID == nil || *s.LastProxiedMemberID != id) {
					next := s.Clone()
					next.LastProxiedMemberID = &id
					e.s, changed = next, true
				}
			}
		}
	}
	if changed {
		e.s.UpdatedAt = en.stamp(s.UpdatedAt)
	}
	d.Settings = e.s.Clone()
	e.mu.Unlock()

	if changed {
		en.log.Debug("fronter updated",
			zap.String("owner_id", ownerID),
			zap.Stringer("scope", scope),
			zap.Int64("member_id", d.MemberID),
			zap.Bool("explicit", d.Explicit),
		)
		if err := en.persist(ctx, e); err != nil {
			return d, err
		}
	}
	return d, warn
}
