// Package globalchat links guild channels into shared logical channels and
// keeps their moderation state. A channel's links and moderation records
// live in one entry behind one mutex, so a ban and the unlink it implies
// are a single atomic step.
package globalchat

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/Gopher0727/GlobalChat/internal/errs"
	"github.com/Gopher0727/GlobalChat/internal/models"
	logger "github.com/Gopher0727/GlobalChat/middleware/log"
	"github.com/Gopher0727/GlobalChat/utils/shardmap"
)

// ChannelStore persists GlobalChatChannel records.
type ChannelStore interface {
	LoadGlobalChatChannel(ctx context.Context, id int64) (*models.GlobalChatChannel, error)
	SaveGlobalChatChannel(ctx context.Context, c *models.GlobalChatChannel) error
	ListGlobalChatChannels(ctx context.Context) ([]*models.GlobalChatChannel, error)
}

type IDGenerator interface {
	NextID() (int64, error)
}

type channelEntry struct {
	mu      sync.Mutex
	writeMu sync.Mutex
	c       *models.GlobalChatChannel
}

// link is one row of the reverse index.
type link struct {
	channelID int64
	guildID   string
}

// Registry owns every GlobalChatChannel. Besides the channels themselves it
// keeps two indexes: lower-cased name to id, and destination channel to
// (logical channel, guild). The destination index is only touched while
// the owning channel's mutex is held, except for the reservation taken at
// the start of Link.
type Registry struct {
	store ChannelStore
	ids   IDGenerator
	now   func() time.Time
	log   *logger.Logger

	channels *shardmap.Map[*channelEntry]
	names    *shardmap.Map[int64]
	dests    *shardmap.Map[link]
}

func NewRegistry(store ChannelStore, ids IDGenerator, log *logger.Logger) *Registry {
	if log == nil {
		log = logger.NewNop()
	}
	return &Registry{
		store:    store,
		ids:      ids,
		now:      time.Now,
		log:      log,
		channels: shardmap.New[*channelEntry](0),
		names:    shardmap.New[int64](0),
		dests:    shardmap.New[link](0),
	}
}

// SetClock replaces the time source; tests only.
func (r *Registry) SetClock(now func() time.Time) { r.now = now }

func channelKey(id int64) string { return strconv.FormatInt(id, 10) }

func nameKey(name string) string { return strings.ToLower(strings.TrimSpace(name)) }

// Warm loads every channel from the store. The destination index is only
// complete after Warm, so it must run before any message is routed.
func (r *Registry) Warm(ctx context.Context) error {
	list, err := r.store.ListGlobalChatChannels(ctx)
	if err != nil {
		return storeError(err, "list global chats")
	}
	for _, c := range list {
		r.install(c)
	}
	r.log.Info("global chats loaded", zap.Int("count", len(list)))
	return nil
}

// install adds c unless an entry for its id exists already.
func (r *Registry) install(c *models.GlobalChatChannel) *channelEntry {
	c.Normalize()
	e, existed := r.channels.GetOrCreate(channelKey(c.ID), func() *channelEntry {
		return &channelEntry{c: c}
	})
	if existed {
		return e
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	r.names.Set(nameKey(c.Name), c.ID)
	for guildID, dest := range c.LinkedChannels {
		r.dests.Set(dest, link{channelID: c.ID, guildID: guildID})
	}
	return e
}

func (r *Registry) entry(ctx context.Context, id int64) (*channelEntry, error) {
	if e, ok := r.channels.Get(channelKey(id)); ok {
		return e, nil
	}
	c, err := r.store.LoadGlobalChatChannel(ctx, id)
	if err != nil {
		return nil, storeError(err, "load global chat %d", id)
	}
	return r.install(c), nil
}

func (r *Registry) persist(ctx context.Context, e *channelEntry) error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	e.mu.Lock()
	snapshot := e.c.Clone()
	e.mu.Unlock()

	if err := r.store.SaveGlobalChatChannel(ctx, snapshot); err != nil {
		return storeError(err, "save global chat %d", snapshot.ID)
	}
	return nil
}

func (r *Registry) touch(c *models.GlobalChatChannel) {
	now := r.now().UTC().Truncate(time.Microsecond)
	if !now.After(c.UpdatedAt) {
		now = c.UpdatedAt.Add(time.Microsecond)
	}
	c.UpdatedAt = now
}

// update locks channel id, checks that actor holds at least need, and runs
// fn. fn reports whether it changed anything; changes are persisted even
// when fn also returns an error, since an evicted mute must reach the store.
func (r *Registry) update(ctx context.Context, id int64, actorID string, need models.Role, fn func(c *models.GlobalChatChannel) (bool, error)) (*models.GlobalChatChannel, error) {
	e, err := r.entry(ctx, id)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	if role := e.c.RoleOf(actorID); role < need {
		e.mu.Unlock()
		return nil, errs.New(errs.KindForbidden, "%s needs %s, has %s", actorID, need, role)
	}
	changed, fnErr := fn(e.c)
	if changed {
		r.touch(e.c)
	}
	out := e.c.Clone()
	e.mu.Unlock()

	if changed {
		if err := r.persist(ctx, e); err != nil {
			if fnErr != nil {
				r.log.Warn("failed to persist evicted state", zap.Int64("channel_id", id), zap.Error(err))
				return nil, fnErr
			}
			return out, err
		}
	}
	if fnErr != nil {
		return nil, fnErr
	}
	return out, nil
}

// CreateOptions describes a new global chat.
type CreateOptions struct {
	Name        string
	Description string
	Visibility  models.Visibility
	// JoinKey is required for private channels and ignored otherwise.
	JoinKey string
}

// Create registers a new global chat owned by ownerID. Names are unique
// case-insensitively.
func (r *Registry) Create(ctx context.Context, ownerID string, opts CreateOptions) (*models.GlobalChatChannel, error) {
	name := strings.TrimSpace(opts.Name)
	if name == "" {
		return nil, errs.New(errs.KindInvalidArgument, "channel name is empty")
	}
	vis := opts.Visibility
	if vis == "" {
		vis = models.VisibilityPublic
	}
	if vis != models.VisibilityPublic && vis != models.VisibilityPrivate {
		return nil, errs.New(errs.KindInvalidArgument, "visibility must be public or private")
	}

	var hash string
	if vis == models.VisibilityPrivate {
		if opts.JoinKey == "" {
			return nil, errs.New(errs.KindInvalidArgument, "a private channel needs a join key")
		}
		b, err := bcrypt.GenerateFromPassword([]byte(opts.JoinKey), bcrypt.DefaultCost)
		if err != nil {
			return nil, errs.New(errs.KindInvalidArgument, "join key: %v", err)
		}
		hash = string(b)
	}

	id, err := r.ids.NextID()
	if err != nil {
		return nil, err
	}
	if _, taken := r.names.GetOrCreate(nameKey(name), func() int64 { return id }); taken {
		return nil, errs.New(errs.KindDuplicateName, "global chat %q", name)
	}

	c := &models.GlobalChatChannel{
		ID:          id,
		Name:        name,
		Description: opts.Description,
		Visibility:  vis,
		JoinKeyHash: hash,
		OwnerID:     ownerID,
	}
	r.touch(c)
	c.CreatedAt = c.UpdatedAt
	e := r.install(c)

	e.mu.Lock()
	out := e.c.Clone()
	e.mu.Unlock()

	r.log.Info("global chat created",
		zap.Int64("channel_id", id),
		zap.String("name", name),
		zap.String("owner_id", ownerID),
	)
	if err := r.persist(ctx, e); err != nil {
		return out, err
	}
	return out, nil
}

func (r *Registry) Get(ctx context.Context, id int64) (*models.GlobalChatChannel, error) {
	e, err := r.entry(ctx, id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.c.Clone(), nil
}

func (r *Registry) GetByName(ctx context.Context, name string) (*models.GlobalChatChannel, error) {
	id, ok := r.names.Get(nameKey(name))
	if !ok {
		return nil, errs.New(errs.KindNotFound, "global chat %q", name)
	}
	return r.Get(ctx, id)
}

// ListPublic returns the public channels ordered by name.
func (r *Registry) ListPublic() []*models.GlobalChatChannel {
	var out []*models.GlobalChatChannel
	r.channels.Range(func(_ string, e *channelEntry) bool {
		e.mu.Lock()
		if e.c.Visibility == models.VisibilityPublic {
			out = append(out, e.c.Clone())
		}
		e.mu.Unlock()
		return true
	})
	sortByName(out)
	return out
}

// Link connects guildID to channel id through destChannelID. A guild has at
// most one destination per channel and a destination belongs to at most one
// channel. Banned guilds cannot link; kicked guilds can, which clears the
// kick. Private channels require the join key.
func (r *Registry) Link(ctx context.Context, id int64, guildID, destChannelID, joinKey string) (*models.GlobalChatChannel, error) {
	if guildID == "" || destChannelID == "" {
		return nil, errs.New(errs.KindInvalidArgument, "guild and channel are required")
	}
	e, err := r.entry(ctx, id)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	hash := e.c.JoinKeyHash
	private := e.c.Visibility == models.VisibilityPrivate
	e.mu.Unlock()
	if private {
		if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(joinKey)); err != nil {
			return nil, errs.New(errs.KindForbidden, "wrong join key for global chat %d", id)
		}
	}

	want := link{channelID: id, guildID: guildID}
	if held, taken := r.dests.GetOrCreate(destChannelID, func() link { return want }); taken {
		if held.channelID == id {
			return nil, errs.New(errs.KindAlreadyLinked, "channel %s is already linked here by guild %s", destChannelID, held.guildID)
		}
		return nil, errs.New(errs.KindAlreadyLinked, "channel %s is linked to global chat %d", destChannelID, held.channelID)
	}

	out, err := r.update(ctx, id, "", models.RoleNone, func(c *models.GlobalChatChannel) (bool, error) {
		if c.BannedGuilds.Has(guildID) {
			r.dests.CompareAndDelete(destChannelID, func(l link) bool { return l == want })
			return false, errs.New(errs.KindBannedGuild, "guild %s in global chat %d", guildID, id)
		}
		if dest, ok := c.LinkedChannels[guildID]; ok {
			r.dests.CompareAndDelete(destChannelID, func(l link) bool { return l == want })
			return false, errs.New(errs.KindAlreadyLinked, "guild %s is linked through %s", guildID, dest)
		}
		c.LinkedChannels[guildID] = destChannelID
		delete(c.KickedGuilds, guildID)
		return true, nil
	})
	if out != nil {
		r.log.Info("guild linked",
			zap.Int64("channel_id", id),
			zap.String("guild_id", guildID),
			zap.String("dest_channel_id", destChannelID),
		)
	}
	return out, err
}

// Unlink removes guildID's link. Unlinking a guild that is not linked
// succeeds without changing anything.
func (r *Registry) Unlink(ctx context.Context, id int64, guildID string) (*models.GlobalChatChannel, error) {
	return r.update(ctx, id, "", models.RoleNone, func(c *models.GlobalChatChannel) (bool, error) {
		return r.dropLink(c, guildID), nil
	})
}

// dropLink removes guildID's link and its reverse index row. Caller holds
// the channel mutex.
func (r *Registry) dropLink(c *models.GlobalChatChannel, guildID string) bool {
	dest, ok := c.LinkedChannels[guildID]
	if !ok {
		return false
	}
	delete(c.LinkedChannels, guildID)
	want := link{channelID: c.ID, guildID: guildID}
	r.dests.CompareAndDelete(dest, func(l link) bool { return l == want })
	return true
}

func (r *Registry) IsLinked(ctx context.Context, id int64, guildID string) (bool, error) {
	_, err := r.DestinationFor(ctx, id, guildID)
	if errors.Is(err, errs.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (r *Registry) DestinationFor(ctx context.Context, id int64, guildID string) (string, error) {
	e, err := r.entry(ctx, id)
	if err != nil {
		return "", err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	dest, ok := e.c.LinkedChannels[guildID]
	if !ok {
		return "", errs.New(errs.KindNotFound, "guild %s is not linked to global chat %d", guildID, id)
	}
	return dest, nil
}

// Lookup finds the logical channel a destination channel is linked to.
func (r *Registry) Lookup(destChannelID string) (channelID int64, guildID string, ok bool) {
	l, ok := r.dests.Get(destChannelID)
	return l.channelID, l.guildID, ok
}

func storeError(err error, format string, args ...any) error {
	if errs.KindOf(err) != errs.KindUnknown {
		return err
	}
	return errs.Wrap(errs.KindStoreUnavailable, err, format, args...)
}
