package globalchat

import (
	"cmp"
	"context"
	"slices"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Gopher0727/GlobalChat/internal/errs"
	"github.com/Gopher0727/GlobalChat/internal/messenger"
	"github.com/Gopher0727/GlobalChat/internal/models"
	logger "github.com/Gopher0727/GlobalChat/middleware/log"
)

const defaultFanout = 8

type Destination struct {
	GuildID   string
	ChannelID string
}

// Route is where one message from a linked channel goes.
type Route struct {
	ChannelID    int64
	ChannelName  string
	Prefix       *string
	Suffix       *string
	Destinations []Destination
}

// Route resolves the logical channel sourceChannel is linked to and lists
// every other eligible guild's destination. It fails with SourceNotEligible
// when the source is not linked, or is banned or muted; the cause is kept
// in the error chain. Expired mutes met on the way are evicted.
func (r *Registry) Route(ctx context.Context, sourceGuild, sourceChannel string) (Route, error) {
	id, guildID, ok := r.Lookup(sourceChannel)
	if !ok || guildID != sourceGuild {
		return Route{}, errs.New(errs.KindSourceNotEligible, "channel %s is not linked", sourceChannel)
	}

	var (
		route    Route
		computed bool
	)
	_, err := r.update(ctx, id, "", models.RoleNone, func(c *models.GlobalChatChannel) (bool, error) {
		now := r.now()
		src, changed := guildStatus(c, sourceGuild, now)
		switch {
		case !src.Linked || src.Destination != sourceChannel:
			return changed, errs.New(errs.KindSourceNotEligible, "channel %s is not linked", sourceChannel)
		case src.Banned:
			return changed, errs.Wrap(errs.KindSourceNotEligible,
				errs.New(errs.KindBannedGuild, "guild %s", sourceGuild), "global chat %d", id)
		case src.Mute.Muted:
			return changed, errs.Wrap(errs.KindSourceNotEligible, src.Mute.Err(sourceGuild), "global chat %d", id)
		}

		dests := make([]Destination, 0, len(c.LinkedChannels))
		for g, dest := range c.LinkedChannels {
			if g == sourceGuild || c.BannedGuilds.Has(g) {
				continue
			}
			mute, expired := muteState(c, g, now)
			changed = changed || expired
			if mute.Muted {
				continue
			}
			dests = append(dests, Destination{GuildID: g, ChannelID: dest})
		}
		slices.SortFunc(dests, func(a, b Destination) int { return cmp.Compare(a.GuildID, b.GuildID) })

		route = Route{
			ChannelID:    c.ID,
			ChannelName:  c.Name,
			Prefix:       cloneString(c.MessagePrefix),
			Suffix:       cloneString(c.MessageSuffix),
			Destinations: dests,
		}
		computed = true
		return changed, nil
	})
	if err != nil && !computed {
		return Route{}, err
	}
	// a failed cleanup write does not make the route wrong
	return route, nil
}

// Outcome is the result of delivering to one destination.
type Outcome struct {
	Destination
	Err error
}

// Message is one relayed message.
type Message struct {
	SourceGuild   string
	SourceChannel string
	Content       string
	Author        Author
}

// Router fans messages out to every eligible destination.
type Router struct {
	reg           *Registry
	out           messenger.Messenger
	defaultPrefix string
	limit         int
	log           *logger.Logger
}

func NewRouter(reg *Registry, out messenger.Messenger, defaultPrefix string, limit int, log *logger.Logger) *Router {
	if limit <= 0 {
		limit = defaultFanout
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Router{reg: reg, out: out, defaultPrefix: defaultPrefix, limit: limit, log: log}
}

// Relay delivers msg to every destination of its route, at most limit at a
// time. One destination failing never stops the others; each outcome is
// reported in route order.
func (rt *Router) Relay(ctx context.Context, msg Message) ([]Outcome, error) {
	route, err := rt.reg.Route(ctx, msg.SourceGuild, msg.SourceChannel)
	if err != nil {
		return nil, err
	}
	identity := Compose(rt.defaultPrefix, route, msg.Author)

	outcomes := make([]Outcome, len(route.Destinations))
	var g errgroup.Group
	g.SetLimit(rt.limit)
	for i, dest := range route.Destinations {
		g.Go(func() error {
			err := rt.out.Send(ctx, messenger.Delivery{
				GuildID:     dest.GuildID,
				ChannelID:   dest.ChannelID,
				DisplayName: identity.Name,
				AvatarURL:   identity.AvatarURL,
				Content:     msg.Content,
			})
			if err != nil && errs.KindOf(err) != errs.KindMessengerUnavailable {
				err = errs.Wrap(errs.KindMessengerUnavailable, err, "guild %s", dest.GuildID)
			}
			outcomes[i] = Outcome{Destination: dest, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, o := range outcomes {
		if o.Err != nil {
			failed++
			rt.log.WarnContext(ctx, "relay delivery failed",
				zap.Int64("channel_id", route.ChannelID),
				zap.String("dest_guild_id", o.GuildID),
				zap.Error(o.Err),
			)
		}
	}
	rt.log.DebugContext(ctx, "message relayed",
		zap.Int64("channel_id", route.ChannelID),
		zap.Int("destinations", len(outcomes)),
		zap.Int("failed", failed),
	)
	return outcomes, nil
}
