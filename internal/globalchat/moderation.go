package globalchat

import (
	"context"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Gopher0727/GlobalChat/internal/errs"
	"github.com/Gopher0727/GlobalChat/internal/models"
)

// MuteState is the effective mute of a guild at one instant.
type MuteState struct {
	Muted     bool
	Permanent bool
	Remaining time.Duration
}

// Err returns the MutedGuild error for a muted state, nil otherwise.
func (m MuteState) Err(guildID string) error {
	if !m.Muted {
		return nil
	}
	if m.Permanent {
		return errs.Muted(guildID, 0)
	}
	return errs.Muted(guildID, m.Remaining)
}

// muteState evaluates guildID's mute at now and evicts an expired one.
// expired reports whether an eviction happened. Caller holds the channel
// mutex, which makes the eviction happen exactly once.
func muteState(c *models.GlobalChatChannel, guildID string, now time.Time) (state MuteState, expired bool) {
	until, ok := c.MutedGuilds[guildID]
	if !ok {
		return MuteState{}, false
	}
	if until == 0 {
		return MuteState{Muted: true, Permanent: true}, false
	}
	remaining := time.UnixMilli(until).Sub(now)
	if remaining <= 0 {
		delete(c.MutedGuilds, guildID)
		return MuteState{}, true
	}
	return MuteState{Muted: true, Remaining: remaining}, false
}

// GuildStatus is everything a channel records about one guild.
type GuildStatus struct {
	GuildID     string
	Linked      bool
	Destination string
	Banned      bool
	Kicked      bool
	Mute        MuteState
	Warnings    []string
}

// Eligible reports whether the guild's messages may be relayed.
func (s GuildStatus) Eligible() bool {
	return s.Linked && !s.Banned && !s.Mute.Muted
}

// Ban bans guildID and removes its link in the same step.
func (r *Registry) Ban(ctx context.Context, actorID string, id int64, guildID string) (*models.GlobalChatChannel, error) {
	out, err := r.update(ctx, id, actorID, models.RoleCoOwner, func(c *models.GlobalChatChannel) (bool, error) {
		unlinked := r.dropLink(c, guildID)
		if c.BannedGuilds.Has(guildID) {
			return unlinked, nil
		}
		c.BannedGuilds[guildID] = struct{}{}
		return true, nil
	})
	r.logModeration(err, "guild banned", id, actorID, guildID)
	return out, err
}

func (r *Registry) Unban(ctx context.Context, actorID string, id int64, guildID string) (*models.GlobalChatChannel, error) {
	out, err := r.update(ctx, id, actorID, models.RoleCoOwner, func(c *models.GlobalChatChannel) (bool, error) {
		if !c.BannedGuilds.Has(guildID) {
			return false, errs.New(errs.KindNotFound, "guild %s is not banned", guildID)
		}
		delete(c.BannedGuilds, guildID)
		return true, nil
	})
	r.logModeration(err, "guild unbanned", id, actorID, guildID)
	return out, err
}

// Kick removes guildID's link and records the kick. Kicked guilds may link
// again.
func (r *Registry) Kick(ctx context.Context, actorID string, id int64, guildID string) (*models.GlobalChatChannel, error) {
	out, err := r.update(ctx, id, actorID, models.RoleModerator, func(c *models.GlobalChatChannel) (bool, error) {
		if !r.dropLink(c, guildID) {
			return false, errs.New(errs.KindNotFound, "guild %s is not linked", guildID)
		}
		c.KickedGuilds[guildID] = struct{}{}
		return true, nil
	})
	r.logModeration(err, "guild kicked", id, actorID, guildID)
	return out, err
}

// Mute silences guildID for d, or permanently when d is zero. A new mute
// replaces the previous one.
func (r *Registry) Mute(ctx context.Context, actorID string, id int64, guildID string, d time.Duration) (*models.GlobalChatChannel, error) {
	if d < 0 {
		return nil, errs.New(errs.KindInvalidArgument, "mute duration is negative")
	}
	out, err := r.update(ctx, id, actorID, models.RoleModerator, func(c *models.GlobalChatChannel) (bool, error) {
		var until int64
		if d > 0 {
			until = r.now().Add(d).UnixMilli()
		}
		c.MutedGuilds[guildID] = until
		return true, nil
	})
	r.logModeration(err, "guild muted", id, actorID, guildID, zap.Duration("duration", d))
	return out, err
}

func (r *Registry) Unmute(ctx context.Context, actorID string, id int64, guildID string) (*models.GlobalChatChannel, error) {
	out, err := r.update(ctx, id, actorID, models.RoleModerator, func(c *models.GlobalChatChannel) (bool, error) {
		state, expired := muteState(c, guildID, r.now())
		if !state.Muted {
			return expired, errs.New(errs.KindNotFound, "guild %s is not muted", guildID)
		}
		delete(c.MutedGuilds, guildID)
		return true, nil
	})
	r.logModeration(err, "guild unmuted", id, actorID, guildID)
	return out, err
}

// IsMuted evaluates guildID's mute, evicting it if it has expired.
func (r *Registry) IsMuted(ctx context.Context, id int64, guildID string) (MuteState, error) {
	var state MuteState
	_, err := r.update(ctx, id, "", models.RoleNone, func(c *models.GlobalChatChannel) (bool, error) {
		var expired bool
		state, expired = muteState(c, guildID, r.now())
		return expired, nil
	})
	return state, err
}

func (r *Registry) Warn(ctx context.Context, actorID string, id int64, guildID, reason string) (*models.GlobalChatChannel, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, errs.New(errs.KindInvalidArgument, "a warning needs a reason")
	}
	out, err := r.update(ctx, id, actorID, models.RoleModerator, func(c *models.GlobalChatChannel) (bool, error) {
		c.Warnings[guildID] = append(c.Warnings[guildID], reason)
		return true, nil
	})
	r.logModeration(err, "guild warned", id, actorID, guildID, zap.String("reason", reason))
	return out, err
}

// Unwarn clears every warning of guildID.
func (r *Registry) Unwarn(ctx context.Context, actorID string, id int64, guildID string) (*models.GlobalChatChannel, error) {
	out, err := r.update(ctx, id, actorID, models.RoleModerator, func(c *models.GlobalChatChannel) (bool, error) {
		if len(c.Warnings[guildID]) == 0 {
			return false, errs.New(errs.KindNotFound, "guild %s has no warnings", guildID)
		}
		delete(c.Warnings, guildID)
		return true, nil
	})
	r.logModeration(err, "guild warnings cleared", id, actorID, guildID)
	return out, err
}

func (r *Registry) Status(ctx context.Context, id int64, guildID string) (GuildStatus, error) {
	var status GuildStatus
	_, err := r.update(ctx, id, "", models.RoleNone, func(c *models.GlobalChatChannel) (bool, error) {
		var expired bool
		status, expired = guildStatus(c, guildID, r.now())
		return expired, nil
	})
	return status, err
}

func guildStatus(c *models.GlobalChatChannel, guildID string, now time.Time) (GuildStatus, bool) {
	mute, expired := muteState(c, guildID, now)
	dest, linked := c.LinkedChannels[guildID]
	return GuildStatus{
		GuildID:     guildID,
		Linked:      linked,
		Destination: dest,
		Banned:      c.BannedGuilds.Has(guildID),
		Kicked:      c.KickedGuilds.Has(guildID),
		Mute:        mute,
		Warnings:    slices.Clone(c.Warnings[guildID]),
	}, expired
}

func (r *Registry) logModeration(err error, msg string, id int64, actorID, guildID string, extra ...zap.Field) {
	if err != nil && errs.KindOf(err) != errs.KindStoreUnavailable {
		return
	}
	fields := append([]zap.Field{
		zap.Int64("channel_id", id),
		zap.String("actor_id", actorID),
		zap.String("guild_id", guildID),
	}, extra...)
	if err != nil {
		r.log.Warn(msg+" but not saved", append(fields, zap.Error(err))...)
		return
	}
	r.log.Info(msg, fields...)
}
