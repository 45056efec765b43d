package globalchat

import (
	"cmp"
	"context"
	"slices"
	"strings"

	"github.com/Gopher0727/GlobalChat/internal/errs"
	"github.com/Gopher0727/GlobalChat/internal/models"
)

const maxRules = 25

func sortByName(list []*models.GlobalChatChannel) {
	slices.SortFunc(list, func(a, b *models.GlobalChatChannel) int {
		return cmp.Or(
			cmp.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name)),
			cmp.Compare(a.ID, b.ID),
		)
	})
}

// AddCoOwner is reserved to the owner.
func (r *Registry) AddCoOwner(ctx context.Context, actorID string, id int64, userID string) (*models.GlobalChatChannel, error) {
	return r.update(ctx, id, actorID, models.RoleOwner, func(c *models.GlobalChatChannel) (bool, error) {
		if userID == c.OwnerID {
			return false, errs.New(errs.KindInvalidArgument, "the owner cannot be a co-owner")
		}
		if c.CoOwners.Has(userID) {
			return false, nil
		}
		c.CoOwners[userID] = struct{}{}
		delete(c.Moderators, userID)
		return true, nil
	})
}

func (r *Registry) RemoveCoOwner(ctx context.Context, actorID string, id int64, userID string) (*models.GlobalChatChannel, error) {
	return r.update(ctx, id, actorID, models.RoleOwner, func(c *models.GlobalChatChannel) (bool, error) {
		if !c.CoOwners.Has(userID) {
			return false, errs.New(errs.KindNotFound, "%s is not a co-owner", userID)
		}
		delete(c.CoOwners, userID)
		return true, nil
	})
}

func (r *Registry) AddModerator(ctx context.Context, actorID string, id int64, userID string) (*models.GlobalChatChannel, error) {
	return r.update(ctx, id, actorID, models.RoleCoOwner, func(c *models.GlobalChatChannel) (bool, error) {
		if c.RoleOf(userID) >= models.RoleCoOwner {
			return false, errs.New(errs.KindInvalidArgument, "%s already outranks a moderator", userID)
		}
		if c.Moderators.Has(userID) {
			return false, nil
		}
		c.Moderators[userID] = struct{}{}
		return true, nil
	})
}

func (r *Registry) RemoveModerator(ctx context.Context, actorID string, id int64, userID string) (*models.GlobalChatChannel, error) {
	return r.update(ctx, id, actorID, models.RoleCoOwner, func(c *models.GlobalChatChannel) (bool, error) {
		if !c.Moderators.Has(userID) {
			return false, errs.New(errs.KindNotFound, "%s is not a moderator", userID)
		}
		delete(c.Moderators, userID)
		return true, nil
	})
}

// SetRules replaces the rule list. Blank rules are dropped.
func (r *Registry) SetRules(ctx context.Context, actorID string, id int64, rules []string) (*models.GlobalChatChannel, error) {
	cleaned := make([]string, 0, len(rules))
	for _, rule := range rules {
		if rule = strings.TrimSpace(rule); rule != "" {
			cleaned = append(cleaned, rule)
		}
	}
	if len(cleaned) > maxRules {
		return nil, errs.New(errs.KindInvalidArgument, "at most %d rules", maxRules)
	}
	return r.update(ctx, id, actorID, models.RoleCoOwner, func(c *models.GlobalChatChannel) (bool, error) {
		c.Rules = cleaned
		return true, nil
	})
}

// SetFormat overrides the bracketed prefix and suffix of relayed author
// names. A nil value restores the default.
func (r *Registry) SetFormat(ctx context.Context, actorID string, id int64, prefix, suffix *string) (*models.GlobalChatChannel, error) {
	return r.update(ctx, id, actorID, models.RoleCoOwner, func(c *models.GlobalChatChannel) (bool, error) {
		c.MessagePrefix = cloneString(prefix)
		c.MessageSuffix = cloneString(suffix)
		return true, nil
	})
}

func (r *Registry) SetDescription(ctx context.Context, actorID string, id int64, description string) (*models.GlobalChatChannel, error) {
	return r.update(ctx, id, actorID, models.RoleCoOwner, func(c *models.GlobalChatChannel) (bool, error) {
		c.Description = strings.TrimSpace(description)
		return true, nil
	})
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
