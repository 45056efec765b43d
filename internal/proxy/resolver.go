package proxy

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/Gopher0727/GlobalChat/internal/errs"
	"github.com/Gopher0727/GlobalChat/internal/models"
	logger "github.com/Gopher0727/GlobalChat/middleware/log"
)

// Resolution is the identity a message is posted under. Member is nil when
// the author speaks as themselves.
type Resolution struct {
	Member   *models.ProxyMember
	Content  string
	Explicit bool
	Settings *models.ProxySettings
}

func (r Resolution) Proxied() bool { return r.Member != nil }

// Resolver turns an inbound message into a Resolution.
type Resolver struct {
	members *Catalogue
	engine  *Engine
	log     *logger.Logger
}

func NewResolver(members *Catalogue, engine *Engine, log *logger.Logger) *Resolver {
	if log == nil {
		log = logger.NewNop()
	}
	return &Resolver{members: members, engine: engine, log: log}
}

// Resolve matches ev's text against the author's visible tags and, failing
// that, asks the autoproxy engine. The candidate members are read before
// the engine is entered so no catalogue lock is taken under a settings lock.
func (r *Resolver) Resolve(ctx context.Context, ev *models.InboundEvent) (Resolution, error) {
	scope := ev.Scope()
	self := Resolution{Content: ev.RawText}

	settings, err := r.engine.Get(ctx, ev.AuthorID, scope, nil)
	if err != nil {
		return self, err
	}
	self.Settings = settings
	if !settings.ProxyEnabled {
		return self, nil
	}

	visible, err := r.members.Visible(ctx, ev.AuthorID, scope)
	if err != nil {
		return self, err
	}
	byID := make(map[int64]*models.ProxyMember, len(visible))
	for _, m := range visible {
		byID[m.ID] = m
	}
	exists := func(id int64) bool {
		_, ok := byID[id]
		return ok
	}

	var (
		explicit *int64
		content  = ev.RawText
	)
	for _, m := range visible {
		if _, inner, ok := MatchTag(ev.RawText, m.Tags, settings.CaseSensitiveTags); ok {
			id := m.ID
			explicit = &id
			if !m.KeepProxyText {
				content = inner
			}
			break
		}
	}

	d, err := r.engine.Advance(ctx, ev.AuthorID, scope, explicit, exists)
	if err != nil {
		if !errors.Is(err, errs.ErrInvalidAutoproxyMode) {
			return self, err
		}
		r.log.WithContext(ctx).Warn("autoproxy skipped",
			zap.String("author_id", ev.AuthorID),
			zap.Stringer("scope", scope),
			zap.Error(err),
		)
	}
	if !d.Proxied {
		self.Settings = d.Settings
		return self, nil
	}

	return Resolution{
		Member:   byID[d.MemberID],
		Content:  content,
		Explicit: d.Explicit,
		Settings: d.Settings,
	}, nil
}
