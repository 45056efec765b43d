package services

import (
	"context"
	"errors"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Gopher0727/GlobalChat/internal/errs"
	"github.com/Gopher0727/GlobalChat/internal/globalchat"
	"github.com/Gopher0727/GlobalChat/internal/messenger"
	"github.com/Gopher0727/GlobalChat/internal/models"
	"github.com/Gopher0727/GlobalChat/internal/proxy"
	"github.com/Gopher0727/GlobalChat/internal/utils"
	logger "github.com/Gopher0727/GlobalChat/middleware/log"
)

// MessageService 处理入站消息：身份解析 -> 原频道代发 -> 跨服务器转发
type MessageService struct {
	resolver *proxy.Resolver
	reg      *globalchat.Registry
	router   *globalchat.Router
	out      messenger.Messenger
	pool     *utils.WorkerPool
	log      *logger.Logger
}

func NewMessageService(resolver *proxy.Resolver, reg *globalchat.Registry, router *globalchat.Router,
	out messenger.Messenger, pool *utils.WorkerPool, log *logger.Logger,
) *MessageService {
	if log == nil {
		log = logger.NewNop()
	}
	return &MessageService{resolver: resolver, reg: reg, router: router, out: out, pool: pool, log: log}
}

// HandleResult 一条消息的处理结果
type HandleResult struct {
	Skipped    bool
	Resolution proxy.Resolution
	// Reposted 表示消息已以代理身份在原频道重新发送
	Reposted bool
	Outcomes []globalchat.Outcome
}

// Dispatch 把事件放入协程池异步处理，每个事件一个任务
func (s *MessageService) Dispatch(ctx context.Context, ev *models.InboundEvent) error {
	traceID := logger.GetTraceID(ctx)
	if traceID == "" {
		traceID = uuid.NewString()
	}
	return s.pool.Submit(ctx, func() {
		jobCtx := logger.WithTraceID(context.Background(), traceID)
		if _, err := s.HandleEvent(jobCtx, ev); err != nil {
			s.log.ForEvent(jobCtx, ev.GuildID, ev.ChannelID, ev.AuthorID).Warn("event failed", zap.Error(err))
		}
	})
}

// HandleEvent 同步处理一条入站消息。机器人与 webhook 发出的消息直接跳过，
// 避免代发后的消息再次被处理
func (s *MessageService) HandleEvent(ctx context.Context, ev *models.InboundEvent) (*HandleResult, error) {
	if ev.Automated() {
		return &HandleResult{Skipped: true}, nil
	}
	log := s.log.ForEvent(ctx, ev.GuildID, ev.ChannelID, ev.AuthorID)

	res, err := s.resolver.Resolve(ctx, ev)
	if err != nil {
		// 身份解析失败时按作者本人身份继续
		log.Warn("identity resolution failed", zap.Error(err))
	}
	out := &HandleResult{Resolution: res}

	if res.Proxied() && res.Content != "" {
		out.Reposted = s.repost(ctx, log, ev, res)
	}

	if ev.GuildID == "" {
		return out, nil
	}
	if _, guildID, linked := s.reg.Lookup(ev.ChannelID); !linked || guildID != ev.GuildID {
		return out, nil
	}

	content := res.Content
	if content == "" {
		return out, nil
	}
	author := globalchat.Author{
		UserName:  ev.AuthorName,
		AvatarURL: ev.AuthorAvatarURL,
		GuildName: ev.GuildName,
		Member:    res.Member,
	}
	if res.Settings != nil {
		author.ShowIndicator = res.Settings.ShowIndicator
	}

	outcomes, err := s.router.Relay(ctx, globalchat.Message{
		SourceGuild:   ev.GuildID,
		SourceChannel: ev.ChannelID,
		Content:       content,
		Author:        author,
	})
	if err != nil {
		if errors.Is(err, errs.ErrSourceNotEligible) {
			log.Debug("relay skipped", zap.String("reason", errs.Message(err)))
			return out, nil
		}
		return out, err
	}
	out.Outcomes = outcomes
	return out, nil
}

// repost 以代理身份在原频道重新发送消息，成功后删除原消息
func (s *MessageService) repost(ctx context.Context, log *logger.Logger, ev *models.InboundEvent, res proxy.Resolution) bool {
	author := globalchat.Author{UserName: ev.AuthorName, AvatarURL: ev.AuthorAvatarURL, Member: res.Member}
	if res.Settings != nil {
		author.ShowIndicator = res.Settings.ShowIndicator
	}
	id := globalchat.Compose("", globalchat.Route{}, author)

	err := s.out.Send(ctx, messenger.Delivery{
		GuildID:     ev.GuildID,
		ChannelID:   ev.ChannelID,
		DisplayName: id.Name,
		AvatarURL:   id.AvatarURL,
		Content:     res.Content,
	})
	if err != nil {
		log.Warn("proxy repost failed", zap.Int64("member_id", res.Member.ID), zap.Error(err))
		return false
	}

	if d, ok := s.out.(messenger.Deleter); ok && ev.MessageID != "" {
		if err := d.Delete(ctx, ev.ChannelID, ev.MessageID); err != nil {
			log.Warn("delete original failed", zap.String("message_id", ev.MessageID), zap.Error(err))
		}
	}
	log.Debug("message proxied",
		zap.Int64("member_id", res.Member.ID),
		zap.Bool("explicit", res.Explicit),
	)
	return true
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
