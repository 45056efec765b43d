// Package gateway receives chat platform events and turns them into
// InboundEvents.
package gateway

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Gopher0727/GlobalChat/internal/models"
	logger "github.com/Gopher0727/GlobalChat/middleware/log"
)

// Sink takes an inbound event: the local worker pool or the ingestion queue.
type Sink interface {
	Dispatch(ctx context.Context, ev *models.InboundEvent) error
}

// Discord listens on a bot session.
type Discord struct {
	session *discordgo.Session
	sink    Sink
	log     *logger.Logger
	selfID  string
}

func NewDiscord(session *discordgo.Session, sink Sink, log *logger.Logger) *Discord {
	if log == nil {
		log = logger.NewNop()
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent |
		discordgo.IntentsGuilds
	return &Discord{session: session, sink: sink, log: log}
}

// Start registers the handler and opens the gateway connection.
func (d *Discord) Start(context.Context) error {
	d.session.AddHandler(d.onMessageCreate)
	if err := d.session.Open(); err != nil {
		return fmt.Errorf("open discord session: %w", err)
	}
	if u := d.session.State.User; u != nil {
		d.selfID = u.ID
	}
	d.log.Info("discord gateway connected", zap.String("bot_id", d.selfID))
	return nil
}

func (d *Discord) Stop() error {
	return d.session.Close()
}

func (d *Discord) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author != nil && m.Author.ID == d.selfID {
		return
	}
	ev := ToEvent(m.Message, d.guildName(s, m.GuildID))
	if ev == nil || ev.Automated() {
		return
	}

	ctx := logger.WithTraceID(context.Background(), uuid.NewString())
	if err := d.sink.Dispatch(ctx, ev); err != nil {
		d.log.ForEvent(ctx, ev.GuildID, ev.ChannelID, ev.AuthorID).Warn("event dropped", zap.Error(err))
	}
}

func (d *Discord) guildName(s *discordgo.Session, guildID string) string {
	if guildID == "" || s.State == nil {
		return ""
	}
	g, err := s.State.Guild(guildID)
	if err != nil {
		return ""
	}
	return g.Name
}

// ToEvent converts a Discord message. It returns nil for messages without
// an author.
func ToEvent(m *discordgo.Message, guildName string) *models.InboundEvent {
	if m == nil || m.Author == nil {
		return nil
	}
	return &models.InboundEvent{
		MessageID:       m.ID,
		AuthorID:        m.Author.ID,
		AuthorName:      displayName(m),
		AuthorAvatarURL: m.Author.AvatarURL(""),
		GuildID:         m.GuildID,
		GuildName:       guildName,
		ChannelID:       m.ChannelID,
		RawText:         m.Content,
		Timestamp:       m.Timestamp,
		Bot:             m.Author.Bot,
		Webhook:         m.WebhookID != "",
	}
}

// displayName 优先使用服务器昵称，其次全局显示名，最后用户名
func displayName(m *discordgo.Message) string {
	if m.Member != nil && m.Member.Nick != "" {
		return m.Member.Nick
	}
	if m.Author.GlobalName != "" {
		return m.Author.GlobalName
	}
	return m.Author.Username
}
