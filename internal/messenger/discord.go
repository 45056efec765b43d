package messenger

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/Gopher0727/GlobalChat/internal/errs"
	logger "github.com/Gopher0727/GlobalChat/middleware/log"
	"github.com/Gopher0727/GlobalChat/utils/shardmap"
)

const maxMessageLength = 2000

// discordAPI is the part of *discordgo.Session the messenger uses.
type discordAPI interface {
	ChannelWebhooks(channelID string, options ...discordgo.RequestOption) ([]*discordgo.Webhook, error)
	WebhookCreate(channelID, name, avatar string, options ...discordgo.RequestOption) (*discordgo.Webhook, error)
	WebhookExecute(webhookID, token string, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageDelete(channelID, messageID string, options ...discordgo.RequestOption) error
}

// Discord posts through one webhook per channel so each message can carry
// its own username and avatar. Webhooks are looked up once and cached.
type Discord struct {
	api         discordAPI
	webhookName string
	hooks       *shardmap.Map[*discordgo.Webhook]
	lookups     singleflight.Group
	log         *logger.Logger
}

func NewDiscord(api discordAPI, webhookName string, log *logger.Logger) *Discord {
	if log == nil {
		log = logger.NewNop()
	}
	return &Discord{
		api:         api,
		webhookName: webhookName,
		hooks:       shardmap.New[*discordgo.Webhook](0),
		log:         log,
	}
}

// webhook returns the cached webhook of channelID. Concurrent misses for one
// channel share a single lookup so only one webhook gets created.
func (d *Discord) webhook(ctx context.Context, channelID string) (*discordgo.Webhook, error) {
	if hook, ok := d.hooks.Get(channelID); ok {
		return hook, nil
	}
	v, err, _ := d.lookups.Do(channelID, func() (any, error) {
		if hook, ok := d.hooks.Get(channelID); ok {
			return hook, nil
		}
		hook, err := d.findOrCreate(ctx, channelID)
		if err != nil {
			return nil, err
		}
		d.hooks.Set(channelID, hook)
		return hook, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*discordgo.Webhook), nil
}

func (d *Discord) findOrCreate(ctx context.Context, channelID string) (*discordgo.Webhook, error) {
	hooks, err := d.api.ChannelWebhooks(channelID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("list webhooks of %s: %w", channelID, err)
	}
	for _, h := range hooks {
		// webhooks made by other applications come without a token
		if h.Name == d.webhookName && h.Token != "" {
			return h, nil
		}
	}
	hook, err := d.api.WebhookCreate(channelID, d.webhookName, "", discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("create webhook in %s: %w", channelID, err)
	}
	d.log.Info("webhook created", zap.String("channel_id", channelID), zap.String("webhook_id", hook.ID))
	return hook, nil
}

func isNotFound(err error) bool {
	var rest *discordgo.RESTError
	return errors.As(err, &rest) && rest.Response != nil && rest.Response.StatusCode == http.StatusNotFound
}

func clip(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-1]) + "…"
}

// Send executes the channel's webhook. A webhook deleted behind our back is
// recreated once.
func (d *Discord) Send(ctx context.Context, m Delivery) error {
	params := &discordgo.WebhookParams{
		Content:   clip(m.Content, maxMessageLength),
		Username:  m.DisplayName,
		AvatarURL: m.AvatarURL,
		AllowedMentions: &discordgo.MessageAllowedMentions{
			Parse: []discordgo.AllowedMentionType{discordgo.AllowedMentionTypeUsers},
		},
	}

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		hook, err := d.webhook(ctx, m.ChannelID)
		if err != nil {
			return errs.Wrap(errs.KindMessengerUnavailable, err, "channel %s", m.ChannelID)
		}
		_, err = d.api.WebhookExecute(hook.ID, hook.Token, false, params, discordgo.WithContext(ctx))
		if err == nil {
			return nil
		}
		lastErr = err
		if !isNotFound(err) {
			break
		}
		d.hooks.Delete(m.ChannelID)
	}
	return errs.Wrap(errs.KindMessengerUnavailable, lastErr, "channel %s", m.ChannelID)
}

func (d *Discord) Delete(ctx context.Context, channelID, messageID string) error {
	if err := d.api.ChannelMessageDelete(channelID, messageID, discordgo.WithContext(ctx)); err != nil {
		if isNotFound(err) {
			return nil
		}
		return errs.Wrap(errs.KindMessengerUnavailable, err, "delete %s in %s", messageID, channelID)
	}
	return nil
}
