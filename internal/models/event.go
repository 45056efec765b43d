package models

import "time"

// InboundEvent is one message received from a chat platform, either from
// the gateway directly or off the ingestion queue.
type InboundEvent struct {
	MessageID       string    `json:"message_id"`
	AuthorID        string    `json:"author_id"`
	AuthorName      string    `json:"author_name"`
	AuthorAvatarURL string    `json:"author_avatar_url,omitempty"`
	GuildID         string    `json:"guild_id,omitempty"`
	GuildName       string    `json:"guild_name,omitempty"`
	ChannelID       string    `json:"channel_id"`
	RawText         string    `json:"raw_text"`
	Timestamp       time.Time `json:"timestamp"`

	// Bot and Webhook mark events the system must not react to, including
	// its own re-sent messages.
	Bot     bool `json:"bot,omitempty"`
	Webhook bool `json:"webhook,omitempty"`
}

// Scope is the lookup scope the event was sent in.
func (e *InboundEvent) Scope() Scope {
	return GuildScope(e.GuildID)
}

// Automated reports whether the event came from a bot or a webhook.
func (e *InboundEvent) Automated() bool {
	return e.Bot || e.Webhook
}
