// Package messenger delivers messages to chat platforms.
package messenger

import (
	"context"
	"sync"
)

// Delivery is one message to post under a given name and avatar.
type Delivery struct {
	GuildID     string
	ChannelID   string
	DisplayName string
	AvatarURL   string
	Content     string
}

type Messenger interface {
	Send(ctx context.Context, d Delivery) error
}

// Deleter is implemented by messengers that can remove a message, which is
// how a proxied original gets replaced by its re-sent copy.
type Deleter interface {
	Delete(ctx context.Context, channelID, messageID string) error
}

// Recorder keeps every delivery in memory. It backs the memory store
// driver and tests.
type Recorder struct {
	mu      sync.Mutex
	sent    []Delivery
	deleted []string
	failFor map[string]error
}

func NewRecorder() *Recorder {
	return &Recorder{failFor: make(map[string]error)}
}

// FailChannel makes every Send to channelID return err.
func (r *Recorder) FailChannel(channelID string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failFor[channelID] = err
}

func (r *Recorder) Send(_ context.Context, d Delivery) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.failFor[d.ChannelID]; err != nil {
		return err
	}
	r.sent = append(r.sent, d)
	return nil
}

func (r *Recorder) Delete(_ context.Context, channelID, messageID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleted = append(r.deleted, channelID+"/"+messageID)
	return nil
}

func (r *Recorder) Sent() []Delivery {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Delivery(nil), r.sent...)
}

// Deleted returns "channel/message" pairs in deletion order.
func (r *Recorder) Deleted() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.deleted...)
}
