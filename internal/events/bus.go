// Studiosync - Offline-first Sync and Media Caching for Studio Back-Office
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/studiosync

// Package events is the in-process notification bus. Background
// components publish the failures and summaries a user should hear about;
// the UI layer subscribes.
package events

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/studiosync/internal/logging"
)

// Topics.
const (
	TopicQueueReplay     = "queue.replay"
	TopicQueueTerminal   = "queue.terminal_failure"
	TopicStoreDegraded   = "store.degraded"
	TopicAutoSaveFailure = "autosave.failed"
)

// Event is a delivered message.
type Event struct {
	ID          string
	Topic       string
	Payload     json.RawMessage
	PublishedAt time.Time
}

// Decode unmarshals the payload into v.
func (e Event) Decode(v any) error {
	return json.Unmarshal(e.Payload, v)
}

// Bus publishes JSON events over a watermill Go channel pub/sub.
type Bus struct {
	pubsub *gochannel.GoChannel
}

// NewBus creates a Bus. Events published with no subscriber are dropped.
func NewBus() *Bus {
	pubsub := gochannel.NewGoChannel(
		gochannel.Config{OutputChannelBuffer: 64},
		NewLogger(logging.WithComponent("events")),
	)
	return &Bus{pubsub: pubsub}
}

// Publish sends payload, encoded as JSON, on topic.
func (b *Bus) Publish(topic string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", topic, err)
	}
	msg := message.NewMessage(uuid.NewString(), data)
	msg.Metadata.Set("published_at", time.Now().UTC().Format(time.RFC3339Nano))

	if err := b.pubsub.Publish(topic, msg); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// publishOrLog is Publish for hooks that have nowhere to return an error.
func (b *Bus) publishOrLog(topic string, payload any) {
	if err := b.Publish(topic, payload); err != nil {
		logging.Warn().Err(err).Str("topic", topic).Msg("Dropped event")
	}
}

// Subscribe calls handler for every event on topic until ctx is done.
// Events are handled one at a time in publish order.
func (b *Bus) Subscribe(ctx context.Context, topic string, handler func(Event)) error {
	messages, err := b.pubsub.Subscribe(ctx, topic)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}

	go func() {
		for msg := range messages {
			ev := Event{ID: msg.UUID, Topic: topic, Payload: json.RawMessage(msg.Payload)}
			if ts, err := time.Parse(time.RFC3339Nano, msg.Metadata.Get("published_at")); err == nil {
				ev.PublishedAt = ts
			}
			handler(ev)
			msg.Ack()
		}
	}()
	return nil
}

// Close closes every subscription.
func (b *Bus) Close() error {
	return b.pubsub.Close()
}
