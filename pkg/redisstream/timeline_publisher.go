package redisstream

import (
	"context"
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/pkg/errors"

	"github.com/go-go-golems/livechat/pkg/chat"
)

// TopicFor computes the fan-out topic of a conversation.
func TopicFor(conversationID string) string { return "chat:" + conversationID }

// TimelinePublisher fans timeline additions out to other processes.
type TimelinePublisher struct {
	pub message.Publisher
}

func NewTimelinePublisher(pub message.Publisher) *TimelinePublisher {
	return &TimelinePublisher{pub: pub}
}

// Publish sends m as JSON on the topic of its conversation.
func (p *TimelinePublisher) Publish(ctx context.Context, m chat.Message) error {
	if p == nil || p.pub == nil {
		return errors.New("timeline publisher: publisher is nil")
	}
	payload, err := json.Marshal(m)
	if err != nil {
		return errors.Wrap(err, "timeline publisher: marshal")
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("conversation_id", m.ConversationID)
	msg.Metadata.Set("message_id", m.ID)
	msg.SetContext(ctx)
	if err := p.pub.Publish(TopicFor(m.ConversationID), msg); err != nil {
		return errors.Wrap(err, "timeline publisher: publish")
	}
	return nil
}

// DecodeTimelineMessage parses a payload published by TimelinePublisher.
func DecodeTimelineMessage(msg *message.Message) (chat.Message, error) {
	if msg == nil {
		return chat.Message{}, errors.New("timeline message is nil")
	}
	return chat.DecodeMessage(msg.Payload)
}

// Subscribe streams the messages published for one conversation until ctx ends.
func Subscribe(ctx context.Context, sub message.Subscriber, conversationID string) (<-chan chat.Message, error) {
	ch, err := sub.Subscribe(ctx, TopicFor(conversationID))
	if err != nil {
		return nil, errors.Wrap(err, "timeline subscribe")
	}
	out := make(chan chat.Message)
	go func() {
		defer close(out)
		for msg := range ch {
			m, err := DecodeTimelineMessage(msg)
			msg.Ack()
			if err != nil {
				continue
			}
			select {
			case out <- m:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
