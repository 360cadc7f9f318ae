package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/absmach/cohort/pkg/mqtt"
)

const topicTemplate = "%s/events/%s"

type mqttSink struct {
	pubsub mqtt.PubSub
	prefix string
}

// NewMQTT publishes each event as JSON to <prefix>/events/<kind>.
func NewMQTT(pubsub mqtt.PubSub, prefix string) Sink {
	return &mqttSink{
		pubsub: pubsub,
		prefix: prefix,
	}
}

func (s *mqttSink) Publish(ctx context.Context, e Event) error {
	return s.pubsub.Publish(ctx, fmt.Sprintf(topicTemplate, s.prefix, e.Kind), e)
}

func (s *mqttSink) Close() error {
	return s.pubsub.Disconnect(context.Background())
}

// Watch hands every event published under prefix to fn until ctx is done.
// With no kinds it follows all of them. Subscriptions are removed before it
// returns.
func Watch(ctx context.Context, pubsub mqtt.PubSub, prefix string, fn func(Event) error, kinds ...Kind) error {
	topics := make([]string, 0, len(kinds))
	for _, k := range kinds {
		topics = append(topics, fmt.Sprintf(topicTemplate, prefix, k))
	}
	if len(topics) == 0 {
		topics = append(topics, fmt.Sprintf(topicTemplate, prefix, "#"))
	}

	handler := func(_ string, payload []byte) error {
		var e Event
		if err := json.Unmarshal(payload, &e); err != nil {
			return fmt.Errorf("failed to decode event: %w", err)
		}

		return fn(e)
	}

	var (
		subscribed []string
		err        error
	)
	for _, topic := range topics {
		if err = pubsub.Subscribe(ctx, topic, handler); err != nil {
			break
		}
		subscribed = append(subscribed, topic)
	}
	if err == nil {
		<-ctx.Done()
	}

	unsubCtx := context.WithoutCancel(ctx)
	for _, topic := range subscribed {
		err = errors.Join(err, pubsub.Unsubscribe(unsubCtx, topic))
	}

	return err
}
