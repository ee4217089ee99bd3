package events

import (
	"context"
	"fmt"
)

// Discard drops every event. The registry and command table fall back to it
// when no bus is configured.
type Discard struct{}

func (Discard) Publish(context.Context, string, any) error { return nil }

func (Discard) Close() error { return nil }

// Subscriber streams raw event payloads for a topic pattern such as
// "nari.badge.*" or AllTopics. Calling cancel unsubscribes and closes the
// payload channel.
type Subscriber interface {
	Subscribe(topic string) (payloads <-chan []byte, cancel func(), err error)
	Close() error
}

// Follow hands each payload on topic to fn until ctx is done or fn returns
// an error. A subscription closed underneath it ends the loop with nil.
func Follow(ctx context.Context, sub Subscriber, topic string, fn func([]byte) error) error {
	ch, cancel, err := sub.Subscribe(topic)
	if err != nil {
		return fmt.Errorf("following %s: %w", topic, err)
	}
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return nil
		case data, ok := <-ch:
			if !ok {
				return nil
			}
			if err := fn(data); err != nil {
				return err
			}
		}
	}
}
