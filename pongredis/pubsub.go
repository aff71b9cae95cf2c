package pongredis

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/rueidis"

	"github.com/castaneai/pongcoord"
)

// SubscribeMatches delivers every match notice published after it returns.
// The channel is closed when ctx is done or the subscription is lost.
func SubscribeMatches(ctx context.Context, keyPrefix string, client rueidis.Client) (<-chan pongcoord.MatchRecord, error) {
	dc, cancel := client.Dedicate()
	received, wait, err := subscribe(ctx, dc, redisChannelMatches(keyPrefix))
	if err != nil {
		cancel()
		return nil, err
	}
	records := make(chan pongcoord.MatchRecord)
	go func() {
		defer cancel()
		defer close(records)
		for {
			select {
			case <-ctx.Done():
				return
			case err := <-wait:
				if err != nil {
					slog.Error(fmt.Sprintf("match subscription closed: %+v", err), "error", err)
				}
				return
			case data := <-received:
				record, err := decodeMatchNotice(data)
				if err != nil {
					slog.Warn(err.Error(), "error", err)
					continue
				}
				select {
				case records <- *record:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return records, nil
}

func subscribe(ctx context.Context, c rueidis.DedicatedClient, pubsubChannelName string) (<-chan string, <-chan error, error) {
	subscribed := make(chan struct{})
	received := make(chan string)
	// > wait channel is guaranteed to be close when the hooks will not be called anymore,
	// > and produce at most one error describing the reason.
	// https://pkg.go.dev/github.com/redis/rueidis#readme-alternative-pubsub-hooks
	wait := c.SetPubSubHooks(rueidis.PubSubHooks{
		OnMessage: func(msg rueidis.PubSubMessage) {
			if msg.Channel != pubsubChannelName {
				return
			}
			select {
			case received <- msg.Message:
			case <-ctx.Done():
			}
		},
		OnSubscription: func(s rueidis.PubSubSubscription) {
			if s.Kind == "subscribe" && s.Channel == pubsubChannelName {
				close(subscribed)
			}
		},
	})
	cmd := c.B().Subscribe().Channel(pubsubChannelName).Build()
	if err := c.Do(ctx, cmd).Error(); err != nil {
		return nil, nil, fmt.Errorf("failed to subscribe to channel '%s': %w", pubsubChannelName, err)
	}

	select {
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	case err := <-wait:
		return nil, nil, fmt.Errorf("subscription has been closed '%s': %w", pubsubChannelName, err)
	case <-subscribed:
	}
	return received, wait, nil
}
