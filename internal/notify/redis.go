package notify

import (
	"context"
	"encoding/json"

	redis "github.com/redis/go-redis/v9"
)

// Redis publishes and receives change events over a Pub/Sub channel so every
// replica refreshes when any of them writes.
type Redis struct {
	client  *redis.Client
	channel string
}

func NewRedis(addr string, password string, db int, channel string) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &Redis{client: client, channel: channel}
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) Publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, r.channel, payload).Err()
}

// Subscribe waits for the subscription to be confirmed before returning, so
// events published after Subscribe returns are not lost. Undecodable payloads
// still count as a change signal.
func (r *Redis) Subscribe(ctx context.Context) (<-chan Event, func(), error) {
	pubsub := r.client.Subscribe(ctx, r.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, err
	}

	ctx, stop := context.WithCancel(ctx)
	out := make(chan Event, 1)
	go func() {
		defer close(out)
		defer func() { _ = pubsub.Close() }()

		messages := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				var ev Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					ev = Event{Table: "unknown"}
				}
				select {
				case out <- ev:
				default:
				}
			}
		}
	}()
	return out, stop, nil
}
