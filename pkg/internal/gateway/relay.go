package gateway

import (
	"context"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const relayChannel = "consensus:events"

const (
	relayScopeRoom = "room"
	relayScopeUser = "user"
)

type relayEnvelope struct {
	Origin string              `json:"origin"`
	Scope  string              `json:"scope"`
	Target uint                `json:"target"`
	Frame  jsoniter.RawMessage `json:"frame"`
}

// Relay mirrors room and user frames across service instances through redis
// pub/sub, so each instance can own a disjoint shard of live connections.
type Relay struct {
	client *redis.Client
	origin string
}

// NewRelay connects to redis using the settings file; returns nil without an
// error when no address is configured, which disables cross-instance fan-out.
func NewRelay() (*Relay, error) {
	addr := viper.GetString("redis.addr")
	if len(addr) == 0 {
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: viper.GetString("redis.password"),
		DB:       viper.GetInt("redis.db"),
	})
	if _, err := client.Ping(context.Background()).Result(); err != nil {
		return nil, err
	}

	return &Relay{
		client: client,
		origin: uuid.NewString(),
	}, nil
}

func (r *Relay) Publish(scope string, target uint, frame []byte) {
	raw, err := jsoniter.Marshal(relayEnvelope{
		Origin: r.origin,
		Scope:  scope,
		Target: target,
		Frame:  frame,
	})
	if err != nil {
		return
	}
	if err := r.client.Publish(context.Background(), relayChannel, raw).Err(); err != nil {
		log.Warn().Err(err).Msg("An error occurred when publishing to the relay...")
	}
}

// Listen rebroadcasts sibling frames into the local dispatcher until the
// context is cancelled. Frames published by this instance are skipped.
func (r *Relay) Listen(ctx context.Context, dispatcher *Dispatcher) {
	sub := r.client.Subscribe(ctx, relayChannel)
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case message, ok := <-sub.Channel():
			if !ok {
				return
			}

			var envelope relayEnvelope
			if err := jsoniter.UnmarshalFromString(message.Payload, &envelope); err != nil {
				log.Warn().Err(err).Msg("An error occurred when decoding a relay envelope...")
				continue
			}
			if envelope.Origin == r.origin {
				continue
			}

			switch envelope.Scope {
			case relayScopeRoom:
				dispatcher.DeliverRoomFrame(envelope.Target, envelope.Frame)
			case relayScopeUser:
				dispatcher.DeliverUserFrame(envelope.Target, envelope.Frame)
			}
		}
	}
}
