package stream

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type RedisBridgeOptions struct {
	Addr     string
	Password string
	DB       int
	Channel  string
	Logger   *zap.Logger
}

// RedisBridge is both the update broadcaster and the gateway's subscription
// source. A bridge built without an address is valid and unconfigured:
// Publish becomes a silent no-op and the gateway heartbeats instead.
type RedisBridge struct {
	client  *redis.Client
	channel string
	logger  *zap.Logger
}

func NewRedisBridge(opts RedisBridgeOptions) *RedisBridge {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	channel := strings.TrimSpace(opts.Channel)
	if channel == "" {
		channel = DefaultChannel
	}
	bridge := &RedisBridge{channel: channel, logger: logger}
	if strings.TrimSpace(opts.Addr) != "" {
		bridge.client = redis.NewClient(&redis.Options{
			Addr:     opts.Addr,
			Password: opts.Password,
			DB:       opts.DB,
		})
	}
	return bridge
}

func (b *RedisBridge) Configured() bool {
	return b != nil && b.client != nil
}

func (b *RedisBridge) Publish(ctx context.Context, payload any) bool {
	if !b.Configured() {
		return false
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		b.logger.Warn("broadcast payload not serializable", zap.Error(err))
		return false
	}
	if err := b.client.Publish(ctx, b.channel, raw).Err(); err != nil {
		b.logger.Warn("broadcast publish failed", zap.Error(err))
		return false
	}
	return true
}

// Subscribe opens a server-held subscription. The returned stop function
// releases it; no subscription survives a closed connection.
func (b *RedisBridge) Subscribe(ctx context.Context) (<-chan string, func(), error) {
	if !b.Configured() {
		return nil, func() {}, nil
	}
	sub := b.client.Subscribe(ctx, b.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, func() {}, err
	}
	out := make(chan string)
	done := make(chan struct{})
	go func() {
		defer close(out)
		upstream := sub.Channel()
		for {
			select {
			case <-done:
				return
			case msg, ok := <-upstream:
				if !ok {
					return
				}
				select {
				case out <- msg.Payload:
				case <-done:
					return
				}
			}
		}
	}()
	var stopOnce bool
	stop := func() {
		if stopOnce {
			return
		}
		stopOnce = true
		close(done)
		_ = sub.Close()
	}
	return out, stop, nil
}

func (b *RedisBridge) Close() error {
	if b == nil || b.client == nil {
		return nil
	}
	return b.client.Close()
}
