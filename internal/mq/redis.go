package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/readshelf/apiserver/config"
	"github.com/readshelf/apiserver/internal/logger"
	"github.com/redis/go-redis/v9"
)

// RedisClient implements Backend on Redis pub/sub. Delivery is at most
// once: a failed message is logged and dropped.
type RedisClient struct {
	client *redis.Client
	log    *logger.Logger
}

// envelope carries id and attributes alongside the payload, since Redis
// pub/sub messages are bare strings.
type envelope struct {
	ID         string            `json:"id"`
	Data       []byte            `json:"data"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// NewRedisClient connects and pings the configured Redis server.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig, log *logger.Logger) (*RedisClient, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		return nil, errors.New("redis addr is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("could not connect to redis: %w", err)
	}
	return NewRedisClientFrom(client, log), nil
}

// NewRedisClientFrom wraps an existing go-redis client.
func NewRedisClientFrom(client *redis.Client, log *logger.Logger) *RedisClient {
	if log == nil {
		log = logger.Nop()
	}
	return &RedisClient{client: client, log: log}
}

func (r *RedisClient) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	if strings.TrimSpace(channel) == "" {
		return "", errors.New("redis channel is required")
	}

	env := envelope{ID: uuid.NewString(), Data: data, Attributes: attrs}
	payload, err := json.Marshal(env)
	if err != nil {
		return "", err
	}
	if err := r.client.Publish(ctx, channel, payload).Err(); err != nil {
		return "", err
	}
	return env.ID, nil
}

func (r *RedisClient) Subscribe(ctx context.Context, channel string, handler Handler) error {
	if strings.TrimSpace(channel) == "" {
		return errors.New("redis channel is required")
	}

	sub := r.client.Subscribe(ctx, channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return err
	}

	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return errors.New("redis subscription closed")
			}
			r.deliver(ctx, msg.Channel, msg.Payload, handler)
		}
	}
}

func (r *RedisClient) deliver(ctx context.Context, channel, payload string, handler Handler) {
	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		r.log.Warnw("drop malformed redis message", "channel", channel, "error", err)
		return
	}
	if err := handler(ctx, Message{ID: env.ID, Data: env.Data, Attributes: env.Attributes}); err != nil {
		r.log.Warnw("drop redis message after handler error", "channel", channel, "message_id", env.ID, "error", err)
	}
}

func (r *RedisClient) Close() error {
	return r.client.Close()
}
