package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/platewise/platewise-backend/internal/pkg/logger"
)

// StatusMessage is one committed meal status transition, published so other
// instances and front-ends can follow the pipeline live.
type StatusMessage struct {
	MealID string         `json:"meal_id"`
	Status string         `json:"status"`
	Event  string         `json:"event"`
	Data   map[string]any `json:"data,omitempty"`
	At     time.Time      `json:"at"`
}

type StatusBus interface {
	Publish(ctx context.Context, msg StatusMessage) error
	StartForwarder(ctx context.Context, onMsg func(m StatusMessage)) error
	Close() error
}

type statusBus struct {
	log     *logger.Logger
	rdb     *goredis.Client
	channel string
}

func NewStatusBus(log *logger.Logger) (StatusBus, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}

	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}
	ch := strings.TrimSpace(os.Getenv("REDIS_CHANNEL"))
	if ch == "" {
		ch = "meal_status"
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &statusBus{
		log:     log.With("client", "RedisStatusBus"),
		rdb:     rdb,
		channel: ch,
	}, nil
}

func (b *statusBus) Publish(ctx context.Context, msg StatusMessage) error {
	if b == nil || b.rdb == nil {
		return fmt.Errorf("redis status bus not initialized")
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, b.channel, raw).Err()
}

func (b *statusBus) StartForwarder(ctx context.Context, onMsg func(m StatusMessage)) error {
	if b == nil || b.rdb == nil {
		return fmt.Errorf("redis status bus not initialized")
	}
	sub := b.rdb.Subscribe(ctx, b.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}
	go func() {
		defer func() { _ = sub.Close() }()
		chMsgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-chMsgs:
				if !ok {
					return
				}
				var parsed StatusMessage
				if err := json.Unmarshal([]byte(m.Payload), &parsed); err != nil {
					b.log.Warn("Dropping unparseable status message", "error", err)
					continue
				}
				if onMsg != nil {
					onMsg(parsed)
				}
			}
		}
	}()
	return nil
}

func (b *statusBus) Close() error {
	if b == nil || b.rdb == nil {
		return nil
	}
	return b.rdb.Close()
}
