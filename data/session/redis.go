package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/KotFed0t/portfolio_allocator_bot/internal/model"
	"github.com/KotFed0t/portfolio_allocator_bot/utils"
	"github.com/redis/go-redis/v9"
)

var ErrNotFound = errors.New("session not found")

const sessionKeyPrefix = "session:"

type RedisSession struct {
	redis      *redis.Client
	expiration time.Duration
}

func NewRedisSession(redisClient *redis.Client, expiration time.Duration) *RedisSession {
	return &RedisSession{redis: redisClient, expiration: expiration}
}

func (s *RedisSession) GetSession(ctx context.Context, key string) (model.Session, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "RedisSession.GetSession"

	res, err := s.redis.Get(ctx, sessionKeyPrefix+key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return model.Session{}, ErrNotFound
		}
		slog.Error("failed on redis.Get", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return model.Session{}, err
	}

	var chatSession model.Session
	if err = json.Unmarshal([]byte(res), &chatSession); err != nil {
		slog.Error("can't unmarshall session", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return model.Session{}, fmt.Errorf("unmarshal session: %w", err)
	}

	return chatSession, nil
}

func (s *RedisSession) SetSession(ctx context.Context, key string, chatSession model.Session) error {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "RedisSession.SetSession"

	raw, err := json.Marshal(chatSession)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	err = s.redis.Set(ctx, sessionKeyPrefix+key, raw, s.expiration).Err()
	if err != nil {
		slog.Error("failed on redis.Set", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return err
	}

	return nil
}
