package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"

	"personalbank/config"
)

// ErrLockNotAcquired блокировка занята другим экземпляром
var ErrLockNotAcquired = errors.New("lock is held by another instance")

// ConnectRedis открывает клиент Redis и проверяет соединение
func ConnectRedis(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ошибка подключения к Redis %s: %w", cfg.Redis.Addr, err)
	}
	return client, nil
}

// RedisLocker распределенная блокировка на redsync. Не ждет освобождения:
// если ключ занят, сразу возвращает ErrLockNotAcquired.
type RedisLocker struct {
	rs     *redsync.Redsync
	expiry time.Duration
}

// NewRedisLocker создает блокировку с заданным временем жизни ключа
func NewRedisLocker(client *redis.Client, expiry time.Duration) *RedisLocker {
	return &RedisLocker{
		rs:     redsync.New(goredis.NewPool(client)),
		expiry: expiry,
	}
}

// WithLock выполняет fn под блокировкой key
func (l *RedisLocker) WithLock(ctx context.Context, key string, fn func() error) error {
	mutex := l.rs.NewMutex(key,
		redsync.WithExpiry(l.expiry),
		redsync.WithTries(1),
	)

	if err := mutex.LockContext(ctx); err != nil {
		var taken *redsync.ErrTaken
		if errors.As(err, &taken) || errors.Is(err, redsync.ErrFailed) {
			return fmt.Errorf("%w: %s: %w", ErrLockNotAcquired, key, err)
		}
		return fmt.Errorf("ошибка блокировки %s: %w", key, err)
	}
	defer func() {
		// истекший ключ уже свободен, ошибку освобождения не поднимаем
		_, _ = mutex.UnlockContext(context.WithoutCancel(ctx))
	}()

	return fn()
}
