// Author: Eryk Kulikowski @ KU Leuven (2026). Apache 2.0 License

package core

import (
	"context"
	"errors"
	"migration/app/config"
	"time"
)

var ErrLocked = errors.New("another migration run holds the lock on the ingest directory")

var LockMaxDuration = 24 * time.Hour

var redisCtxDuration = 1 * time.Minute

// RunLock keeps two processes from writing the same ledgers. Without a redis client it does nothing.
type RunLock struct {
	rdb config.RedisClient
	key string
}

func NewRunLock(rdb config.RedisClient, ingestDir string) *RunLock {
	return &RunLock{rdb: rdb, key: "lock: " + ingestDir}
}

func (l *RunLock) Acquire(ctx context.Context) error {
	if l.rdb == nil {
		return nil
	}
	shortContext, cancel := context.WithTimeout(ctx, redisCtxDuration)
	defer cancel()
	ok, err := l.rdb.SetNX(shortContext, l.key, true, LockMaxDuration).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrLocked
	}
	return nil
}

func (l *RunLock) Release(ctx context.Context) error {
	if l.rdb == nil {
		return nil
	}
	shortContext, cancel := context.WithTimeout(context.WithoutCancel(ctx), redisCtxDuration)
	defer cancel()
	return l.rdb.Del(shortContext, l.key).Err()
}
