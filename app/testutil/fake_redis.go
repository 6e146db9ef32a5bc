// Author: Eryk Kulikowski @ KU Leuven (2026). Apache 2.0 License

package testutil

import (
	"context"
	"fmt"
	"migration/app/config"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

var _ config.RedisClient = (*FakeRedis)(nil)

// FakeRedis is an in-memory stand-in for the run lock store.
type FakeRedis struct {
	sync.Mutex
	values      map[string]string
	expirations map[string]time.Time
}

func NewFakeRedis() *FakeRedis {
	return &FakeRedis{
		values:      make(map[string]string),
		expirations: make(map[string]time.Time),
	}
}

func (f *FakeRedis) Ping(ctx context.Context) *redis.StatusCmd {
	cmd := redis.NewStatusCmd(ctx)
	cmd.SetVal("PONG")
	return cmd
}

// expired drops key when its expiration has passed. The caller holds the lock.
func (f *FakeRedis) expired(key string) bool {
	exp, ok := f.expirations[key]
	if ok && !exp.After(time.Now()) {
		delete(f.values, key)
		delete(f.expirations, key)
		return true
	}
	return false
}

func (f *FakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	f.Lock()
	defer f.Unlock()
	cmd := redis.NewStringCmd(ctx)
	v, ok := f.values[key]
	if !ok || f.expired(key) {
		cmd.SetErr(redis.Nil)
		return cmd
	}
	cmd.SetVal(v)
	return cmd
}

func (f *FakeRedis) set(key string, value interface{}, expiration time.Duration) {
	f.values[key] = fmt.Sprintf("%v", value)
	if expiration > 0 {
		f.expirations[key] = time.Now().Add(expiration)
	} else {
		delete(f.expirations, key)
	}
}

func (f *FakeRedis) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	f.Lock()
	defer f.Unlock()
	f.set(key, value, expiration)
	cmd := redis.NewStatusCmd(ctx)
	cmd.SetVal("OK")
	return cmd
}

// SetNX - set if Not eXists
func (f *FakeRedis) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd {
	f.Lock()
	defer f.Unlock()
	cmd := redis.NewBoolCmd(ctx)
	if _, ok := f.values[key]; ok && !f.expired(key) {
		cmd.SetVal(false)
		return cmd
	}
	f.set(key, value, expiration)
	cmd.SetVal(true)
	return cmd
}

func (f *FakeRedis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	f.Lock()
	defer f.Unlock()
	n := int64(0)
	for _, key := range keys {
		if _, ok := f.values[key]; ok {
			n++
		}
		delete(f.values, key)
		delete(f.expirations, key)
	}
	cmd := redis.NewIntCmd(ctx)
	cmd.SetVal(n)
	return cmd
}

// Keys lists the keys currently held.
func (f *FakeRedis) Keys() []string {
	f.Lock()
	defer f.Unlock()
	res := []string{}
	for k := range f.values {
		if !f.expired(k) {
			res = append(res, k)
		}
	}
	return res
}
