package redisx

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// JobLock is an advisory leader lock for background jobs that must run as
// effectively one active instance across replicas (e.g. the reservation
// sweeper). Acquire is SET NX PX; only the holder token can release.
type JobLock struct {
	rdb   *redis.Client
	key   string
	token string
	ttl   time.Duration
}

func NewJobLock(rdb *redis.Client, job string, ttl time.Duration) *JobLock {
	return &JobLock{
		rdb:   rdb,
		key:   fmt.Sprintf(KeyJobLock, job),
		token: uuid.NewString(),
		ttl:   ttl,
	}
}

func (l *JobLock) Acquire(ctx context.Context) (bool, error) {
	return l.rdb.SetNX(ctx, l.key, l.token, l.ttl).Result()
}

// Renew extends the lock only while we still hold it.
func (l *JobLock) Renew(ctx context.Context) (bool, error) {
	const script = `
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("pexpire", KEYS[1], ARGV[2])
		end
		return 0`
	n, err := l.rdb.Eval(ctx, script, []string{l.key}, l.token, l.ttl.Milliseconds()).Int64()
	return n == 1, err
}

func (l *JobLock) Release(ctx context.Context) error {
	const script = `
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		end
		return 0`
	return l.rdb.Eval(ctx, script, []string{l.key}, l.token).Err()
}
