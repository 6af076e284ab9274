package scheduler

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const leaderKey = "teamride:scheduler:leader"

// releaseScript deletes the lock only when we still own it, so a slow
// sweep that outlives the TTL cannot release the next leader's lock.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// refreshScript extends the TTL only while we still hold the key. A plain
// EXPIRE after a GET could bump a lock that expired and was taken by
// another instance in between.
var refreshScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
end
return 0
`)

// leaderLock elects a single sweep runner across instances. Losing the
// lock mid-sweep is tolerable: every job is idempotent on its own.
type leaderLock struct {
	client *redis.Client
	ttl    time.Duration
	token  string
}

func newLeaderLock(client *redis.Client, ttl time.Duration, token string) *leaderLock {
	return &leaderLock{
		client: client,
		ttl:    ttl,
		token:  token,
	}
}

// Acquire takes the lock or refreshes it when this instance already holds
// it. Returns false when another instance leads.
func (l *leaderLock) Acquire(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, leaderKey, l.token, l.ttl).Result()
	if err != nil {
		return false, err
	}
	if ok {
		return true, nil
	}
	refreshed, err := refreshScript.Run(ctx, l.client, []string{leaderKey}, l.token, l.ttl.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return refreshed == 1, nil
}

func (l *leaderLock) Release(ctx context.Context) {
	releaseScript.Run(ctx, l.client, []string{leaderKey}, l.token)
}
