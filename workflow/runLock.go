package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/itc_backend/config"
	"bitbucket.org/mmdatafocus/itc_backend/reconcile"
	"github.com/bsm/redislock"
)

// RunLocker serializes passes over the same fingerprint across instances.
type RunLocker interface {
	// Lock returns ErrRunInProgress when the key is held elsewhere.
	Lock(ctx context.Context, key string, ttl time.Duration) (unlock func(context.Context) error, err error)
}

type redisRunLocker struct {
	client *redislock.Client
}

func NewRedisRunLocker(client *redislock.Client) RunLocker {
	return &redisRunLocker{client: client}
}

func (l *redisRunLocker) Lock(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	lock, err := l.client.Obtain(ctx, fmt.Sprintf("lock:reconcile:%s", key), ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, ErrRunInProgress
	}
	if err != nil {
		return nil, err
	}
	return lock.Release, nil
}

// SummaryCache remembers the summary of succeeded fingerprints.
type SummaryCache interface {
	Get(ctx context.Context, fingerprint string) (*reconcile.Summary, bool, error)
	Set(ctx context.Context, fingerprint string, summary reconcile.Summary) error
}

type redisSummaryCache struct {
	ttl time.Duration
}

func NewRedisSummaryCache(ttl time.Duration) SummaryCache {
	return &redisSummaryCache{ttl: ttl}
}

func summaryKey(fingerprint string) string {
	return "ReconSummary:" + fingerprint
}

func (c *redisSummaryCache) Get(ctx context.Context, fingerprint string) (*reconcile.Summary, bool, error) {
	var s reconcile.Summary
	exists, err := config.GetRedisObject(ctx, summaryKey(fingerprint), &s)
	if err != nil || !exists {
		return nil, false, err
	}
	return &s, true, nil
}

func (c *redisSummaryCache) Set(ctx context.Context, fingerprint string, summary reconcile.Summary) error {
	return config.SetRedisObject(ctx, summaryKey(fingerprint), summary, c.ttl)
}
