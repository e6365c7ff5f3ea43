// Package redis implements the progress cache on Redis. Each job snapshot is stored as
// a JSON string under "{prefix}{jobId}" with a sliding TTL. Writes are check-and-set
// so that a late snapshot never replaces a newer or terminal one.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	config "github.com/tigerroll/payroll-import/pkg/importer/core/config"
	model "github.com/tigerroll/payroll-import/pkg/importer/core/domain/model"
	"github.com/tigerroll/payroll-import/pkg/importer/core/ports"
	"github.com/tigerroll/payroll-import/pkg/importer/support/util/exception"
)

// DefaultKeyPrefix is used when cache.key_prefix is empty.
const DefaultKeyPrefix = "job:"

const maxWriteAttempts = 5

// ProgressCache stores job snapshots in Redis.
type ProgressCache struct {
	client goredis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewProgressCache creates a ProgressCache over an existing client.
func NewProgressCache(client goredis.UniversalClient, prefix string, ttl time.Duration) *ProgressCache {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &ProgressCache{client: client, prefix: prefix, ttl: ttl}
}

// NewClient builds the Redis client from the cache configuration.
func NewClient(cfg *config.Config) *goredis.Client {
	c := cfg.Importer.Cache
	return goredis.NewClient(&goredis.Options{
		Addr:     c.Addr,
		Username: c.Username,
		Password: c.Password,
		DB:       c.DB,
	})
}

// Key returns the cache key of a job.
func (c *ProgressCache) Key(jobID string) string {
	return c.prefix + jobID
}

// Put writes the snapshot and refreshes its TTL, unless the cached snapshot supersedes
// it (see model.Job.Supersedes).
func (c *ProgressCache) Put(ctx context.Context, job *model.Job) error {
	if job == nil {
		return nil
	}
	return c.update(ctx, job.ID, func(cached *model.Job) *model.Job {
		if cached != nil && !job.Supersedes(cached) {
			return nil
		}
		return job
	})
}

// MarkFailed turns the cached snapshot into an ERROR one. Without a cached snapshot a
// bare ERROR entry is stored so that late progress writes cannot revive the job.
func (c *ProgressCache) MarkFailed(ctx context.Context, jobID, message string, at time.Time) error {
	return c.update(ctx, jobID, func(cached *model.Job) *model.Job {
		failed := &model.Job{ID: jobID}
		if cached != nil {
			if cached.Status.IsTerminal() {
				return nil
			}
			failed = cached.Clone()
			failed.Version++
		}
		failed.Status = model.JobStatusError
		failed.ErrorMessage = message
		failed.CompletedAt = &at
		failed.UpdatedAt = at
		return failed
	})
}

// update runs a WATCH/MULTI check-and-set on the key of jobID. next receives the
// cached snapshot (nil on a miss or an unreadable entry) and returns the snapshot to
// store, or nil to leave the key alone.
func (c *ProgressCache) update(ctx context.Context, jobID string, next func(cached *model.Job) *model.Job) error {
	key := c.Key(jobID)
	for attempt := 1; attempt <= maxWriteAttempts; attempt++ {
		err := c.client.Watch(ctx, func(tx *goredis.Tx) error {
			var cached *model.Job
			b, err := tx.Get(ctx, key).Bytes()
			switch {
			case errors.Is(err, goredis.Nil):
			case err != nil:
				return err
			default:
				var job model.Job
				if json.Unmarshal(b, &job) == nil {
					cached = &job
				}
			}

			job := next(cached)
			if job == nil {
				return nil
			}
			data, err := json.Marshal(job)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
				pipe.Set(ctx, key, data, c.ttl)
				return nil
			})
			return err
		}, key)
		if errors.Is(err, goredis.TxFailedErr) {
			continue
		}
		if err != nil {
			return exception.NewTransientError("cache", "redis write failed for "+jobID, err)
		}
		return nil
	}
	return exception.NewTransientError("cache",
		fmt.Sprintf("redis write for %s lost %d races", jobID, maxWriteAttempts), goredis.TxFailedErr)
}

// Get returns the cached snapshot. A miss is (nil, false, nil).
func (c *ProgressCache) Get(ctx context.Context, jobID string) (*model.Job, bool, error) {
	b, err := c.client.Get(ctx, c.Key(jobID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, exception.NewTransientError("cache", "redis GET failed for "+jobID, err)
	}
	var job model.Job
	if err := json.Unmarshal(b, &job); err != nil {
		return nil, false, exception.NewConfigurationError("cache", "corrupt job snapshot for "+jobID, err)
	}
	return &job, true, nil
}

// Delete removes the snapshot of a job.
func (c *ProgressCache) Delete(ctx context.Context, jobID string) error {
	if err := c.client.Del(ctx, c.Key(jobID)).Err(); err != nil {
		return exception.NewTransientError("cache", "redis DEL failed for "+jobID, err)
	}
	return nil
}

var _ ports.ProgressCache = (*ProgressCache)(nil)
