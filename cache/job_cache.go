package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"remixai/logger"

	"github.com/redis/go-redis/v9"
)

// Status of a model job as seen by the boundary layer.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// JobRecord is what the status endpoint returns while a long model call is
// in flight for a song.
type JobRecord struct {
	Status    Status    `json:"status"`
	Detail    string    `json:"detail,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// jobTTL keeps finished job records visible for a day.
const jobTTL = 24 * time.Hour

func jobKey(songKey, op string) string {
	return fmt.Sprintf("remixai:job:%s:%s", songKey, op)
}

// SetJobStatus records the state of an operation for a song. No-op when
// Redis is not configured; a cache write failure is logged, never fatal.
func SetJobStatus(ctx context.Context, songKey, op string, status Status, detail string) {
	if RedisClient == nil {
		return
	}

	rec := JobRecord{Status: status, Detail: detail, UpdatedAt: time.Now()}
	data, err := json.Marshal(rec)
	if err != nil {
		logger.Warn("failed to marshal job record", logger.ErrorField(err))
		return
	}

	cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := RedisClient.Set(cctx, jobKey(songKey, op), data, jobTTL).Err(); err != nil {
		logger.Warn("failed to write job status",
			logger.String("song", songKey),
			logger.String("op", op),
			logger.ErrorField(err))
	}
}

// GetJobStatus returns the last recorded state for (song, op), or nil when
// nothing was recorded or Redis is not configured.
func GetJobStatus(ctx context.Context, songKey, op string) (*JobRecord, error) {
	if RedisClient == nil {
		return nil, nil
	}

	cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	data, err := RedisClient.Get(cctx, jobKey(songKey, op)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read job status: %w", err)
	}

	var rec JobRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job record: %w", err)
	}
	return &rec, nil
}
