package services

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	progressKeyPrefix = "clipdigest:progress:"
	progressTTL       = 4 * time.Hour
)

// ErrProgressNotFound means the task is unknown or its record expired
var ErrProgressNotFound = errors.New("progress record not found")

// Progress is the state of an in-flight summarization task. Records
// expire on their own after a few hours; nothing cleans them up.
type Progress struct {
	TaskID    string    `json:"task_id"`
	Stage     string    `json:"stage"` // queued, transcribing, summarizing, done, failed
	Percent   int       `json:"percent"`
	Message   string    `json:"message,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ProgressStore keeps per-task progress in Redis so any API instance
// can answer a poll for any task.
type ProgressStore struct {
	redis *redis.Client
}

func NewProgressStore(rdb *redis.Client) *ProgressStore {
	return &ProgressStore{redis: rdb}
}

// Set writes the current progress for a task
func (s *ProgressStore) Set(ctx context.Context, taskID, stage string, percent int, message string) error {
	record := Progress{
		TaskID:    taskID,
		Stage:     stage,
		Percent:   percent,
		Message:   message,
		UpdatedAt: time.Now().UTC(),
	}

	data, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, progressKeyPrefix+taskID, data, progressTTL).Err()
}

// Get returns the progress for a task
func (s *ProgressStore) Get(ctx context.Context, taskID string) (*Progress, error) {
	data, err := s.redis.Get(ctx, progressKeyPrefix+taskID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrProgressNotFound
		}
		return nil, err
	}

	var record Progress
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// Delete removes a task's progress record
func (s *ProgressStore) Delete(ctx context.Context, taskID string) error {
	return s.redis.Del(ctx, progressKeyPrefix+taskID).Err()
}
