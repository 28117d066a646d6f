// Package cache keeps run snapshots and run locks in Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"TopicNewsletter/internal/domain"
	"TopicNewsletter/internal/ports"
)

const defaultRecentLimit = 20

// StateStore keeps JSON snapshots of runs with a TTL and an index of recent
// run IDs ordered by start time.
type StateStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

var _ ports.StateStore = (*StateStore)(nil)

// NewStateStore builds a store; ttl <= 0 keeps snapshots forever.
func NewStateStore(client *redis.Client, prefix string, ttl time.Duration) *StateStore {
	if prefix == "" {
		prefix = "newsletter"
	}
	return &StateStore{client: client, prefix: prefix, ttl: ttl, now: time.Now}
}

func (s *StateStore) runKey(runID string) string {
	return s.prefix + ":run:" + runID
}

func (s *StateStore) indexKey() string {
	return s.prefix + ":runs"
}

// Put writes the snapshot and indexes the run.
func (s *StateStore) Put(ctx context.Context, state *domain.WorkflowState) error {
	if state == nil {
		return errors.New("nil state")
	}
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	at := state.StartedAt
	if at.IsZero() {
		at = s.now()
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.runKey(state.RunID), data, s.ttl)
	pipe.ZAddNX(ctx, s.indexKey(), redis.Z{Score: float64(at.UnixMilli()), Member: state.RunID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store run %s: %w", state.RunID, err)
	}
	return nil
}

// Get returns the latest snapshot or domain.ErrRunNotFound.
func (s *StateStore) Get(ctx context.Context, runID string) (*domain.WorkflowState, error) {
	val, err := s.client.Get(ctx, s.runKey(runID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: %s", domain.ErrRunNotFound, runID)
		}
		return nil, fmt.Errorf("load run %s: %w", runID, err)
	}

	var state domain.WorkflowState
	if err := json.Unmarshal(val, &state); err != nil {
		return nil, fmt.Errorf("decode run %s: %w", runID, err)
	}
	return &state, nil
}

// Recent lists run IDs, newest first. Expired snapshots are pruned from the index.
func (s *StateStore) Recent(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	ids, err := s.client.ZRevRange(ctx, s.indexKey(), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	if len(ids) == 0 {
		return []string{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.runKey(id)
	}
	present, err := s.client.Exists(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("check runs: %w", err)
	}
	if int(present) == len(ids) {
		return ids, nil
	}

	live := make([]string, 0, len(ids))
	var stale []any
	for i, id := range ids {
		n, err := s.client.Exists(ctx, keys[i]).Result()
		if err != nil {
			return nil, fmt.Errorf("check run %s: %w", id, err)
		}
		if n == 0 {
			stale = append(stale, id)
			continue
		}
		live = append(live, id)
	}
	if len(stale) > 0 {
		_ = s.client.ZRem(ctx, s.indexKey(), stale...).Err()
	}
	return live, nil
}
