package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mcoot/wordgroups/internal/model"
	"github.com/mcoot/wordgroups/internal/storage"
)

// Storage is a Redis-backed implementation of the storage interface
type Storage struct {
	client *redis.Client
	cfg    Config
}

// New creates a new Redis storage instance
func New(cfg Config) (*Storage, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns

	client := redis.NewClient(opts)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &Storage{
		client: client,
		cfg:    cfg,
	}, nil
}

// NewWithClient creates a Redis storage with an existing client (for testing)
func NewWithClient(client *redis.Client, cfg Config) *Storage {
	return &Storage{
		client: client,
		cfg:    cfg,
	}
}

// Close closes the Redis connection
func (s *Storage) Close() error {
	return s.client.Close()
}

// Ensure Storage implements the interface
var _ storage.Storage = (*Storage)(nil)

// Account operations

func (s *Storage) SaveAccounts(ctx context.Context, accounts []model.UserAccount) error {
	existing, err := s.client.SMembers(ctx, accountIndexKey()).Result()
	if err != nil {
		return err
	}

	keep := make(map[string]struct{}, len(accounts))
	pipe := s.client.TxPipeline()
	for _, a := range accounts {
		data, err := json.Marshal(a)
		if err != nil {
			return err
		}
		key := accountKey(a.Username)
		keep[key] = struct{}{}
		pipe.Set(ctx, key, data, 0)
		pipe.SAdd(ctx, accountIndexKey(), key)
	}

	// Renamed or removed accounts leave stale keys behind
	for _, key := range existing {
		if _, ok := keep[key]; !ok {
			pipe.Del(ctx, key)
			pipe.SRem(ctx, accountIndexKey(), key)
		}
	}

	_, err = pipe.Exec(ctx)
	return err
}

func (s *Storage) LoadAccounts(ctx context.Context) ([]model.UserAccount, error) {
	keys, err := s.client.SMembers(ctx, accountIndexKey()).Result()
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return []model.UserAccount{}, nil
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	accounts := make([]model.UserAccount, 0, len(values))
	for _, v := range values {
		str, ok := v.(string)
		if !ok {
			continue // Key expired or deleted between SMEMBERS and MGET
		}
		var a model.UserAccount
		if err := json.Unmarshal([]byte(str), &a); err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, nil
}

// Match history operations

func (s *Storage) SaveHistory(ctx context.Context, matches []model.MatchRecord) error {
	pipe := s.client.TxPipeline()
	for _, m := range matches {
		data, err := json.Marshal(m)
		if err != nil {
			return err
		}
		key := matchKey(m.Run)
		pipe.Set(ctx, key, data, s.cfg.HistoryTTL)
		pipe.ZAdd(ctx, historyIndexKey(), redis.Z{Score: float64(m.Run), Member: key})
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (s *Storage) LoadHistory(ctx context.Context) ([]model.MatchRecord, error) {
	keys, err := s.client.ZRange(ctx, historyIndexKey(), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return []model.MatchRecord{}, nil
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	matches := make([]model.MatchRecord, 0, len(values))
	var expired []any
	for i, v := range values {
		str, ok := v.(string)
		if !ok {
			expired = append(expired, keys[i])
			continue
		}
		var m model.MatchRecord
		if err := json.Unmarshal([]byte(str), &m); err != nil {
			return nil, err
		}
		matches = append(matches, m)
	}

	// Clean up index entries whose records expired
	if len(expired) > 0 {
		s.client.ZRem(ctx, historyIndexKey(), expired...)
	}
	return matches, nil
}
