package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/EasterCompany/dex-sylvr-service/config"
	"github.com/redis/go-redis/v9"
)

// KeyPrefix namespaces every key this service writes.
const KeyPrefix = "dex-sylvr-service:"

// ErrMiss is returned when a key is not in the cache.
var ErrMiss = errors.New("cache miss")

// Cache is the interface for our in-memory data store.
type Cache interface {
	SaveAudio(key string, data []byte, ttl time.Duration) error
	GetAudio(key string) ([]byte, error)
	CleanAllAudio() (int64, error)
	SaveSessionState(sessionID string, state map[string]any, ttl time.Duration) error
	LoadSessionState(sessionID string) (map[string]any, error)
	DeleteSessionState(sessionID string) error
	GetAllSessionIDs() ([]string, error)
	AddToList(key, value string, maxLength int64) error
	GetList(key string) ([]string, error)
	Ping() error
	Close() error
}

type DB struct {
	rdb *redis.Client
	ctx context.Context
}

// New connects to Redis. A nil config or empty address returns a nil cache
// so callers can run without one.
func New(cfg *config.ConnectionConfig) (*DB, error) {
	if cfg == nil || cfg.Addr == "" {
		return nil, nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx := context.Background()
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("could not connect to cache at %s: %w", cfg.Addr, err)
	}
	return &DB{rdb: rdb, ctx: ctx}, nil
}

func (db *DB) Ping() error {
	return db.rdb.Ping(db.ctx).Err()
}

func (db *DB) Close() error {
	return db.rdb.Close()
}

func audioKey(key string) string {
	return KeyPrefix + "audio:" + key
}

func sessionKey(sessionID string) string {
	return KeyPrefix + "session:" + sessionID
}

func (db *DB) SaveAudio(key string, data []byte, ttl time.Duration) error {
	return db.rdb.Set(db.ctx, audioKey(key), data, ttl).Err()
}

func (db *DB) GetAudio(key string) ([]byte, error) {
	data, err := db.rdb.Get(db.ctx, audioKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("could not load audio: %w", err)
	}
	return data, nil
}

// CleanAllAudio finds and deletes all audio entries from the cache.
func (db *DB) CleanAllAudio() (int64, error) {
	keys, err := db.scan(KeyPrefix + "audio:*")
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}
	return db.rdb.Del(db.ctx, keys...).Result()
}

func (db *DB) SaveSessionState(sessionID string, state map[string]any, ttl time.Duration) error {
	jsonState, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("could not marshal session state: %w", err)
	}
	return db.rdb.Set(db.ctx, sessionKey(sessionID), jsonState, ttl).Err()
}

func (db *DB) LoadSessionState(sessionID string) (map[string]any, error) {
	jsonState, err := db.rdb.Get(db.ctx, sessionKey(sessionID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("could not load session state: %w", err)
	}
	var state map[string]any
	if err := json.Unmarshal([]byte(jsonState), &state); err != nil {
		return nil, fmt.Errorf("could not unmarshal session state: %w", err)
	}
	return state, nil
}

func (db *DB) DeleteSessionState(sessionID string) error {
	return db.rdb.Del(db.ctx, sessionKey(sessionID)).Err()
}

func (db *DB) GetAllSessionIDs() ([]string, error) {
	keys, err := db.scan(KeyPrefix + "session:*")
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(keys))
	for _, key := range keys {
		ids = append(ids, strings.TrimPrefix(key, KeyPrefix+"session:"))
	}
	return ids, nil
}

// AddToList adds an item to the start of a list and trims the list to a max length.
func (db *DB) AddToList(key, value string, maxLength int64) error {
	prefixedKey := KeyPrefix + key
	pipe := db.rdb.Pipeline()
	pipe.LPush(db.ctx, prefixedKey, value)
	pipe.LTrim(db.ctx, prefixedKey, 0, maxLength-1)
	_, err := pipe.Exec(db.ctx)
	return err
}

// GetList returns every item of a list, newest first.
func (db *DB) GetList(key string) ([]string, error) {
	return db.rdb.LRange(db.ctx, KeyPrefix+key, 0, -1).Result()
}

// Keys lists every key owned by this service.
func (db *DB) Keys() ([]string, error) {
	return db.scan(KeyPrefix + "*")
}

// Type returns the Redis type of a key.
func (db *DB) Type(key string) (string, error) {
	return db.rdb.Type(db.ctx, key).Result()
}

// TTL returns the remaining lifetime of a key.
func (db *DB) TTL(key string) (time.Duration, error) {
	return db.rdb.TTL(db.ctx, key).Result()
}

func (db *DB) scan(pattern string) ([]string, error) {
	var keys []string
	iter := db.rdb.Scan(db.ctx, 0, pattern, 0).Iterator()
	for iter.Next(db.ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return keys, nil
}
