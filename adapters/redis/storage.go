package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"rewardkit/core"
)

// Config holds Redis connection configuration.
type Config struct {
	Addr         string        `json:"addr" env:"REWARDKIT_STORAGE_REDIS_ADDR"`
	Password     string        `json:"password" env:"REWARDKIT_STORAGE_REDIS_PASSWORD"`
	DB           int           `json:"db" env:"REWARDKIT_STORAGE_REDIS_DB"`
	PoolSize     int           `json:"pool_size" env:"REWARDKIT_STORAGE_REDIS_POOL_SIZE"`
	MinIdleConns int           `json:"min_idle_conns" env:"REWARDKIT_STORAGE_REDIS_MIN_IDLE_CONNS"`
	DialTimeout  time.Duration `json:"dial_timeout" env:"REWARDKIT_STORAGE_REDIS_DIAL_TIMEOUT"`
	ReadTimeout  time.Duration `json:"read_timeout" env:"REWARDKIT_STORAGE_REDIS_READ_TIMEOUT"`
	WriteTimeout time.Duration `json:"write_timeout" env:"REWARDKIT_STORAGE_REDIS_WRITE_TIMEOUT"`
}

// DefaultConfig returns sensible defaults for Redis configuration.
func DefaultConfig() Config {
	return Config{
		Addr:         "localhost:6379",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// Store implements the engine storage contract on Redis.
// Data structure:
//   - act:{key}                         -> JSON activity (SETNX is the dedup point)
//   - user:{id}:acts:{type}:{day}       -> set of activity keys for cap counting
//   - user:{id}:profile                 -> JSON profile
//   - user:{id}:profile:ver             -> int64 version, CAS'd by Lua
//   - user:{id}:badges                  -> hash badge_code -> earned_at
//   - user:{id}:quest:{code}:{key}      -> int64 counter (INCRBY)
//   - user:{id}:quests                  -> index set "code|key"
//   - user:{id}:questmeta               -> hash "code|key" -> updated_at
type Store struct {
	client *redis.Client
}

// New creates a Redis-backed storage with the provided configuration.
func New(config Config) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		PoolSize:     config.PoolSize,
		MinIdleConns: config.MinIdleConns,
		DialTimeout:  config.DialTimeout,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return &Store{client: client}, nil
}

// NewWithClient creates a Store using an existing Redis client (useful for testing).
func NewWithClient(client *redis.Client) *Store {
	return &Store{client: client}
}

// Close closes the Redis connection.
func (s *Store) Close() error { return s.client.Close() }

func activityKey(key string) string { return "act:" + key }

func dayCountKey(user core.UserID, typ core.ActivityType, day core.Day) string {
	return fmt.Sprintf("user:%s:acts:%s:%s", user, typ, day)
}

func profileKey(user core.UserID) string { return fmt.Sprintf("user:%s:profile", user) }

func profileVerKey(user core.UserID) string { return fmt.Sprintf("user:%s:profile:ver", user) }

func badgesKey(user core.UserID) string { return fmt.Sprintf("user:%s:badges", user) }

func questCounterKey(user core.UserID, quest core.QuestCode, key string) string {
	return fmt.Sprintf("user:%s:quest:%s:%s", user, quest, key)
}

func questIndexKey(user core.UserID) string { return fmt.Sprintf("user:%s:quests", user) }

func questMetaKey(user core.UserID) string { return fmt.Sprintf("user:%s:questmeta", user) }

// upsertActivityScript inserts the activity record and its day-count index
// entry in one atomic step; returns 1 when the key was new.
var upsertActivityScript = redis.NewScript(`
	if redis.call('SETNX', KEYS[1], ARGV[1]) == 1 then
		redis.call('SADD', KEYS[2], ARGV[2])
		return 1
	end
	return 0
`)

func (s *Store) UpsertActivity(ctx context.Context, a core.Activity) (bool, error) {
	payload, err := json.Marshal(a)
	if err != nil {
		return false, fmt.Errorf("marshal activity: %w", err)
	}

	res, err := upsertActivityScript.Run(ctx, s.client,
		[]string{activityKey(a.Key), dayCountKey(a.UserID, a.Type, a.Day)},
		payload, a.Key).Result()
	if err != nil {
		return false, fmt.Errorf("upsert activity: %w", err)
	}
	if n, _ := res.(int64); n == 1 {
		return false, nil
	}

	// Known key: refresh metadata on the stored record, keep the original
	// occurrence untouched.
	raw, err := s.client.Get(ctx, activityKey(a.Key)).Bytes()
	if err != nil {
		return true, fmt.Errorf("load activity: %w", err)
	}
	var prev core.Activity
	if err := json.Unmarshal(raw, &prev); err != nil {
		return true, fmt.Errorf("decode activity: %w", err)
	}
	prev.Metadata = a.Metadata
	refreshed, err := json.Marshal(prev)
	if err != nil {
		return true, fmt.Errorf("marshal activity: %w", err)
	}
	if err := s.client.Set(ctx, activityKey(a.Key), refreshed, 0).Err(); err != nil {
		return true, fmt.Errorf("refresh activity: %w", err)
	}
	return true, nil
}

func (s *Store) CountActivities(ctx context.Context, user core.UserID, typ core.ActivityType, day core.Day, excludeKey string) (int64, error) {
	key := dayCountKey(user, typ, day)
	n, err := s.client.SCard(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("count activities: %w", err)
	}
	if excludeKey != "" {
		member, err := s.client.SIsMember(ctx, key, excludeKey).Result()
		if err != nil {
			return 0, fmt.Errorf("count activities: %w", err)
		}
		if member {
			n--
		}
	}
	return n, nil
}

func (s *Store) GetProfile(ctx context.Context, user core.UserID) (core.Profile, bool, error) {
	raw, err := s.client.Get(ctx, profileKey(user)).Bytes()
	if err == redis.Nil {
		return core.Profile{}, false, nil
	}
	if err != nil {
		return core.Profile{}, false, fmt.Errorf("get profile: %w", err)
	}
	var p core.Profile
	if err := json.Unmarshal(raw, &p); err != nil {
		return core.Profile{}, false, fmt.Errorf("decode profile: %w", err)
	}
	ver, err := s.client.Get(ctx, profileVerKey(user)).Int64()
	if err != nil && err != redis.Nil {
		return core.Profile{}, false, fmt.Errorf("get profile version: %w", err)
	}
	p.Version = ver
	return p, true, nil
}

// saveProfileScript compares the stored version and swaps profile + version
// in one atomic step.
var saveProfileScript = redis.NewScript(`
	local ver = tonumber(redis.call('GET', KEYS[2]) or '0')
	if ver ~= tonumber(ARGV[1]) then
		return 0
	end
	redis.call('SET', KEYS[1], ARGV[2])
	redis.call('SET', KEYS[2], ARGV[3])
	return 1
`)

func (s *Store) SaveProfile(ctx context.Context, p core.Profile) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal profile: %w", err)
	}
	res, err := saveProfileScript.Run(ctx, s.client,
		[]string{profileKey(p.UserID), profileVerKey(p.UserID)},
		p.Version-1, payload, p.Version).Result()
	if err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	if ok, _ := res.(int64); ok != 1 {
		return core.ErrConflict
	}
	return nil
}

func (s *Store) InsertBadge(ctx context.Context, g core.BadgeGrant) (bool, error) {
	granted, err := s.client.HSetNX(ctx, badgesKey(g.UserID), string(g.Code),
		g.EarnedAt.UTC().Format(time.RFC3339Nano)).Result()
	if err != nil {
		return false, fmt.Errorf("insert badge: %w", err)
	}
	return granted, nil
}

func (s *Store) ListBadges(ctx context.Context, user core.UserID) ([]core.BadgeGrant, error) {
	fields, err := s.client.HGetAll(ctx, badgesKey(user)).Result()
	if err != nil {
		return nil, fmt.Errorf("list badges: %w", err)
	}
	out := make([]core.BadgeGrant, 0, len(fields))
	for code, earned := range fields {
		at, err := time.Parse(time.RFC3339Nano, earned)
		if err != nil {
			continue // skip malformed entries
		}
		out = append(out, core.BadgeGrant{UserID: user, Code: core.BadgeCode(code), EarnedAt: at})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

// incrQuestScript bumps the counter and maintains the progress index and
// updated-at metadata in one atomic step.
var incrQuestScript = redis.NewScript(`
	local v = redis.call('INCRBY', KEYS[1], ARGV[1])
	redis.call('SADD', KEYS[2], ARGV[2])
	redis.call('HSET', KEYS[3], ARGV[2], ARGV[3])
	return v
`)

func (s *Store) IncrementQuestProgress(ctx context.Context, user core.UserID, quest core.QuestCode, key string, delta int64) (int64, error) {
	member := string(quest) + "|" + key
	res, err := incrQuestScript.Run(ctx, s.client,
		[]string{questCounterKey(user, quest, key), questIndexKey(user), questMetaKey(user)},
		delta, member, time.Now().UTC().Format(time.RFC3339Nano)).Result()
	if err != nil {
		return 0, fmt.Errorf("increment quest progress: %w", err)
	}
	val, ok := res.(int64)
	if !ok {
		return 0, fmt.Errorf("unexpected result type from Redis script")
	}
	return val, nil
}

func (s *Store) ListQuestProgress(ctx context.Context, user core.UserID) ([]core.QuestProgress, error) {
	members, err := s.client.SMembers(ctx, questIndexKey(user)).Result()
	if err != nil {
		return nil, fmt.Errorf("list quest progress: %w", err)
	}
	out := make([]core.QuestProgress, 0, len(members))
	for _, m := range members {
		quest, key, ok := strings.Cut(m, "|")
		if !ok {
			continue
		}
		val, err := s.client.Get(ctx, questCounterKey(user, core.QuestCode(quest), key)).Int64()
		if err != nil && err != redis.Nil {
			return nil, fmt.Errorf("read quest counter: %w", err)
		}
		row := core.QuestProgress{UserID: user, Quest: core.QuestCode(quest), Key: key, Value: val}
		if meta, err := s.client.HGet(ctx, questMetaKey(user), m).Result(); err == nil {
			if at, perr := time.Parse(time.RFC3339Nano, meta); perr == nil {
				row.UpdatedAt = at
			}
		}
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Quest == out[j].Quest {
			return out[i].Key < out[j].Key
		}
		return out[i].Quest < out[j].Quest
	})
	return out, nil
}
