package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// Each script runs atomically inside Redis.
var (
	// KEYS[1] website hash; ARGV[1] user_id, ARGV[2] session delta.
	incrementWebsiteScript = goredis.NewScript(`
if redis.call('HGET', KEYS[1], 'user_id') ~= ARGV[1] then
  return false
end
redis.call('HINCRBY', KEYS[1], 'visitors', 1)
redis.call('HINCRBY', KEYS[1], 'sessions', ARGV[2])
return redis.call('HMGET', KEYS[1], 'user_id', 'hostname', 'visitors', 'sessions', 'created_at')
`)

	// KEYS[1] page hash; ARGV[1] id, ARGV[2] website_id, ARGV[3] session delta, ARGV[4] now.
	upsertPageScript = goredis.NewScript(`
redis.call('HSETNX', KEYS[1], 'id', ARGV[1])
redis.call('HSETNX', KEYS[1], 'website_id', ARGV[2])
redis.call('HSETNX', KEYS[1], 'created_at', ARGV[4])
redis.call('HINCRBY', KEYS[1], 'visitors', 1)
redis.call('HINCRBY', KEYS[1], 'sessions', ARGV[3])
redis.call('HSET', KEYS[1], 'updated_at', ARGV[4])
return redis.call('HMGET', KEYS[1], 'id', 'website_id', 'visitors', 'sessions', 'created_at', 'updated_at')
`)

	// KEYS[1] website hash; ARGV[1] user_id, ARGV[2] hostname, ARGV[3] now.
	createWebsiteScript = goredis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  return 0
end
redis.call('HSET', KEYS[1], 'user_id', ARGV[1], 'hostname', ARGV[2], 'visitors', 0, 'sessions', 0, 'created_at', ARGV[3])
return 1
`)
)

const defaultRedisPrefix = "joestats:"

// RedisAggregateStore keeps website and page counters in Redis hashes:
// <prefix>website:<id> and <prefix>page:<pathname>.
type RedisAggregateStore struct {
	rdb    *goredis.Client
	prefix string
}

// NewRedisAggregateStore creates a RedisAggregateStore. An empty prefix uses "joestats:".
func NewRedisAggregateStore(rdb *goredis.Client, prefix string) *RedisAggregateStore {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisAggregateStore{rdb: rdb, prefix: prefix}
}

// OpenRedis connects to Redis and verifies the connection with a ping.
func OpenRedis(ctx context.Context, addr, password string, db int) (*goredis.Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		Password:    password,
		DB:          db,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

func (s *RedisAggregateStore) websiteKey(id int64) string {
	return s.prefix + "website:" + strconv.FormatInt(id, 10)
}

func (s *RedisAggregateStore) pageKey(pathname string) string {
	return s.prefix + "page:" + pathname
}

// IncrementWebsite bumps the counters of the website matching websiteID and userID.
func (s *RedisAggregateStore) IncrementWebsite(ctx context.Context, websiteID, userID int64, newSession bool) (*Website, error) {
	res, err := incrementWebsiteScript.Run(ctx, s.rdb,
		[]string{s.websiteKey(websiteID)},
		strconv.FormatInt(userID, 10), sessionDelta(newSession),
	).Slice()
	if errors.Is(err, goredis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("increment website %d: %w", websiteID, err)
	}
	return parseWebsite(websiteID, res)
}

// UpsertPage creates or increments the page hash for pathname.
func (s *RedisAggregateStore) UpsertPage(ctx context.Context, websiteID int64, pathname string, newSession bool) (*Page, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := upsertPageScript.Run(ctx, s.rdb,
		[]string{s.pageKey(pathname)},
		uuid.New().String(), strconv.FormatInt(websiteID, 10), sessionDelta(newSession), now,
	).Slice()
	if err != nil {
		return nil, fmt.Errorf("upsert page %q: %w", pathname, err)
	}
	return parsePage(pathname, res)
}

// CreateWebsite provisions a website hash with zeroed counters.
func (s *RedisAggregateStore) CreateWebsite(ctx context.Context, id, userID int64, hostname string) (*Website, error) {
	if err := validateNewWebsite(id, userID, hostname); err != nil {
		return nil, err
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	created, err := createWebsiteScript.Run(ctx, s.rdb,
		[]string{s.websiteKey(id)},
		strconv.FormatInt(userID, 10), hostname, now,
	).Int()
	if err != nil {
		return nil, fmt.Errorf("create website %d: %w", id, err)
	}
	if created == 0 {
		return nil, ErrWebsiteExists
	}
	return s.GetWebsite(ctx, id)
}

// GetWebsite returns the website matching id, or ErrNotFound.
func (s *RedisAggregateStore) GetWebsite(ctx context.Context, id int64) (*Website, error) {
	res, err := s.rdb.HMGet(ctx, s.websiteKey(id), "user_id", "hostname", "visitors", "sessions", "created_at").Result()
	if err != nil {
		return nil, err
	}
	if res[0] == nil {
		return nil, ErrNotFound
	}
	return parseWebsite(id, res)
}

// GetPage returns the page matching pathname, or ErrNotFound.
func (s *RedisAggregateStore) GetPage(ctx context.Context, pathname string) (*Page, error) {
	res, err := s.rdb.HMGet(ctx, s.pageKey(pathname), "id", "website_id", "visitors", "sessions", "created_at", "updated_at").Result()
	if err != nil {
		return nil, err
	}
	if res[0] == nil {
		return nil, ErrNotFound
	}
	return parsePage(pathname, res)
}

// parseWebsite decodes HMGET user_id, hostname, visitors, sessions, created_at.
func parseWebsite(id int64, vals []interface{}) (*Website, error) {
	if len(vals) != 5 {
		return nil, fmt.Errorf("website %d: unexpected reply length %d", id, len(vals))
	}
	w := &Website{ID: id, Hostname: replyString(vals[1])}
	var err error
	if w.UserID, err = strconv.ParseInt(replyString(vals[0]), 10, 64); err != nil {
		return nil, fmt.Errorf("website %d user_id: %w", id, err)
	}
	if w.Visitors, err = strconv.ParseUint(replyString(vals[2]), 10, 64); err != nil {
		return nil, fmt.Errorf("website %d visitors: %w", id, err)
	}
	if w.Sessions, err = strconv.ParseUint(replyString(vals[3]), 10, 64); err != nil {
		return nil, fmt.Errorf("website %d sessions: %w", id, err)
	}
	w.CreatedAt = parseReplyTime(vals[4])
	return w, nil
}

// parsePage decodes HMGET id, website_id, visitors, sessions, created_at, updated_at.
func parsePage(pathname string, vals []interface{}) (*Page, error) {
	if len(vals) != 6 {
		return nil, fmt.Errorf("page %q: unexpected reply length %d", pathname, len(vals))
	}
	p := &Page{ID: replyString(vals[0]), Pathname: pathname, PathnameHash: pathnameHash(pathname)}
	var err error
	if p.WebsiteID, err = strconv.ParseInt(replyString(vals[1]), 10, 64); err != nil {
		return nil, fmt.Errorf("page %q website_id: %w", pathname, err)
	}
	if p.Visitors, err = strconv.ParseUint(replyString(vals[2]), 10, 64); err != nil {
		return nil, fmt.Errorf("page %q visitors: %w", pathname, err)
	}
	if p.Sessions, err = strconv.ParseUint(replyString(vals[3]), 10, 64); err != nil {
		return nil, fmt.Errorf("page %q sessions: %w", pathname, err)
	}
	p.CreatedAt = parseReplyTime(vals[4])
	p.UpdatedAt = parseReplyTime(vals[5])
	return p, nil
}

func replyString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return ""
	}
}

func parseReplyTime(v interface{}) time.Time {
	ts, err := time.Parse(time.RFC3339Nano, replyString(v))
	if err != nil {
		return time.Time{}
	}
	return ts
}
