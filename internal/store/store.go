// Package store is a thin typed facade over the shared Redis instance that
// coordinates multi-worker deployments.
//
// It owns every key shape the router writes: provider locks, occupancy
// hashes, host sets and the keep-alive schedule. Multi-key updates for the
// host-affine strategy run as server-side scripts; a chain of client-side
// calls would open race windows between workers.
package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Key shapes. {m} is the model name, {h} the provider host:port.
const (
	keyLock      = "lock:model:%s:provider:%s"
	keyOccupancy = "occ:model:%s"
	keyHostUsage = "host:%s"
	keyHosts     = "model:%s:hosts"
	keyLastHost  = "model:%s:last_host"
	keyKeepAlive    = "keepalive:provider:%s:%s"
	keyWakeup       = "keepalive:providers:next_wakeup"
	keyAvailability = "availability:%s"

	keepAliveField = "keep_alive_seconds"
)

// Store wraps a Redis client with the router's coordination primitives.
type Store struct {
	rdb *redis.Client
}

// New wraps an existing client.
func New(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

// Dial connects to Redis and verifies the connection with a ping.
func Dial(ctx context.Context, addr, password string, db int) (*Store, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping coordination store at %s: %w", addr, err)
	}
	return &Store{rdb: rdb}, nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("coordination store ping: %w", err)
	}
	return nil
}

// Close releases the underlying client.
func (s *Store) Close() error {
	return s.rdb.Close()
}

// --- provider locks -------------------------------------------------------

// AcquireLock tries to take the (model, provider-id) lock with the given
// TTL. Returns false when another holder has it.
func (s *Store) AcquireLock(ctx context.Context, model, providerID string, ttl time.Duration) (bool, error) {
	ok, err := s.rdb.SetNX(ctx, lockKey(model, providerID), "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lock %s/%s: %w", model, providerID, err)
	}
	return ok, nil
}

// ReleaseLock drops the (model, provider-id) lock.
func (s *Store) ReleaseLock(ctx context.Context, model, providerID string) error {
	if err := s.rdb.Del(ctx, lockKey(model, providerID)).Err(); err != nil {
		return fmt.Errorf("release lock %s/%s: %w", model, providerID, err)
	}
	return nil
}

// RefreshLock extends the TTL of a held lock. Used by multi-shot endpoints
// between sub-requests.
func (s *Store) RefreshLock(ctx context.Context, model, providerID string, ttl time.Duration) error {
	if err := s.rdb.Expire(ctx, lockKey(model, providerID), ttl).Err(); err != nil {
		return fmt.Errorf("refresh lock %s/%s: %w", model, providerID, err)
	}
	return nil
}

// Locked reports whether the (model, provider-id) lock is currently held.
func (s *Store) Locked(ctx context.Context, model, providerID string) (bool, error) {
	n, err := s.rdb.Exists(ctx, lockKey(model, providerID)).Result()
	if err != nil {
		return false, fmt.Errorf("check lock %s/%s: %w", model, providerID, err)
	}
	return n > 0, nil
}

// --- host-affine acquisition (scripted) -----------------------------------

// acquireScript takes the lock and, on success, records the full occupancy
// footprint in one atomic step.
var acquireScript = redis.NewScript(`
if redis.call("SET", KEYS[1], "1", "NX", "PX", ARGV[2]) then
	redis.call("HSET", KEYS[2], ARGV[1], "1")
	redis.call("SET", KEYS[3], ARGV[3])
	redis.call("SADD", KEYS[4], ARGV[3])
	redis.call("HINCRBY", KEYS[5], ARGV[4], 1)
	return 1
end
return 0
`)

var releaseScript = redis.NewScript(`
redis.call("DEL", KEYS[1])
redis.call("HDEL", KEYS[2], ARGV[1])
local n = redis.call("HINCRBY", KEYS[5], ARGV[4], -1)
if n <= 0 then
	redis.call("HDEL", KEYS[5], ARGV[4])
	redis.call("SREM", KEYS[4], ARGV[3])
end
return n
`)

// AcquireProvider atomically locks (model, provider-id) and records the
// occupancy state: last_host, the model's host set and the host usage count.
func (s *Store) AcquireProvider(ctx context.Context, model, providerID, host string, ttl time.Duration) (bool, error) {
	keys := []string{
		lockKey(model, providerID),
		fmt.Sprintf(keyOccupancy, model),
		fmt.Sprintf(keyLastHost, model),
		fmt.Sprintf(keyHosts, model),
		fmt.Sprintf(keyHostUsage, host),
	}
	res, err := acquireScript.Run(ctx, s.rdb, keys,
		providerID, ttl.Milliseconds(), host, model).Int()
	if err != nil {
		return false, fmt.Errorf("acquire provider %s/%s: %w", model, providerID, err)
	}
	return res == 1, nil
}

// ReleaseProvider atomically drops the lock and unwinds the occupancy state
// written by AcquireProvider.
func (s *Store) ReleaseProvider(ctx context.Context, model, providerID, host string) error {
	keys := []string{
		lockKey(model, providerID),
		fmt.Sprintf(keyOccupancy, model),
		fmt.Sprintf(keyLastHost, model),
		fmt.Sprintf(keyHosts, model),
		fmt.Sprintf(keyHostUsage, host),
	}
	if err := releaseScript.Run(ctx, s.rdb, keys, providerID, 0, host, model).Err(); err != nil {
		return fmt.Errorf("release provider %s/%s: %w", model, providerID, err)
	}
	return nil
}

// LastHost returns the most recently acquired host for a model, or "" when
// none is recorded.
func (s *Store) LastHost(ctx context.Context, model string) (string, error) {
	v, err := s.rdb.Get(ctx, fmt.Sprintf(keyLastHost, model)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("last host for %s: %w", model, err)
	}
	return v, nil
}

// DropLastHost removes a stale last-host pointer.
func (s *Store) DropLastHost(ctx context.Context, model string) error {
	if err := s.rdb.Del(ctx, fmt.Sprintf(keyLastHost, model)).Err(); err != nil {
		return fmt.Errorf("drop last host for %s: %w", model, err)
	}
	return nil
}

// KnownHosts lists the hosts currently serving a model.
func (s *Store) KnownHosts(ctx context.Context, model string) ([]string, error) {
	hosts, err := s.rdb.SMembers(ctx, fmt.Sprintf(keyHosts, model)).Result()
	if err != nil {
		return nil, fmt.Errorf("known hosts for %s: %w", model, err)
	}
	return hosts, nil
}

// HostBusy reports whether any model currently occupies the host.
func (s *Store) HostBusy(ctx context.Context, host string) (bool, error) {
	n, err := s.rdb.HLen(ctx, fmt.Sprintf(keyHostUsage, host)).Result()
	if err != nil {
		return false, fmt.Errorf("host usage for %s: %w", host, err)
	}
	return n > 0, nil
}

// --- keep-alive schedule --------------------------------------------------

// Member identifies one keep-alive registration.
type Member struct {
	Model string
	Host  string
}

func (m Member) String() string { return m.Model + "|" + m.Host }

func parseMember(s string) (Member, error) {
	model, host, ok := strings.Cut(s, "|")
	if !ok {
		return Member{}, fmt.Errorf("malformed wakeup member %q", s)
	}
	return Member{Model: model, Host: host}, nil
}

// RecordUsage registers (model, host) for keep-alive pings, scheduling the
// next wakeup one interval from now. Re-registration updates the interval.
func (s *Store) RecordUsage(ctx context.Context, model, host string, keepAlive time.Duration) error {
	secs := int64(keepAlive / time.Second)
	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, fmt.Sprintf(keyKeepAlive, model, host), keepAliveField, secs)
	pipe.ZAdd(ctx, keyWakeup, redis.Z{
		Score:  float64(time.Now().Add(keepAlive).Unix()),
		Member: Member{Model: model, Host: host}.String(),
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record usage %s@%s: %w", model, host, err)
	}
	return nil
}

// DueProviders returns every registration whose next wakeup is at or before
// now.
func (s *Store) DueProviders(ctx context.Context, now time.Time) ([]Member, error) {
	raw, err := s.rdb.ZRangeByScore(ctx, keyWakeup, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.Unix(), 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("due providers: %w", err)
	}
	members := make([]Member, 0, len(raw))
	for _, r := range raw {
		m, err := parseMember(r)
		if err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, nil
}

// KeepAliveInterval returns the registered interval for (model, host).
// The second return is false when the registration hash is missing, which
// the monitor treats as a dangling schedule entry.
func (s *Store) KeepAliveInterval(ctx context.Context, model, host string) (time.Duration, bool, error) {
	v, err := s.rdb.HGet(ctx, fmt.Sprintf(keyKeepAlive, model, host), keepAliveField).Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("keep-alive interval %s@%s: %w", model, host, err)
	}
	secs, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("keep-alive interval %s@%s: bad value %q", model, host, v)
	}
	return time.Duration(secs) * time.Second, true, nil
}

// Reschedule moves the next wakeup of (model, host) to at.
func (s *Store) Reschedule(ctx context.Context, m Member, at time.Time) error {
	err := s.rdb.ZAdd(ctx, keyWakeup, redis.Z{
		Score:  float64(at.Unix()),
		Member: m.String(),
	}).Err()
	if err != nil {
		return fmt.Errorf("reschedule %s: %w", m, err)
	}
	return nil
}

// DropKeepAlive removes a registration and its schedule entry.
func (s *Store) DropKeepAlive(ctx context.Context, m Member) error {
	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, fmt.Sprintf(keyKeepAlive, m.Model, m.Host))
	pipe.ZRem(ctx, keyWakeup, m.String())
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("drop keep-alive %s: %w", m, err)
	}
	return nil
}

// PurgeKeepAlive removes every keep-alive registration and the whole
// schedule. Used at monitor start when clear_buffers is set.
func (s *Store) PurgeKeepAlive(ctx context.Context) error {
	iter := s.rdb.Scan(ctx, 0, "keepalive:provider:*", 0).Iterator()
	for iter.Next(ctx) {
		if err := s.rdb.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("purge keep-alive: %w", err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("purge keep-alive scan: %w", err)
	}
	if err := s.rdb.Del(ctx, keyWakeup).Err(); err != nil {
		return fmt.Errorf("purge keep-alive schedule: %w", err)
	}
	return nil
}

// --- provider availability ------------------------------------------------

// SetAvailability records a health-check result for (model, provider-id).
func (s *Store) SetAvailability(ctx context.Context, model, providerID string, up bool) error {
	v := "false"
	if up {
		v = "true"
	}
	if err := s.rdb.HSet(ctx, fmt.Sprintf(keyAvailability, model), providerID, v).Err(); err != nil {
		return fmt.Errorf("set availability %s/%s: %w", model, providerID, err)
	}
	return nil
}

// Availability returns provider-id -> reachable for a model. Providers that
// were never checked are absent.
func (s *Store) Availability(ctx context.Context, model string) (map[string]bool, error) {
	raw, err := s.rdb.HGetAll(ctx, fmt.Sprintf(keyAvailability, model)).Result()
	if err != nil {
		return nil, fmt.Errorf("availability for %s: %w", model, err)
	}
	out := make(map[string]bool, len(raw))
	for id, v := range raw {
		out[id] = v == "true"
	}
	return out, nil
}

// PurgeAvailability removes every availability hash. Used at monitor start
// when clear_buffers is set.
func (s *Store) PurgeAvailability(ctx context.Context) error {
	iter := s.rdb.Scan(ctx, 0, "availability:*", 0).Iterator()
	for iter.Next(ctx) {
		if err := s.rdb.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("purge availability: %w", err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("purge availability scan: %w", err)
	}
	return nil
}

func lockKey(model, providerID string) string {
	return fmt.Sprintf(keyLock, model, providerID)
}
