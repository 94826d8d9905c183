package infra

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"rategrate/grate/domain"

	"github.com/redis/go-redis/v9"
)

// RedisStatsStore grava contadores de eventos em hashes do Redis.
//
// Layout (prefix padrão "grate:stats"):
//
//	{prefix}:total             hash kind -> count (+ waited_ms)
//	{prefix}:minute:YYYYMMDDHHMM   idem, com TTL
//	{prefix}:tracker:{name}    idem, com TTL (apenas com trackKeys)
//
// O Redis aqui é só destino de estatística; o estado das vagas nunca sai do processo.
type RedisStatsStore struct {
	rdb *redis.Client

	prefix string
	// ttl aplica apenas em chaves de série temporal / por tracker.
	// total é cumulativo e não expira.
	ttl time.Duration

	bucket string // "minute" (padrão) ou "none"

	trackKeys bool
}

type RedisStatsOption func(*RedisStatsStore)

func WithStatsPrefix(prefix string) RedisStatsOption {
	return func(s *RedisStatsStore) {
		s.prefix = strings.Trim(prefix, ":")
	}
}

func WithStatsTTL(d time.Duration) RedisStatsOption {
	return func(s *RedisStatsStore) { s.ttl = d }
}

func WithStatsBucket(bucket string) RedisStatsOption {
	return func(s *RedisStatsStore) { s.bucket = strings.ToLower(strings.TrimSpace(bucket)) }
}

func WithStatsTrackKeys(track bool) RedisStatsOption {
	return func(s *RedisStatsStore) { s.trackKeys = track }
}

func NewRedisStatsStore(rdb *redis.Client, opts ...RedisStatsOption) *RedisStatsStore {
	s := &RedisStatsStore{
		rdb:    rdb,
		prefix: "grate:stats",
		ttl:    24 * time.Hour,
		bucket: "minute",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStatsStore) Prefix() string { return s.prefix }

// MinuteKey é a chave do bucket de um instante.
func (s *RedisStatsStore) MinuteKey(at time.Time) string {
	return fmt.Sprintf("%s:minute:%s", s.prefix, at.UTC().Format("200601021504"))
}

func (s *RedisStatsStore) TrackerKey(name string) string {
	return s.prefix + ":tracker:" + name
}

func (s *RedisStatsStore) Record(ctx context.Context, ev domain.StatsEvent) error {
	if s == nil || s.rdb == nil {
		return nil
	}

	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	n := int64(ev.Count)
	if n <= 0 {
		n = 1
	}
	field := string(ev.Kind)
	waitedMS := ev.Waited.Milliseconds()

	incr := func(pipe redis.Pipeliner, key string) {
		pipe.HIncrBy(ctx, key, field, n)
		if waitedMS > 0 {
			pipe.HIncrBy(ctx, key, "waited_ms", waitedMS)
		}
	}

	pipe := s.rdb.Pipeline()
	incr(pipe, s.prefix+":total")

	if s.bucket == "minute" {
		bucketKey := s.MinuteKey(at)
		incr(pipe, bucketKey)
		if s.ttl > 0 {
			pipe.Expire(ctx, bucketKey, s.ttl)
		}
	}

	if s.trackKeys {
		name := strings.TrimSpace(ev.Tracker)
		if name != "" {
			trackerKey := s.TrackerKey(name)
			incr(pipe, trackerKey)
			if s.ttl > 0 {
				pipe.Expire(ctx, trackerKey, s.ttl)
			}
		}
	}

	_, err := pipe.Exec(ctx)
	return err
}

// Totals lê o hash cumulativo. Campos ausentes voltam como zero.
func (s *RedisStatsStore) Totals(ctx context.Context) (map[string]int64, error) {
	raw, err := s.rdb.HGetAll(ctx, s.prefix+":total").Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(raw))
	for k, v := range raw {
		i, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", k, err)
		}
		out[k] = i
	}
	return out, nil
}
