// Package redis adapts a go-redis client to the erpcache store contract.
// This is the store the production deployment runs: listings are shared
// across replicas and survive process restarts.
package redis

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	st "github.com/unkn0wn-root/erpcache/store"
)

var ErrNilClient = errors.New("redis store: nil client")

type Redis struct {
	rdb         goredis.UniversalClient
	closeClient bool
}

var _ st.Store = (*Redis)(nil)

type Config struct {
	Client      goredis.UniversalClient
	CloseClient bool // set true only if this store exclusively owns the client
}

func New(cfg Config) (*Redis, error) {
	if cfg.Client == nil {
		return nil, ErrNilClient
	}
	return &Redis{rdb: cfg.Client, closeClient: cfg.CloseClient}, nil
}

func (s *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := s.rdb.Get(ctx, key).Bytes()
	if err == goredis.Nil {
		return nil, false, nil // miss
	}
	if err != nil {
		return nil, false, err // transport/server error
	}
	return b, true, nil
}

func (s *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = 0 // non-positive TTL means "no expiry"
	}
	if err := s.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Redis) Delete(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, key).Err()
}

// Stats gathers PING, DBSIZE and the relevant INFO sections in one pipeline
// round-trip. Any failure is folded into the snapshot value.
func (s *Redis) Stats(ctx context.Context) st.Stats {
	out := st.Stats{Backend: "redis", Keys: -1}

	var (
		ping   *goredis.StatusCmd
		dbsize *goredis.IntCmd
		memory *goredis.StringCmd
		server *goredis.StringCmd
	)
	_, err := s.rdb.Pipelined(ctx, func(p goredis.Pipeliner) error {
		ping = p.Ping(ctx)
		dbsize = p.DBSize(ctx)
		memory = p.Info(ctx, "memory")
		server = p.Info(ctx, "server")
		return nil
	})
	if err != nil {
		out.Err = err.Error()
		return out
	}
	if ping.Err() != nil {
		out.Err = ping.Err().Error()
		return out
	}

	out.Connected = true
	if dbsize.Err() == nil {
		out.Keys = dbsize.Val()
	}
	out.MemoryUsage = infoField(memory.Val(), "used_memory_human")
	if v := infoField(server.Val(), "uptime_in_seconds"); v != "" {
		if secs, err := strconv.ParseInt(v, 10, 64); err == nil {
			out.Uptime = (time.Duration(secs) * time.Second).String()
		}
	}
	return out
}

// Close releases the underlying redis client only when this store owns it.
// Safe to call multiple times; repeated calls become no-ops.
func (s *Redis) Close(context.Context) error {
	if s.closeClient {
		if err := s.rdb.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
			return err
		}
	}
	return nil
}

// infoField extracts one "name:value" line from an INFO section body.
func infoField(info, name string) string {
	for _, line := range strings.Split(info, "\n") {
		if rest, ok := strings.CutPrefix(line, name+":"); ok {
			return strings.TrimSpace(rest)
		}
	}
	return ""
}
