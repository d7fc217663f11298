// Package ristretto adapts dgraph-io/ristretto to the erpcache store
// contract for single-process deployments.
package ristretto

import (
	"context"
	"errors"
	"fmt"
	"time"

	rc "github.com/dgraph-io/ristretto"

	st "github.com/unkn0wn-root/erpcache/store"
)

type Store struct {
	c       *rc.Cache
	metrics bool
	started time.Time
}

var _ st.Store = (*Store)(nil)

type Config struct {
	NumCounters int64
	MaxCost     int64 // bytes; Set costs each entry at len(value)
	BufferItems int64
	Metrics     bool
}

func New(cfg Config) (*Store, error) {
	if cfg.NumCounters <= 0 || cfg.MaxCost <= 0 || cfg.BufferItems <= 0 {
		return nil, errors.New("ristretto: invalid config")
	}
	c, err := rc.NewCache(&rc.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: cfg.BufferItems,
		Metrics:     cfg.Metrics,
	})
	if err != nil {
		return nil, err
	}
	return &Store{c: c, metrics: cfg.Metrics, started: time.Now()}, nil
}

func (s *Store) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := s.c.Get(key)
	if !ok {
		return nil, false, nil
	}
	b, _ := v.([]byte)
	if b == nil {
		// self-heal: drop unexpected entry shape
		s.c.Del(key)
		return nil, false, nil
	}
	return b, true, nil
}

func (s *Store) Set(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	return s.c.SetWithTTL(key, value, int64(len(value)), ttl), nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	s.c.Del(key)
	return nil
}

// Stats reports what ristretto can: it has no key count, so Keys is -1.
// Memory usage is the admitted-minus-evicted cost and is only available when
// the cache was built with Metrics enabled.
func (s *Store) Stats(_ context.Context) st.Stats {
	out := st.Stats{
		Backend:   "ristretto",
		Connected: true,
		Keys:      -1,
		Uptime:    time.Since(s.started).Round(time.Second).String(),
	}
	if s.metrics {
		m := s.c.Metrics
		out.MemoryUsage = fmt.Sprintf("%d bytes", int64(m.CostAdded())-int64(m.CostEvicted()))
	}
	return out
}

func (s *Store) Close(_ context.Context) error {
	s.c.Wait()
	s.c.Close()
	return nil
}
