// Package bigcache adapts allegro/bigcache to the erpcache store contract.
//
// BigCache has no per-entry TTL: entries live for the configured LifeWindow
// regardless of the ttl passed to Set. Configure LifeWindow at or below the
// shortest class TTL (invoices, 30m) so entries are never served longer than
// their tier allows.
package bigcache

import (
	"context"
	"fmt"
	"time"

	bc "github.com/allegro/bigcache/v3"

	st "github.com/unkn0wn-root/erpcache/store"
)

type Store struct {
	c       *bc.BigCache
	started time.Time
}

var _ st.Store = (*Store)(nil)

type Config struct {
	LifeWindow         time.Duration
	CleanWindow        time.Duration
	MaxEntriesInWindow int
	MaxEntrySize       int
	HardMaxCacheSizeMB int // ~ memory limit; 0 = unlimited
}

func New(cfg Config) (*Store, error) {
	conf := bc.DefaultConfig(cfg.LifeWindow)
	if cfg.CleanWindow > 0 {
		conf.CleanWindow = cfg.CleanWindow
	}
	if cfg.MaxEntriesInWindow > 0 {
		conf.MaxEntriesInWindow = cfg.MaxEntriesInWindow
	}
	if cfg.MaxEntrySize > 0 {
		conf.MaxEntrySize = cfg.MaxEntrySize
	}
	if cfg.HardMaxCacheSizeMB > 0 {
		conf.HardMaxCacheSize = cfg.HardMaxCacheSizeMB
	}
	c, err := bc.New(context.Background(), conf)
	if err != nil {
		return nil, err
	}
	return &Store{c: c, started: time.Now()}, nil
}

func (s *Store) Get(_ context.Context, key string) ([]byte, bool, error) {
	b, err := s.c.Get(key)
	if err == bc.ErrEntryNotFound {
		return nil, false, nil
	}
	return b, err == nil, err
}

func (s *Store) Set(_ context.Context, key string, value []byte, _ time.Duration) (bool, error) {
	// Per-entry TTL unsupported; the global LifeWindow applies.
	return true, s.c.Set(key, value)
}

func (s *Store) Delete(_ context.Context, key string) error {
	err := s.c.Delete(key)
	if err == bc.ErrEntryNotFound {
		return nil
	}
	return err
}

func (s *Store) Stats(_ context.Context) st.Stats {
	return st.Stats{
		Backend:     "bigcache",
		Connected:   true,
		Keys:        int64(s.c.Len()),
		MemoryUsage: fmt.Sprintf("%d bytes", s.c.Capacity()),
		Uptime:      time.Since(s.started).Round(time.Second).String(),
	}
}

func (s *Store) Close(_ context.Context) error {
	return s.c.Close()
}
