package erpcache

import (
	"context"
	"fmt"
	"time"

	c "github.com/unkn0wn-root/erpcache/codec"
	st "github.com/unkn0wn-root/erpcache/store"
)

// Record is a single resource row as returned by the backend: an id plus
// free-form attributes. The cache treats it as opaque and never mutates it.
type Record map[string]any

// BackendClient is the remote data source consumed by Resolver and Mutator.
type BackendClient interface {
	// FetchResourceList returns up to limit records of the given class.
	// extra carries backend-side query parameters (currently "from_date" for
	// invoices only). No data is an empty slice, never nil-with-error.
	FetchResourceList(ctx context.Context, class Class, limit int, extra map[string]string) ([]Record, error)

	// Create stores a new record. A nil record with a nil error means the
	// backend rejected the write.
	Create(ctx context.Context, class Class, payload Record) (Record, error)
}

// Resolver is the read side: cache-aside fetch, post-fetch filtering,
// by-ID lookup and cache stats. Methods never return errors; failures are
// logged and degrade to empty results (availability over strictness).
type Resolver interface {
	Fetch(ctx context.Context, class Class, p Params) []Record
	FetchByID(ctx context.Context, class Class, id string) (Record, bool)
	CacheStats(ctx context.Context) st.Stats
}

// Mutator is the write side. Failure is a value, never an error.
type Mutator interface {
	Create(ctx context.Context, class Class, payload Record) CreateResult
}

// Options wire the collaborators explicitly. Only Backend is meaningful to
// require; a nil Store degrades every read to a backend fetch (always-miss)
// and a nil Backend makes reads empty and writes unsuccessful, both logged.
type Options struct {
	Backend BackendClient
	Store   st.Store          // nil => no caching
	Codec   c.Codec[[]Record] // nil => codec.Msgpack
	Logger  Logger            // nil => NopLogger

	// TTLOverrides replaces the built-in TTL tier per class name
	// (e.g. {"customers": 10 * time.Minute}).
	TTLOverrides map[string]time.Duration

	// DisableSingleFlight turns off miss-path deduplication. Duplicate
	// concurrent fetches for the same key are benign either way; the
	// deduplication is purely a load optimization.
	DisableSingleFlight bool
}

// NewResolver builds the read-side resolver.
func NewResolver(opts Options) (Resolver, error) {
	if err := validateTTLOverrides(opts.TTLOverrides); err != nil {
		return nil, err
	}
	return &resolver{
		backend:  opts.Backend,
		store:    opts.Store,
		codec:    coalesce[c.Codec[[]Record]](opts.Codec, c.Msgpack[[]Record]{}),
		log:      coalesce[Logger](opts.Logger, NopLogger{}),
		ttls:     opts.TTLOverrides,
		noSingle: opts.DisableSingleFlight,
	}, nil
}

// NewMutator builds the write-side handler. It shares Options with
// NewResolver so both sides are constructed from one wiring point.
func NewMutator(opts Options) (Mutator, error) {
	return &mutator{
		backend: opts.Backend,
		store:   opts.Store,
		log:     coalesce[Logger](opts.Logger, NopLogger{}),
	}, nil
}

func validateTTLOverrides(overrides map[string]time.Duration) error {
	for name := range overrides {
		if _, ok := classByName(name); !ok {
			return fmt.Errorf("erpcache: ttl override for unknown class %q", name)
		}
	}
	return nil
}
