package erpcache

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	c "github.com/unkn0wn-root/erpcache/codec"
	st "github.com/unkn0wn-root/erpcache/store"
)

// lookupLimit is the listing size FetchByID scans. By-ID lookups share the
// cache entry of a bulk listing at this limit; see FetchByID.
const lookupLimit = 1000

type resolver struct {
	backend  BackendClient
	store    st.Store
	codec    c.Codec[[]Record]
	log      Logger
	ttls     map[string]time.Duration
	noSingle bool
	group    singleflight.Group
}

// Fetch implements the cache-aside read:
//
//	derive key -> store.Get -> (miss) backend fetch -> store.Set -> post-filter
//
// The unfiltered backend result is what occupies the cache slot; the search
// term is applied afterwards on every call. Empty backend results are never
// cached so a transient outage cannot pin an empty listing for a full TTL.
func (r *resolver) Fetch(ctx context.Context, class Class, p Params) []Record {
	if r.backend == nil {
		r.log.Error("fetch aborted", Fields{"class": class.Name, "err": ErrNoBackend})
		return nil
	}

	limit := p.Limit
	if limit <= 0 {
		limit = class.DefaultLimit
	}
	term := p.Search
	if term == "" {
		term = p.FromDate
	}
	key := cacheKey(class, limit, term)

	recs, hit := r.cached(ctx, key)
	if !hit {
		recs = r.fetchOrigin(ctx, class, key, limit, p.FromDate)
	}

	if p.Search != "" && len(recs) > 0 && len(class.SearchFields) > 0 {
		recs = filterRecords(class, recs, p.Search)
	}
	return recs
}

// FetchByID services a single-record lookup from the same cache entry as a
// bulk listing at lookupLimit. If no such listing has ever been cached the
// call is as expensive as a full fetch. Deliberate: callers depend on this
// cache-population pattern, and the backend contract has no by-id endpoint.
func (r *resolver) FetchByID(ctx context.Context, class Class, id string) (Record, bool) {
	for _, rec := range r.Fetch(ctx, class, Params{Limit: lookupLimit}) {
		if v, ok := rec[class.IDField]; ok && fmt.Sprint(v) == id {
			return rec, true
		}
	}
	return nil, false
}

// CacheStats reports a snapshot of the underlying store. An absent or
// unreachable store is itself reported as a value, never an error.
func (r *resolver) CacheStats(ctx context.Context) st.Stats {
	if r.store == nil {
		return st.Stats{Backend: "none", Keys: -1, Err: "cache store not configured"}
	}
	return r.store.Stats(ctx)
}

// cached returns the working set for key, treating store errors and
// undecodable entries as misses. Undecodable entries are deleted (self-heal).
func (r *resolver) cached(ctx context.Context, key string) ([]Record, bool) {
	if r.store == nil {
		return nil, false
	}
	raw, ok, err := r.store.Get(ctx, key)
	if err != nil {
		r.log.Warn("cache degraded to miss", Fields{"err": &CacheError{Op: "get", Key: key, Err: err}})
		return nil, false
	}
	if !ok {
		return nil, false
	}
	recs, err := r.codec.Decode(raw)
	if err != nil {
		_ = r.store.Delete(ctx, key) // self-heal corrupt
		r.log.Warn("dropped undecodable cache entry", Fields{"key": key, "err": err})
		return nil, false
	}
	r.log.Debug("cache hit", Fields{"key": key, "records": len(recs)})
	return recs, true
}

func (r *resolver) fetchOrigin(ctx context.Context, class Class, key string, limit int, fromDate string) []Record {
	fetch := func() ([]Record, error) {
		var extra map[string]string
		if fromDate != "" {
			extra = map[string]string{"from_date": fromDate}
		}
		recs, err := r.backend.FetchResourceList(ctx, class, limit, extra)
		if err != nil {
			return nil, &BackendError{Class: class.Name, Op: "list", Err: err}
		}
		if len(recs) > 0 {
			r.populate(ctx, class, key, recs)
		}
		return recs, nil
	}

	var recs []Record
	var err error
	if r.noSingle {
		recs, err = fetch()
	} else {
		var v any
		v, err, _ = r.group.Do(key, func() (any, error) { return fetch() })
		if err == nil {
			recs = v.([]Record)
		}
	}
	if err != nil {
		r.log.Error("backend fetch failed", Fields{"class": class.Name, "key": key, "err": err})
		return nil
	}
	r.log.Debug("fetched from backend", Fields{"key": key, "records": len(recs)})
	return recs
}

func (r *resolver) populate(ctx context.Context, class Class, key string, recs []Record) {
	if r.store == nil {
		return
	}
	raw, err := r.codec.Encode(recs)
	if err != nil {
		r.log.Warn("encode for cache failed", Fields{"key": key, "err": err})
		return
	}
	ok, err := r.store.Set(ctx, key, raw, r.ttl(class))
	if err != nil {
		r.log.Warn("cache populate failed", Fields{"err": &CacheError{Op: "set", Key: key, Err: err}})
		return
	}
	if !ok {
		r.log.Debug("cache set rejected by store (pressure)", Fields{"key": key})
		return
	}
	r.log.Debug("cached records", Fields{"key": key, "records": len(recs), "ttl": r.ttl(class).String()})
}

func (r *resolver) ttl(class Class) time.Duration {
	if t, ok := r.ttls[class.Name]; ok {
		return t
	}
	return class.TTL
}
