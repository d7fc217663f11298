package erpcache

import (
	"context"
	"maps"

	st "github.com/unkn0wn-root/erpcache/store"
)

// CreateResult is the value-shaped outcome of a write. Record is the created
// payload (class defaults applied) on success, nil otherwise.
type CreateResult struct {
	Record  Record
	Success bool
	Message string
}

type mutator struct {
	backend BackendClient
	store   st.Store
	log     Logger
}

// Create validates the payload, writes it through the backend and, on
// success, deletes the default listing entries of the class from the cache.
// The invalidation set is enumerated, not a wildcard sweep: the store
// contract does not guarantee prefix-scan deletion, so only the keys the
// resolver is known to populate for default listings are removed.
func (m *mutator) Create(ctx context.Context, class Class, payload Record) CreateResult {
	if m.backend == nil {
		m.log.Error("create aborted", Fields{"class": class.Name, "err": ErrNoBackend})
		return CreateResult{Message: ErrNoBackend.Error()}
	}

	for _, field := range class.RequiredFields {
		if !present(payload[field]) {
			verr := &ValidationError{Class: class.Name, Field: field}
			m.log.Warn("create rejected", Fields{"err": verr})
			return CreateResult{Message: verr.Error()}
		}
	}

	rec := maps.Clone(payload) // defaults must not leak into the caller's map
	if class.CreateDefaults != nil {
		class.CreateDefaults(rec)
	}

	created, err := m.backend.Create(ctx, class, rec)
	if err != nil {
		berr := &BackendError{Class: class.Name, Op: "create", Err: err}
		m.log.Error("create failed", Fields{"err": berr})
		return CreateResult{Message: berr.Error()}
	}
	if created == nil {
		m.log.Error("create rejected by backend", Fields{"class": class.Name})
		return CreateResult{Message: "backend returned no record for " + class.Name + " create"}
	}

	// Nothing was stale before this point; a failed create leaves the cache alone.
	m.invalidate(ctx, class)

	m.log.Info("created", Fields{"class": class.Name})
	return CreateResult{Record: rec, Success: true, Message: class.Name + " created"}
}

// invalidate removes the filter-absent listing entries a successful create
// can have staled: the class default limit plus the 100 and 1000 listings
// (the latter backs FetchByID).
func (m *mutator) invalidate(ctx context.Context, class Class) {
	if m.store == nil {
		return
	}
	seen := map[int]bool{}
	for _, limit := range []int{class.DefaultLimit, 100, lookupLimit} {
		if seen[limit] {
			continue
		}
		seen[limit] = true

		key := cacheKey(class, limit, "")
		if err := m.store.Delete(ctx, key); err != nil {
			m.log.Warn("invalidation incomplete", Fields{"err": &CacheError{Op: "delete", Key: key, Err: err}})
			continue
		}
		m.log.Debug("invalidated", Fields{"key": key})
	}
}

// present reports whether a required field carries a usable value.
// Empty strings count as missing, zero numbers do not.
func present(v any) bool {
	if v == nil {
		return false
	}
	if s, ok := v.(string); ok {
		return s != ""
	}
	return true
}
