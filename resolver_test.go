package erpcache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	st "github.com/unkn0wn-root/erpcache/store"
)

type memEntry struct {
	v   []byte
	exp time.Time // zero => no TTL
}

type memStore struct {
	mu   sync.Mutex
	m    map[string]memEntry
	sets int
	dels int

	failGet bool
	failSet bool
	failDel bool
}

var _ st.Store = (*memStore)(nil)

func newMemStore() *memStore { return &memStore{m: make(map[string]memEntry)} }

func (s *memStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failGet {
		return nil, false, errors.New("store unreachable")
	}
	e, ok := s.m[key]
	if !ok {
		return nil, false, nil
	}
	if !e.exp.IsZero() && time.Now().After(e.exp) {
		delete(s.m, key)
		return nil, false, nil
	}
	return e.v, true, nil
}

func (s *memStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSet {
		return false, errors.New("store unreachable")
	}
	var exp time.Time
	if ttl > 0 {
		exp = time.Now().Add(ttl)
	}
	s.m[key] = memEntry{v: value, exp: exp}
	s.sets++
	return true, nil
}

func (s *memStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failDel {
		return errors.New("store unreachable")
	}
	delete(s.m, key)
	s.dels++
	return nil
}

func (s *memStore) Stats(_ context.Context) st.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return st.Stats{Backend: "mem", Connected: true, Keys: int64(len(s.m))}
}

func (s *memStore) Close(_ context.Context) error { return nil }

func (s *memStore) has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.m[key]
	return ok
}

// scriptedBackend serves canned listings and counts calls.
type scriptedBackend struct {
	mu          sync.Mutex
	listCalls   int
	createCalls int

	listFn   func(class Class, limit int, extra map[string]string) ([]Record, error)
	createFn func(class Class, payload Record) (Record, error)
}

var _ BackendClient = (*scriptedBackend)(nil)

func (b *scriptedBackend) FetchResourceList(_ context.Context, class Class, limit int, extra map[string]string) ([]Record, error) {
	b.mu.Lock()
	b.listCalls++
	b.mu.Unlock()
	if b.listFn == nil {
		return []Record{}, nil
	}
	return b.listFn(class, limit, extra)
}

func (b *scriptedBackend) Create(_ context.Context, class Class, payload Record) (Record, error) {
	b.mu.Lock()
	b.createCalls++
	b.mu.Unlock()
	if b.createFn == nil {
		return payload, nil
	}
	return b.createFn(class, payload)
}

func (b *scriptedBackend) lists() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.listCalls
}

func customerRows(n int) []Record {
	rows := make([]Record, 0, n)
	for i := 1; i <= n; i++ {
		rows = append(rows, Record{
			"customer_id":   i,
			"business_name": fmt.Sprintf("Empresa %d SL", i),
			"vat_number":    fmt.Sprintf("B%08d", i),
		})
	}
	return rows
}

func newTestResolver(t *testing.T, b BackendClient, s st.Store, mod func(*Options)) Resolver {
	t.Helper()
	opts := Options{Backend: b, Store: s}
	if mod != nil {
		mod(&opts)
	}
	r, err := NewResolver(opts)
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	return r
}

func ids(recs []Record, field string) []string {
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, fmt.Sprint(r[field]))
	}
	return out
}

// ==============================
// Read-through behavior
// ==============================

// TestFetchReadThrough verifies the miss->fetch->populate->hit cycle: one
// backend call and one store write on the first fetch, zero backend calls
// and the same rows on the second.
func TestFetchReadThrough(t *testing.T) {
	ctx := context.Background()
	ms := newMemStore()
	b := &scriptedBackend{listFn: func(Class, int, map[string]string) ([]Record, error) {
		return customerRows(3), nil
	}}
	r := newTestResolver(t, b, ms, nil)

	first := r.Fetch(ctx, Customers, Params{Limit: 10})
	if len(first) != 3 {
		t.Fatalf("first fetch: got %d records, want 3", len(first))
	}
	if b.lists() != 1 || ms.sets != 1 {
		t.Fatalf("first fetch: lists=%d sets=%d, want 1/1", b.lists(), ms.sets)
	}
	if !ms.has("customers_10_all") {
		t.Fatalf("expected key customers_10_all to be populated")
	}

	second := r.Fetch(ctx, Customers, Params{Limit: 10})
	if b.lists() != 1 {
		t.Fatalf("second fetch went to backend: lists=%d", b.lists())
	}
	want, got := ids(first, "customer_id"), ids(second, "customer_id")
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("second fetch rows differ: got %v want %v", got, want)
	}
}

// TestFetchEmptyResultNotCached ensures no negative caching: an empty
// backend result leaves the store untouched and the next identical call
// re-invokes the backend.
func TestFetchEmptyResultNotCached(t *testing.T) {
	ctx := context.Background()
	ms := newMemStore()
	b := &scriptedBackend{} // always empty
	r := newTestResolver(t, b, ms, nil)

	if got := r.Fetch(ctx, Products, Params{Limit: 5}); len(got) != 0 {
		t.Fatalf("expected empty result, got %v", got)
	}
	if ms.sets != 0 {
		t.Fatalf("empty result was cached: sets=%d", ms.sets)
	}
	_ = r.Fetch(ctx, Products, Params{Limit: 5})
	if b.lists() != 2 {
		t.Fatalf("expected backend re-invoked on second call, lists=%d", b.lists())
	}
}

// TestFetchBackendErrorReturnsEmpty: a remote failure is absorbed, logged,
// and surfaced as an empty result; nothing is cached.
func TestFetchBackendErrorReturnsEmpty(t *testing.T) {
	ctx := context.Background()
	ms := newMemStore()
	b := &scriptedBackend{listFn: func(Class, int, map[string]string) ([]Record, error) {
		return nil, errors.New("gateway timeout")
	}}
	r := newTestResolver(t, b, ms, nil)

	if got := r.Fetch(ctx, Customers, Params{Limit: 10}); len(got) != 0 {
		t.Fatalf("expected empty result on backend error, got %v", got)
	}
	if ms.sets != 0 {
		t.Fatalf("error result was cached: sets=%d", ms.sets)
	}
}

// TestFetchNoBackendConfigured: reads stay available as empty results.
func TestFetchNoBackendConfigured(t *testing.T) {
	r := newTestResolver(t, nil, newMemStore(), nil)
	if got := r.Fetch(context.Background(), Customers, Params{Limit: 10}); len(got) != 0 {
		t.Fatalf("expected empty result without backend, got %v", got)
	}
	if _, ok := r.FetchByID(context.Background(), Customers, "1"); ok {
		t.Fatalf("FetchByID should miss without backend")
	}
}

// TestFetchWithoutStore: nil store means always-miss, never an error.
func TestFetchWithoutStore(t *testing.T) {
	ctx := context.Background()
	b := &scriptedBackend{listFn: func(Class, int, map[string]string) ([]Record, error) {
		return customerRows(2), nil
	}}
	r := newTestResolver(t, b, nil, nil)

	for i := 0; i < 3; i++ {
		if got := r.Fetch(ctx, Customers, Params{Limit: 10}); len(got) != 2 {
			t.Fatalf("call %d: got %d records, want 2", i, len(got))
		}
	}
	if b.lists() != 3 {
		t.Fatalf("every call should reach the backend, lists=%d", b.lists())
	}

	stats := r.CacheStats(ctx)
	if stats.Connected || stats.Backend != "none" || stats.Err == "" {
		t.Fatalf("expected not-configured stats, got %+v", stats)
	}
}

// TestFetchStoreFailureDegrades: an unreachable store degrades to
// always-miss; reads keep returning correct backend data.
func TestFetchStoreFailureDegrades(t *testing.T) {
	ctx := context.Background()
	ms := newMemStore()
	ms.failGet = true
	ms.failSet = true
	b := &scriptedBackend{listFn: func(Class, int, map[string]string) ([]Record, error) {
		return customerRows(4), nil
	}}
	r := newTestResolver(t, b, ms, nil)

	for i := 0; i < 2; i++ {
		if got := r.Fetch(ctx, Customers, Params{Limit: 10}); len(got) != 4 {
			t.Fatalf("call %d: got %d records, want 4", i, len(got))
		}
	}
	if b.lists() != 2 {
		t.Fatalf("degraded mode should hit backend per call, lists=%d", b.lists())
	}
}

// ==============================
// TTL tiers
// ==============================

// TestFetchTTLExpiry: an entry is served before its TTL elapses and treated
// as absent after.
func TestFetchTTLExpiry(t *testing.T) {
	ctx := context.Background()
	ms := newMemStore()
	b := &scriptedBackend{listFn: func(Class, int, map[string]string) ([]Record, error) {
		return customerRows(1), nil
	}}
	r := newTestResolver(t, b, ms, func(o *Options) {
		o.TTLOverrides = map[string]time.Duration{"customers": 50 * time.Millisecond}
	})

	_ = r.Fetch(ctx, Customers, Params{Limit: 10})
	_ = r.Fetch(ctx, Customers, Params{Limit: 10})
	if b.lists() != 1 {
		t.Fatalf("entry expired too early, lists=%d", b.lists())
	}

	time.Sleep(70 * time.Millisecond)
	_ = r.Fetch(ctx, Customers, Params{Limit: 10})
	if b.lists() != 2 {
		t.Fatalf("entry not expired after TTL, lists=%d", b.lists())
	}
}

func TestTTLOverrideUnknownClass(t *testing.T) {
	_, err := NewResolver(Options{
		TTLOverrides: map[string]time.Duration{"orders": time.Minute},
	})
	if err == nil {
		t.Fatalf("expected error for unknown class override")
	}
}

// ==============================
// Post-fetch filtering
// ==============================

// TestFetchFilterCaseInsensitive: the search term selects from the cached
// unfiltered set, OR-matching across the class fields, ignoring case.
func TestFetchFilterCaseInsensitive(t *testing.T) {
	ctx := context.Background()
	rows := []Record{
		{"product_id": "p1", "reference": "ABC-100", "description": "widget"},
		{"product_id": "p2", "reference": "XYZ-200", "description": "gadget abc"},
		{"product_id": "p3", "reference": "QQQ-300", "description": "sprocket"},
	}
	ms := newMemStore()
	b := &scriptedBackend{listFn: func(Class, int, map[string]string) ([]Record, error) {
		return rows, nil
	}}
	r := newTestResolver(t, b, ms, nil)

	upper := r.Fetch(ctx, Products, Params{Limit: 100, Search: "ABC"})
	lower := r.Fetch(ctx, Products, Params{Limit: 100, Search: "abc"})
	if len(upper) != 2 || len(lower) != 2 {
		t.Fatalf("filter sizes: upper=%d lower=%d, want 2/2", len(upper), len(lower))
	}
	if fmt.Sprint(ids(upper, "product_id")) != fmt.Sprint(ids(lower, "product_id")) {
		t.Fatalf("case-mismatched terms diverge: %v vs %v",
			ids(upper, "product_id"), ids(lower, "product_id"))
	}

	// The cached value is the unfiltered set for the term's own key.
	if !ms.has("products_100_ABC") || !ms.has("products_100_abc") {
		t.Fatalf("expected both term keys populated; store=%v", ms.m)
	}
	none := r.Fetch(ctx, Products, Params{Limit: 100, Search: "zzz"})
	if len(none) != 0 {
		t.Fatalf("expected no matches for zzz, got %v", none)
	}
}

// TestFetchCustomerSearchMatchesNumericID: the numeric customer id joins the
// search via its string form.
func TestFetchCustomerSearchMatchesNumericID(t *testing.T) {
	ctx := context.Background()
	b := &scriptedBackend{listFn: func(Class, int, map[string]string) ([]Record, error) {
		return customerRows(12), nil
	}}
	r := newTestResolver(t, b, newMemStore(), nil)

	got := r.Fetch(ctx, Customers, Params{Limit: 100, Search: "12"})
	if len(got) != 1 || fmt.Sprint(got[0]["customer_id"]) != "12" {
		t.Fatalf("id search: got %v", ids(got, "customer_id"))
	}
}

// TestFetchInvoicesFromDate: the from-date rides the cache key and is
// forwarded to the backend; invoices are never post-filtered.
func TestFetchInvoicesFromDate(t *testing.T) {
	ctx := context.Background()
	ms := newMemStore()
	var gotExtra map[string]string
	b := &scriptedBackend{listFn: func(_ Class, _ int, extra map[string]string) ([]Record, error) {
		gotExtra = extra
		return []Record{{"invoice_id": 9, "reference": "F-2026-001"}}, nil
	}}
	r := newTestResolver(t, b, ms, nil)

	recs := r.Fetch(ctx, Invoices, Params{Limit: 50, FromDate: "2026-01-01"})
	if len(recs) != 1 {
		t.Fatalf("got %d invoices, want 1", len(recs))
	}
	if gotExtra["from_date"] != "2026-01-01" {
		t.Fatalf("from_date not forwarded, extra=%v", gotExtra)
	}
	if !ms.has("invoices_50_2026-01-01") {
		t.Fatalf("expected date-scoped key; store=%v", ms.m)
	}

	_ = r.Fetch(ctx, Invoices, Params{Limit: 50, FromDate: "2026-01-01"})
	if b.lists() != 1 {
		t.Fatalf("second dated fetch went to backend, lists=%d", b.lists())
	}
}

// ==============================
// By-ID lookup
// ==============================

// TestFetchByID: the lookup is serviced by the limit-1000 listing entry and
// two lookups share one backend fetch.
func TestFetchByID(t *testing.T) {
	ctx := context.Background()
	ms := newMemStore()
	b := &scriptedBackend{listFn: func(Class, int, map[string]string) ([]Record, error) {
		return customerRows(5), nil
	}}
	r := newTestResolver(t, b, ms, nil)

	rec, ok := r.FetchByID(ctx, Customers, "3")
	if !ok || fmt.Sprint(rec["customer_id"]) != "3" {
		t.Fatalf("FetchByID(3): ok=%v rec=%v", ok, rec)
	}
	if !ms.has("customers_1000_all") {
		t.Fatalf("lookup should populate the limit-1000 listing; store keys=%v", ms.m)
	}

	if _, ok := r.FetchByID(ctx, Customers, "99"); ok {
		t.Fatalf("FetchByID(99) should miss")
	}
	if b.lists() != 1 {
		t.Fatalf("second lookup should be served from cache, lists=%d", b.lists())
	}
}

// ==============================
// Corrupt entries
// ==============================

// TestFetchSelfHealsCorruptEntry: undecodable bytes are dropped and the
// fetch falls through to the backend.
func TestFetchSelfHealsCorruptEntry(t *testing.T) {
	ctx := context.Background()
	ms := newMemStore()
	if ok, err := ms.Set(ctx, "customers_10_all", []byte("not-msgpack"), time.Minute); err != nil || !ok {
		t.Fatalf("inject corrupt: ok=%v err=%v", ok, err)
	}
	b := &scriptedBackend{listFn: func(Class, int, map[string]string) ([]Record, error) {
		return customerRows(2), nil
	}}
	r := newTestResolver(t, b, ms, nil)

	if got := r.Fetch(ctx, Customers, Params{Limit: 10}); len(got) != 2 {
		t.Fatalf("got %d records, want 2 from backend", len(got))
	}
	if b.lists() != 1 {
		t.Fatalf("backend not consulted after corrupt entry, lists=%d", b.lists())
	}
}

// ==============================
// Stats passthrough
// ==============================

func TestCacheStatsPassthrough(t *testing.T) {
	ms := newMemStore()
	r := newTestResolver(t, &scriptedBackend{}, ms, nil)
	stats := r.CacheStats(context.Background())
	if !stats.Connected || stats.Backend != "mem" {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}
