// Package erpcache implements a read-through cache over a remote ERP backend
// for three fixed resource classes: customers, products and invoices.
//
// Components:
//   - store.Store: byte store with per-entry TTL (e.g. Redis, Ristretto, BigCache).
//   - codec.Codec[V]: (de)serializes record lists <-> []byte.
//   - BackendClient: the remote data source (see gomanage for an HTTP implementation).
//   - Resolver: cache-aside fetch with post-fetch filtering and by-ID lookup.
//   - Mutator: writes through the backend and invalidates the listing keys it staled.
//
// Keys:
//
//	<class>_<limit>_<term|all>  - e.g. "customers_100_all", "products_100_acme"
//
// Each class carries its own TTL tier (customers 1h, products 2h, invoices 30m).
// Read paths never fail: backend and cache errors are absorbed, logged, and
// surfaced as empty results. Write paths surface failure as a value
// (CreateResult.Success=false), never as an error.
package erpcache
