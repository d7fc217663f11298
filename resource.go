package erpcache

import (
	"fmt"
	"time"
)

// Class describes one resource class: its cache-key prefix (Name), TTL tier,
// identifier field and the fields the post-fetch search term is matched
// against. Classes are fixed; the three descriptors below are the whole set.
type Class struct {
	Name         string // cache-key prefix and backend collection name
	TTL          time.Duration
	DefaultLimit int
	IDField      string

	// SearchFields are matched case-insensitively against the search term.
	// Non-string values are matched via their string form, which is how the
	// numeric customer id participates in customer search.
	SearchFields []string

	// RequiredFields must be present and non-empty on Create.
	RequiredFields []string

	// CreateDefaults fills class-specific defaults into a create payload.
	CreateDefaults func(Record)
}

var (
	Customers = Class{
		Name:           "customers",
		TTL:            time.Hour,
		DefaultLimit:   100,
		IDField:        "customer_id",
		SearchFields:   []string{"business_name", "vat_number", "customer_id"},
		RequiredFields: []string{"business_name", "vat_number"},
		CreateDefaults: func(r Record) {
			if _, ok := r["name"]; !ok {
				r["name"] = r["business_name"]
			}
			if _, ok := r["country_id"]; !ok {
				r["country_id"] = "ES"
			}
		},
	}

	Products = Class{
		Name:         "products",
		TTL:          2 * time.Hour,
		DefaultLimit: 100,
		IDField:      "product_id",
		SearchFields: []string{"reference", "description"},
	}

	// Invoices take no search term; the from-date filter is forwarded to the
	// backend and occupies the term slot of the cache key instead.
	Invoices = Class{
		Name:         "invoices",
		TTL:          30 * time.Minute,
		DefaultLimit: 50,
		IDField:      "invoice_id",
	}
)

func classByName(name string) (Class, bool) {
	switch name {
	case Customers.Name:
		return Customers, true
	case Products.Name:
		return Products, true
	case Invoices.Name:
		return Invoices, true
	}
	return Class{}, false
}

// Params select records for Fetch. Limit <= 0 falls back to the class
// default. Search and FromDate both feed the cache key; only Search is
// applied as a post-fetch filter.
type Params struct {
	Limit    int
	Search   string
	FromDate string // invoices only
}

// cacheKey is a pure function of (class, limit, term). Nothing else may
// influence it: the search term is folded into already-fetched records, not
// into a second backend query, so identical (limit, term) pairs always hit
// the same cache line.
func cacheKey(c Class, limit int, term string) string {
	if term == "" {
		term = "all"
	}
	return fmt.Sprintf("%s_%d_%s", c.Name, limit, term)
}
