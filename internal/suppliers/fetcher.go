package suppliers

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"
)

var (
	// ErrScraping covers every upstream failure that is not a definite not-found.
	ErrScraping = errors.New("supplier fetch failed")
	// ErrProductNotFound is returned when the supplier no longer carries the SKU.
	ErrProductNotFound = errors.New("supplier product not found")
	// ErrUnknownSupplier is returned by Registry.Get for names without a client.
	ErrUnknownSupplier = errors.New("unknown supplier")
)

// Snapshot is one observation of a supplier product.
type Snapshot struct {
	Price        decimal.Decimal
	Stock        string
	Title        string
	Description  *string
	Rating       *float64
	ReviewsCount int
	Images       []string
	URL          string
}

// Fetcher retrieves the current snapshot for a supplier SKU.
type Fetcher interface {
	Fetch(ctx context.Context, sku string) (Snapshot, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, sku string) (Snapshot, error)

func (f FetcherFunc) Fetch(ctx context.Context, sku string) (Snapshot, error) {
	return f(ctx, sku)
}

// Registry resolves supplier names to fetch clients. It is built at process start.
type Registry struct {
	mu       sync.RWMutex
	fetchers map[string]Fetcher
}

func NewRegistry() *Registry {
	return &Registry{fetchers: make(map[string]Fetcher)}
}

// Register binds name to f, replacing any previous client.
func (r *Registry) Register(name string, f Fetcher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fetchers[name] = f
}

func (r *Registry) Get(name string) (Fetcher, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.fetchers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSupplier, name)
	}
	return f, nil
}

// Names lists the registered suppliers in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.fetchers))
	for name := range r.fetchers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
