package marketplaces

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/dropship-central/pkg/db/models"
	"github.com/angelmondragon/dropship-central/pkg/enums"
)

// SandboxClient is an in-process marketplace used in dev and tests. It never touches the
// network and derives listing ids from the product and price.
type SandboxClient struct {
	marketplace enums.Marketplace

	mu        sync.Mutex
	prices    map[string]decimal.Decimal
	withdrawn map[string]bool
}

func NewSandboxClient(marketplace enums.Marketplace) *SandboxClient {
	return &SandboxClient{
		marketplace: marketplace,
		prices:      make(map[string]decimal.Decimal),
		withdrawn:   make(map[string]bool),
	}
}

func (c *SandboxClient) CreateListing(_ context.Context, _ *models.StoreAccount, product *models.Product, price decimal.Decimal) (string, error) {
	id := fmt.Sprintf("%s-%s-%s", c.marketplace, product.ID, price.StringFixed(2))
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prices[id] = price
	delete(c.withdrawn, id)
	return id, nil
}

func (c *SandboxClient) UpdatePrice(_ context.Context, _ *models.StoreAccount, externalID string, price decimal.Decimal) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prices[externalID] = price
	return true, nil
}

func (c *SandboxClient) Withdraw(_ context.Context, _ *models.StoreAccount, externalID string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.withdrawn[externalID] = true
	return true, nil
}

// Price returns the last price published for externalID.
func (c *SandboxClient) Price(externalID string) (decimal.Decimal, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.prices[externalID]
	return p, ok
}

// Withdrawn reports whether externalID was withdrawn.
func (c *SandboxClient) Withdrawn(externalID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.withdrawn[externalID]
}
