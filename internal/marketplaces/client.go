package marketplaces

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/dropship-central/pkg/config"
	"github.com/angelmondragon/dropship-central/pkg/db/models"
	"github.com/angelmondragon/dropship-central/pkg/enums"
)

var (
	// ErrUnknownMarketplace is returned by Registry.Get for channels without a client.
	ErrUnknownMarketplace = errors.New("unknown marketplace")
	// ErrNotAuthorized is returned when the account carries no usable token.
	ErrNotAuthorized = errors.New("marketplace account not authorized")
)

// Client publishes listings to one marketplace on behalf of a store account.
type Client interface {
	CreateListing(ctx context.Context, account *models.StoreAccount, product *models.Product, price decimal.Decimal) (string, error)
	UpdatePrice(ctx context.Context, account *models.StoreAccount, externalID string, price decimal.Decimal) (bool, error)
	Withdraw(ctx context.Context, account *models.StoreAccount, externalID string) (bool, error)
}

// Registry maps marketplaces to their clients. It is built once at process start.
type Registry struct {
	clients map[enums.Marketplace]Client
}

func NewRegistry(clients map[enums.Marketplace]Client) *Registry {
	copied := make(map[enums.Marketplace]Client, len(clients))
	for k, v := range clients {
		copied[k] = v
	}
	return &Registry{clients: copied}
}

func (r *Registry) Get(marketplace enums.Marketplace) (Client, error) {
	client, ok := r.clients[marketplace]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMarketplace, marketplace)
	}
	return client, nil
}

// BuildRegistry wires the marketplace clients for cfg. Sandbox mode serves every marketplace
// in-process; otherwise only eBay has a live client.
func BuildRegistry(cfg config.MarketplacesConfig) *Registry {
	if cfg.Sandbox {
		return NewRegistry(map[enums.Marketplace]Client{
			enums.MarketplaceEbay:    NewSandboxClient(enums.MarketplaceEbay),
			enums.MarketplaceEtsy:    NewSandboxClient(enums.MarketplaceEtsy),
			enums.MarketplaceShopify: NewSandboxClient(enums.MarketplaceShopify),
		})
	}
	return NewRegistry(map[enums.Marketplace]Client{
		enums.MarketplaceEbay: NewEbayClient(cfg.EbayBaseURL, cfg.Timeout),
	})
}
