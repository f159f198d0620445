package enums

import (
	"fmt"
	"strings"
)

// Marketplace names a selling channel a store account connects to.
type Marketplace string

const (
	MarketplaceEbay    Marketplace = "ebay"
	MarketplaceEtsy    Marketplace = "etsy"
	MarketplaceShopify Marketplace = "shopify"
)

var validMarketplaces = []Marketplace{
	MarketplaceEbay,
	MarketplaceEtsy,
	MarketplaceShopify,
}

// String implements fmt.Stringer.
func (m Marketplace) String() string {
	return string(m)
}

// IsValid reports whether the value is a known Marketplace.
func (m Marketplace) IsValid() bool {
	for _, candidate := range validMarketplaces {
		if candidate == m {
			return true
		}
	}
	return false
}

// ParseMarketplace converts raw input into a Marketplace, ignoring case.
func ParseMarketplace(value string) (Marketplace, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range validMarketplaces {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid marketplace %q", value)
}
