package marketplaces

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/dropship-central/pkg/db/models"
)

const ebayCurrency = "USD"

// EbayClient talks to the eBay REST inventory API with the account's OAuth bearer token.
type EbayClient struct {
	client *resty.Client
}

type ebayOfferRequest struct {
	SKU      string        `json:"sku"`
	Title    string        `json:"title"`
	Price    ebayAmount    `json:"price"`
	Quantity int           `json:"availableQuantity"`
	Images   []string      `json:"imageUrls,omitempty"`
	Source   ebayReference `json:"source"`
}

type ebayAmount struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

type ebayReference struct {
	ProductID string `json:"productId"`
}

type ebayOfferResponse struct {
	OfferID string `json:"offerId"`
}

type ebayError struct {
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

func NewEbayClient(baseURL string, timeout time.Duration) *EbayClient {
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	return &EbayClient{client: client}
}

func (c *EbayClient) request(ctx context.Context, account *models.StoreAccount) (*resty.Request, error) {
	if account == nil || account.OAuthToken == nil || *account.OAuthToken == "" {
		return nil, ErrNotAuthorized
	}
	return c.client.R().
		SetContext(ctx).
		SetAuthToken(*account.OAuthToken).
		SetError(&ebayError{}), nil
}

func (c *EbayClient) CreateListing(ctx context.Context, account *models.StoreAccount, product *models.Product, price decimal.Decimal) (string, error) {
	req, err := c.request(ctx, account)
	if err != nil {
		return "", err
	}
	var images []string
	if len(product.Images) > 0 {
		if err := json.Unmarshal(product.Images, &images); err != nil {
			return "", fmt.Errorf("decode product images: %w", err)
		}
	}
	var out ebayOfferResponse
	resp, err := req.
		SetBody(ebayOfferRequest{
			SKU:      product.ExternalSKU,
			Title:    product.Title,
			Price:    ebayAmount{Value: price.StringFixed(2), Currency: ebayCurrency},
			Quantity: 1,
			Images:   images,
			Source:   ebayReference{ProductID: product.ID.String()},
		}).
		SetResult(&out).
		Post("/sell/inventory/v1/offer")
	if err := checkResponse(resp, err, "create offer"); err != nil {
		return "", err
	}
	if out.OfferID == "" {
		return "", fmt.Errorf("ebay create offer: empty offer id")
	}
	return out.OfferID, nil
}

func (c *EbayClient) UpdatePrice(ctx context.Context, account *models.StoreAccount, externalID string, price decimal.Decimal) (bool, error) {
	req, err := c.request(ctx, account)
	if err != nil {
		return false, err
	}
	resp, err := req.
		SetBody(map[string]any{"price": ebayAmount{Value: price.StringFixed(2), Currency: ebayCurrency}}).
		Put("/sell/inventory/v1/offer/" + url.PathEscape(externalID))
	if err := checkResponse(resp, err, "update price"); err != nil {
		return false, err
	}
	return true, nil
}

func (c *EbayClient) Withdraw(ctx context.Context, account *models.StoreAccount, externalID string) (bool, error) {
	req, err := c.request(ctx, account)
	if err != nil {
		return false, err
	}
	resp, err := req.Post("/sell/inventory/v1/offer/" + url.PathEscape(externalID) + "/withdraw")
	if err != nil {
		return false, fmt.Errorf("ebay withdraw: %w", err)
	}
	// An offer the marketplace no longer knows is already withdrawn.
	if resp.StatusCode() == http.StatusNotFound {
		return true, nil
	}
	if err := checkResponse(resp, nil, "withdraw"); err != nil {
		return false, err
	}
	return true, nil
}

func checkResponse(resp *resty.Response, err error, op string) error {
	if err != nil {
		return fmt.Errorf("ebay %s: %w", op, err)
	}
	if resp.StatusCode() == http.StatusUnauthorized || resp.StatusCode() == http.StatusForbidden {
		return fmt.Errorf("ebay %s: %w", op, ErrNotAuthorized)
	}
	if resp.IsError() {
		msg := resp.Status()
		if apiErr, ok := resp.Error().(*ebayError); ok && len(apiErr.Errors) > 0 {
			msg = apiErr.Errors[0].Message
		}
		return fmt.Errorf("ebay %s: status %d: %s", op, resp.StatusCode(), msg)
	}
	return nil
}
