package suppliers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
)

const userAgent = "dropship-central-tracker/1.0"

// FeedClient reads product snapshots from a supplier JSON feed at {base}/products/{sku}.
type FeedClient struct {
	client *resty.Client
}

type feedProduct struct {
	Title        string          `json:"title"`
	Description  *string         `json:"description"`
	Price        decimal.Decimal `json:"price"`
	Stock        string          `json:"stock"`
	Rating       *float64        `json:"rating"`
	ReviewsCount int             `json:"reviews_count"`
	Images       []string        `json:"images"`
	URL          string          `json:"url"`
}

// NewFeedClient builds a feed client for baseURL.
func NewFeedClient(baseURL string, timeout time.Duration) *FeedClient {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("User-Agent", userAgent).
		SetHeader("Accept", "application/json")
	return &FeedClient{client: client}
}

func (c *FeedClient) Fetch(ctx context.Context, sku string) (Snapshot, error) {
	if strings.TrimSpace(sku) == "" {
		return Snapshot{}, fmt.Errorf("%w: sku is required", ErrScraping)
	}

	var body feedProduct
	resp, err := c.client.R().
		SetContext(ctx).
		SetResult(&body).
		Get("/products/" + url.PathEscape(sku))
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: %s: %v", ErrScraping, sku, err)
	}
	switch {
	case resp.StatusCode() == http.StatusNotFound:
		return Snapshot{}, fmt.Errorf("%w: %s", ErrProductNotFound, sku)
	case resp.IsError():
		return Snapshot{}, fmt.Errorf("%w: %s: status %d", ErrScraping, sku, resp.StatusCode())
	}
	if body.Price.IsNegative() {
		return Snapshot{}, fmt.Errorf("%w: %s: negative price", ErrScraping, sku)
	}
	if strings.TrimSpace(body.Stock) == "" {
		return Snapshot{}, fmt.Errorf("%w: %s: missing stock", ErrScraping, sku)
	}

	return Snapshot{
		Price:        body.Price,
		Stock:        body.Stock,
		Title:        body.Title,
		Description:  body.Description,
		Rating:       body.Rating,
		ReviewsCount: body.ReviewsCount,
		Images:       body.Images,
		URL:          body.URL,
	}, nil
}
