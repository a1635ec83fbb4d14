package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"github.com/andreasstove999/ecommerce-system/cart-reminder-service-go/internal/cart"
	"github.com/andreasstove999/ecommerce-system/cart-reminder-service-go/internal/http/middleware"
)

// Client resolves prices from the catalog service over HTTP.
type Client struct {
	BaseURL *url.URL
	HTTP    *http.Client
}

func NewClient(baseURL string, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid catalog base url %q: %w", baseURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid catalog base url %q: scheme and host required", baseURL)
	}
	return &Client{BaseURL: u, HTTP: &http.Client{Timeout: timeout}}, nil
}

type productResponse struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}

func (c *Client) Product(ctx context.Context, productID string) (Product, error) {
	rel := &url.URL{Path: "/api/catalog/products/" + url.PathEscape(productID)}
	u := c.BaseURL.ResolveReference(rel)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Product{}, err
	}
	req.Header.Set("Accept", "application/json")
	if cid := middleware.GetCorrelationID(ctx); cid != "" {
		req.Header.Set(middleware.HeaderCorrelationID, cid)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return Product{}, fmt.Errorf("catalog request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		_, _ = io.Copy(io.Discard, resp.Body)
		return Product{}, cart.ErrProductNotFound
	case resp.StatusCode != http.StatusOK:
		_, _ = io.Copy(io.Discard, resp.Body)
		return Product{}, fmt.Errorf("catalog responded %d for product %s", resp.StatusCode, productID)
	}

	var body productResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Product{}, fmt.Errorf("decode catalog product: %w", err)
	}
	return Product{ID: body.ID, Name: body.Name, Price: body.Price}, nil
}

// Price implements cart.Catalog.
func (c *Client) Price(ctx context.Context, productID string) (decimal.Decimal, error) {
	p, err := c.Product(ctx, productID)
	if err != nil {
		return decimal.Zero, err
	}
	return p.Price, nil
}
