// Package picnic talks to the Picnic online supermarket: product search and
// shopping cart manipulation, plus the cart filler that matches recipe
// ingredients to products.
package picnic

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const apiVersion = "15"

// ErrNotAuthenticated is returned when a call is made before Login succeeds.
var ErrNotAuthenticated = errors.New("not authenticated with picnic")

// APIError wraps a failed storefront call.
type APIError struct {
	Op     string
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("picnic %s failed: status %d: %s", e.Op, e.Status, e.Body)
}

// Product is one search result from the storefront.
type Product struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	UnitQuantity string `json:"unit_quantity"`
	DisplayPrice int    `json:"display_price"` // cents
}

// Client is a minimal Picnic storefront API client.
type Client struct {
	username    string
	password    string
	countryCode string
	baseURL     string
	http        *http.Client
	authToken   string
}

// NewClient creates an unauthenticated client; call Login before use.
func NewClient(username, password, countryCode string) *Client {
	if countryCode == "" {
		countryCode = "NL"
	}
	return &Client{
		username:    username,
		password:    password,
		countryCode: countryCode,
		baseURL: fmt.Sprintf("https://storefront.picnic.app/%s/api/%s",
			strings.ToLower(countryCode), apiVersion),
		http: &http.Client{Timeout: 30 * time.Second},
	}
}

// WithBaseURL overrides the storefront endpoint, used by tests.
func (c *Client) WithBaseURL(url string) *Client {
	c.baseURL = url
	return c
}

// Login authenticates and stores the session token. The storefront expects
// an MD5 hex digest of the password, a quirk of the legacy API.
func (c *Client) Login(ctx context.Context) error {
	sum := md5.Sum([]byte(c.password))
	payload := map[string]string{
		"key":       c.username,
		"secret":    hex.EncodeToString(sum[:]),
		"client_id": "1",
	}

	resp, err := c.post(ctx, "/user/login", payload, false)
	if err != nil {
		return fmt.Errorf("picnic login: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{Op: "login", Status: resp.StatusCode, Body: string(body)}
	}

	token := resp.Header.Get("x-picnic-auth")
	if token == "" {
		return fmt.Errorf("picnic login: no auth token in response")
	}
	c.authToken = token
	return nil
}

// Authenticated reports whether Login has succeeded.
func (c *Client) Authenticated() bool {
	return c.authToken != ""
}

// Search queries the storefront and returns a flat product list.
func (c *Client) Search(ctx context.Context, query string) ([]Product, error) {
	if !c.Authenticated() {
		return nil, ErrNotAuthenticated
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/search?search_term="+url.QueryEscape(query), nil)
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("x-picnic-auth", c.authToken)
	req.Header.Set("x-picnic-agent", "30100;1.15.272-15295")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("picnic search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &APIError{Op: "search", Status: resp.StatusCode, Body: string(body)}
	}

	// The storefront groups results; flatten to just the items.
	var groups []struct {
		Items []Product `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&groups); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	var products []Product
	for _, g := range groups {
		products = append(products, g.Items...)
	}
	return products, nil
}

// AddProduct adds count units of a product to the shopping cart.
func (c *Client) AddProduct(ctx context.Context, productID string, count int) error {
	if !c.Authenticated() {
		return ErrNotAuthenticated
	}
	if count < 1 {
		count = 1
	}

	payload := map[string]interface{}{"product_id": productID, "count": count}
	resp, err := c.post(ctx, "/cart/add_product", payload, true)
	if err != nil {
		return fmt.Errorf("picnic add product: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{Op: "add_product", Status: resp.StatusCode, Body: string(body)}
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, payload interface{}, authed bool) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-picnic-agent", "30100;1.15.272-15295")
	if authed {
		req.Header.Set("x-picnic-auth", c.authToken)
	}
	return c.http.Do(req)
}
