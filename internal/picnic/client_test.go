package picnic

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient("user@example.com", "geheim", "NL").WithBaseURL(srv.URL)
}

func TestLogin(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/user/login" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var payload map[string]string
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode login payload: %v", err)
		}
		sum := md5.Sum([]byte("geheim"))
		if payload["secret"] != hex.EncodeToString(sum[:]) {
			t.Errorf("secret = %q, want md5 hex of the password", payload["secret"])
		}
		w.Header().Set("x-picnic-auth", "token-123")
	}))

	if c.Authenticated() {
		t.Fatal("authenticated before login")
	}
	if err := c.Login(context.Background()); err != nil {
		t.Fatalf("login: %v", err)
	}
	if !c.Authenticated() {
		t.Error("not authenticated after login")
	}
}

func TestLoginRejected(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))

	err := c.Login(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnauthorized {
		t.Fatalf("err = %v, want APIError with status 401", err)
	}
	if c.Authenticated() {
		t.Error("authenticated after rejected login")
	}
}

func TestSearchFlattensGroups(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("search_term"); got != "volle melk" {
			t.Errorf("search_term = %q", got)
		}
		if r.Header.Get("x-picnic-auth") != "token-123" {
			t.Error("missing auth header")
		}
		w.Write([]byte(`[
			{"items": [{"id": "p1", "name": "Volle melk", "unit_quantity": "1 l", "display_price": 129}]},
			{"items": [{"id": "p2", "name": "Halfvolle melk", "unit_quantity": "1 l", "display_price": 119}]}
		]`))
	}))
	c.authToken = "token-123"

	products, err := c.Search(context.Background(), "volle melk")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(products) != 2 {
		t.Fatalf("got %d products, want 2", len(products))
	}
	if products[0].ID != "p1" || products[0].DisplayPrice != 129 {
		t.Errorf("first product = %+v", products[0])
	}
}

func TestSearchRequiresLogin(t *testing.T) {
	t.Parallel()

	c := NewClient("user@example.com", "geheim", "NL")
	if _, err := c.Search(context.Background(), "melk"); !errors.Is(err, ErrNotAuthenticated) {
		t.Errorf("err = %v, want ErrNotAuthenticated", err)
	}
	if err := c.AddProduct(context.Background(), "p1", 1); !errors.Is(err, ErrNotAuthenticated) {
		t.Errorf("err = %v, want ErrNotAuthenticated", err)
	}
}

func TestAddProduct(t *testing.T) {
	t.Parallel()

	var payload map[string]interface{}
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/cart/add_product" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
	}))
	c.authToken = "token-123"

	// A zero count is clamped to one.
	if err := c.AddProduct(context.Background(), "p1", 0); err != nil {
		t.Fatalf("add product: %v", err)
	}
	if payload["product_id"] != "p1" || payload["count"] != float64(1) {
		t.Errorf("payload = %+v", payload)
	}
}
