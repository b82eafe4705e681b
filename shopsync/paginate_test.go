package shopsync

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/shoplytics/analytics_backend/models"
)

func TestParseNextPageInfo(t *testing.T) {
	cases := []struct {
		name   string
		header string
		want   string
	}{
		{
			name:   "next only",
			header: `<https://shop.example.com/admin/api/2024-10/customers.json?page_info=abc123&limit=250>; rel="next"`,
			want:   "abc123",
		},
		{
			name: "previous and next",
			header: `<https://shop.example.com/admin/api/2024-10/customers.json?page_info=prev1&limit=250>; rel="previous", ` +
				`<https://shop.example.com/admin/api/2024-10/customers.json?page_info=next2&limit=250>; rel="next"`,
			want: "next2",
		},
		{
			name:   "previous only",
			header: `<https://shop.example.com/admin/api/2024-10/customers.json?page_info=prev1&limit=250>; rel="previous"`,
			want:   "",
		},
		{
			name:   "empty header",
			header: "",
			want:   "",
		},
		{
			name:   "malformed url",
			header: `<://not a url>; rel="next"`,
			want:   "",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := parseNextPageInfo(tc.header); got != tc.want {
				t.Fatalf("parseNextPageInfo(%q) = %q; want %q", tc.header, got, tc.want)
			}
		})
	}
}

func newTestClient(t *testing.T, serverURL string) *shopifyClient {
	t.Helper()
	t.Setenv("SHOPIFY_API_BASE_URL", serverURL)
	t.Setenv("SHOPIFY_RATE_LIMIT_PER_SEC", "10000")
	shop := &models.Shop{ShopDomain: "test.myshopify.com", AccessToken: "shpat_test"}
	client, err := newShopifyClient(shop)
	if err != nil {
		t.Fatalf("newShopifyClient: %v", err)
	}
	return client
}

func TestFetchAllPagesTermination(t *testing.T) {
	const pages = 3
	const perPage = 4
	calls := 0

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		page := calls
		records := make([]map[string]any, 0, perPage)
		for i := 0; i < perPage; i++ {
			records = append(records, map[string]any{"id": (page-1)*perPage + i + 1})
		}
		if page < pages {
			w.Header().Set("Link", fmt.Sprintf(`<http://%s/admin/api/2024-10/customers.json?page_info=page%d&limit=250>; rel="next"`, r.Host, page+1))
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"customers": records})
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	records, err := fetchAllPages(context.Background(), client, "customers", url.Values{})
	if err != nil {
		t.Fatalf("fetchAllPages: %v", err)
	}
	if calls != pages {
		t.Fatalf("expected %d client calls; got %d", pages, calls)
	}
	if len(records) != pages*perPage {
		t.Fatalf("expected %d records; got %d", pages*perPage, len(records))
	}
}

func TestFetchAllPagesOrderAndContinuationQuery(t *testing.T) {
	var firstQuery, secondQuery url.Values

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page_info") == "" {
			firstQuery = r.URL.Query()
			w.Header().Set("Link", `<https://x/admin/api/2024-10/customers.json?page_info=tok2&limit=250>; rel="next"`)
			_ = json.NewEncoder(w).Encode(map[string]any{"customers": []map[string]any{{"id": 1}, {"id": 2}}})
			return
		}
		secondQuery = r.URL.Query()
		_ = json.NewEncoder(w).Encode(map[string]any{"customers": []map[string]any{{"id": 3}}})
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	filters := url.Values{}
	filters.Set("updated_at_min", "2026-01-01T00:00:00Z")
	records, err := fetchAllPages(context.Background(), client, "customers", filters)
	if err != nil {
		t.Fatalf("fetchAllPages: %v", err)
	}

	if len(records) != 3 {
		t.Fatalf("expected 3 records; got %d", len(records))
	}
	for i, want := range []int64{1, 2, 3} {
		var rec struct {
			ID int64 `json:"id"`
		}
		if err := json.Unmarshal(records[i], &rec); err != nil {
			t.Fatalf("decode record %d: %v", i, err)
		}
		if rec.ID != want {
			t.Fatalf("record %d: expected id %d; got %d", i, want, rec.ID)
		}
	}

	if firstQuery.Get("updated_at_min") != "2026-01-01T00:00:00Z" {
		t.Fatalf("first request missing updated_at_min filter: %v", firstQuery)
	}
	if firstQuery.Get("limit") != "250" {
		t.Fatalf("first request missing limit=250: %v", firstQuery)
	}
	if secondQuery.Get("page_info") != "tok2" {
		t.Fatalf("continuation request missing page_info: %v", secondQuery)
	}
	if secondQuery.Get("updated_at_min") != "" {
		t.Fatalf("continuation request must not carry filters: %v", secondQuery)
	}
}

func TestGetPageUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "too many requests", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	_, _, err := client.getPage(context.Background(), "orders", url.Values{})
	if err == nil {
		t.Fatal("expected error for non-2xx status")
	}
	upstreamErr, ok := err.(*UpstreamError)
	if !ok {
		t.Fatalf("expected *UpstreamError; got %T", err)
	}
	if upstreamErr.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected status 429; got %d", upstreamErr.StatusCode)
	}
	if upstreamErr.Path != "/admin/api/2024-10/orders.json" {
		t.Fatalf("unexpected path in error: %q", upstreamErr.Path)
	}
}

func TestGetPageSendsAccessTokenHeader(t *testing.T) {
	var gotToken string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.Header.Get("X-Shopify-Access-Token")
		_ = json.NewEncoder(w).Encode(map[string]any{"customers": []any{}})
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	if _, _, err := client.getPage(context.Background(), "customers", url.Values{}); err != nil {
		t.Fatalf("getPage: %v", err)
	}
	if gotToken != "shpat_test" {
		t.Fatalf("expected access token header; got %q", gotToken)
	}
}

func TestNewShopifyClientRequiresToken(t *testing.T) {
	if _, err := newShopifyClient(&models.Shop{ShopDomain: "x.myshopify.com"}); err == nil {
		t.Fatal("expected error for empty access token")
	}
}
