package shopsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shoplytics/analytics_backend/models"
)

// UpstreamError is a non-success HTTP response from the commerce platform.
// No retry happens at this layer; the scheduler cadence is the retry mechanism.
type UpstreamError struct {
	Path       string
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream api error %d on %s: %s", e.StatusCode, e.Path, e.Body)
}

type shopifyClient struct {
	baseURL     string
	accessToken string
	apiVersion  string
	http        *http.Client
	limiter     <-chan time.Time
}

func newShopifyClient(shop *models.Shop) (*shopifyClient, error) {
	if strings.TrimSpace(shop.AccessToken) == "" {
		return nil, errors.New("shop access token is empty")
	}

	baseURL := strings.TrimSpace(os.Getenv("SHOPIFY_API_BASE_URL"))
	if baseURL == "" {
		baseURL = "https://" + strings.TrimSpace(shop.ShopDomain)
	}
	apiVersion := strings.TrimSpace(os.Getenv("SHOPIFY_API_VERSION"))
	if apiVersion == "" {
		apiVersion = "2024-10"
	}
	rateLimitPerSec := int64(2)
	if v := strings.TrimSpace(os.Getenv("SHOPIFY_RATE_LIMIT_PER_SEC")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			rateLimitPerSec = n
		}
	}
	interval := time.Second / time.Duration(rateLimitPerSec)

	return &shopifyClient{
		baseURL:     strings.TrimRight(baseURL, "/"),
		accessToken: shop.AccessToken,
		apiVersion:  apiVersion,
		http:        &http.Client{Timeout: 30 * time.Second},
		limiter:     time.Tick(interval),
	}, nil
}

// getPage fetches one page of a resource collection. Returns the records under
// the resource's envelope key plus the raw Link header for the paginator.
func (c *shopifyClient) getPage(ctx context.Context, resource string, params url.Values) ([]json.RawMessage, string, error) {
	<-c.limiter
	path := "/admin/api/" + c.apiVersion + "/" + resource + ".json"
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint = endpoint + "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("X-Shopify-Access-Token", c.accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", &UpstreamError{
			Path:       path,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
		}
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, "", err
	}

	var records []json.RawMessage
	if raw, ok := envelope[resource]; ok {
		if err := json.Unmarshal(raw, &records); err != nil {
			return nil, "", err
		}
	}
	return records, resp.Header.Get("Link"), nil
}
