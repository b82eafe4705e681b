package shopsync_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shoplytics/analytics_backend/config"
	"github.com/shoplytics/analytics_backend/models"
	"github.com/shoplytics/analytics_backend/shopsync"
	"github.com/shoplytics/analytics_backend/utils"
)

// fakeUpstream serves the platform resource API for the integration tests.
// Shops are routed by access token so several shops can share one server.
type fakeUpstream struct {
	mu       sync.Mutex
	pages    map[string]map[string][]string // token -> resource -> page bodies
	failing  map[string]bool                // token -> respond 500
	queries  map[string][]string            // token/resource -> raw query strings
	requests int
}

func newFakeUpstream() *fakeUpstream {
	return &fakeUpstream{
		pages:   map[string]map[string][]string{},
		failing: map[string]bool{},
		queries: map[string][]string{},
	}
}

func (f *fakeUpstream) setPages(token, resource string, pages ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pages[token] == nil {
		f.pages[token] = map[string][]string{}
	}
	f.pages[token][resource] = pages
}

func (f *fakeUpstream) lastQuery(token, resource string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := token + "/" + resource
	if len(f.queries[key]) == 0 {
		return ""
	}
	return f.queries[key][len(f.queries[key])-1]
}

func (f *fakeUpstream) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.requests++

		token := r.Header.Get("X-Shopify-Access-Token")
		parts := strings.Split(strings.TrimSuffix(r.URL.Path, ".json"), "/")
		resource := parts[len(parts)-1]
		f.queries[token+"/"+resource] = append(f.queries[token+"/"+resource], r.URL.RawQuery)

		if f.failing[token] {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}

		pages := f.pages[token][resource]
		pageIdx := 0
		if v := r.URL.Query().Get("page_info"); v != "" {
			fmt.Sscanf(v, "p%d", &pageIdx)
		}
		if pageIdx >= len(pages) {
			fmt.Fprintf(w, `{"%s": []}`, resource)
			return
		}
		if pageIdx < len(pages)-1 {
			w.Header().Set("Link", fmt.Sprintf(`<https://x/admin/api/2024-10/%s.json?page_info=p%d&limit=250>; rel="next"`, resource, pageIdx+1))
		}
		fmt.Fprint(w, pages[pageIdx])
	}
}

func TestSyncPipelineIntegration(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := context.Background()

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "shoplytics_test")
	t.Setenv("SHOPIFY_RATE_LIMIT_PER_SEC", "10000")

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	models.MigrateTable()

	upstream := newFakeUpstream()
	srv := httptest.NewServer(upstream.handler())
	defer srv.Close()
	t.Setenv("SHOPIFY_API_BASE_URL", srv.URL)

	tenant, err := models.CreateTenant(ctx, &models.NewTenant{Name: "Sync Test Co"})
	if err != nil {
		t.Fatalf("CreateTenant: %v", err)
	}
	ctx = utils.SetTenantIdInContext(ctx, tenant.ID)

	shop, err := models.CreateShop(ctx, &models.NewShop{
		ShopDomain:  "alpha.myshopify.com",
		AccessToken: "tok-alpha",
	})
	if err != nil {
		t.Fatalf("CreateShop: %v", err)
	}

	// Two customer pages (ids 101,102 then 103), one product, one order
	// with three line items.
	upstream.setPages("tok-alpha", "customers",
		`{"customers": [
			{"id": 101, "email": "a@x.test", "first_name": "Ada", "total_spent": "100.00", "orders_count": 2},
			{"id": 102, "email": "b@x.test", "first_name": "Ben"}
		]}`,
		`{"customers": [{"id": 103, "email": "c@x.test", "first_name": "Cyn", "total_spent": "5.25"}]}`,
	)
	upstream.setPages("tok-alpha", "products",
		`{"products": [{"id": 201, "title": "Mug", "status": "active", "vendor": "Acme",
			"variants": [{"id": 1, "price": "12.00"}, {"id": 2, "price": "15.00"}]}]}`,
	)
	upstream.setPages("tok-alpha", "orders",
		`{"orders": [{"id": 301, "customer": {"id": 101}, "currency": "USD", "total_price": "36.00",
			"processed_at": "2026-02-01T10:00:00Z",
			"line_items": [
				{"product_id": 201, "variant_id": 1, "quantity": 1, "price": "12.00", "title": "Mug"},
				{"product_id": 201, "variant_id": 2, "quantity": 1, "price": "15.00", "title": "Mug L"},
				{"quantity": 1, "price": "9.00", "title": "Gift wrap"}
			]}]}`,
	)

	stats, err := shopsync.FullSync(ctx, shop.ID)
	if err != nil {
		t.Fatalf("FullSync: %v", err)
	}
	if stats.Customers != 3 || stats.Products != 1 || stats.Orders != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	db := config.GetDB()
	assertCount := func(model any, where string, args []any, want int64) {
		t.Helper()
		var count int64
		q := db.WithContext(ctx).Model(model)
		if where != "" {
			q = q.Where(where, args...)
		}
		if err := q.Count(&count).Error; err != nil {
			t.Fatalf("count: %v", err)
		}
		if count != want {
			t.Fatalf("count = %d; want %d", count, want)
		}
	}

	assertCount(&models.Customer{}, "shop_id = ?", []any{shop.ID}, 3)
	assertCount(&models.Product{}, "shop_id = ?", []any{shop.ID}, 1)
	assertCount(&models.Order{}, "shop_id = ?", []any{shop.ID}, 1)

	// Idempotency: a second run converges with no duplicates.
	if _, err := shopsync.FullSync(ctx, shop.ID); err != nil {
		t.Fatalf("second FullSync: %v", err)
	}
	assertCount(&models.Customer{}, "shop_id = ?", []any{shop.ID}, 3)
	assertCount(&models.Order{}, "shop_id = ?", []any{shop.ID}, 1)

	order, err := models.GetOrderByNaturalKey(ctx, shop.ID, 301)
	if err != nil || order == nil {
		t.Fatalf("GetOrderByNaturalKey: %v %v", order, err)
	}
	assertCount(&models.OrderLineItem{}, "order_id = ?", []any{order.ID}, 3)
	if order.CustomerId == nil {
		t.Fatal("order customer fk should resolve")
	}

	product, err := models.GetProductByNaturalKey(ctx, shop.ID, 201)
	if err != nil || product == nil {
		t.Fatalf("GetProductByNaturalKey: %v %v", product, err)
	}
	if product.PriceMin == nil || product.PriceMin.String() != "12" {
		t.Fatalf("price_min = %v; want 12", product.PriceMin)
	}
	if product.PriceMax == nil || product.PriceMax.String() != "15" {
		t.Fatalf("price_max = %v; want 15", product.PriceMax)
	}

	// Natural-key convergence and line-item full replacement: upstream
	// changes a customer's email and shrinks the order to one item.
	upstream.setPages("tok-alpha", "customers",
		`{"customers": [{"id": 101, "email": "ada.new@x.test", "first_name": "Ada", "total_spent": "140.00", "orders_count": 3}]}`,
	)
	upstream.setPages("tok-alpha", "orders",
		`{"orders": [{"id": 301, "customer": {"id": 101}, "currency": "USD", "total_price": "12.00",
			"line_items": [{"product_id": 201, "variant_id": 1, "quantity": 1, "price": "12.00", "title": "Mug"}]}]}`,
	)

	if _, err := shopsync.FullSync(ctx, shop.ID); err != nil {
		t.Fatalf("third FullSync: %v", err)
	}

	customer, err := models.GetCustomerByNaturalKey(ctx, shop.ID, 101)
	if err != nil || customer == nil {
		t.Fatalf("GetCustomerByNaturalKey: %v %v", customer, err)
	}
	if customer.Email != "ada.new@x.test" || customer.OrdersCount != 3 {
		t.Fatalf("stale customer fields survived: %+v", customer)
	}
	assertCount(&models.Customer{}, "shop_id = ?", []any{shop.ID}, 3)
	assertCount(&models.OrderLineItem{}, "order_id = ?", []any{order.ID}, 1)

	// Delta query construction: the watermark set by the full runs must
	// appear as updated_at_min; the continuation-free first query carries it.
	refreshed, err := models.GetShopById(ctx, shop.ID)
	if err != nil {
		t.Fatalf("GetShopById: %v", err)
	}
	if refreshed.LastSyncedAt == nil {
		t.Fatal("watermark must be set after successful full sync")
	}
	if _, err := shopsync.DeltaSync(ctx, shop.ID); err != nil {
		t.Fatalf("DeltaSync: %v", err)
	}
	if q := upstream.lastQuery("tok-alpha", "customers"); !strings.Contains(q, "updated_at_min=") {
		t.Fatalf("delta customer query missing updated_at_min: %q", q)
	}
	if q := upstream.lastQuery("tok-alpha", "orders"); !strings.Contains(q, "status=any") {
		t.Fatalf("order query missing status=any: %q", q)
	}

	// A delta run against a shop with no watermark degrades to an unfiltered
	// full fetch: no updated_at_min on the wire.
	fresh, err := models.CreateShop(ctx, &models.NewShop{
		ShopDomain:  "beta.myshopify.com",
		AccessToken: "tok-beta",
	})
	if err != nil {
		t.Fatalf("CreateShop: %v", err)
	}
	if fresh.LastSyncedAt != nil {
		t.Fatal("new shop must start without a watermark")
	}
	if _, err := shopsync.DeltaSync(ctx, fresh.ID); err != nil {
		t.Fatalf("DeltaSync(fresh): %v", err)
	}
	for _, resource := range []string{"customers", "products", "orders"} {
		q := upstream.lastQuery("tok-beta", resource)
		if strings.Contains(q, "updated_at_min") {
			t.Fatalf("unset watermark must not produce updated_at_min on %s: %q", resource, q)
		}
		if !strings.Contains(q, "limit=250") {
			t.Fatalf("%s query missing page size: %q", resource, q)
		}
	}

	// Losing the natural-key insert race converges onto the winner's row
	// instead of failing the run or leaving it stale.
	winner := models.Customer{TenantId: tenant.ID, ShopId: shop.ID, ShopifyId: 9001, Email: "winner@x.test"}
	if err := db.WithContext(ctx).Create(&winner).Error; err != nil {
		t.Fatalf("create winner row: %v", err)
	}
	err = shopsync.CreateCustomerOrConverge(ctx, db,
		models.Customer{TenantId: tenant.ID, ShopId: shop.ID, ShopifyId: 9001, Email: "loser@x.test"},
		map[string]interface{}{"email": "converged@x.test"})
	if err != nil {
		t.Fatalf("CreateCustomerOrConverge: %v", err)
	}
	raced, err := models.GetCustomerByNaturalKey(ctx, shop.ID, 9001)
	if err != nil || raced == nil {
		t.Fatalf("GetCustomerByNaturalKey: %v %v", raced, err)
	}
	if raced.Email != "converged@x.test" {
		t.Fatalf("duplicate insert must fall back to update; email = %q", raced.Email)
	}
	assertCount(&models.Customer{}, "shop_id = ? AND shopify_id = ?", []any{shop.ID, int64(9001)}, 1)

	winningProduct := models.Product{TenantId: tenant.ID, ShopId: shop.ID, ShopifyId: 9050, Title: "Winner", Status: "active"}
	if err := db.WithContext(ctx).Create(&winningProduct).Error; err != nil {
		t.Fatalf("create winning product: %v", err)
	}
	err = shopsync.CreateProductOrConverge(ctx, db,
		models.Product{TenantId: tenant.ID, ShopId: shop.ID, ShopifyId: 9050, Title: "Loser", Status: "draft"},
		map[string]interface{}{"title": "Converged", "status": "draft"})
	if err != nil {
		t.Fatalf("CreateProductOrConverge: %v", err)
	}
	racedProduct, err := models.GetProductByNaturalKey(ctx, shop.ID, 9050)
	if err != nil || racedProduct == nil {
		t.Fatalf("GetProductByNaturalKey: %v %v", racedProduct, err)
	}
	if racedProduct.Title != "Converged" {
		t.Fatalf("duplicate product insert must fall back to update; title = %q", racedProduct.Title)
	}
	assertCount(&models.Product{}, "shop_id = ? AND shopify_id = ?", []any{shop.ID, int64(9050)}, 1)

	winningOrder := models.Order{TenantId: tenant.ID, ShopId: shop.ID, ShopifyId: 9100}
	if err := db.WithContext(ctx).Create(&winningOrder).Error; err != nil {
		t.Fatalf("create winning order: %v", err)
	}
	survivorId, err := shopsync.CreateOrderOrConverge(ctx, db,
		models.Order{TenantId: tenant.ID, ShopId: shop.ID, ShopifyId: 9100},
		map[string]interface{}{"currency": "EUR"})
	if err != nil {
		t.Fatalf("CreateOrderOrConverge: %v", err)
	}
	if survivorId != winningOrder.ID {
		t.Fatalf("converge must return the winner's id %d; got %d", winningOrder.ID, survivorId)
	}
	assertCount(&models.Order{}, "shop_id = ? AND shopify_id = ?", []any{shop.ID, int64(9100)}, 1)
}

func TestScheduledPassFailureIsolation(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := context.Background()

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "shoplytics_test")
	t.Setenv("SHOPIFY_RATE_LIMIT_PER_SEC", "10000")

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	models.MigrateTable()

	upstream := newFakeUpstream()
	srv := httptest.NewServer(upstream.handler())
	defer srv.Close()
	t.Setenv("SHOPIFY_API_BASE_URL", srv.URL)

	tenant, err := models.CreateTenant(ctx, &models.NewTenant{Name: "Isolation Co"})
	if err != nil {
		t.Fatalf("CreateTenant: %v", err)
	}
	ctx = utils.SetTenantIdInContext(ctx, tenant.ID)

	shops := make([]*models.Shop, 0, 3)
	for i, token := range []string{"tok-one", "tok-two", "tok-three"} {
		shop, err := models.CreateShop(ctx, &models.NewShop{
			ShopDomain:  fmt.Sprintf("iso-%d.myshopify.com", i+1),
			AccessToken: token,
		})
		if err != nil {
			t.Fatalf("CreateShop: %v", err)
		}
		shops = append(shops, shop)
		upstream.setPages(token, "customers", fmt.Sprintf(`{"customers": [{"id": %d}]}`, 500+i))
		upstream.setPages(token, "products", `{"products": []}`)
		upstream.setPages(token, "orders", `{"orders": []}`)
	}
	upstream.mu.Lock()
	upstream.failing["tok-two"] = true
	upstream.mu.Unlock()

	scheduler := shopsync.NewScheduler()
	scheduler.RunPass(ctx, models.JobTypeScheduledFull)

	latestJob := func(shopId uint) models.IngestionJob {
		t.Helper()
		jobs, err := models.ListIngestionJobs(ctx, shopId, 1)
		if err != nil || len(jobs) == 0 {
			t.Fatalf("ListIngestionJobs(%d): %v %v", shopId, jobs, err)
		}
		return jobs[0]
	}

	if job := latestJob(shops[0].ID); job.Status != models.JobStatusSuccess {
		t.Fatalf("shop 1 job = %s; want success", job.Status)
	}
	if job := latestJob(shops[2].ID); job.Status != models.JobStatusSuccess {
		t.Fatalf("shop 3 job = %s; want success", job.Status)
	}

	failed := latestJob(shops[1].ID)
	if failed.Status != models.JobStatusFailed {
		t.Fatalf("shop 2 job = %s; want failed", failed.Status)
	}
	if failed.FinishedAt == nil {
		t.Fatal("failed job must carry a finish timestamp")
	}
	var detail map[string]string
	if err := json.Unmarshal(failed.DetailJSON, &detail); err != nil || detail["error"] == "" {
		t.Fatalf("failed job must capture error detail: %s", failed.DetailJSON)
	}
	if job := latestJob(shops[1].ID); job.Type != models.JobTypeScheduledFull {
		t.Fatalf("job type = %s; want %s", job.Type, models.JobTypeScheduledFull)
	}
}

func startRedisContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("analytics-test-redis-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-p", "127.0.0.1:0:6379",
		"redis:7-alpine",
	)
	if err != nil {
		t.Fatalf("start redis container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "6379/tcp")
	if err != nil {
		t.Fatalf("redis docker port: %v", err)
	}
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "redis-cli", "ping")
		if err == nil {
			return name, port
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("redis did not become ready")
	return "", ""
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("analytics-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=shoplytics_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}
