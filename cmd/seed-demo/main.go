// seed-demo creates a demo tenant with one shop, a handful of customers,
// products and orders, plus behavioral events, so the dashboard has data
// without running a real sync.
//
// Usage (from backend directory):
//
//	DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... go run ./cmd/seed-demo
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/shoplytics/analytics_backend/config"
	"github.com/shoplytics/analytics_backend/models"
	"github.com/shoplytics/analytics_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	demoTenantName = "Demo Commerce Co"
	demoShopDomain = "demo-store.myshopify.com"
	demoUsername   = "demo@demo-commerce.test"
	demoPassword   = "Dem0Passw0rd!"
)

func main() {
	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}

	models.MigrateTable()

	var existing models.Shop
	err := db.WithContext(utils.SetSkipTenantScopeInContext(ctx, true)).
		Where("shop_domain = ?", demoShopDomain).
		Take(&existing).Error
	if err == nil {
		fmt.Printf("demo shop %q already exists (id=%d); nothing to do\n", demoShopDomain, existing.ID)
		return
	}
	if err != gorm.ErrRecordNotFound {
		fmt.Fprintf(os.Stderr, "failed to lookup demo shop: %v\n", err)
		os.Exit(1)
	}

	tenant, err := models.CreateTenant(ctx, &models.NewTenant{
		Name:        demoTenantName,
		EmailDomain: "demo-commerce.test",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create tenant: %v\n", err)
		os.Exit(1)
	}
	ctx = utils.SetTenantIdInContext(ctx, tenant.ID)

	if _, err := models.CreateUser(ctx, &models.NewUser{
		TenantId: tenant.ID,
		Username: demoUsername,
		Password: demoPassword,
		Role:     models.UserRoleAdmin,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "failed to create user: %v\n", err)
		os.Exit(1)
	}

	shop, err := models.CreateShop(ctx, &models.NewShop{
		ShopDomain:  demoShopDomain,
		AccessToken: "shpat_demo_token",
		Name:        "Demo Store",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create shop: %v\n", err)
		os.Exit(1)
	}

	customers := seedCustomers(ctx, db, tenant.ID, shop.ID)
	products := seedProducts(ctx, db, tenant.ID, shop.ID)
	seedOrders(ctx, db, tenant.ID, shop.ID, customers, products)
	seedEvents(ctx, shop.ID, customers)

	fmt.Printf("seeded demo tenant %q (shop id=%d, login %s / %s)\n",
		demoTenantName, shop.ID, demoUsername, demoPassword)
}

func seedCustomers(ctx context.Context, db *gorm.DB, tenantId string, shopId uint) []models.Customer {
	seed := []models.Customer{
		{ShopifyId: 1001, Email: "alice@example.com", FirstName: "Alice", LastName: "Nguyen", TotalSpent: dec("523.40"), OrdersCount: 5},
		{ShopifyId: 1002, Email: "bob@example.com", FirstName: "Bob", LastName: "Tan", TotalSpent: dec("120.00"), OrdersCount: 2},
		{ShopifyId: 1003, Email: "carol@example.com", FirstName: "Carol", LastName: "Smith", TotalSpent: dec("980.15"), OrdersCount: 9},
	}
	for i := range seed {
		seed[i].TenantId = tenantId
		seed[i].ShopId = shopId
	}
	if err := db.WithContext(ctx).Create(&seed).Error; err != nil {
		fmt.Fprintf(os.Stderr, "failed to seed customers: %v\n", err)
		os.Exit(1)
	}
	return seed
}

func seedProducts(ctx context.Context, db *gorm.DB, tenantId string, shopId uint) []models.Product {
	seed := []models.Product{
		{ShopifyId: 2001, Title: "Canvas Tote", Status: "active", Vendor: strPtr("Demo Supply"), ProductType: strPtr("Bags"), PriceMin: decPtr("18.00"), PriceMax: decPtr("24.00")},
		{ShopifyId: 2002, Title: "Enamel Mug", Status: "active", Vendor: strPtr("Demo Supply"), ProductType: strPtr("Kitchen"), PriceMin: decPtr("12.50"), PriceMax: decPtr("12.50")},
		{ShopifyId: 2003, Title: "Wool Beanie", Status: "draft", Vendor: strPtr("Northward"), ProductType: strPtr("Apparel"), PriceMin: decPtr("22.00"), PriceMax: decPtr("30.00")},
	}
	for i := range seed {
		seed[i].TenantId = tenantId
		seed[i].ShopId = shopId
	}
	if err := db.WithContext(ctx).Create(&seed).Error; err != nil {
		fmt.Fprintf(os.Stderr, "failed to seed products: %v\n", err)
		os.Exit(1)
	}
	return seed
}

func seedOrders(ctx context.Context, db *gorm.DB, tenantId string, shopId uint, customers []models.Customer, products []models.Product) {
	now := time.Now()
	for i := 0; i < 6; i++ {
		customer := customers[i%len(customers)]
		product := products[i%len(products)]
		processedAt := now.Add(-time.Duration(i*30) * time.Hour)

		order := models.Order{
			TenantId:    tenantId,
			ShopId:      shopId,
			ShopifyId:   int64(3000 + i),
			CustomerId:  &customer.ID,
			Currency:    strPtr("USD"),
			TotalPrice:  dec(fmt.Sprintf("%d.50", 40+i*10)),
			ProcessedAt: &processedAt,
		}
		if err := db.WithContext(ctx).Create(&order).Error; err != nil {
			fmt.Fprintf(os.Stderr, "failed to seed order: %v\n", err)
			os.Exit(1)
		}

		items := []models.OrderLineItem{
			{ProductId: &product.ID, Quantity: 1 + i%2, Price: dec("20.00"), Title: strPtr(product.Title)},
		}
		if err := models.ReplaceOrderLineItems(ctx, db, order.ID, items); err != nil {
			fmt.Fprintf(os.Stderr, "failed to seed line items: %v\n", err)
			os.Exit(1)
		}
	}
}

func seedEvents(ctx context.Context, shopId uint, customers []models.Customer) {
	eventTypes := []string{
		models.EventTypeProductViewed,
		models.EventTypeProductViewed,
		models.EventTypeCheckoutStarted,
		models.EventTypeOrderCompleted,
		models.EventTypeCartAbandoned,
	}
	for i, eventType := range eventTypes {
		customer := customers[i%len(customers)]
		if _, err := models.CreateCustomEvent(ctx, shopId, eventType, &customer.ID, map[string]any{
			"source": "seed-demo",
		}); err != nil {
			fmt.Fprintf(os.Stderr, "failed to seed event: %v\n", err)
			os.Exit(1)
		}
	}
}

func dec(value string) decimal.Decimal {
	d, _ := decimal.NewFromString(value)
	return d
}

func decPtr(value string) *decimal.Decimal {
	d := dec(value)
	return &d
}

func strPtr(value string) *string {
	return &value
}
