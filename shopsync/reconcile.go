package shopsync

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/shoplytics/analytics_backend/config"
	"github.com/shoplytics/analytics_backend/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var errMissingExternalId = errors.New("record has no external id")

// Wire-format records as the upstream returns them. Optional fields are
// pointers or json.Number so absence survives decoding; default substitution
// happens in one place per reconciler, not scattered through presence checks.

type shopifyCustomer struct {
	ID          int64       `json:"id"`
	Email       string      `json:"email"`
	FirstName   string      `json:"first_name"`
	LastName    string      `json:"last_name"`
	TotalSpent  json.Number `json:"total_spent"`
	OrdersCount *int        `json:"orders_count"`
}

type shopifyProduct struct {
	ID          int64            `json:"id"`
	Title       string           `json:"title"`
	Status      string           `json:"status"`
	Vendor      string           `json:"vendor"`
	ProductType string           `json:"product_type"`
	Variants    []shopifyVariant `json:"variants"`
}

type shopifyVariant struct {
	ID    int64       `json:"id"`
	Price json.Number `json:"price"`
}

type shopifyOrder struct {
	ID             int64                 `json:"id"`
	Customer       *shopifyOrderCustomer `json:"customer"`
	Currency       string                `json:"currency"`
	TotalPrice     json.Number           `json:"total_price"`
	SubtotalPrice  json.Number           `json:"subtotal_price"`
	TotalTax       json.Number           `json:"total_tax"`
	TotalDiscounts json.Number           `json:"total_discounts"`
	ProcessedAt    string                `json:"processed_at"`
	LineItems      []shopifyLineItem     `json:"line_items"`
}

type shopifyOrderCustomer struct {
	ID int64 `json:"id"`
}

type shopifyLineItem struct {
	ProductId *int64      `json:"product_id"`
	VariantId *int64      `json:"variant_id"`
	Quantity  int         `json:"quantity"`
	Price     json.Number `json:"price"`
	Title     string      `json:"title"`
}

// ReconcileCustomers upserts each record by (shopId, externalId). Malformed
// records are logged and skipped; storage errors abort the run.
func ReconcileCustomers(ctx context.Context, shop *models.Shop, records []json.RawMessage) (int, error) {
	db := config.GetDB()
	logger := config.GetLogger()
	total := 0

	for _, raw := range records {
		var cust shopifyCustomer
		if err := json.Unmarshal(raw, &cust); err != nil {
			config.LogError(logger, "shopsync", "ReconcileCustomers", "decode", string(raw), err)
			continue
		}
		if cust.ID == 0 {
			config.LogError(logger, "shopsync", "ReconcileCustomers", "skip record", string(raw), errMissingExternalId)
			continue
		}

		values := map[string]interface{}{
			"email":        strings.TrimSpace(cust.Email),
			"first_name":   strings.TrimSpace(cust.FirstName),
			"last_name":    strings.TrimSpace(cust.LastName),
			"total_spent":  decimalFromNumber(cust.TotalSpent),
			"orders_count": intOrZero(cust.OrdersCount),
		}

		existing, err := models.GetCustomerByNaturalKey(ctx, shop.ID, cust.ID)
		if err != nil {
			return total, err
		}
		if existing != nil {
			if err := db.WithContext(ctx).Model(existing).Updates(values).Error; err != nil {
				return total, err
			}
		} else {
			customer := models.Customer{
				TenantId:    shop.TenantId,
				ShopId:      shop.ID,
				ShopifyId:   cust.ID,
				Email:       strings.TrimSpace(cust.Email),
				FirstName:   strings.TrimSpace(cust.FirstName),
				LastName:    strings.TrimSpace(cust.LastName),
				TotalSpent:  decimalFromNumber(cust.TotalSpent),
				OrdersCount: intOrZero(cust.OrdersCount),
			}
			if err := createCustomerOrConverge(ctx, db, customer, values); err != nil {
				return total, err
			}
		}
		total++
	}
	return total, nil
}

func ReconcileProducts(ctx context.Context, shop *models.Shop, records []json.RawMessage) (int, error) {
	db := config.GetDB()
	logger := config.GetLogger()
	total := 0

	for _, raw := range records {
		var prod shopifyProduct
		if err := json.Unmarshal(raw, &prod); err != nil {
			config.LogError(logger, "shopsync", "ReconcileProducts", "decode", string(raw), err)
			continue
		}
		if prod.ID == 0 {
			config.LogError(logger, "shopsync", "ReconcileProducts", "skip record", string(raw), errMissingExternalId)
			continue
		}

		priceMin, priceMax := derivePriceRange(prod.Variants)
		values := map[string]interface{}{
			"title":        strings.TrimSpace(prod.Title),
			"status":       strings.TrimSpace(prod.Status),
			"vendor":       strPtrOrNil(prod.Vendor),
			"product_type": strPtrOrNil(prod.ProductType),
			"price_min":    priceMin,
			"price_max":    priceMax,
		}

		existing, err := models.GetProductByNaturalKey(ctx, shop.ID, prod.ID)
		if err != nil {
			return total, err
		}
		if existing != nil {
			if err := db.WithContext(ctx).Model(existing).Updates(values).Error; err != nil {
				return total, err
			}
		} else {
			product := models.Product{
				TenantId:    shop.TenantId,
				ShopId:      shop.ID,
				ShopifyId:   prod.ID,
				Title:       strings.TrimSpace(prod.Title),
				Status:      strings.TrimSpace(prod.Status),
				Vendor:      strPtrOrNil(prod.Vendor),
				ProductType: strPtrOrNil(prod.ProductType),
				PriceMin:    priceMin,
				PriceMax:    priceMax,
			}
			if err := createProductOrConverge(ctx, db, product, values); err != nil {
				return total, err
			}
		}
		total++
	}
	return total, nil
}

// ReconcileOrders runs after customers and products: it resolves both foreign
// keys by natural-key lookup within the same shop, then fully replaces the
// order's line-item set with the upstream snapshot.
func ReconcileOrders(ctx context.Context, shop *models.Shop, records []json.RawMessage) (int, error) {
	db := config.GetDB()
	logger := config.GetLogger()
	total := 0

	for _, raw := range records {
		var ord shopifyOrder
		if err := json.Unmarshal(raw, &ord); err != nil {
			config.LogError(logger, "shopsync", "ReconcileOrders", "decode", string(raw), err)
			continue
		}
		if ord.ID == 0 {
			config.LogError(logger, "shopsync", "ReconcileOrders", "skip record", string(raw), errMissingExternalId)
			continue
		}

		customerId, err := resolveOrderCustomer(ctx, shop, ord.Customer)
		if err != nil {
			return total, err
		}

		values := map[string]interface{}{
			"customer_id":    customerId,
			"currency":       strPtrOrNil(ord.Currency),
			"total_price":    decimalFromNumber(ord.TotalPrice),
			"subtotal_price": decimalPtrFromNumber(ord.SubtotalPrice),
			"total_tax":      decimalPtrFromNumber(ord.TotalTax),
			"total_discount": decimalPtrFromNumber(ord.TotalDiscounts),
			"processed_at":   parseTimeOrNil(ord.ProcessedAt),
		}

		var orderId uint
		existing, err := models.GetOrderByNaturalKey(ctx, shop.ID, ord.ID)
		if err != nil {
			return total, err
		}
		if existing != nil {
			if err := db.WithContext(ctx).Model(existing).Updates(values).Error; err != nil {
				return total, err
			}
			orderId = existing.ID
		} else {
			order := models.Order{
				TenantId:      shop.TenantId,
				ShopId:        shop.ID,
				ShopifyId:     ord.ID,
				CustomerId:    customerId,
				Currency:      strPtrOrNil(ord.Currency),
				TotalPrice:    decimalFromNumber(ord.TotalPrice),
				SubtotalPrice: decimalPtrFromNumber(ord.SubtotalPrice),
				TotalTax:      decimalPtrFromNumber(ord.TotalTax),
				TotalDiscount: decimalPtrFromNumber(ord.TotalDiscounts),
				ProcessedAt:   parseTimeOrNil(ord.ProcessedAt),
			}
			orderId, err = createOrderOrConverge(ctx, db, order, values)
			if err != nil {
				return total, err
			}
		}

		items, err := buildLineItems(ctx, shop, ord.LineItems)
		if err != nil {
			return total, err
		}
		if err := models.ReplaceOrderLineItems(ctx, db, orderId, items); err != nil {
			return total, err
		}
		total++
	}
	return total, nil
}

// The create-or-converge helpers handle the race between the sync pass and the
// webhook path: two writers can both miss the natural-key lookup and insert.
// The loser's insert hits the unique index; it retries the lookup and applies
// its field values to the winner's row so the run still converges.

func createCustomerOrConverge(ctx context.Context, db *gorm.DB, record models.Customer, values map[string]interface{}) error {
	if err := db.WithContext(ctx).Create(&record).Error; err != nil {
		if !models.IsDuplicateEntry(err) {
			return err
		}
		winner, lookupErr := models.GetCustomerByNaturalKey(ctx, record.ShopId, record.ShopifyId)
		if lookupErr != nil {
			return lookupErr
		}
		if winner == nil {
			return err
		}
		return db.WithContext(ctx).Model(winner).Updates(values).Error
	}
	return nil
}

func createProductOrConverge(ctx context.Context, db *gorm.DB, record models.Product, values map[string]interface{}) error {
	if err := db.WithContext(ctx).Create(&record).Error; err != nil {
		if !models.IsDuplicateEntry(err) {
			return err
		}
		winner, lookupErr := models.GetProductByNaturalKey(ctx, record.ShopId, record.ShopifyId)
		if lookupErr != nil {
			return lookupErr
		}
		if winner == nil {
			return err
		}
		return db.WithContext(ctx).Model(winner).Updates(values).Error
	}
	return nil
}

// createOrderOrConverge returns the surviving row's id so the caller can
// replace its line items whichever writer won.
func createOrderOrConverge(ctx context.Context, db *gorm.DB, record models.Order, values map[string]interface{}) (uint, error) {
	if err := db.WithContext(ctx).Create(&record).Error; err != nil {
		if !models.IsDuplicateEntry(err) {
			return 0, err
		}
		winner, lookupErr := models.GetOrderByNaturalKey(ctx, record.ShopId, record.ShopifyId)
		if lookupErr != nil {
			return 0, lookupErr
		}
		if winner == nil {
			return 0, err
		}
		if err := db.WithContext(ctx).Model(winner).Updates(values).Error; err != nil {
			return 0, err
		}
		return winner.ID, nil
	}
	return record.ID, nil
}

func resolveOrderCustomer(ctx context.Context, shop *models.Shop, ref *shopifyOrderCustomer) (*uint, error) {
	if ref == nil || ref.ID == 0 {
		return nil, nil
	}
	customer, err := models.GetCustomerByNaturalKey(ctx, shop.ID, ref.ID)
	if err != nil {
		return nil, err
	}
	if customer == nil {
		return nil, nil
	}
	return &customer.ID, nil
}

func buildLineItems(ctx context.Context, shop *models.Shop, wireItems []shopifyLineItem) ([]models.OrderLineItem, error) {
	items := make([]models.OrderLineItem, 0, len(wireItems))
	for _, wire := range wireItems {
		var productId *uint
		if wire.ProductId != nil && *wire.ProductId != 0 {
			product, err := models.GetProductByNaturalKey(ctx, shop.ID, *wire.ProductId)
			if err != nil {
				return nil, err
			}
			if product != nil {
				productId = &product.ID
			}
		}
		items = append(items, models.OrderLineItem{
			ProductId: productId,
			VariantId: wire.VariantId,
			Quantity:  wire.Quantity,
			Price:     decimalFromNumber(wire.Price),
			Title:     strPtrOrNil(wire.Title),
		})
	}
	return items, nil
}

// derivePriceRange computes min/max over the variant prices that parse as
// numbers. Both come back nil when nothing parses.
func derivePriceRange(variants []shopifyVariant) (*decimal.Decimal, *decimal.Decimal) {
	var priceMin, priceMax *decimal.Decimal
	for _, variant := range variants {
		if variant.Price.String() == "" {
			continue
		}
		price, err := decimal.NewFromString(variant.Price.String())
		if err != nil {
			continue
		}
		p := price
		if priceMin == nil || p.LessThan(*priceMin) {
			priceMin = &p
		}
		if priceMax == nil || p.GreaterThan(*priceMax) {
			priceMax = &p
		}
	}
	return priceMin, priceMax
}

func decimalFromNumber(num json.Number) decimal.Decimal {
	if num.String() == "" {
		return decimal.Zero
	}
	if d, err := decimal.NewFromString(num.String()); err == nil {
		return d
	}
	return decimal.Zero
}

func decimalPtrFromNumber(num json.Number) *decimal.Decimal {
	if num.String() == "" {
		return nil
	}
	if d, err := decimal.NewFromString(num.String()); err == nil {
		return &d
	}
	return nil
}

func strPtrOrNil(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}

func intOrZero(value *int) int {
	if value == nil {
		return 0
	}
	return *value
}

func parseTimeOrNil(value string) *time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return &t
	}
	return nil
}
