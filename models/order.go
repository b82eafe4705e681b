package models

import (
	"context"
	"errors"
	"time"

	"github.com/shoplytics/analytics_backend/config"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Order mirrors an upstream platform order. CustomerId is nullable: the
// referenced customer may not exist locally (or at all).
type Order struct {
	ID            uint             `gorm:"primary_key" json:"id"`
	TenantId      string           `gorm:"index;size:36;not null" json:"tenant_id"`
	ShopId        uint             `gorm:"uniqueIndex:idx_order_natural_key,priority:1;not null" json:"shop_id"`
	ShopifyId     int64            `gorm:"uniqueIndex:idx_order_natural_key,priority:2;not null" json:"shopify_id"`
	CustomerId    *uint            `gorm:"index" json:"customer_id"`
	Currency      *string          `gorm:"size:10" json:"currency"`
	TotalPrice    decimal.Decimal  `gorm:"type:decimal(20,4);default:0" json:"total_price"`
	SubtotalPrice *decimal.Decimal `gorm:"type:decimal(20,4)" json:"subtotal_price"`
	TotalTax      *decimal.Decimal `gorm:"type:decimal(20,4)" json:"total_tax"`
	TotalDiscount *decimal.Decimal `gorm:"type:decimal(20,4)" json:"total_discount"`
	ProcessedAt   *time.Time       `gorm:"index" json:"processed_at"`
	CreatedAt     time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

// OrderLineItem is owned exclusively by one Order. The set is replaced
// wholesale on every re-sync of the order; stale items never survive.
type OrderLineItem struct {
	ID        uint             `gorm:"primary_key" json:"id"`
	OrderId   uint             `gorm:"index;not null" json:"order_id"`
	ProductId *uint            `gorm:"index" json:"product_id"`
	VariantId *int64           `json:"variant_id"`
	Quantity  int              `gorm:"not null;default:0" json:"quantity"`
	Price     decimal.Decimal  `gorm:"type:decimal(20,4);default:0" json:"price"`
	Title     *string          `gorm:"size:255" json:"title"`
	CreatedAt time.Time        `gorm:"autoCreateTime" json:"created_at"`
}

// GetOrderByNaturalKey looks up an order by (shopId, externalId).
// Returns (nil, nil) when absent.
func GetOrderByNaturalKey(ctx context.Context, shopId uint, shopifyId int64) (*Order, error) {
	var order Order
	db := config.GetDB()
	err := db.WithContext(ctx).
		Where("shop_id = ? AND shopify_id = ?", shopId, shopifyId).
		Take(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

// ReplaceOrderLineItems deletes every line item owned by the order and
// inserts the current upstream set.
func ReplaceOrderLineItems(ctx context.Context, db *gorm.DB, orderId uint, items []OrderLineItem) error {
	if err := db.WithContext(ctx).Where("order_id = ?", orderId).Delete(&OrderLineItem{}).Error; err != nil {
		return err
	}
	for i := range items {
		items[i].OrderId = orderId
	}
	if len(items) == 0 {
		return nil
	}
	return db.WithContext(ctx).Create(&items).Error
}
