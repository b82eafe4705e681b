package models

import (
	"context"
	"errors"
	"time"

	"github.com/shoplytics/analytics_backend/config"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Product mirrors an upstream platform product. PriceMin/PriceMax are derived
// from the variant list at reconciliation time; both stay null when no variant
// price parses as a number.
type Product struct {
	ID          uint             `gorm:"primary_key" json:"id"`
	TenantId    string           `gorm:"index;size:36;not null" json:"tenant_id"`
	ShopId      uint             `gorm:"uniqueIndex:idx_product_natural_key,priority:1;not null" json:"shop_id"`
	ShopifyId   int64            `gorm:"uniqueIndex:idx_product_natural_key,priority:2;not null" json:"shopify_id"`
	Title       string           `gorm:"size:255" json:"title"`
	Status      string           `gorm:"size:50" json:"status"`
	Vendor      *string          `gorm:"size:255" json:"vendor"`
	ProductType *string          `gorm:"size:255" json:"product_type"`
	PriceMin    *decimal.Decimal `gorm:"type:decimal(20,4)" json:"price_min"`
	PriceMax    *decimal.Decimal `gorm:"type:decimal(20,4)" json:"price_max"`
	CreatedAt   time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

// GetProductByNaturalKey looks up a product by (shopId, externalId).
// Returns (nil, nil) when absent.
func GetProductByNaturalKey(ctx context.Context, shopId uint, shopifyId int64) (*Product, error) {
	var product Product
	db := config.GetDB()
	err := db.WithContext(ctx).
		Where("shop_id = ? AND shopify_id = ?", shopId, shopifyId).
		Take(&product).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &product, nil
}
