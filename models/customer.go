package models

import (
	"context"
	"errors"
	"time"

	"github.com/shoplytics/analytics_backend/config"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Customer mirrors an upstream platform customer. The (ShopId, ShopifyId)
// pair is the natural key: repeated syncs must converge on it, never on the
// internal id.
type Customer struct {
	ID              uint            `gorm:"primary_key" json:"id"`
	TenantId        string          `gorm:"index;size:36;not null" json:"tenant_id"`
	ShopId          uint            `gorm:"uniqueIndex:idx_customer_natural_key,priority:1;not null" json:"shop_id"`
	ShopifyId       int64           `gorm:"uniqueIndex:idx_customer_natural_key,priority:2;not null" json:"shopify_id"`
	Email           string          `gorm:"size:255" json:"email"`
	FirstName       string          `gorm:"size:100" json:"first_name"`
	LastName        string          `gorm:"size:100" json:"last_name"`
	TotalSpent      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total_spent"`
	OrdersCount     int             `gorm:"default:0" json:"orders_count"`
	EngagementScore float64         `gorm:"default:0" json:"engagement_score"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// GetCustomerByNaturalKey looks up a customer by (shopId, externalId).
// Returns (nil, nil) when absent; order reconciliation treats that as an
// unresolvable customer reference.
func GetCustomerByNaturalKey(ctx context.Context, shopId uint, shopifyId int64) (*Customer, error) {
	var customer Customer
	db := config.GetDB()
	err := db.WithContext(ctx).
		Where("shop_id = ? AND shopify_id = ?", shopId, shopifyId).
		Take(&customer).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &customer, nil
}
