package models

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shoplytics/analytics_backend/config"
	"github.com/shoplytics/analytics_backend/utils"
	"gorm.io/gorm"
)

var ErrShopNotFound = errors.New("shop not found")

// Shop is the tenant-scoped storefront credential holder. LastSyncedAt is the
// delta-sync watermark and is written only after a successful sync run.
type Shop struct {
	ID           uint       `gorm:"primary_key" json:"id"`
	TenantId     string     `gorm:"index;size:36;not null" json:"tenant_id"`
	ShopDomain   string     `gorm:"uniqueIndex;size:255;not null" json:"shop_domain"`
	AccessToken  string     `gorm:"size:255;not null" json:"-"`
	Name         string     `gorm:"size:255" json:"name"`
	IsActive     *bool      `gorm:"not null;default:true" json:"is_active"`
	LastSyncedAt *time.Time `json:"last_synced_at"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewShop struct {
	ShopDomain  string `json:"shopDomain" binding:"required"`
	AccessToken string `json:"accessToken" binding:"required"`
	Name        string `json:"name"`
}

func CreateShop(ctx context.Context, input *NewShop) (*Shop, error) {
	tenantId, ok := utils.GetTenantIdFromContext(ctx)
	if !ok || tenantId == "" {
		return nil, errors.New("tenant id is required")
	}

	domain := strings.TrimSpace(input.ShopDomain)
	if domain == "" {
		return nil, errors.New("shop domain is required")
	}
	if err := utils.ValidateUnique[Shop](ctx, tenantId, "shop_domain", domain, 0); err != nil {
		return nil, err
	}

	name := strings.TrimSpace(input.Name)
	if name == "" {
		name = domain
	}

	shop := Shop{
		TenantId:    tenantId,
		ShopDomain:  domain,
		AccessToken: strings.TrimSpace(input.AccessToken),
		Name:        name,
		IsActive:    utils.NewTrue(),
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&shop).Error; err != nil {
		return nil, err
	}
	return &shop, nil
}

// GetShopById resolves a shop within the context tenant scope.
// Returns ErrShopNotFound when the id does not resolve.
func GetShopById(ctx context.Context, id uint) (*Shop, error) {
	var shop Shop
	db := config.GetDB()
	if err := db.WithContext(ctx).Where("id = ?", id).Take(&shop).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrShopNotFound
		}
		return nil, err
	}
	return &shop, nil
}

func GetShopByDomain(ctx context.Context, domain string) (*Shop, error) {
	var shop Shop
	db := config.GetDB()
	if err := db.WithContext(ctx).Where("shop_domain = ?", domain).Take(&shop).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrShopNotFound
		}
		return nil, err
	}
	return &shop, nil
}

func ListShops(ctx context.Context) ([]Shop, error) {
	var shops []Shop
	db := config.GetDB()
	if err := db.WithContext(ctx).Order("id").Find(&shops).Error; err != nil {
		return nil, err
	}
	return shops, nil
}

// ListActiveShops returns every active shop across all tenants.
// Used by the scheduler, which runs outside any request tenant scope.
func ListActiveShops(ctx context.Context) ([]Shop, error) {
	ctx = utils.SetSkipTenantScopeInContext(ctx, true)
	var shops []Shop
	db := config.GetDB()
	if err := db.WithContext(ctx).Where("is_active = ?", true).Order("id").Find(&shops).Error; err != nil {
		return nil, err
	}
	return shops, nil
}

// TouchShopLastSynced sets the sync watermark. Only the sync orchestrator
// calls this, after all resource types of a run have completed.
func TouchShopLastSynced(ctx context.Context, shopId uint, at time.Time) error {
	db := config.GetDB()
	return db.WithContext(ctx).
		Model(&Shop{}).
		Where("id = ?", shopId).
		Update("last_synced_at", at).Error
}
