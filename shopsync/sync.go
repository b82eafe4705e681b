package shopsync

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/bsm/redislock"
	"github.com/shoplytics/analytics_backend/config"
	"github.com/shoplytics/analytics_backend/models"
	"github.com/shoplytics/analytics_backend/utils"
)

// ErrSyncInProgress means another sync holds the shop's lock right now.
// The caller reports it and moves on; the next pass retries.
var ErrSyncInProgress = errors.New("sync already running for shop")

const shopLockTTL = 30 * time.Minute

// SyncStats counts the records reconciled per resource type in one run.
type SyncStats struct {
	Customers int `json:"customers"`
	Products  int `json:"products"`
	Orders    int `json:"orders"`
}

// FullSync pages through every customer, product and order of the shop,
// reconciles them in that order, then advances the sync watermark.
func FullSync(ctx context.Context, shopId uint) (*SyncStats, error) {
	return runShopSync(ctx, shopId, false)
}

// DeltaSync is FullSync bounded by the shop's watermark: each resource query
// carries updated_at_min when the watermark is set. An unset watermark
// degrades to a full fetch. The watermark advances only after all three
// resource types complete.
func DeltaSync(ctx context.Context, shopId uint) (*SyncStats, error) {
	return runShopSync(ctx, shopId, true)
}

func runShopSync(ctx context.Context, shopId uint, delta bool) (*SyncStats, error) {
	shop, err := models.GetShopById(ctx, shopId)
	if err != nil {
		return nil, err
	}
	ctx = utils.SetTenantIdInContext(ctx, shop.TenantId)

	// Per-shop mutual exclusion so a scheduled full and delta pass cannot
	// interleave writes to the same watermark. Best effort: without Redis
	// the sync runs unguarded and relies on idempotent upserts.
	if locker := config.GetRedisLock(); locker != nil {
		lock, err := locker.Obtain(ctx, fmt.Sprintf("ShopSyncLock:%d", shop.ID), shopLockTTL, nil)
		if err != nil {
			if errors.Is(err, redislock.ErrNotObtained) {
				return nil, ErrSyncInProgress
			}
			return nil, err
		}
		defer lock.Release(ctx)
	}

	client, err := newShopifyClient(shop)
	if err != nil {
		return nil, err
	}

	var updatedSince string
	if delta && shop.LastSyncedAt != nil {
		updatedSince = shop.LastSyncedAt.UTC().Format(time.RFC3339)
	}

	stats := &SyncStats{}

	customers, err := fetchAllPages(ctx, client, "customers", deltaFilters(updatedSince))
	if err != nil {
		return stats, err
	}
	if stats.Customers, err = ReconcileCustomers(ctx, shop, customers); err != nil {
		return stats, err
	}

	products, err := fetchAllPages(ctx, client, "products", deltaFilters(updatedSince))
	if err != nil {
		return stats, err
	}
	if stats.Products, err = ReconcileProducts(ctx, shop, products); err != nil {
		return stats, err
	}

	orderFilters := deltaFilters(updatedSince)
	orderFilters.Set("status", "any")
	orders, err := fetchAllPages(ctx, client, "orders", orderFilters)
	if err != nil {
		return stats, err
	}
	if stats.Orders, err = ReconcileOrders(ctx, shop, orders); err != nil {
		return stats, err
	}

	if err := models.TouchShopLastSynced(ctx, shop.ID, time.Now()); err != nil {
		return stats, err
	}
	return stats, nil
}

func deltaFilters(updatedSince string) url.Values {
	filters := url.Values{}
	if updatedSince != "" {
		filters.Set("updated_at_min", updatedSince)
	}
	return filters
}
