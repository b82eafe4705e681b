package reports

import (
	"context"
	"errors"
	"time"

	"github.com/shoplytics/analytics_backend/config"
	"github.com/shoplytics/analytics_backend/models"
	"github.com/shoplytics/analytics_backend/utils"
	"github.com/shopspring/decimal"
)

type OverviewResponse struct {
	ShopId        uint            `json:"shopId"`
	CustomerCount int64           `json:"customerCount"`
	ProductCount  int64           `json:"productCount"`
	OrderCount    int64           `json:"orderCount"`
	TotalRevenue  decimal.Decimal `json:"totalRevenue"`
	EventsLast24h int64           `json:"eventsLast24h"`
	From          string          `json:"from"`
	To            string          `json:"to"`
}

type OrdersByDateRow struct {
	Date       string          `json:"date"`
	OrderCount int64           `json:"orderCount"`
	Revenue    decimal.Decimal `json:"revenue"`
}

type TopCustomerRow struct {
	CustomerId  uint            `json:"customerId"`
	Email       string          `json:"email"`
	FirstName   string          `json:"firstName"`
	LastName    string          `json:"lastName"`
	TotalSpent  decimal.Decimal `json:"totalSpent"`
	OrdersCount int             `json:"ordersCount"`
}

// GetOverviewMetrics aggregates the dashboard headline numbers for one shop.
// Order count and revenue are bounded by [from, to] on processed_at; entity
// counts are unbounded.
func GetOverviewMetrics(ctx context.Context, shopId uint, from time.Time, to time.Time) (*OverviewResponse, error) {
	tenantId, ok := utils.GetTenantIdFromContext(ctx)
	if !ok || tenantId == "" {
		return nil, errors.New("tenant id is required")
	}

	shop, err := models.GetShopById(ctx, shopId)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	resp := &OverviewResponse{
		ShopId: shop.ID,
		From:   from.UTC().Format(time.RFC3339),
		To:     to.UTC().Format(time.RFC3339),
	}

	if err := db.WithContext(ctx).Model(&models.Customer{}).
		Where("shop_id = ?", shop.ID).
		Count(&resp.CustomerCount).Error; err != nil {
		return nil, err
	}
	if err := db.WithContext(ctx).Model(&models.Product{}).
		Where("shop_id = ?", shop.ID).
		Count(&resp.ProductCount).Error; err != nil {
		return nil, err
	}

	var orderAgg struct {
		OrderCount int64
		Revenue    decimal.Decimal
	}
	err = db.WithContext(ctx).Model(&models.Order{}).
		Select("count(*) as order_count, coalesce(sum(total_price), 0) as revenue").
		Where("shop_id = ? AND processed_at BETWEEN ? AND ?", shop.ID, from, to).
		Scan(&orderAgg).Error
	if err != nil {
		return nil, err
	}
	resp.OrderCount = orderAgg.OrderCount
	resp.TotalRevenue = orderAgg.Revenue

	events, err := models.CountCustomEventsSince(ctx, shop.ID, time.Now().Add(-24*time.Hour))
	if err != nil {
		return nil, err
	}
	resp.EventsLast24h = events

	return resp, nil
}

func GetOrdersByDate(ctx context.Context, shopId uint, from time.Time, to time.Time) ([]OrdersByDateRow, error) {
	tenantId, ok := utils.GetTenantIdFromContext(ctx)
	if !ok || tenantId == "" {
		return nil, errors.New("tenant id is required")
	}

	sql := `
SELECT
    DATE(processed_at) AS date,
    COUNT(*) AS order_count,
    COALESCE(SUM(total_price), 0) AS revenue
FROM
    orders
WHERE
    tenant_id = @tenantId
        AND shop_id = @shopId
        AND processed_at BETWEEN @fromDate AND @toDate
GROUP BY DATE(processed_at)
ORDER BY date;
`

	var rows []OrdersByDateRow
	db := config.GetDB()
	if err := db.WithContext(ctx).Raw(sql, map[string]interface{}{
		"tenantId": tenantId,
		"shopId":   shopId,
		"fromDate": from,
		"toDate":   to,
	}).Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func GetTopCustomersBySpend(ctx context.Context, shopId uint, limit int) ([]TopCustomerRow, error) {
	tenantId, ok := utils.GetTenantIdFromContext(ctx)
	if !ok || tenantId == "" {
		return nil, errors.New("tenant id is required")
	}
	if limit <= 0 || limit > 100 {
		limit = 10
	}

	sql := `
SELECT
    id AS customer_id,
    email,
    first_name,
    last_name,
    total_spent,
    orders_count
FROM
    customers
WHERE
    tenant_id = @tenantId AND shop_id = @shopId
ORDER BY total_spent DESC
LIMIT @limit;
`

	var rows []TopCustomerRow
	db := config.GetDB()
	if err := db.WithContext(ctx).Raw(sql, map[string]interface{}{
		"tenantId": tenantId,
		"shopId":   shopId,
		"limit":    limit,
	}).Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
