package events

import (
	"context"
	"time"

	"github.com/shoplytics/analytics_backend/config"
	"github.com/shoplytics/analytics_backend/models"
)

// Engagement weights per event type. The score of a customer is the plain
// weighted sum over their recorded events; negative weights model drop-off.
var engagementWeights = map[string]float64{
	models.EventTypeProductViewed:   1,
	models.EventTypeCartAbandoned:   -2,
	models.EventTypeCheckoutStarted: 5,
	models.EventTypeOrderCompleted:  10,
}

func eventWeight(eventType string) float64 {
	return engagementWeights[eventType]
}

// TrackEvent appends a behavioral event and refreshes the referenced
// customer's engagement score. The pubsub publish is best effort; the event
// row is the source of truth.
func TrackEvent(ctx context.Context, shopId uint, eventType string, customerId *uint, eventData map[string]any) (*models.CustomEvent, error) {
	event, err := models.CreateCustomEvent(ctx, shopId, eventType, customerId, eventData)
	if err != nil {
		return nil, err
	}

	if customerId != nil {
		if err := RefreshEngagementScore(ctx, *customerId); err != nil {
			config.LogError(config.GetLogger(), "events", "TrackEvent", "refresh engagement score", *customerId, err)
		}
	}

	if err := PublishCustomEvent(ctx, event); err != nil {
		config.LogError(config.GetLogger(), "events", "TrackEvent", "publish event", event.ID, err)
	}
	return event, nil
}

func TrackProductViewed(ctx context.Context, shopId uint, customerId *uint, productId int64) (*models.CustomEvent, error) {
	return TrackEvent(ctx, shopId, models.EventTypeProductViewed, customerId, map[string]any{"product_id": productId})
}

func TrackCheckoutStarted(ctx context.Context, shopId uint, customerId *uint, cartValue float64) (*models.CustomEvent, error) {
	return TrackEvent(ctx, shopId, models.EventTypeCheckoutStarted, customerId, map[string]any{"cart_value": cartValue})
}

func TrackCartAbandoned(ctx context.Context, shopId uint, customerId *uint, cartValue float64) (*models.CustomEvent, error) {
	return TrackEvent(ctx, shopId, models.EventTypeCartAbandoned, customerId, map[string]any{"cart_value": cartValue})
}

// RefreshEngagementScore recomputes the weighted sum over the customer's
// events and persists it on the customer row.
func RefreshEngagementScore(ctx context.Context, customerId uint) error {
	db := config.GetDB()

	var rows []struct {
		EventType string
		Total     int64
	}
	err := db.WithContext(ctx).
		Model(&models.CustomEvent{}).
		Select("event_type, count(*) as total").
		Where("customer_id = ?", customerId).
		Group("event_type").
		Scan(&rows).Error
	if err != nil {
		return err
	}

	score := float64(0)
	for _, row := range rows {
		score += eventWeight(row.EventType) * float64(row.Total)
	}

	return db.WithContext(ctx).
		Model(&models.Customer{}).
		Where("id = ?", customerId).
		Update("engagement_score", score).Error
}

// BehaviorSummary aggregates event counts and funnel conversion for one shop
// over a time window.
type BehaviorSummary struct {
	From               string           `json:"from"`
	To                 string           `json:"to"`
	EventCounts        map[string]int64 `json:"eventCounts"`
	CheckoutRate       float64          `json:"checkoutRate"`
	OrderCompletionRate float64         `json:"orderCompletionRate"`
}

func BehaviorAnalytics(ctx context.Context, shopId uint, from time.Time, to time.Time) (*BehaviorSummary, error) {
	db := config.GetDB()

	var rows []struct {
		EventType string
		Total     int64
	}
	err := db.WithContext(ctx).
		Model(&models.CustomEvent{}).
		Select("event_type, count(*) as total").
		Where("shop_id = ? AND created_at BETWEEN ? AND ?", shopId, from, to).
		Group("event_type").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := map[string]int64{}
	for _, row := range rows {
		counts[row.EventType] = row.Total
	}

	summary := &BehaviorSummary{
		From:        from.UTC().Format(time.RFC3339),
		To:          to.UTC().Format(time.RFC3339),
		EventCounts: counts,
	}
	if viewed := counts[models.EventTypeProductViewed]; viewed > 0 {
		summary.CheckoutRate = float64(counts[models.EventTypeCheckoutStarted]) / float64(viewed)
	}
	if started := counts[models.EventTypeCheckoutStarted]; started > 0 {
		summary.OrderCompletionRate = float64(counts[models.EventTypeOrderCompleted]) / float64(started)
	}
	return summary, nil
}

func TopEngagedCustomers(ctx context.Context, shopId uint, limit int) ([]models.Customer, error) {
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	var customers []models.Customer
	db := config.GetDB()
	err := db.WithContext(ctx).
		Where("shop_id = ?", shopId).
		Order("engagement_score desc").
		Limit(limit).
		Find(&customers).Error
	if err != nil {
		return nil, err
	}
	return customers, nil
}
