package models

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/shoplytics/analytics_backend/config"
)

// CustomEvent is an append-only behavioral record. Never updated after
// creation; read-only input to engagement scoring and behavior analytics.
type CustomEvent struct {
	ID            uint      `gorm:"primary_key" json:"id"`
	TenantId      string    `gorm:"index;size:36;not null" json:"tenant_id"`
	ShopId        uint      `gorm:"index;not null" json:"shop_id"`
	EventType     string    `gorm:"size:50;not null" json:"event_type"`
	CustomerId    *uint     `gorm:"index" json:"customer_id"`
	EventDataJSON []byte    `gorm:"type:json" json:"event_data"`
	CreatedAt     time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func CreateCustomEvent(ctx context.Context, shopId uint, eventType string, customerId *uint, eventData map[string]any) (*CustomEvent, error) {
	if eventType == "" {
		return nil, errors.New("event type is required")
	}

	shop, err := GetShopById(ctx, shopId)
	if err != nil {
		return nil, err
	}

	if eventData == nil {
		eventData = map[string]any{}
	}
	if _, ok := eventData["timestamp"]; !ok {
		eventData["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	}
	dataJSON, err := json.Marshal(eventData)
	if err != nil {
		return nil, err
	}

	event := CustomEvent{
		TenantId:      shop.TenantId,
		ShopId:        shop.ID,
		EventType:     eventType,
		CustomerId:    customerId,
		EventDataJSON: dataJSON,
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&event).Error; err != nil {
		return nil, err
	}
	return &event, nil
}

func ListCustomEvents(ctx context.Context, shopId uint, from *time.Time, to *time.Time) ([]CustomEvent, error) {
	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Where("shop_id = ?", shopId)
	if from != nil && to != nil {
		dbCtx = dbCtx.Where("created_at BETWEEN ? AND ?", from, to)
	}
	var events []CustomEvent
	if err := dbCtx.Order("created_at desc").Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

func CountCustomEventsSince(ctx context.Context, shopId uint, since time.Time) (int64, error) {
	var count int64
	db := config.GetDB()
	err := db.WithContext(ctx).
		Model(&CustomEvent{}).
		Where("shop_id = ? AND created_at >= ?", shopId, since).
		Count(&count).Error
	return count, err
}
