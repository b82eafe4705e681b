package models

import (
	"context"
	"time"

	"github.com/shoplytics/analytics_backend/config"
)

// WebhookEvent stores a raw platform webhook delivery before any reconciliation.
// Duplicate deliveries are accepted; downstream upserts are idempotent.
type WebhookEvent struct {
	ID          uint      `gorm:"primary_key" json:"id"`
	TenantId    string    `gorm:"index;size:36;not null" json:"tenant_id"`
	ShopId      uint      `gorm:"index;not null" json:"shop_id"`
	Topic       string    `gorm:"size:100;not null" json:"topic"`
	PayloadJSON []byte    `gorm:"type:json" json:"payload"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func CreateWebhookEvent(ctx context.Context, shop *Shop, topic string, payload []byte) (*WebhookEvent, error) {
	event := WebhookEvent{
		TenantId:    shop.TenantId,
		ShopId:      shop.ID,
		Topic:       topic,
		PayloadJSON: payload,
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&event).Error; err != nil {
		return nil, err
	}
	return &event, nil
}
