package models

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shoplytics/analytics_backend/config"
)

type Tenant struct {
	ID          string    `gorm:"primary_key;size:36" json:"id"`
	Name        string    `gorm:"size:255;not null" json:"name"`
	EmailDomain string    `gorm:"size:255" json:"email_domain"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewTenant struct {
	Name        string `json:"name" binding:"required"`
	EmailDomain string `json:"emailDomain"`
}

func CreateTenant(ctx context.Context, input *NewTenant) (*Tenant, error) {
	if strings.TrimSpace(input.Name) == "" {
		return nil, errors.New("tenant name is required")
	}

	tenant := Tenant{
		ID:          uuid.NewString(),
		Name:        strings.TrimSpace(input.Name),
		EmailDomain: strings.TrimSpace(input.EmailDomain),
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&tenant).Error; err != nil {
		return nil, err
	}
	return &tenant, nil
}

func GetTenantById(ctx context.Context, id string) (*Tenant, error) {
	var tenant Tenant
	db := config.GetDB()
	if err := db.WithContext(ctx).Where("id = ?", id).Take(&tenant).Error; err != nil {
		return nil, err
	}
	return &tenant, nil
}
