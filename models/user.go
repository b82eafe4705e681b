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

type User struct {
	ID        int       `gorm:"primary_key" json:"id"`
	TenantId  string    `gorm:"index;size:36;not null" json:"tenant_id"`
	Username  string    `gorm:"uniqueIndex;size:100;not null" json:"username"`
	Password  string    `gorm:"size:255;not null" json:"-"`
	Role      string    `gorm:"size:20;not null;default:'member'" json:"role"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewUser struct {
	TenantId string `json:"tenantId" binding:"required"`
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
	Role     string `json:"role"`
}

func CreateUser(ctx context.Context, input *NewUser) (*User, error) {
	username := strings.TrimSpace(input.Username)
	if !utils.IsValidEmail(username) {
		return nil, errors.New("username must be an email")
	}

	hashed, err := utils.HashPassword(input.Password)
	if err != nil {
		return nil, err
	}

	role := input.Role
	if role == "" {
		role = UserRoleMember
	}

	user := User{
		TenantId: input.TenantId,
		Username: username,
		Password: string(hashed),
		Role:     role,
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func GetUserById(ctx context.Context, id int) (*User, error) {
	var user User
	db := config.GetDB()
	ctx = utils.SetSkipTenantScopeInContext(ctx, true)
	err := db.WithContext(ctx).Where("id = ?", id).Take(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &user, nil
}

func GetUserByUsername(ctx context.Context, username string) (*User, error) {
	var user User
	db := config.GetDB()
	ctx = utils.SetSkipTenantScopeInContext(ctx, true)
	err := db.WithContext(ctx).Where("username = ?", username).Take(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &user, nil
}
