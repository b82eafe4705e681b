package auth

import (
	"context"
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shoplytics/analytics_backend/config"
	"github.com/shoplytics/analytics_backend/models"
	"github.com/shoplytics/analytics_backend/utils"
	"golang.org/x/crypto/bcrypt"
)

type LoginInfo struct {
	Token      string `json:"token"`
	Jwt        string `json:"jwt"`
	Username   string `json:"username"`
	Role       string `json:"role"`
	TenantId   string `json:"tenantId"`
	TenantName string `json:"tenantName"`
}

// Login checks credentials and issues two tokens: an opaque session token
// held in Redis and a signed JWT for clients that cannot keep a session.
func Login(ctx context.Context, username string, password string) (*LoginInfo, error) {
	username = strings.TrimSpace(username)

	user := models.User{}
	exists, err := config.GetRedisObject("User:"+username, &user)
	if err != nil {
		return nil, err
	}
	if !exists {
		found, err := models.GetUserByUsername(ctx, username)
		if err != nil {
			return nil, errors.New("invalid username or password")
		}
		user = *found
	}

	if err := utils.ComparePassword(user.Password, password); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return nil, errors.New("invalid username or password")
		}
		return nil, err
	}

	tenant, err := models.GetTenantById(utils.SetSkipTenantScopeInContext(ctx, true), user.TenantId)
	if err != nil {
		return nil, err
	}

	token := uuid.NewString()
	jwt, err := utils.JwtGenerate(user.ID, user.Role)
	if err != nil {
		return nil, err
	}

	lifespan := 24
	if v := strings.TrimSpace(os.Getenv("TOKEN_HOUR_LIFESPAN")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			lifespan = n
		}
	}
	ttl := time.Duration(lifespan) * time.Hour

	if err := config.SetRedisValue("Token:"+token, user.Username, ttl); err != nil {
		return nil, err
	}
	if err := config.SetRedisObject("User:"+user.Username, &user, ttl); err != nil {
		return nil, err
	}

	return &LoginInfo{
		Token:      token,
		Jwt:        jwt,
		Username:   user.Username,
		Role:       user.Role,
		TenantId:   user.TenantId,
		TenantName: tenant.Name,
	}, nil
}

func Logout(ctx context.Context) error {
	token, ok := utils.GetTokenFromContext(ctx)
	if !ok || token == "" {
		return errors.New("no session token")
	}
	return config.RemoveRedisKey("Token:" + token)
}

// RegisterTenant creates a tenant and its first admin user in one step.
func RegisterTenant(ctx context.Context, tenantName string, username string, password string) (*models.Tenant, *models.User, error) {
	tenant, err := models.CreateTenant(ctx, &models.NewTenant{Name: tenantName})
	if err != nil {
		return nil, nil, err
	}

	user, err := models.CreateUser(ctx, &models.NewUser{
		TenantId: tenant.ID,
		Username: username,
		Password: password,
		Role:     models.UserRoleAdmin,
	})
	if err != nil {
		return nil, nil, err
	}
	return tenant, user, nil
}
