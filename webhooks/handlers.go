package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shoplytics/analytics_backend/config"
	"github.com/shoplytics/analytics_backend/models"
	"github.com/shoplytics/analytics_backend/shopsync"
	"github.com/shoplytics/analytics_backend/utils"
)

// IngressHandler receives platform webhooks. The raw body is verified against
// the shared webhook secret, persisted as-is, then reconciled through the same
// upsert path the sync pipeline uses — a duplicate delivery converges instead
// of duplicating rows.
func IngressHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := config.GetLogger()

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
			return
		}

		if !verifySignature(body, c.GetHeader("X-Shopify-Hmac-Sha256")) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
			return
		}

		domain := strings.TrimSpace(c.GetHeader("X-Shopify-Shop-Domain"))
		topic := strings.TrimSpace(c.GetHeader("X-Shopify-Topic"))
		if domain == "" || topic == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing shop domain or topic"})
			return
		}

		// Webhook requests carry no session; resolve the shop across tenants
		// and adopt its tenant for everything downstream.
		lookupCtx := utils.SetSkipTenantScopeInContext(c.Request.Context(), true)
		shop, err := models.GetShopByDomain(lookupCtx, domain)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown shop"})
			return
		}
		ctx := utils.SetTenantIdInContext(c.Request.Context(), shop.TenantId)

		if _, err := models.CreateWebhookEvent(ctx, shop, topic, body); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		if err := reconcileByTopic(c, topic, shop, body); err != nil {
			// The raw event is stored; reconciliation failure must not make
			// the platform redeliver forever.
			config.LogError(logger, "webhooks", "IngressHandler", topic, domain, err)
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

func reconcileByTopic(c *gin.Context, topic string, shop *models.Shop, body []byte) error {
	ctx := utils.SetTenantIdInContext(c.Request.Context(), shop.TenantId)
	record := []json.RawMessage{json.RawMessage(body)}

	switch {
	case strings.HasPrefix(topic, "customers/"):
		_, err := shopsync.ReconcileCustomers(ctx, shop, record)
		return err
	case strings.HasPrefix(topic, "products/"):
		_, err := shopsync.ReconcileProducts(ctx, shop, record)
		return err
	case strings.HasPrefix(topic, "orders/"):
		_, err := shopsync.ReconcileOrders(ctx, shop, record)
		return err
	default:
		// Unknown topics are stored but not reconciled.
		return nil
	}
}

// verifySignature checks the base64 HMAC-SHA256 of the raw body in constant
// time. An empty configured secret rejects everything.
func verifySignature(body []byte, header string) bool {
	secret := strings.TrimSpace(os.Getenv("SHOPIFY_WEBHOOK_SECRET"))
	if secret == "" || strings.TrimSpace(header) == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(strings.TrimSpace(header)))
}
