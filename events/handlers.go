package events

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shoplytics/analytics_backend/models"
	"github.com/shoplytics/analytics_backend/utils"
)

type TrackEventRequest struct {
	EventType  string         `json:"eventType" binding:"required"`
	CustomerId *uint          `json:"customerId"`
	EventData  map[string]any `json:"eventData"`
}

func TrackEventHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if _, ok := utils.GetTenantIdFromContext(ctx); !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		shopId, err := strconv.Atoi(c.Param("id"))
		if err != nil || shopId <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid shop id"})
			return
		}

		var req TrackEventRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}

		event, err := TrackEvent(ctx, uint(shopId), strings.TrimSpace(req.EventType), req.CustomerId, req.EventData)
		if err != nil {
			if err == models.ErrShopNotFound {
				c.JSON(http.StatusNotFound, gin.H{"error": "shop not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, event)
	}
}

type typedEventRequest struct {
	CustomerId *uint   `json:"customerId"`
	ProductId  int64   `json:"productId"`
	CartValue  float64 `json:"cartValue"`
}

// TrackTypedEventHandler serves the per-type convenience endpoints
// (product-viewed, checkout-started, cart-abandoned).
func TrackTypedEventHandler(eventType string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if _, ok := utils.GetTenantIdFromContext(ctx); !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		shopId, err := strconv.Atoi(c.Param("id"))
		if err != nil || shopId <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid shop id"})
			return
		}

		var req typedEventRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}

		var event *models.CustomEvent
		switch eventType {
		case models.EventTypeProductViewed:
			event, err = TrackProductViewed(ctx, uint(shopId), req.CustomerId, req.ProductId)
		case models.EventTypeCheckoutStarted:
			event, err = TrackCheckoutStarted(ctx, uint(shopId), req.CustomerId, req.CartValue)
		case models.EventTypeCartAbandoned:
			event, err = TrackCartAbandoned(ctx, uint(shopId), req.CustomerId, req.CartValue)
		default:
			event, err = TrackEvent(ctx, uint(shopId), eventType, req.CustomerId, nil)
		}
		if err != nil {
			if err == models.ErrShopNotFound {
				c.JSON(http.StatusNotFound, gin.H{"error": "shop not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, event)
	}
}

func BehaviorAnalyticsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if _, ok := utils.GetTenantIdFromContext(ctx); !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		shopId, err := strconv.Atoi(c.Param("id"))
		if err != nil || shopId <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid shop id"})
			return
		}

		to := time.Now()
		from := to.Add(-30 * 24 * time.Hour)
		if v := strings.TrimSpace(c.Query("from")); v != "" {
			if t, err := time.Parse(time.RFC3339, v); err == nil {
				from = t
			}
		}
		if v := strings.TrimSpace(c.Query("to")); v != "" {
			if t, err := time.Parse(time.RFC3339, v); err == nil {
				to = t
			}
		}

		summary, err := BehaviorAnalytics(ctx, uint(shopId), from, to)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, summary)
	}
}

func TopCustomersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if _, ok := utils.GetTenantIdFromContext(ctx); !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		shopId, err := strconv.Atoi(c.Param("id"))
		if err != nil || shopId <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid shop id"})
			return
		}

		limit := 10
		if v := strings.TrimSpace(c.Query("limit")); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				limit = n
			}
		}

		customers, err := TopEngagedCustomers(ctx, uint(shopId), limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"items": customers})
	}
}
