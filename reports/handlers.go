package reports

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shoplytics/analytics_backend/models"
	"github.com/shoplytics/analytics_backend/utils"
)

func OverviewHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if _, ok := utils.GetTenantIdFromContext(ctx); !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		shopId, from, to, err := metricsParams(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		overview, err := GetOverviewMetrics(ctx, shopId, from, to)
		if err != nil {
			if errors.Is(err, models.ErrShopNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "shop not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, overview)
	}
}

func OrdersByDateHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if _, ok := utils.GetTenantIdFromContext(ctx); !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		shopId, from, to, err := metricsParams(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		rows, err := GetOrdersByDate(ctx, shopId, from, to)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"items": rows})
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

		rows, err := GetTopCustomersBySpend(ctx, uint(shopId), limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"items": rows})
	}
}

func ExportMetricsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if _, ok := utils.GetTenantIdFromContext(ctx); !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		shopId, from, to, err := metricsParams(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		workbook, err := BuildMetricsWorkbook(ctx, shopId, from, to)
		if err != nil {
			if errors.Is(err, models.ErrShopNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "shop not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if err := WriteWorkbook(c.Writer, workbook, "metrics.xlsx"); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to write file"})
		}
	}
}

func metricsParams(c *gin.Context) (uint, time.Time, time.Time, error) {
	shopId, err := strconv.Atoi(c.Param("id"))
	if err != nil || shopId <= 0 {
		return 0, time.Time{}, time.Time{}, errors.New("invalid shop id")
	}

	to := time.Now()
	from := to.Add(-30 * 24 * time.Hour)
	if v := strings.TrimSpace(c.Query("from")); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return 0, time.Time{}, time.Time{}, errors.New("invalid from date")
		}
		from = t
	}
	if v := strings.TrimSpace(c.Query("to")); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return 0, time.Time{}, time.Time{}, errors.New("invalid to date")
		}
		to = t
	}
	return uint(shopId), from, to, nil
}
