package shopsync

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

// RunSyncHandler is the on-demand ingestion entry point. It records the job
// lifecycle inline: pending on creation, running while the orchestrator works,
// then success or failed with captured detail.
func RunSyncHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if _, ok := utils.GetTenantIdFromContext(ctx); !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		shopId, err := shopIdParam(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid shop id"})
			return
		}

		var req RunSyncRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		jobType := strings.TrimSpace(req.Type)
		if jobType != models.JobTypeFullSync && jobType != models.JobTypeDelta {
			c.JSON(http.StatusBadRequest, gin.H{"error": "type must be full-sync or delta"})
			return
		}

		shop, err := models.GetShopById(ctx, shopId)
		if err != nil {
			if errors.Is(err, models.ErrShopNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "shop not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		job, err := models.CreateIngestionJob(ctx, shop.TenantId, shop.ID, jobType, models.JobStatusPending)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if err := models.MarkIngestionJobRunning(ctx, job.ID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		var stats *SyncStats
		if jobType == models.JobTypeFullSync {
			stats, err = FullSync(ctx, shop.ID)
		} else {
			stats, err = DeltaSync(ctx, shop.ID)
		}
		if err != nil {
			_ = models.MarkIngestionJobFailed(ctx, job.ID, err)
			if status := syncFailureStatus(err); status != http.StatusOK {
				c.JSON(status, gin.H{"error": err.Error()})
				return
			}
		} else {
			_ = models.MarkIngestionJobSuccess(ctx, job.ID, stats)
		}

		finished, loadErr := models.GetIngestionJob(ctx, job.ID)
		if loadErr != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": loadErr.Error()})
			return
		}
		c.JSON(http.StatusOK, mapJobToResponse(*finished))
	}
}

func ListJobsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if _, ok := utils.GetTenantIdFromContext(ctx); !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		shopId, err := shopIdParam(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid shop id"})
			return
		}
		if _, err := models.GetShopById(ctx, shopId); err != nil {
			if errors.Is(err, models.ErrShopNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "shop not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		limit := 0
		if v := strings.TrimSpace(c.Query("limit")); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				limit = n
			}
		}
		jobs, err := models.ListIngestionJobs(ctx, shopId, limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		items := make([]JobResponse, 0, len(jobs))
		for _, job := range jobs {
			items = append(items, mapJobToResponse(job))
		}
		c.JSON(http.StatusOK, JobListResponse{Items: items})
	}
}

func JobDetailHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if _, ok := utils.GetTenantIdFromContext(ctx); !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		jobId, err := strconv.Atoi(c.Param("id"))
		if err != nil || jobId <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid job id"})
			return
		}
		job, err := models.GetIngestionJob(ctx, uint(jobId))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusOK, mapJobToResponse(*job))
	}
}

// SyncStatusHandler summarizes every shop of the tenant: active flag,
// watermark, custom trigger registration and the five most recent jobs.
func SyncStatusHandler(scheduler *Scheduler) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if _, ok := utils.GetTenantIdFromContext(ctx); !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		shops, err := models.ListShops(ctx)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		statuses := make([]ShopSyncStatus, 0, len(shops))
		for _, shop := range shops {
			jobs, err := models.ListIngestionJobs(ctx, shop.ID, 5)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			recent := make([]JobResponse, 0, len(jobs))
			for _, job := range jobs {
				recent = append(recent, mapJobToResponse(job))
			}
			statuses = append(statuses, ShopSyncStatus{
				ShopId:          shop.ID,
				ShopDomain:      shop.ShopDomain,
				Name:            shop.Name,
				IsActive:        shop.IsActive != nil && *shop.IsActive,
				LastSyncedAt:    formatTime(shop.LastSyncedAt),
				HasScheduledJob: scheduler.HasCustomTrigger(shop.ID),
				RecentJobs:      recent,
			})
		}
		c.JSON(http.StatusOK, SyncStatusResponse{Shops: statuses})
	}
}

func StartShopScheduleHandler(scheduler *Scheduler) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if _, ok := utils.GetTenantIdFromContext(ctx); !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		shopId, err := shopIdParam(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid shop id"})
			return
		}

		var req ScheduleRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		jobType := strings.TrimSpace(req.Type)
		if jobType == "" {
			jobType = models.JobTypeScheduledDelta
		}

		shop, err := models.GetShopById(ctx, shopId)
		if err != nil {
			if errors.Is(err, models.ErrShopNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "shop not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		interval := time.Duration(req.IntervalMinutes) * time.Minute
		if err := scheduler.StartCustomTrigger(shop, interval, jobType); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

func StopShopScheduleHandler(scheduler *Scheduler) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if _, ok := utils.GetTenantIdFromContext(ctx); !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		shopId, err := shopIdParam(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid shop id"})
			return
		}
		if _, err := models.GetShopById(ctx, shopId); err != nil {
			if errors.Is(err, models.ErrShopNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "shop not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		removed := scheduler.StopCustomTrigger(shopId)
		c.JSON(http.StatusOK, gin.H{"success": true, "removed": removed})
	}
}

// syncFailureStatus maps a failed run to its HTTP status. A shop whose lock is
// already held gets 409; any other failure stays 200 because the job row
// carries the error detail.
func syncFailureStatus(err error) int {
	if errors.Is(err, ErrSyncInProgress) {
		return http.StatusConflict
	}
	return http.StatusOK
}

func shopIdParam(c *gin.Context) (uint, error) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		return 0, errors.New("invalid shop id")
	}
	return uint(id), nil
}

func mapJobToResponse(job models.IngestionJob) JobResponse {
	return JobResponse{
		ID:         job.ID,
		Type:       job.Type,
		Status:     job.Status,
		StartedAt:  formatTime(job.StartedAt),
		FinishedAt: formatTime(job.FinishedAt),
		Detail:     job.DetailJSON,
	}
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}
