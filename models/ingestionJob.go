package models

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/shoplytics/analytics_backend/config"
	"gorm.io/gorm"
)

// IngestionJob records one sync attempt, manual or scheduled.
// State machine: pending -> running -> success | failed. Terminal states are
// final; a failed job is superseded by the next run, never resumed.
type IngestionJob struct {
	ID         uint       `gorm:"primary_key" json:"id"`
	TenantId   string     `gorm:"index;size:36;not null" json:"tenant_id"`
	ShopId     uint       `gorm:"index;not null" json:"shop_id"`
	Type       string     `gorm:"size:20;not null" json:"type"`
	Status     string     `gorm:"size:20;not null" json:"status"`
	StartedAt  *time.Time `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at"`
	DetailJSON []byte     `gorm:"type:json" json:"detail"`
	CreatedAt  time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func CreateIngestionJob(ctx context.Context, tenantId string, shopId uint, jobType string, status string) (*IngestionJob, error) {
	now := time.Now()
	job := IngestionJob{
		TenantId:  tenantId,
		ShopId:    shopId,
		Type:      jobType,
		Status:    status,
		StartedAt: &now,
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&job).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

func MarkIngestionJobRunning(ctx context.Context, jobId uint) error {
	db := config.GetDB()
	return db.WithContext(ctx).
		Model(&IngestionJob{}).
		Where("id = ?", jobId).
		Update("status", JobStatusRunning).Error
}

func MarkIngestionJobSuccess(ctx context.Context, jobId uint, detail any) error {
	updates := map[string]interface{}{
		"status":      JobStatusSuccess,
		"finished_at": time.Now(),
	}
	if detail != nil {
		detailJSON, _ := json.Marshal(detail)
		updates["detail_json"] = detailJSON
	}
	db := config.GetDB()
	return db.WithContext(ctx).
		Model(&IngestionJob{}).
		Where("id = ?", jobId).
		Updates(updates).Error
}

func MarkIngestionJobFailed(ctx context.Context, jobId uint, cause error) error {
	detailJSON, _ := json.Marshal(map[string]string{"error": cause.Error()})
	db := config.GetDB()
	return db.WithContext(ctx).
		Model(&IngestionJob{}).
		Where("id = ?", jobId).
		Updates(map[string]interface{}{
			"status":      JobStatusFailed,
			"finished_at": time.Now(),
			"detail_json": detailJSON,
		}).Error
}

// MarkLatestRunningJobFailed finds the most recently started running job for
// the shop and transitions it to failed with the captured error detail.
// Returns (nil) without writing when no running job exists.
func MarkLatestRunningJobFailed(ctx context.Context, shopId uint, cause error) error {
	var job IngestionJob
	db := config.GetDB()
	err := db.WithContext(ctx).
		Where("shop_id = ? AND status = ?", shopId, JobStatusRunning).
		Order("started_at desc").
		Take(&job).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}
	return MarkIngestionJobFailed(ctx, job.ID, cause)
}

func GetIngestionJob(ctx context.Context, jobId uint) (*IngestionJob, error) {
	var job IngestionJob
	db := config.GetDB()
	if err := db.WithContext(ctx).Where("id = ?", jobId).Take(&job).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

func ListIngestionJobs(ctx context.Context, shopId uint, limit int) ([]IngestionJob, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var jobs []IngestionJob
	db := config.GetDB()
	if err := db.WithContext(ctx).
		Where("shop_id = ?", shopId).
		Order("started_at desc").
		Limit(limit).
		Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}
