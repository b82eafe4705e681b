package shopsync

import "encoding/json"

type RunSyncRequest struct {
	Type string `json:"type" binding:"required"`
}

type ScheduleRequest struct {
	IntervalMinutes int    `json:"intervalMinutes" binding:"required"`
	Type            string `json:"type"`
}

type JobResponse struct {
	ID         uint            `json:"id"`
	Type       string          `json:"type"`
	Status     string          `json:"status"`
	StartedAt  *string         `json:"startedAt"`
	FinishedAt *string         `json:"finishedAt"`
	Detail     json.RawMessage `json:"detail,omitempty"`
}

type JobListResponse struct {
	Items []JobResponse `json:"items"`
}

type ShopSyncStatus struct {
	ShopId          uint          `json:"shopId"`
	ShopDomain      string        `json:"shopDomain"`
	Name            string        `json:"name"`
	IsActive        bool          `json:"isActive"`
	LastSyncedAt    *string       `json:"lastSyncedAt"`
	HasScheduledJob bool          `json:"hasScheduledJob"`
	RecentJobs      []JobResponse `json:"recentJobs"`
}

type SyncStatusResponse struct {
	Shops []ShopSyncStatus `json:"shops"`
}
