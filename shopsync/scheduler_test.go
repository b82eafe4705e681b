package shopsync

import (
	"context"
	"testing"
	"time"

	"github.com/shoplytics/analytics_backend/models"
)

func TestRunForTypeDispatch(t *testing.T) {
	var fullCalls, deltaCalls int
	s := &Scheduler{
		fullSyncFn: func(ctx context.Context, shopId uint) (*SyncStats, error) {
			fullCalls++
			return &SyncStats{}, nil
		},
		deltaSyncFn: func(ctx context.Context, shopId uint) (*SyncStats, error) {
			deltaCalls++
			return &SyncStats{}, nil
		},
		triggers: map[uint]*customTrigger{},
		stopCh:   make(chan struct{}),
	}

	ctx := context.Background()
	for _, jobType := range []string{models.JobTypeFullSync, models.JobTypeScheduledFull} {
		if _, err := s.runForType(ctx, 1, jobType); err != nil {
			t.Fatalf("runForType(%s): %v", jobType, err)
		}
	}
	for _, jobType := range []string{models.JobTypeDelta, models.JobTypeScheduledDelta} {
		if _, err := s.runForType(ctx, 1, jobType); err != nil {
			t.Fatalf("runForType(%s): %v", jobType, err)
		}
	}
	if fullCalls != 2 || deltaCalls != 2 {
		t.Fatalf("dispatch counts full=%d delta=%d; want 2/2", fullCalls, deltaCalls)
	}

	if _, err := s.runForType(ctx, 1, "bogus"); err == nil {
		t.Fatal("expected error for unknown sync type")
	}
}

func TestCustomTriggerRegistry(t *testing.T) {
	s := NewScheduler()
	shop := &models.Shop{ID: 7, TenantId: "t-1", ShopDomain: "seven.myshopify.com"}

	if s.HasCustomTrigger(shop.ID) {
		t.Fatal("no trigger expected before registration")
	}

	if err := s.StartCustomTrigger(shop, 30*time.Second, models.JobTypeScheduledDelta); err == nil {
		t.Fatal("expected error for sub-minute interval")
	}
	if err := s.StartCustomTrigger(shop, 5*time.Minute, "full-sync-now"); err == nil {
		t.Fatal("expected error for unknown job type")
	}

	if err := s.StartCustomTrigger(shop, 5*time.Minute, models.JobTypeScheduledDelta); err != nil {
		t.Fatalf("StartCustomTrigger: %v", err)
	}
	if !s.HasCustomTrigger(shop.ID) {
		t.Fatal("trigger should be registered")
	}

	// Replacing keeps exactly one registration.
	if err := s.StartCustomTrigger(shop, 10*time.Minute, models.JobTypeScheduledFull); err != nil {
		t.Fatalf("StartCustomTrigger(replace): %v", err)
	}
	if !s.HasCustomTrigger(shop.ID) {
		t.Fatal("trigger should still be registered after replacement")
	}

	if !s.StopCustomTrigger(shop.ID) {
		t.Fatal("StopCustomTrigger should report removal")
	}
	if s.HasCustomTrigger(shop.ID) {
		t.Fatal("trigger should be gone after stop")
	}
	if s.StopCustomTrigger(shop.ID) {
		t.Fatal("second stop should report nothing to remove")
	}
}

func TestSchedulerRestart(t *testing.T) {
	s := NewScheduler()
	s.Start()
	s.Stop()
	s.Start()
	defer s.Stop()

	s.mu.Lock()
	stopCh := s.stopCh
	s.mu.Unlock()

	// A restarted scheduler must run off a live stop channel, not the one
	// Stop already closed.
	select {
	case <-stopCh:
		t.Fatal("restarted scheduler reuses a closed stop channel")
	default:
	}
}

func TestDurationFromEnv(t *testing.T) {
	t.Setenv("SYNC_DELTA_INTERVAL_MIN", "")
	if got := durationFromEnv("SYNC_DELTA_INTERVAL_MIN", 15, time.Minute); got != 15*time.Minute {
		t.Fatalf("default interval = %v; want 15m", got)
	}
	t.Setenv("SYNC_DELTA_INTERVAL_MIN", "5")
	if got := durationFromEnv("SYNC_DELTA_INTERVAL_MIN", 15, time.Minute); got != 5*time.Minute {
		t.Fatalf("interval = %v; want 5m", got)
	}
	t.Setenv("SYNC_DELTA_INTERVAL_MIN", "-2")
	if got := durationFromEnv("SYNC_DELTA_INTERVAL_MIN", 15, time.Minute); got != 15*time.Minute {
		t.Fatalf("negative value must fall back; got %v", got)
	}
}
