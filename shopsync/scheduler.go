package shopsync

import (
	"context"
	"errors"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shoplytics/analytics_backend/config"
	"github.com/shoplytics/analytics_backend/models"
	"github.com/shoplytics/analytics_backend/utils"
)

type syncFn func(ctx context.Context, shopId uint) (*SyncStats, error)

type customTrigger struct {
	interval time.Duration
	jobType  string
	stopCh   chan struct{}
}

// Scheduler owns the recurring sync triggers: a delta pass over every active
// shop every 15 minutes, a full pass every 6 hours, and an optional custom
// cadence per shop. Constructed once at process start; no package-level state.
type Scheduler struct {
	deltaInterval time.Duration
	fullInterval  time.Duration

	fullSyncFn  syncFn
	deltaSyncFn syncFn

	mu       sync.Mutex
	triggers map[uint]*customTrigger
	stopCh   chan struct{}
	started  bool
}

func NewScheduler() *Scheduler {
	return &Scheduler{
		deltaInterval: durationFromEnv("SYNC_DELTA_INTERVAL_MIN", 15, time.Minute),
		fullInterval:  durationFromEnv("SYNC_FULL_INTERVAL_HOUR", 6, time.Hour),
		fullSyncFn:    FullSync,
		deltaSyncFn:   DeltaSync,
		triggers:      map[uint]*customTrigger{},
		stopCh:        make(chan struct{}),
	}
}

func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	// Stop closed the previous channel; the loops need a live one or a
	// restarted scheduler would exit both loops immediately.
	s.stopCh = make(chan struct{})
	stopCh := s.stopCh
	s.mu.Unlock()

	go s.loop(s.deltaInterval, models.JobTypeScheduledDelta, stopCh)
	go s.loop(s.fullInterval, models.JobTypeScheduledFull, stopCh)
}

func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}
	s.started = false
	close(s.stopCh)
	for shopId, trigger := range s.triggers {
		close(trigger.stopCh)
		delete(s.triggers, shopId)
	}
}

func (s *Scheduler) loop(interval time.Duration, jobType string, stopCh <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.RunPass(context.Background(), jobType)
		case <-stopCh:
			return
		}
	}
}

// RunPass walks every active shop once and runs the sync matching jobType.
// Per-shop failures are recorded on the job row and do not abort the pass.
func (s *Scheduler) RunPass(ctx context.Context, jobType string) {
	logger := config.GetLogger()

	shops, err := models.ListActiveShops(ctx)
	if err != nil {
		config.LogError(logger, "shopsync", "RunPass", "list active shops", jobType, err)
		return
	}

	for i := range shops {
		s.syncShop(ctx, &shops[i], jobType)
	}
}

func (s *Scheduler) syncShop(ctx context.Context, shop *models.Shop, jobType string) {
	logger := config.GetLogger()
	ctx = utils.SetTenantIdInContext(ctx, shop.TenantId)

	job, err := models.CreateIngestionJob(ctx, shop.TenantId, shop.ID, jobType, models.JobStatusRunning)
	if err != nil {
		config.LogError(logger, "shopsync", "syncShop", "create job", shop.ID, err)
		return
	}

	stats, err := s.runForType(ctx, shop.ID, jobType)
	if err != nil {
		if markErr := models.MarkLatestRunningJobFailed(ctx, shop.ID, err); markErr != nil {
			config.LogError(logger, "shopsync", "syncShop", "mark job failed", shop.ID, markErr)
		}
		config.LogError(logger, "shopsync", "syncShop", jobType, shop.ShopDomain, err)
		return
	}

	if err := models.MarkIngestionJobSuccess(ctx, job.ID, stats); err != nil {
		config.LogError(logger, "shopsync", "syncShop", "mark job success", shop.ID, err)
	}
}

func (s *Scheduler) runForType(ctx context.Context, shopId uint, jobType string) (*SyncStats, error) {
	switch jobType {
	case models.JobTypeFullSync, models.JobTypeScheduledFull:
		return s.fullSyncFn(ctx, shopId)
	case models.JobTypeDelta, models.JobTypeScheduledDelta:
		return s.deltaSyncFn(ctx, shopId)
	default:
		return nil, errors.New("unknown sync type: " + jobType)
	}
}

// StartCustomTrigger registers a per-shop recurring sync at a non-default
// cadence. A second registration for the same shop replaces the first.
func (s *Scheduler) StartCustomTrigger(shop *models.Shop, interval time.Duration, jobType string) error {
	if interval < time.Minute {
		return errors.New("interval must be at least one minute")
	}
	switch jobType {
	case models.JobTypeScheduledFull, models.JobTypeScheduledDelta:
	default:
		return errors.New("unknown sync type: " + jobType)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.triggers[shop.ID]; ok {
		close(existing.stopCh)
	}
	trigger := &customTrigger{
		interval: interval,
		jobType:  jobType,
		stopCh:   make(chan struct{}),
	}
	s.triggers[shop.ID] = trigger

	shopCopy := *shop
	go func() {
		ticker := time.NewTicker(trigger.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.syncShop(context.Background(), &shopCopy, trigger.jobType)
			case <-trigger.stopCh:
				return
			}
		}
	}()
	return nil
}

// StopCustomTrigger removes the shop's custom trigger. Returns false when no
// trigger was registered.
func (s *Scheduler) StopCustomTrigger(shopId uint) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	trigger, ok := s.triggers[shopId]
	if !ok {
		return false
	}
	close(trigger.stopCh)
	delete(s.triggers, shopId)
	return true
}

func (s *Scheduler) HasCustomTrigger(shopId uint) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.triggers[shopId]
	return ok
}

func durationFromEnv(key string, fallback int, unit time.Duration) time.Duration {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return time.Duration(n) * unit
		}
	}
	return time.Duration(fallback) * unit
}
