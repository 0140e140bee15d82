package usecase

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Sb253/tenantguard/internal/core/domain"
	"github.com/Sb253/tenantguard/internal/core/ports"
)

// AlertDispatcher drains pending isolation incidents and pushes them to an
// alert channel. An isolation violation must page, not just log, so incidents
// are queued durably and retried with backoff until delivered or dead.
type AlertDispatcher struct {
	repo      ports.IncidentRepository
	publisher ports.AlertPublisher
	interval  time.Duration
	batchSize int
	maxRetry  int

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup

	alertSuccessTotal atomic.Int64
	alertFailureTotal atomic.Int64
	alertDeadTotal    atomic.Int64
}

type AlertDispatcherMetrics struct {
	AlertSuccessTotal int64
	AlertFailureTotal int64
	AlertDeadTotal    int64
}

func NewAlertDispatcher(repo ports.IncidentRepository, publisher ports.AlertPublisher, interval time.Duration, batchSize int) *AlertDispatcher {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 50
	}
	return &AlertDispatcher{repo: repo, publisher: publisher, interval: interval, batchSize: batchSize, maxRetry: 5}
}

func (d *AlertDispatcher) Start(parent context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(parent)
	d.cancel = cancel
	d.wg.Add(1)
	go d.loop(ctx)
}

func (d *AlertDispatcher) Close() error {
	d.mu.Lock()
	cancel := d.cancel
	d.cancel = nil
	d.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	d.wg.Wait()
	return nil
}

func (d *AlertDispatcher) loop(ctx context.Context) {
	defer d.wg.Done()
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		if err := d.dispatchBatch(ctx); err != nil {
			log.Printf("alert dispatch batch error: %v", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (d *AlertDispatcher) dispatchBatch(ctx context.Context) error {
	incidents, err := d.repo.FetchPending(ctx, d.batchSize)
	if err != nil {
		return err
	}

	for _, incident := range incidents {
		if err := d.publisher.Publish(ctx, incident); err != nil {
			if markErr := d.markFailure(ctx, incident, err.Error()); markErr != nil {
				return markErr
			}
			d.alertFailureTotal.Add(1)
			continue
		}

		if err := d.repo.MarkDispatched(ctx, incident.ID); err != nil {
			return err
		}
		d.alertSuccessTotal.Add(1)
	}

	return nil
}

func (d *AlertDispatcher) markFailure(ctx context.Context, incident domain.IsolationIncident, errMsg string) error {
	attempts := incident.Attempts + 1
	if attempts >= d.maxRetry {
		if err := d.repo.MarkDead(ctx, incident.ID, attempts, errMsg); err != nil {
			return err
		}
		d.alertDeadTotal.Add(1)
		return nil
	}
	next := time.Now().UTC().Add(backoffDuration(attempts)).Format(time.RFC3339Nano)
	return d.repo.MarkFailed(ctx, incident.ID, attempts, next, errMsg)
}

func (d *AlertDispatcher) Metrics() AlertDispatcherMetrics {
	return AlertDispatcherMetrics{
		AlertSuccessTotal: d.alertSuccessTotal.Load(),
		AlertFailureTotal: d.alertFailureTotal.Load(),
		AlertDeadTotal:    d.alertDeadTotal.Load(),
	}
}

func backoffDuration(attempt int) time.Duration {
	if attempt <= 1 {
		return 1 * time.Second
	}
	d := time.Duration(attempt*attempt) * time.Second
	if d > 5*time.Minute {
		return 5 * time.Minute
	}
	return d
}
