package worker

import (
	"context"
	"time"

	"github.com/ds124wfegd/timecapsule/internal/metrics"
	"github.com/ds124wfegd/timecapsule/internal/service"

	"github.com/sirupsen/logrus"
)

// SweepFunc is one of the dispatcher sweeps.
type SweepFunc func(ctx context.Context) (service.SweepResult, error)

// Locker guards a sweep across instances. ok is false when another
// instance already holds the lock.
type Locker interface {
	Acquire(ctx context.Context, name string) (release func(), ok bool, err error)
}

type SweepWorker struct {
	name    string
	sweep   SweepFunc
	locker  Locker
	timeout time.Duration
}

// NewSweepWorker wraps sweep with locking, logging and metrics. locker may be nil.
func NewSweepWorker(name string, sweep SweepFunc, locker Locker, timeout time.Duration) *SweepWorker {
	return &SweepWorker{
		name:    name,
		sweep:   sweep,
		locker:  locker,
		timeout: timeout,
	}
}

func (w *SweepWorker) Name() string {
	return w.name
}

// Run executes one sweep. It is the scheduler callback.
func (w *SweepWorker) Run(ctx context.Context) {
	log := logrus.WithField("sweep", w.name)

	if w.locker != nil {
		release, ok, err := w.locker.Acquire(ctx, w.name)
		if err != nil {
			// без блокировки не запускаем, следующий тик попробует снова
			log.Errorf("Failed to acquire sweep lock: %v", err)
			metrics.SweepRuns.WithLabelValues(w.name, "error").Inc()
			return
		}
		if !ok {
			log.Info("Sweep is running on another instance, skipping")
			metrics.SweepRuns.WithLabelValues(w.name, "skipped").Inc()
			return
		}
		defer release()
	}

	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	log.Info("Starting sweep")
	start := time.Now()

	res, err := w.sweep(ctx)

	metrics.SweepDuration.WithLabelValues(w.name).Observe(time.Since(start).Seconds())
	metrics.SweepRecords.WithLabelValues(w.name, "succeeded").Add(float64(res.Succeeded))
	metrics.SweepRecords.WithLabelValues(w.name, "failed").Add(float64(res.Failed))
	metrics.SweepRecords.WithLabelValues(w.name, "skipped").Add(float64(res.Skipped))

	if err != nil {
		log.Errorf("Sweep failed: %v", err)
		metrics.SweepRuns.WithLabelValues(w.name, "error").Inc()
		return
	}
	metrics.SweepRuns.WithLabelValues(w.name, "ok").Inc()

	if res.Selected == 0 {
		log.Info("Nothing to process")
		return
	}

	log.WithFields(logrus.Fields{
		"selected":  res.Selected,
		"succeeded": res.Succeeded,
		"failed":    res.Failed,
		"skipped":   res.Skipped,
		"duration":  time.Since(start),
	}).Info("Sweep completed")

	// Если есть неудачные попытки, логируем предупреждение
	if res.Failed > 0 {
		log.Warnf("%d records failed and will be retried on the next run", res.Failed)
	}
}
