package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/adhocore/gronx"
	"github.com/sirupsen/logrus"
)

type Job struct {
	Name string
	Cron string
	Run  func(ctx context.Context)
}

// Scheduler runs each job on its cron expression. A job never overlaps
// itself: the next tick is computed only after the previous run returns.
type Scheduler struct {
	jobs []Job
	loc  *time.Location
	now  func() time.Time
	wg   sync.WaitGroup
}

func NewScheduler(loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	return &Scheduler{loc: loc, now: time.Now}
}

func (s *Scheduler) Add(name, expr string, run func(ctx context.Context)) error {
	if !gronx.IsValid(expr) {
		return fmt.Errorf("invalid cron expression for %s: %q", name, expr)
	}
	s.jobs = append(s.jobs, Job{Name: name, Cron: expr, Run: run})
	return nil
}

// NextRun returns the first tick of expr strictly after t.
func (s *Scheduler) NextRun(expr string, t time.Time) (time.Time, error) {
	return gronx.NextTickAfter(expr, t.In(s.loc), false)
}

func (s *Scheduler) Start(ctx context.Context) {
	for _, job := range s.jobs {
		s.wg.Add(1)
		go func(job Job) {
			defer s.wg.Done()
			s.loop(ctx, job)
		}(job)
	}
}

// Wait blocks until every job loop has exited.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, job Job) {
	log := logrus.WithFields(logrus.Fields{"job": job.Name, "cron": job.Cron})
	log.Info("Scheduled job started")

	for {
		next, err := s.NextRun(job.Cron, s.now())
		if err != nil {
			log.Errorf("Failed to compute next run: %v", err)
			if !sleep(ctx, 30*time.Second) {
				log.Info("Scheduled job stopped")
				return
			}
			continue
		}

		log.WithField("next_run", next).Debug("Waiting for next run")
		if !sleep(ctx, time.Until(next)) {
			log.Info("Scheduled job stopped")
			return
		}

		job.Run(ctx)
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d < 0 {
		d = 0
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
