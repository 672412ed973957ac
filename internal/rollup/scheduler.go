package rollup

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"shopledger/backend/internal/service"
)

// Scheduler triggers the monthly roll-up at 02:00 on the first of every
// month, recomputing the month that just ended for every shop.
type Scheduler struct {
	cron *cron.Cron
	svc  *service.Service
}

func NewScheduler(svc *service.Service) *Scheduler {
	return &Scheduler{
		cron: cron.New(),
		svc:  svc,
	}
}

func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc("0 2 1 * *", s.runMonthly); err != nil {
		return err
	}
	s.cron.Start()
	log.Println("[rollup] scheduler started")
	return nil
}

func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Println("[rollup] scheduler stopped")
}

func (s *Scheduler) runMonthly() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	started := time.Now()
	if err := s.svc.RecomputePreviousMonth(ctx, time.Now().UTC()); err != nil {
		log.Printf("[rollup] WARN: monthly roll-up run failed: %v", err)
		return
	}
	log.Printf("[rollup] monthly roll-up completed in %s", time.Since(started).Round(time.Millisecond))
}
