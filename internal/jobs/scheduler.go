package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"snapify/internal/queue"
)

type Enqueuer interface {
	Enqueue(ctx context.Context, task queue.Task) error
}

// Scheduler enqueues periodic maintenance tasks for the worker.
type Scheduler struct {
	cron     *cron.Cron
	queue    Enqueuer
	schedule string
	log      zerolog.Logger
}

func NewScheduler(q Enqueuer, schedule string, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron:     cron.New(cron.WithSeconds()),
		queue:    q,
		schedule: schedule,
		log:      log,
	}
}

// Start registers the retention sweep. It is a no-op without a queue or a
// schedule.
func (s *Scheduler) Start() error {
	if s.queue == nil || s.schedule == "" {
		return nil
	}
	if _, err := s.cron.AddFunc(s.schedule, s.enqueueRetention); err != nil {
		return err
	}
	s.cron.Start()
	s.log.Info().Str("schedule", s.schedule).Msg("retention sweep scheduled")
	return nil
}

// Stop waits for a running job to finish, at most until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
}

func (s *Scheduler) enqueueRetention() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.queue.Enqueue(ctx, queue.Task{Type: queue.TaskRetention}); err != nil {
		s.log.Error().Err(err).Msg("enqueue retention failed")
	}
}
