package task

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Scheduler fires each active task on its cron schedule by enqueueing a job.
type Scheduler struct {
	service *Service
	cron    *cron.Cron
}

func NewScheduler(svc *Service) *Scheduler {
	return &Scheduler{
		service: svc,
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
	}
}

// Register adds every active task to the cron table.
func (s *Scheduler) Register(ctx context.Context) error {
	tasks, err := s.service.EnsureTasks(ctx)
	if err != nil {
		return err
	}

	for _, t := range tasks {
		if !t.IsActive || t.Schedule == "" {
			zap.L().Info("[Scheduler] task not scheduled", zap.String("task", t.Name))
			continue
		}
		name := t.Name
		if _, err := s.cron.AddFunc(t.Schedule, func() { s.fire(name) }); err != nil {
			zap.L().Error("[Scheduler] invalid schedule", zap.String("task", name), zap.String("schedule", t.Schedule), zap.Error(err))
			return err
		}
		zap.L().Info("[Scheduler] task scheduled", zap.String("task", name), zap.String("schedule", t.Schedule))
	}
	return nil
}

func (s *Scheduler) fire(name string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := s.service.Enqueue(ctx, name); err != nil {
		zap.L().Error("[Scheduler] failed to enqueue job", zap.String("task", name), zap.Error(err))
	}
}

// StartScheduler registers the tasks and runs the cron loop for the lifetime
// of the fx app.
func StartScheduler(lc fx.Lifecycle, s *Scheduler) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := s.Register(ctx); err != nil {
				return err
			}
			s.cron.Start()
			zap.L().Info("[Scheduler] started")
			return nil
		},
		OnStop: func(ctx context.Context) error {
			select {
			case <-s.cron.Stop().Done():
			case <-ctx.Done():
			}
			zap.L().Info("[Scheduler] stopped")
			return nil
		},
	})
}
