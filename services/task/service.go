package task

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"influencehub/pkg/config"
	queue "influencehub/pkg/task"
	"influencehub/pkg/taskname"
	"influencehub/services/campaign"
	"influencehub/services/payment"

	"github.com/bwmarrin/snowflake"
	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// CampaignSweeper completes campaigns past their end date.
type CampaignSweeper interface {
	ExpireCampaigns(ctx context.Context, now time.Time) (campaign.SweepResult, error)
}

// PaymentReconciler re-settles payments stuck in PROCESSING.
type PaymentReconciler interface {
	ReconcileProcessing(ctx context.Context, now time.Time, olderThan time.Duration) (payment.SweepResult, error)
}

type Service struct {
	db       *gorm.DB
	node     *snowflake.Node
	enqueuer queue.Enqueuer
	now      func() time.Time

	campaigns      CampaignSweeper
	payments       PaymentReconciler
	reconcileAfter time.Duration
	schedules      map[string]string
}

type Params struct {
	fx.In

	DB       *gorm.DB
	Node     *snowflake.Node
	Config   *config.Config
	Enqueuer queue.Enqueuer

	Campaigns CampaignSweeper   `optional:"true"`
	Payments  PaymentReconciler `optional:"true"`
}

func NewService(p Params) *Service {
	mp := p.Config.Marketplace
	s := &Service{
		db:             p.DB,
		node:           p.Node,
		enqueuer:       p.Enqueuer,
		now:            time.Now,
		campaigns:      p.Campaigns,
		payments:       p.Payments,
		reconcileAfter: mp.ReconcileAfter,
		schedules: map[string]string{
			CampaignExpiry:   mp.SweepSchedule,
			PaymentReconcile: mp.ReconcileSchedule,
		},
	}
	if s.reconcileAfter <= 0 {
		s.reconcileAfter = 10 * time.Minute
	}
	return s
}

var descriptions = map[string]string{
	CampaignExpiry:   "Complete ACTIVE and PAUSED campaigns past their end date",
	PaymentReconcile: "Re-settle payments left in PROCESSING",
}

var taskTypes = map[string]string{
	CampaignExpiry:   taskname.CampaignExpiryRun,
	PaymentReconcile: taskname.PaymentReconcileRun,
}

// EnsureTasks registers the scheduled tasks, refreshing their schedule from
// configuration. Inactive tasks keep their flag.
func (s *Service) EnsureTasks(ctx context.Context) ([]Task, error) {
	tasks := make([]Task, 0, len(s.schedules))
	for _, name := range []string{CampaignExpiry, PaymentReconcile} {
		var t Task
		err := s.db.WithContext(ctx).
			Where(Task{Name: name}).
			Attrs(Task{ID: s.node.Generate().String(), Description: descriptions[name], IsActive: true}).
			Assign(Task{Schedule: s.schedules[name]}).
			FirstOrCreate(&t).Error
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

// Enqueue records a pending job for the named task and hands it to the worker.
func (s *Service) Enqueue(ctx context.Context, name string) (*Job, error) {
	taskType, ok := taskTypes[name]
	if !ok {
		return nil, fmt.Errorf("unknown task %q", name)
	}

	var t Task
	if err := s.db.WithContext(ctx).Where("name = ?", name).First(&t).Error; err == nil && !t.IsActive {
		zap.L().Info("task is inactive, skipping", zap.String("task", name))
		return nil, nil
	}

	job := &Job{
		ID:     s.node.Generate().String(),
		TaskID: name,
		Status: JobPending,
	}
	if err := s.db.WithContext(ctx).Create(job).Error; err != nil {
		return nil, err
	}

	payload, _ := json.Marshal(jobPayload{JobID: job.ID})
	_, err := s.enqueuer.Enqueue(ctx, asynq.NewTask(taskType, payload),
		asynq.Queue(queue.QueueDefault),
		asynq.MaxRetry(0),
		asynq.Unique(time.Minute),
	)
	if err != nil {
		s.finish(ctx, job.ID, nil, err)
		return nil, err
	}

	zap.L().Info("enqueued scheduled job", zap.String("task", name), zap.String("job_id", job.ID))
	return job, nil
}

func (s *Service) HandleCampaignExpiry(ctx context.Context, t *asynq.Task) error {
	return s.handle(ctx, t, CampaignExpiry, func(ctx context.Context) (any, error) {
		if s.campaigns == nil {
			return nil, fmt.Errorf("campaign sweeper not configured")
		}
		return s.campaigns.ExpireCampaigns(ctx, s.now())
	})
}

func (s *Service) HandlePaymentReconcile(ctx context.Context, t *asynq.Task) error {
	return s.handle(ctx, t, PaymentReconcile, func(ctx context.Context) (any, error) {
		if s.payments == nil {
			return nil, fmt.Errorf("payment reconciler not configured")
		}
		return s.payments.ReconcileProcessing(ctx, s.now(), s.reconcileAfter)
	})
}

func (s *Service) handle(ctx context.Context, t *asynq.Task, name string, run func(context.Context) (any, error)) error {
	var payload jobPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil || payload.JobID == "" {
		zap.L().Error("invalid job payload", zap.String("task", name), zap.Error(err))
		return fmt.Errorf("invalid job payload: %w", asynq.SkipRetry)
	}

	if err := s.RunJob(ctx, payload.JobID, run); err != nil {
		zap.L().Error("scheduled job failed", zap.String("task", name), zap.String("job_id", payload.JobID), zap.Error(err))
		return err
	}
	return nil
}

// RunJob marks the job running, executes run and stores the outcome with the
// result as metadata.
func (s *Service) RunJob(ctx context.Context, jobID string, run func(context.Context) (any, error)) error {
	started := s.now().UTC()
	res := s.db.WithContext(ctx).Model(&Job{}).
		Where("id = ? AND status = ?", jobID, JobPending).
		Updates(map[string]any{"status": JobRunning, "started_at": started})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		zap.L().Warn("job is not pending, skipping", zap.String("job_id", jobID))
		return nil
	}

	result, err := run(ctx)
	s.finish(ctx, jobID, result, err)

	zap.L().Info("scheduled job finished",
		zap.String("job_id", jobID),
		zap.Duration("duration", s.now().Sub(started)),
		zap.Bool("ok", err == nil),
	)
	return err
}

func (s *Service) finish(ctx context.Context, jobID string, result any, runErr error) {
	now := s.now().UTC()
	updates := map[string]any{"status": JobSuccess, "completed_at": now}
	if runErr != nil {
		updates["status"] = JobFailed
		updates["error_msg"] = runErr.Error()
	}
	if result != nil {
		if b, err := json.Marshal(result); err == nil {
			updates["metadata"] = datatypes.JSON(b)
		}
	}
	if err := s.db.WithContext(ctx).Model(&Job{}).Where("id = ?", jobID).Updates(updates).Error; err != nil {
		zap.L().Error("failed to record job outcome", zap.String("job_id", jobID), zap.Error(err))
	}
}

func (s *Service) ListJobs(ctx context.Context, name string, limit int) ([]Job, error) {
	if limit <= 0 || limit > 250 {
		limit = 50
	}
	var jobs []Job
	q := s.db.WithContext(ctx).Order("created_at DESC").Limit(limit)
	if name != "" {
		q = q.Where("task_id = ?", name)
	}
	return jobs, q.Find(&jobs).Error
}
