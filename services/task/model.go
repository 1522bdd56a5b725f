package task

import (
	"time"

	"gorm.io/datatypes"
)

// Names of the scheduled tasks.
const (
	CampaignExpiry   = "campaign_expiry"
	PaymentReconcile = "payment_reconcile"
)

type JobStatus string

const (
	JobPending JobStatus = "pending"
	JobRunning JobStatus = "running"
	JobSuccess JobStatus = "success"
	JobFailed  JobStatus = "failed"
)

type Task struct {
	ID          string    `gorm:"column:id;primaryKey;type:varchar(32)"`
	Name        string    `gorm:"column:name;uniqueIndex;type:varchar(100);not null"`
	Description string    `gorm:"column:description;type:text"`
	Schedule    string    `gorm:"column:schedule;type:varchar(50)"` // cron expression
	IsActive    bool      `gorm:"column:is_active;default:true"`
	CreatedAt   time.Time `gorm:"autoCreateTime"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime"`
	Jobs        []Job     `gorm:"foreignKey:TaskID;references:Name"`
}

// Job is one run of a task.
type Job struct {
	ID          string         `gorm:"column:id;primaryKey;type:varchar(32)"`
	TaskID      string         `gorm:"column:task_id;index;type:varchar(100);not null"`
	Status      JobStatus      `gorm:"column:status;type:varchar(20);default:'pending'"`
	ErrorMsg    string         `gorm:"column:error_msg;type:text"`
	StartedAt   *time.Time     `gorm:"column:started_at"`
	CompletedAt *time.Time     `gorm:"column:completed_at"`
	CreatedAt   time.Time      `gorm:"autoCreateTime"`
	UpdatedAt   time.Time      `gorm:"autoUpdateTime"`
	Metadata    datatypes.JSON `gorm:"column:metadata"`
}

type jobPayload struct {
	JobID string `json:"job_id"`
}
