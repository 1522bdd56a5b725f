package campaign

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusActive    Status = "ACTIVE"
	StatusPaused    Status = "PAUSED"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
)

// ApprovalSettings controls how applications are answered. With
// RequireApproval unset every application is accepted on arrival; otherwise
// AutoAcceptRule, a CEL expression, may accept matching applications.
type ApprovalSettings struct {
	RequireApproval bool   `json:"require_approval"`
	AutoAcceptRule  string `json:"auto_accept_rule,omitempty"`
}

type Campaign struct {
	ID             string                               `gorm:"column:id;primaryKey;type:varchar(32)"`
	BrandID        string                               `gorm:"column:brand_id;index;type:varchar(32);not null"`
	Code           string                               `gorm:"column:code;type:varchar(32)"`
	Slug           string                               `gorm:"column:slug;type:varchar(255)"`
	Title          string                               `gorm:"column:title;type:varchar(255);not null"`
	Description    string                               `gorm:"column:description;type:text"`
	Status         Status                               `gorm:"column:status;index;type:varchar(20);not null;default:'DRAFT'"`
	Budget         decimal.Decimal                      `gorm:"column:budget;type:numeric(20,4);not null;default:0"`
	StartDate      *time.Time                           `gorm:"column:start_date"`
	EndDate        *time.Time                           `gorm:"column:end_date;index"`
	MaxInfluencers int                                  `gorm:"column:max_influencers;not null;default:0"`
	Approval       datatypes.JSONType[ApprovalSettings] `gorm:"column:approval"`
	Requirements   datatypes.JSONMap                    `gorm:"column:requirements"`
	CreatedAt      time.Time                            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time                            `gorm:"column:updated_at;autoUpdateTime"`
}

// IsOpen reports whether the campaign accepts applications and submissions.
func (c *Campaign) IsOpen() bool {
	return c.Status == StatusActive
}

// HasCapacity reports whether one more participant fits. Zero means unlimited.
func (c *Campaign) HasCapacity(participants int64) bool {
	return c.MaxInfluencers <= 0 || participants < int64(c.MaxInfluencers)
}

type CreateCampaignParams struct {
	Title          string
	Description    string
	Budget         decimal.Decimal
	StartDate      *time.Time
	EndDate        *time.Time
	MaxInfluencers int
	// Approval defaults to manual approval when nil.
	Approval     *ApprovalSettings
	Requirements map[string]any
}

// UpdateCampaignParams is a partial update; nil fields are left unchanged.
type UpdateCampaignParams struct {
	Title          *string
	Description    *string
	Budget         *decimal.Decimal
	StartDate      *time.Time
	EndDate        *time.Time
	MaxInfluencers *int
	Approval       *ApprovalSettings
	Requirements   map[string]any
}

type ListCampaignsParams struct {
	BrandID string
	Status  Status
	Cursor  string
	Limit   int
}

// SweepResult summarises one expiry sweep.
type SweepResult struct {
	Scanned   int
	Completed int
	Skipped   int
	Failed    int
}
