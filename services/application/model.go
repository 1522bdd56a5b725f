package application

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type Status string

const (
	StatusPending  Status = "PENDING"
	StatusAccepted Status = "ACCEPTED"
	StatusRejected Status = "REJECTED"
)

type ParticipantStatus string

const (
	ParticipantActive  ParticipantStatus = "ACTIVE"
	ParticipantRemoved ParticipantStatus = "REMOVED"
)

type Application struct {
	ID              string            `gorm:"column:id;primaryKey;type:varchar(32)"`
	CampaignID      string            `gorm:"column:campaign_id;type:varchar(32);not null;uniqueIndex:ux_application_campaign_influencer"`
	InfluencerID    string            `gorm:"column:influencer_id;type:varchar(32);not null;uniqueIndex:ux_application_campaign_influencer;index"`
	Status          Status            `gorm:"column:status;type:varchar(20);not null;default:'PENDING'"`
	Message         string            `gorm:"column:message;type:text"`
	ProposedRate    decimal.Decimal   `gorm:"column:proposed_rate;type:numeric(20,4);not null;default:0"`
	ApplicationData datatypes.JSONMap `gorm:"column:application_data"`
	ResponseMessage string            `gorm:"column:response_message;type:text"`
	AppliedAt       time.Time         `gorm:"column:applied_at"`
	RespondedAt     *time.Time        `gorm:"column:responded_at"`
	CreatedAt       time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

func (Application) TableName() string { return "campaign_applications" }

// Participant exists once per (campaign, influencer) and only after an
// accepted application.
type Participant struct {
	ID            string            `gorm:"column:id;primaryKey;type:varchar(32)"`
	CampaignID    string            `gorm:"column:campaign_id;type:varchar(32);not null;uniqueIndex:ux_participant_campaign_influencer"`
	InfluencerID  string            `gorm:"column:influencer_id;type:varchar(32);not null;uniqueIndex:ux_participant_campaign_influencer;index"`
	ApplicationID string            `gorm:"column:application_id;type:varchar(32)"`
	Status        ParticipantStatus `gorm:"column:status;type:varchar(20);not null;default:'ACTIVE'"`
	JoinedAt      time.Time         `gorm:"column:joined_at"`
	CreatedAt     time.Time         `gorm:"column:created_at;autoCreateTime"`
}

func (Participant) TableName() string { return "campaign_participants" }

type ApplyParams struct {
	Message         string
	ProposedRate    decimal.Decimal
	ApplicationData map[string]any
}
