package payment

import (
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
	StatusCancelled  Status = "CANCELLED"
)

// Payment is a brand's payout to an influencer, optionally for one content
// submission. ActiveContentID mirrors ContentID while the payment is PENDING,
// PROCESSING or COMPLETED and is cleared once it fails or is cancelled, so the
// unique index allows one live payment per content.
type Payment struct {
	ID                 string          `gorm:"column:id;primaryKey;type:varchar(32)"`
	Reference          string          `gorm:"column:reference;type:varchar(32);index"`
	ContentID          *string         `gorm:"column:content_id;type:varchar(32);index"`
	ActiveContentID    *string         `gorm:"column:active_content_id;type:varchar(32);uniqueIndex"`
	InfluencerID       string          `gorm:"column:influencer_id;type:varchar(32);not null;index"`
	BrandID            string          `gorm:"column:brand_id;type:varchar(32);not null;index"`
	Amount             decimal.Decimal `gorm:"column:amount;type:numeric(20,4);not null"`
	PlatformFee        decimal.Decimal `gorm:"column:platform_fee;type:numeric(28,8);not null"`
	NetAmount          decimal.Decimal `gorm:"column:net_amount;type:numeric(28,8);not null"`
	Description        string          `gorm:"column:description;type:text"`
	Status             Status          `gorm:"column:status;index;type:varchar(20);not null;default:'PENDING'"`
	TransactionID      string          `gorm:"column:transaction_id;type:varchar(64)"`
	FailureReason      string          `gorm:"column:failure_reason;type:text"`
	SettlementAttempts int             `gorm:"column:settlement_attempts;not null;default:0"`
	ProcessedAt        *time.Time      `gorm:"column:processed_at"`
	CreatedAt          time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (Payment) TableName() string { return "payments" }

// Earnings accumulates what a user has been paid. PendingAmount is computed
// on read from the user's open payments.
type Earnings struct {
	ID            string          `gorm:"column:id;primaryKey;type:varchar(32)"`
	UserID        string          `gorm:"column:user_id;type:varchar(32);not null;uniqueIndex"`
	TotalEarned   decimal.Decimal `gorm:"column:total_earned;type:numeric(28,8);not null;default:0"`
	TotalPaid     decimal.Decimal `gorm:"column:total_paid;type:numeric(28,8);not null;default:0"`
	LastPayoutAt  *time.Time      `gorm:"column:last_payout_at"`
	PendingAmount decimal.Decimal `gorm:"-"`
	CreatedAt     time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time       `gorm:"column:updated_at"`
}

func (Earnings) TableName() string { return "user_earnings" }

type CreatePaymentParams struct {
	ContentID    string
	InfluencerID string
	Amount       decimal.Decimal
	Description  string
}

type ProcessPaymentParams struct {
	// TransactionID is the external reference; generated by the settler when empty.
	TransactionID string
}

type ListPaymentsParams struct {
	InfluencerID string
	BrandID      string
	Status       Status
	Cursor       string
	Limit        int
}

// StatusStat aggregates the payments in one status.
type StatusStat struct {
	Status    Status          `gorm:"column:status"`
	Count     int64           `gorm:"column:count"`
	Amount    decimal.Decimal `gorm:"column:amount"`
	NetAmount decimal.Decimal `gorm:"column:net_amount"`
}

type Stats struct {
	ByStatus  []StatusStat
	Count     int64
	TotalPaid decimal.Decimal
}

// SweepResult summarises one reconciliation run. Retrying counts payments
// still PROCESSING after a transient settlement error.
type SweepResult struct {
	Scanned   int
	Completed int
	Declined  int
	Retrying  int
	Failed    int
}
