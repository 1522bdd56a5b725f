package content

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusApproved  Status = "APPROVED"
	StatusRejected  Status = "REJECTED"
	StatusCompleted Status = "COMPLETED"
	StatusPaid      Status = "PAID"
)

type PostStatus string

const (
	PostPublished PostStatus = "PUBLISHED"
	PostRemoved   PostStatus = "REMOVED"
)

type Submission struct {
	ID           string          `gorm:"column:id;primaryKey;type:varchar(32)"`
	CampaignID   string          `gorm:"column:campaign_id;type:varchar(32);not null;uniqueIndex:ux_submission_campaign_influencer"`
	InfluencerID string          `gorm:"column:influencer_id;type:varchar(32);not null;uniqueIndex:ux_submission_campaign_influencer;index"`
	Title        string          `gorm:"column:title;type:varchar(255)"`
	Description  string          `gorm:"column:description;type:text"`
	ContentType  string          `gorm:"column:content_type;type:varchar(50)"`
	Platform     string          `gorm:"column:platform;type:varchar(50)"`
	Amount       decimal.Decimal `gorm:"column:amount;type:numeric(20,4);not null;default:0"`
	Status       Status          `gorm:"column:status;index;type:varchar(20);not null;default:'PENDING'"`
	Feedback     string          `gorm:"column:feedback;type:text"`
	SubmittedAt  time.Time       `gorm:"column:submitted_at"`
	ApprovedAt   *time.Time      `gorm:"column:approved_at"`
	CompletedAt  *time.Time      `gorm:"column:completed_at"`
	PaidAt       *time.Time      `gorm:"column:paid_at"`
	CreatedAt    time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (Submission) TableName() string { return "content_submissions" }

type File struct {
	ID           string    `gorm:"column:id;primaryKey;type:varchar(32)"`
	ContentID    string    `gorm:"column:content_id;index;type:varchar(32);not null"`
	FileURL      string    `gorm:"column:file_url;type:text;not null"`
	FileType     string    `gorm:"column:file_type;type:varchar(100)"`
	FileSize     int64     `gorm:"column:file_size"`
	ThumbnailURL string    `gorm:"column:thumbnail_url;type:text"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (File) TableName() string { return "content_files" }

// Metrics is the snapshot shared by content and post performance rows.
type Metrics struct {
	Views       int64             `gorm:"column:views"`
	Likes       int64             `gorm:"column:likes"`
	Comments    int64             `gorm:"column:comments"`
	Shares      int64             `gorm:"column:shares"`
	Saves       int64             `gorm:"column:saves"`
	Reach       int64             `gorm:"column:reach"`
	Impressions int64             `gorm:"column:impressions"`
	Extra       datatypes.JSONMap `gorm:"column:extra"`
}

var metricColumns = []string{"views", "likes", "comments", "shares", "saves", "reach", "impressions", "extra", "recorded_at", "updated_at"}

// EngagementRate is (likes+comments+shares+saves)/reach, zero without reach.
func (m Metrics) EngagementRate() decimal.Decimal {
	if m.Reach <= 0 {
		return decimal.Zero
	}
	engaged := decimal.NewFromInt(m.Likes + m.Comments + m.Shares + m.Saves)
	return engaged.DivRound(decimal.NewFromInt(m.Reach), 4)
}

// Performance holds the latest metrics of a submission, one row per content.
type Performance struct {
	ID        string `gorm:"column:id;primaryKey;type:varchar(32)"`
	ContentID string `gorm:"column:content_id;uniqueIndex;type:varchar(32);not null"`

	Metrics `gorm:"embedded"`

	RecordedAt time.Time `gorm:"column:recorded_at"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time `gorm:"column:updated_at"`
}

func (Performance) TableName() string { return "content_performances" }

type PublishedPost struct {
	ID          string     `gorm:"column:id;primaryKey;type:varchar(32)"`
	ContentID   string     `gorm:"column:content_id;index;type:varchar(32);not null"`
	Platform    string     `gorm:"column:platform;type:varchar(50);not null"`
	PostURL     string     `gorm:"column:post_url;type:text;not null"`
	PublishedAt time.Time  `gorm:"column:published_at"`
	Status      PostStatus `gorm:"column:status;type:varchar(20);not null;default:'PUBLISHED'"`
	CreatedAt   time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (PublishedPost) TableName() string { return "published_posts" }

type PostPerformance struct {
	ID     string `gorm:"column:id;primaryKey;type:varchar(32)"`
	PostID string `gorm:"column:post_id;uniqueIndex;type:varchar(32);not null"`

	Metrics `gorm:"embedded"`

	RecordedAt time.Time `gorm:"column:recorded_at"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time `gorm:"column:updated_at"`
}

func (PostPerformance) TableName() string { return "post_performances" }

type FileParams struct {
	FileURL      string
	FileType     string
	FileSize     int64
	ThumbnailURL string
}

type CreateSubmissionParams struct {
	Title       string
	Description string
	ContentType string
	Platform    string
	Amount      decimal.Decimal
	Files       []FileParams
}

type UpdateSubmissionParams struct {
	Title       *string
	Description *string
	ContentType *string
	Platform    *string
	Amount      *decimal.Decimal
}

type PublishPostParams struct {
	Platform    string
	PostURL     string
	PublishedAt time.Time
}

type ListSubmissionsParams struct {
	CampaignID   string
	InfluencerID string
	Status       Status
}
