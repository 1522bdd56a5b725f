package content

import (
	"context"
	"time"

	"gorm.io/gorm"
)

var transitions = map[Status][]Status{
	StatusPending:   {StatusApproved, StatusRejected},
	StatusApproved:  {StatusCompleted},
	StatusRejected:  {StatusApproved, StatusRejected},
	StatusCompleted: {StatusPaid},
	StatusPaid:      {},
}

func Statuses() []Status {
	return []Status{StatusPending, StatusApproved, StatusRejected, StatusCompleted, StatusPaid}
}

func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Editable reports whether the influencer may still change or delete the
// submission.
func (s Status) Editable() bool {
	return s == StatusPending || s == StatusRejected
}

// AcceptsFiles reports whether files may still be attached.
func (s Status) AcceptsFiles() bool {
	return s != StatusCompleted && s != StatusPaid
}

// MarkPaid moves a COMPLETED submission to PAID inside tx. It reports false
// when the submission is not COMPLETED.
func MarkPaid(ctx context.Context, tx *gorm.DB, id string, now time.Time) (bool, error) {
	res := tx.WithContext(ctx).Model(&Submission{}).
		Where("id = ? AND status = ?", id, StatusCompleted).
		Updates(map[string]any{"status": StatusPaid, "paid_at": now, "updated_at": now})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
