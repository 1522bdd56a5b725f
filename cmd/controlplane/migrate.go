package main

import (
	"influencehub/services/application"
	"influencehub/services/campaign"
	"influencehub/services/content"
	"influencehub/services/notification"
	"influencehub/services/payment"
	"influencehub/services/task"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

func models() []any {
	return []any{
		&campaign.Campaign{},
		&application.Application{},
		&application.Participant{},
		&content.Submission{},
		&content.File{},
		&content.Performance{},
		&content.PublishedPost{},
		&content.PostPerformance{},
		&payment.Payment{},
		&payment.Earnings{},
		&notification.Notification{},
		&task.Task{},
		&task.Job{},
	}
}

func migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(models()...); err != nil {
		zap.L().Error("failed to migrate schema", zap.Error(err))
		return err
	}
	zap.L().Info("schema migrated")
	return nil
}
