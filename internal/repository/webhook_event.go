package repository

import (
	"context"
	"errors"
	"time"

	"qtc-marketplace/internal/model"

	"gorm.io/gorm"
)

type WebhookEventRepository interface {
	Exists(ctx context.Context, provider model.Provider, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, provider model.Provider, eventID, eventType string) error
}

type webhookEventRepositoryImpl struct {
	db *gorm.DB
}

func NewWebhookEventRepository(db *gorm.DB) WebhookEventRepository {
	return &webhookEventRepositoryImpl{db: db}
}

func (r *webhookEventRepositoryImpl) Exists(ctx context.Context, provider model.Provider, eventID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.WebhookEvent{}).
		Where("event_id = ? AND provider = ?", eventID, provider).
		Count(&count).Error

	return count > 0, err
}

// MarkProcessed is idempotent: recording the same event twice is not an error.
func (r *webhookEventRepositoryImpl) MarkProcessed(ctx context.Context, provider model.Provider, eventID string, eventType string) error {
	err := r.db.WithContext(ctx).Create(&model.WebhookEvent{
		EventID:     eventID,
		Provider:    string(provider),
		EventType:   eventType,
		ProcessedAt: time.Now(),
	}).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil
	}
	return err
}
