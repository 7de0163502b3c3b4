package repository

import (
	"context"
	"errors"
	"time"

	"qtc-marketplace/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CartRepository persists serialized carts in the cart_records table.
type CartRepository interface {
	Load(ctx context.Context, cartID string) ([]byte, error)
	Save(ctx context.Context, cartID string, payload []byte) error
	Delete(ctx context.Context, cartID string) error
}

type cartRepoImpl struct {
	db *gorm.DB
}

func NewCartRepository(db *gorm.DB) CartRepository {
	return &cartRepoImpl{db: db}
}

// Load returns nil without error when the cart was never saved.
func (r *cartRepoImpl) Load(ctx context.Context, cartID string) ([]byte, error) {
	var rec model.CartRecord
	err := r.db.WithContext(ctx).Where("cart_id = ?", cartID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return []byte(rec.Payload), nil
}

func (r *cartRepoImpl) Save(ctx context.Context, cartID string, payload []byte) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "cart_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"payload", "updated_at"}),
	}).Create(&model.CartRecord{
		CartID:    cartID,
		Payload:   string(payload),
		UpdatedAt: time.Now(),
	}).Error
}

func (r *cartRepoImpl) Delete(ctx context.Context, cartID string) error {
	return r.db.WithContext(ctx).Where("cart_id = ?", cartID).Delete(&model.CartRecord{}).Error
}
