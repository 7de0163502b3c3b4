package repository

import (
	"context"
	"errors"
	"time"

	"qtc-marketplace/internal/model"

	"gorm.io/gorm"
)

type OrderRepository interface {
	Create(ctx context.Context, tx *gorm.DB, order *model.Order) error
	CreateOrderItems(ctx context.Context, tx *gorm.DB, items []*model.OrderItem) error
	FindByOrderID(ctx context.Context, orderID string) (*model.Order, error)
	FindByReference(ctx context.Context, provider model.Provider, reference string) (*model.Order, error)
	UpdateStatus(ctx context.Context, tx *gorm.DB, orderID, status string, outcome model.Outcome) (bool, error)
	GetOrderItems(ctx context.Context, tx *gorm.DB, orderID string) ([]*model.OrderItem, error)
	ListPending(ctx context.Context, completion model.Completion) ([]*model.Order, error)
}

var ErrOrderNotFound = errors.New("order not found")

type orderRepoImpl struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) OrderRepository {
	return &orderRepoImpl{
		db: db,
	}
}

func (r *orderRepoImpl) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *orderRepoImpl) Create(ctx context.Context, tx *gorm.DB, order *model.Order) error {
	return r.conn(tx).WithContext(ctx).Create(order).Error
}

func (r *orderRepoImpl) CreateOrderItems(ctx context.Context, tx *gorm.DB, items []*model.OrderItem) error {
	if len(items) == 0 {
		return nil
	}
	return r.conn(tx).WithContext(ctx).Create(&items).Error
}

func (r *orderRepoImpl) FindByOrderID(ctx context.Context, orderID string) (*model.Order, error) {
	var order model.Order
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}

	return &order, nil
}

func (r *orderRepoImpl) FindByReference(ctx context.Context, provider model.Provider, reference string) (*model.Order, error) {
	var order model.Order
	err := r.db.WithContext(ctx).
		Where("provider = ? AND reference = ?", provider, reference).
		Order("created_at DESC").
		First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}

	return &order, nil
}

// UpdateStatus records the latest gateway status. Terminal orders never change again;
// the returned flag reports whether a row was updated.
func (r *orderRepoImpl) UpdateStatus(ctx context.Context, tx *gorm.DB, orderID, status string, outcome model.Outcome) (bool, error) {
	result := r.conn(tx).WithContext(ctx).Model(&model.Order{}).
		Where(`
			order_id = ?
			AND outcome = ?
		`,
			orderID,
			model.OutcomePending,
		).
		Updates(map[string]interface{}{
			"status":     status,
			"outcome":    outcome,
			"updated_at": time.Now(),
		})

	return result.RowsAffected > 0, result.Error
}

func (r *orderRepoImpl) GetOrderItems(ctx context.Context, tx *gorm.DB, orderID string) ([]*model.OrderItem, error) {
	var items []*model.OrderItem
	err := r.conn(tx).WithContext(ctx).Where("order_id = ?", orderID).
		Order("id").
		Find(&items).Error

	if err != nil {
		return nil, err
	}

	return items, nil
}

func (r *orderRepoImpl) ListPending(ctx context.Context, completion model.Completion) ([]*model.Order, error) {
	var orders []*model.Order
	err := r.db.WithContext(ctx).
		Where("outcome = ? AND completion = ?", model.OutcomePending, completion).
		Order("created_at").
		Find(&orders).Error
	return orders, err
}
