// Package cart keeps one shopping cart per cart id and persists every change immediately.
package cart

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"

	"qtc-marketplace/internal/apperr"
	"qtc-marketplace/internal/logger"
	"qtc-marketplace/internal/model"
	"qtc-marketplace/internal/price"

	"github.com/shopspring/decimal"
)

// Backend stores the serialized item list of a cart. Load returns nil, nil for an unknown cart.
type Backend interface {
	Load(ctx context.Context, cartID string) ([]byte, error)
	Save(ctx context.Context, cartID string, payload []byte) error
	Delete(ctx context.Context, cartID string) error
}

type Totals struct {
	Tokens    int64           `json:"total_tokens"`
	Fiat      decimal.Decimal `json:"total_fiat"`
	ItemCount int             `json:"item_count"`
}

type Store struct {
	backend Backend
	log     *logger.Logger
	mu      sync.Mutex
}

func NewStore(backend Backend, log *logger.Logger) *Store {
	if log == nil {
		log = logger.Nop()
	}
	return &Store{backend: backend, log: log}
}

func (s *Store) List(ctx context.Context, cartID string) ([]*model.CartItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx, cartID)
}

// Add increments the quantity when the product is already in the cart.
func (s *Store) Add(ctx context.Context, cartID string, item model.CartItem) ([]*model.CartItem, error) {
	if item.ProductID <= 0 {
		return nil, apperr.Validation("product id must be positive")
	}
	if item.Price.IsNegative() {
		return nil, apperr.Validation("price must not be negative")
	}
	if item.Quantity <= 0 {
		item.Quantity = 1
	}

	return s.update(ctx, cartID, func(items []*model.CartItem) []*model.CartItem {
		if idx := indexOf(items, item.ProductID); idx >= 0 {
			items[idx].Quantity += item.Quantity
			return items
		}
		added := item
		return append(items, &added)
	})
}

// SetQuantity replaces an item's quantity; zero or less removes it.
func (s *Store) SetQuantity(ctx context.Context, cartID string, productID int64, quantity int) ([]*model.CartItem, error) {
	if quantity <= 0 {
		return s.Remove(ctx, cartID, productID)
	}
	return s.update(ctx, cartID, func(items []*model.CartItem) []*model.CartItem {
		if idx := indexOf(items, productID); idx >= 0 {
			items[idx].Quantity = quantity
		}
		return items
	})
}

func (s *Store) Remove(ctx context.Context, cartID string, productID int64) ([]*model.CartItem, error) {
	return s.update(ctx, cartID, func(items []*model.CartItem) []*model.CartItem {
		return slices.DeleteFunc(items, func(it *model.CartItem) bool { return it.ProductID == productID })
	})
}

func (s *Store) Clear(ctx context.Context, cartID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.backend.Delete(ctx, cartID); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}

// Totals is recomputed from the stored items on every call.
func (s *Store) Totals(ctx context.Context, cartID string) (Totals, error) {
	items, err := s.List(ctx, cartID)
	if err != nil {
		return Totals{}, err
	}
	return ComputeTotals(items), nil
}

func ComputeTotals(items []*model.CartItem) Totals {
	t := Totals{Fiat: decimal.Zero}
	for _, it := range items {
		qty := int64(it.Quantity)
		t.Tokens += price.ToTokenAmount(it.Price) * qty
		t.Fiat = t.Fiat.Add(it.Price.Mul(decimal.NewFromInt(qty)))
		t.ItemCount += it.Quantity
	}
	return t
}

func (s *Store) update(ctx context.Context, cartID string, mutate func([]*model.CartItem) []*model.CartItem) ([]*model.CartItem, error) {
	if cartID == "" {
		return nil, apperr.Validation("cart id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.load(ctx, cartID)
	if err != nil {
		return nil, err
	}
	items = mutate(items)

	if err := s.save(ctx, cartID, items); err != nil {
		return nil, err
	}
	return items, nil
}

// load treats unreadable data as an empty cart; the next save overwrites it.
func (s *Store) load(ctx context.Context, cartID string) ([]*model.CartItem, error) {
	payload, err := s.backend.Load(ctx, cartID)
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}
	items := []*model.CartItem{}
	if len(payload) == 0 {
		return items, nil
	}
	if err := json.Unmarshal(payload, &items); err != nil {
		s.log.Warn(s.log.WithCartID(ctx, cartID), "discarding unreadable cart data: "+err.Error())
		return []*model.CartItem{}, nil
	}
	return slices.DeleteFunc(items, func(it *model.CartItem) bool { return it == nil }), nil
}

func (s *Store) save(ctx context.Context, cartID string, items []*model.CartItem) error {
	if len(items) == 0 {
		if err := s.backend.Delete(ctx, cartID); err != nil {
			return fmt.Errorf("save cart: %w", err)
		}
		return nil
	}
	payload, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("marshal cart: %w", err)
	}
	if err := s.backend.Save(ctx, cartID, payload); err != nil {
		return fmt.Errorf("save cart: %w", err)
	}
	return nil
}

func indexOf(items []*model.CartItem, productID int64) int {
	return slices.IndexFunc(items, func(it *model.CartItem) bool { return it.ProductID == productID })
}
