package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"qtc-marketplace/internal/apperr"
	"qtc-marketplace/internal/cart"
	"qtc-marketplace/internal/client"
	"qtc-marketplace/internal/logger"
	"qtc-marketplace/internal/metrics"
	"qtc-marketplace/internal/model"
	"qtc-marketplace/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// State is the orchestrator's view of one checkout attempt.
type State string

const (
	StateIdle      State = "idle"
	StateCreating  State = "creating"
	StatePending   State = "pending"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
)

// StateOf derives the attempt state from a stored order.
func StateOf(order *model.Order) State {
	switch order.Outcome {
	case model.OutcomeSucceeded:
		return StateSucceeded
	case model.OutcomeFailed:
		return StateFailed
	}
	return StatePending
}

const statusCancelled = "cancelled"

type CheckoutRequest struct {
	CartID   string
	Method   model.Provider
	Currency string
	Metadata model.Metadata
}

// SuccessCallback runs once per order that reaches the succeeded outcome.
type SuccessCallback func(ctx context.Context, order *model.Order)

type CheckoutService interface {
	Checkout(ctx context.Context, req *CheckoutRequest) (*model.Order, error)
	GetOrder(ctx context.Context, orderID string) (*model.Order, error)
	Confirm(ctx context.Context, orderID string) (*model.Order, error)
	ConfirmByReference(ctx context.Context, provider model.Provider, reference string) (*model.Order, error)
	Reconcile(ctx context.Context, update *model.Order) (*model.Order, error)
	Cancel(ctx context.Context, orderID string) (*model.Order, error)
	Resume(ctx context.Context) (int, error)
	OnSuccess(cb SuccessCallback)
	Shutdown()
}

type checkoutServiceImpl struct {
	db        *gorm.DB
	carts     *cart.Store
	gateways  *client.Registry
	orderRepo repository.OrderRepository
	recorder  metrics.Recorder
	log       *logger.Logger
	poll      PollConfig
	baseURL   string

	rootCtx    context.Context
	rootCancel context.CancelFunc
	wg         sync.WaitGroup

	mu        sync.Mutex
	polls     map[string]context.CancelFunc
	settled   map[string]bool
	callbacks []SuccessCallback
}

func NewCheckoutService(
	db *gorm.DB,
	carts *cart.Store,
	gateways *client.Registry,
	orderRepo repository.OrderRepository,
	recorder metrics.Recorder,
	log *logger.Logger,
	poll PollConfig,
	baseURL string,
) CheckoutService {
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	if log == nil {
		log = logger.Nop()
	}
	rootCtx, rootCancel := context.WithCancel(context.Background())
	return &checkoutServiceImpl{
		db:         db,
		carts:      carts,
		gateways:   gateways,
		orderRepo:  orderRepo,
		recorder:   recorder,
		log:        log,
		poll:       poll,
		baseURL:    strings.TrimRight(baseURL, "/"),
		rootCtx:    rootCtx,
		rootCancel: rootCancel,
		polls:      make(map[string]context.CancelFunc),
		settled:    make(map[string]bool),
	}
}

func (s *checkoutServiceImpl) OnSuccess(cb SuccessCallback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callbacks = append(s.callbacks, cb)
}

func (s *checkoutServiceImpl) Checkout(ctx context.Context, req *CheckoutRequest) (*model.Order, error) {
	if req.CartID == "" {
		return nil, apperr.Validation("cart id is required")
	}
	gateway, err := s.gateways.Get(req.Method)
	if err != nil {
		return nil, err
	}
	if err := s.checkUnusedSignature(ctx, req.Metadata.TransactionSignature); err != nil {
		return nil, err
	}

	items, err := s.carts.List(ctx, req.CartID)
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}
	if len(items) == 0 {
		return nil, apperr.Validation("cart is empty")
	}
	totals := cart.ComputeTotals(items)

	currency := strings.ToUpper(req.Currency)
	if currency == "" {
		currency = "USD"
	}
	reference := "qtc_order_" + uuid.NewString()

	orderItems := make([]*model.OrderItem, len(items))
	for i, it := range items {
		orderItems[i] = &model.OrderItem{
			ProductID: it.ProductID,
			Title:     it.Title,
			Quantity:  it.Quantity,
			UnitPrice: it.Price,
		}
	}

	orderReq := &model.OrderRequest{
		Reference:   reference,
		Amount:      totals.Fiat,
		Currency:    currency,
		TokenAmount: totals.Tokens,
		Name:        "QTC Marketplace Purchase",
		Description: fmt.Sprintf("%d item(s) from QTC Marketplace", totals.ItemCount),
		Items:       orderItems,
		Metadata:    s.withCallbackURLs(req.Method, reference, req.Metadata),
	}

	ctx = s.log.WithFields(s.log.WithCartID(ctx, req.CartID), map[string]any{
		"provider":  string(req.Method),
		"reference": reference,
		"state":     string(StateCreating),
	})
	s.log.Info(ctx, "creating payment order")

	order, err := gateway.CreateOrder(ctx, orderReq)
	if err != nil {
		s.recorder.IncCheckoutOutcome(string(req.Method), "error")
		s.log.Error(ctx, "create payment order failed", err)
		return nil, err
	}

	order.CartID = req.CartID
	if order.Reference == "" {
		order.Reference = reference
	}
	if order.PriceAmount.IsZero() {
		order.PriceAmount = totals.Fiat
	}
	if order.PriceCurrency == "" {
		order.PriceCurrency = currency
	}
	order.TokenAmount = totals.Tokens
	for _, it := range orderItems {
		it.OrderID = order.OrderID
	}
	order.Items = orderItems

	ctx = s.log.WithOrder(ctx, string(order.Provider), order.OrderID)
	// the row starts pending so that settle claims the terminal transition
	record := *order
	record.Outcome = model.OutcomePending
	if err := s.persist(ctx, &record); err != nil {
		s.log.Error(ctx, "record payment order failed", err)
		return nil, err
	}
	order.CreatedAt, order.UpdatedAt = record.CreatedAt, record.UpdatedAt

	switch {
	case order.Outcome.Terminal():
		s.settle(ctx, order)
	case order.Completion == model.CompletionPoll:
		s.startPoll(order)
	default:
		s.log.Info(ctx, "payment pending, waiting for redirect or webhook")
	}
	return order, nil
}

// withCallbackURLs fills return and webhook URLs the caller did not set.
func (s *checkoutServiceImpl) withCallbackURLs(provider model.Provider, reference string, md model.Metadata) model.Metadata {
	returnURL := func(result string) string {
		q := url.Values{}
		q.Set("provider", string(provider))
		q.Set("reference", reference)
		q.Set("result", result)
		return s.baseURL + "/api/checkout/return?" + q.Encode()
	}
	if md.SuccessURL == "" {
		md.SuccessURL = returnURL("success")
	}
	if md.CancelURL == "" {
		md.CancelURL = returnURL("cancel")
	}
	if md.CallbackURL == "" {
		md.CallbackURL = s.baseURL + "/api/webhooks/" + string(provider)
	}
	return md
}

// checkUnusedSignature rejects a wallet transaction that already paid an order.
func (s *checkoutServiceImpl) checkUnusedSignature(ctx context.Context, signature string) error {
	if signature == "" {
		return nil
	}
	_, err := s.orderRepo.FindByOrderID(ctx, signature)
	if errors.Is(err, repository.ErrOrderNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("find order: %w", err)
	}
	return apperr.New(apperr.CodeConflict, "transaction signature already used by another order")
}

func (s *checkoutServiceImpl) persist(ctx context.Context, order *model.Order) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.orderRepo.Create(ctx, tx, order); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return apperr.Wrap(apperr.CodeConflict, err, fmt.Sprintf("order %s already recorded", order.OrderID))
			}
			return fmt.Errorf("store order in db: %w", err)
		}
		if err := s.orderRepo.CreateOrderItems(ctx, tx, order.Items); err != nil {
			return fmt.Errorf("store order items in db: %w", err)
		}
		return nil
	})
}

func (s *checkoutServiceImpl) GetOrder(ctx context.Context, orderID string) (*model.Order, error) {
	order, err := s.orderRepo.FindByOrderID(ctx, orderID)
	if errors.Is(err, repository.ErrOrderNotFound) {
		return nil, apperr.NotFound(fmt.Sprintf("order %s not found", orderID))
	}
	if err != nil {
		return nil, fmt.Errorf("find order: %w", err)
	}
	items, err := s.orderRepo.GetOrderItems(ctx, nil, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order items: %w", err)
	}
	order.Items = items
	return order, nil
}

// Confirm asks the gateway for the current status and reconciles it.
func (s *checkoutServiceImpl) Confirm(ctx context.Context, orderID string) (*model.Order, error) {
	stored, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return s.confirmStored(ctx, stored)
}

func (s *checkoutServiceImpl) ConfirmByReference(ctx context.Context, provider model.Provider, reference string) (*model.Order, error) {
	stored, err := s.orderRepo.FindByReference(ctx, provider, reference)
	if errors.Is(err, repository.ErrOrderNotFound) {
		return nil, apperr.NotFound(fmt.Sprintf("order %s not found", reference))
	}
	if err != nil {
		return nil, fmt.Errorf("find order: %w", err)
	}
	return s.confirmStored(ctx, stored)
}

func (s *checkoutServiceImpl) confirmStored(ctx context.Context, stored *model.Order) (*model.Order, error) {
	if stored.Outcome.Terminal() {
		return stored, nil
	}
	gateway, err := s.gateways.Get(stored.Provider)
	if err != nil {
		return nil, err
	}
	fresh, err := gateway.GetStatus(ctx, stored.OrderID)
	if err != nil {
		return nil, err
	}
	return s.apply(s.log.WithOrder(ctx, string(stored.Provider), stored.OrderID), stored, fresh), nil
}

// Reconcile applies a status delivered by a webhook without calling the gateway.
func (s *checkoutServiceImpl) Reconcile(ctx context.Context, update *model.Order) (*model.Order, error) {
	stored, err := s.orderRepo.FindByOrderID(ctx, update.OrderID)
	if errors.Is(err, repository.ErrOrderNotFound) && update.Reference != "" {
		stored, err = s.orderRepo.FindByReference(ctx, update.Provider, update.Reference)
	}
	if errors.Is(err, repository.ErrOrderNotFound) {
		return nil, apperr.NotFound(fmt.Sprintf("order %s not found", update.OrderID))
	}
	if err != nil {
		return nil, fmt.Errorf("find order: %w", err)
	}
	if stored.Outcome.Terminal() {
		return stored, nil
	}
	return s.apply(s.log.WithOrder(ctx, string(stored.Provider), stored.OrderID), stored, update), nil
}

// apply merges a fresh gateway view into the stored order and settles terminal outcomes.
func (s *checkoutServiceImpl) apply(ctx context.Context, stored, fresh *model.Order) *model.Order {
	merged := *stored
	merged.Status = fresh.Status
	merged.Outcome = fresh.Outcome
	if fresh.PayAmount.Valid {
		merged.PayAmount = fresh.PayAmount
	}
	if fresh.PayCurrency != "" {
		merged.PayCurrency = fresh.PayCurrency
	}
	if fresh.PayAddress != "" {
		merged.PayAddress = fresh.PayAddress
	}

	if merged.Outcome.Terminal() {
		s.settle(ctx, &merged)
		return &merged
	}
	if merged.Status != stored.Status {
		if _, err := s.orderRepo.UpdateStatus(ctx, nil, merged.OrderID, merged.Status, merged.Outcome); err != nil {
			s.log.Error(ctx, "update order status failed", err)
		}
	}
	return &merged
}

// settle runs the terminal transition once per order: success clears the cart and
// fires the callbacks, failure leaves the cart for a retry.
func (s *checkoutServiceImpl) settle(ctx context.Context, order *model.Order) {
	ctx = context.WithoutCancel(ctx)
	if !s.claim(ctx, order) {
		return
	}
	s.stopPoll(order.OrderID)
	s.recorder.IncCheckoutOutcome(string(order.Provider), string(order.Outcome))

	if order.Outcome != model.OutcomeSucceeded {
		s.log.Warn(ctx, fmt.Sprintf("payment failed with status %s", order.Status))
		return
	}

	if order.CartID != "" {
		if err := s.carts.Clear(ctx, order.CartID); err != nil {
			s.log.Error(ctx, "clear cart after payment failed", err)
		}
	}
	s.log.Info(ctx, "payment succeeded")

	s.mu.Lock()
	callbacks := append([]SuccessCallback(nil), s.callbacks...)
	s.mu.Unlock()
	for _, cb := range callbacks {
		cb(ctx, order)
	}
}

// claim reports whether this caller owns the terminal transition of order.
func (s *checkoutServiceImpl) claim(ctx context.Context, order *model.Order) bool {
	s.mu.Lock()
	if s.settled[order.OrderID] {
		s.mu.Unlock()
		return false
	}
	s.settled[order.OrderID] = true
	s.mu.Unlock()

	updated, err := s.orderRepo.UpdateStatus(ctx, nil, order.OrderID, order.Status, order.Outcome)
	if err != nil {
		s.log.Error(ctx, "update order status failed", err)
		return true
	}
	if !updated {
		// already terminal in the ledger, e.g. settled before a restart
		if existing, err := s.orderRepo.FindByOrderID(ctx, order.OrderID); err == nil && existing.Outcome.Terminal() {
			return false
		}
	}
	return true
}

func (s *checkoutServiceImpl) startPoll(order *model.Order) {
	gateway, err := s.gateways.Get(order.Provider)
	if err != nil {
		s.log.Error(s.rootCtx, "cannot poll order", err)
		return
	}

	s.mu.Lock()
	if _, running := s.polls[order.OrderID]; running || s.rootCtx.Err() != nil {
		s.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(s.rootCtx)
	s.polls[order.OrderID] = cancel
	s.wg.Add(1)
	s.mu.Unlock()

	ctx = s.log.WithOrder(s.log.WithCartID(ctx, order.CartID), string(order.Provider), order.OrderID)
	stored := *order

	go func() {
		defer s.wg.Done()
		defer s.stopPoll(order.OrderID)

		fetch := func(ctx context.Context) (*model.Order, error) {
			return gateway.GetStatus(ctx, stored.OrderID)
		}
		onUpdate := func(fresh *model.Order) {
			merged := s.apply(ctx, &stored, fresh)
			stored = *merged
		}

		_, err := pollStatus(ctx, s.poll, fetch, onUpdate)
		switch {
		case err == nil:
		case errors.Is(err, ErrPollCeiling):
			s.log.Warn(ctx, "stopped polling: ceiling reached while payment pending")
		case errors.Is(err, context.Canceled):
			s.log.Debug(ctx, "polling cancelled")
		default:
			s.log.Error(ctx, "polling stopped", err)
		}
	}()
}

func (s *checkoutServiceImpl) stopPoll(orderID string) {
	s.mu.Lock()
	cancel, ok := s.polls[orderID]
	delete(s.polls, orderID)
	s.mu.Unlock()
	if ok {
		cancel()
	}
}

// Cancel stops tracking a pending order and records it as failed.
func (s *checkoutServiceImpl) Cancel(ctx context.Context, orderID string) (*model.Order, error) {
	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	s.stopPoll(orderID)
	if order.Outcome.Terminal() {
		return order, nil
	}

	order.Status = statusCancelled
	order.Outcome = model.OutcomeFailed
	s.settle(s.log.WithOrder(ctx, string(order.Provider), orderID), order)
	return order, nil
}

// Resume restarts polling for poll-completion orders still pending in the ledger.
func (s *checkoutServiceImpl) Resume(ctx context.Context) (int, error) {
	pending, err := s.orderRepo.ListPending(ctx, model.CompletionPoll)
	if err != nil {
		return 0, fmt.Errorf("list pending orders: %w", err)
	}
	for _, order := range pending {
		s.startPoll(order)
	}
	return len(pending), nil
}

// Shutdown cancels every outstanding poll and waits for the loops to exit.
func (s *checkoutServiceImpl) Shutdown() {
	s.rootCancel()
	s.wg.Wait()
}
