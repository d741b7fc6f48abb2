// Package fake provides a concurrency-safe in-memory implementation of
// externalapi.ExternalAPI for this module's own tests, standing in for the
// real target service. Grounded on
// internal/service/payment/mock.go and internal/service/inventory/mock.go's
// scriptable-fields-plus-call-counters shape, generalized into a single
// struct that also tracks order/booking/delivery state the way
// internal/storage/memory/order_repository.go tracks orders, so the
// condition awaiter has something real to poll against in tests.
package fake

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/bombardier/internal/domain"
	"github.com/vladislavdragonenkov/bombardier/internal/externalapi"
)

var (
	ErrUserNotFound    = errors.New("fake: user not found")
	ErrOrderNotFound   = errors.New("fake: order not found")
	ErrItemNotFound    = errors.New("fake: item not found")
	ErrBookingNotFound = errors.New("fake: booking not found")
)

// PayDecision is consulted by PayOrder to script the payment outcome for an
// order; the default always succeeds.
type PayDecision func(order domain.Order) domain.PaymentLogStatus

// FinalizeDecision is consulted by FinalizeOrder to script which item ids
// (if any) fail to book; the default books everything.
type FinalizeDecision func(order domain.Order) map[string]struct{}

// DeliveryDecision is consulted when a simulated delivery completes to
// script whether it succeeds; the default always succeeds.
type DeliveryDecision func(order domain.Order) bool

// Service is the in-memory fake target.
type Service struct {
	mu sync.Mutex

	catalog       []domain.Item
	deliverySlots []int

	users          map[string]*domain.User
	orders         map[string]*domain.Order
	financial      map[string][]domain.FinancialLogRecord // keyed by userID
	bucketLog      map[string][]domain.BucketLogRecord    // keyed by orderID
	bookingHistory map[string][]domain.BookingLogRecord   // keyed by bookingID
	deliveryLog    map[string]externalapi.DeliveryLogEntry
	bookingOf      map[string]string // orderID -> bookingID

	payDecision      PayDecision
	finalizeDecision FinalizeDecision
	deliveryDecision DeliveryDecision
}

// Option configures a Service at construction time.
type Option func(*Service)

// WithCatalog overrides the default item catalog.
func WithCatalog(items []domain.Item) Option {
	return func(s *Service) { s.catalog = items }
}

// WithDeliverySlots overrides the default slot offering (seconds).
func WithDeliverySlots(slots []int) Option {
	return func(s *Service) { s.deliverySlots = slots }
}

// WithPayDecision overrides the default always-succeeds payment script.
func WithPayDecision(d PayDecision) Option {
	return func(s *Service) { s.payDecision = d }
}

// WithFinalizeDecision overrides the default books-everything script.
func WithFinalizeDecision(d FinalizeDecision) Option {
	return func(s *Service) { s.finalizeDecision = d }
}

// WithDeliveryDecision overrides the default always-succeeds delivery script.
func WithDeliveryDecision(d DeliveryDecision) Option {
	return func(s *Service) { s.deliveryDecision = d }
}

// defaultCatalog seeds a small, fixed item catalog so tests needn't supply
// one to get a working OrderCollecting stage.
var defaultCatalog = []domain.Item{
	{ID: "item-mug", Title: "Mug", Price: 500, Amount: 100},
	{ID: "item-book", Title: "Book", Price: 1500, Amount: 100},
	{ID: "item-plant", Title: "Plant", Price: 2500, Amount: 100},
}

var defaultDeliverySlots = []int{900, 1800, 3600}

// New builds a fake target seeded with a happy-path default script:
// payment always succeeds, finalization books everything, delivery always
// succeeds.
func New(opts ...Option) *Service {
	s := &Service{
		catalog:        defaultCatalog,
		deliverySlots:  defaultDeliverySlots,
		users:          make(map[string]*domain.User),
		orders:         make(map[string]*domain.Order),
		financial:      make(map[string][]domain.FinancialLogRecord),
		bucketLog:      make(map[string][]domain.BucketLogRecord),
		bookingHistory: make(map[string][]domain.BookingLogRecord),
		deliveryLog:    make(map[string]externalapi.DeliveryLogEntry),
		bookingOf:      make(map[string]string),
		payDecision: func(domain.Order) domain.PaymentLogStatus {
			return domain.PaymentSuccess
		},
		finalizeDecision: func(domain.Order) map[string]struct{} {
			return nil
		},
		deliveryDecision: func(domain.Order) bool { return true },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) CreateUser(_ context.Context, name string, accountAmount int64) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user := &domain.User{ID: uuid.NewString(), Name: name, AccountAmount: accountAmount}
	s.users[user.ID] = user
	s.financial[user.ID] = append(s.financial[user.ID], domain.FinancialLogRecord{
		Type:      domain.FinancialDeposit,
		Amount:    accountAmount,
		Timestamp: time.Now(),
	})
	return *user, nil
}

func (s *Service) GetUser(_ context.Context, userID string) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return domain.User{}, fmt.Errorf("%w: %s", ErrUserNotFound, userID)
	}
	return *user, nil
}

func (s *Service) GetFinancialHistory(_ context.Context, userID, orderID string) ([]domain.FinancialLogRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := s.financial[userID]
	if orderID == "" {
		return append([]domain.FinancialLogRecord(nil), all...), nil
	}
	var filtered []domain.FinancialLogRecord
	for _, r := range all {
		if r.OrderID == orderID {
			filtered = append(filtered, r)
		}
	}
	return filtered, nil
}

func (s *Service) CreateOrder(_ context.Context, userID string) (domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[userID]; !ok {
		return domain.Order{}, fmt.Errorf("%w: %s", ErrUserNotFound, userID)
	}

	order := &domain.Order{
		ID:          uuid.NewString(),
		UserID:      userID,
		TimeCreated: time.Now(),
		Status:      domain.Collecting{},
		Items:       make(map[string]domain.OrderLine),
	}
	s.orders[order.ID] = order
	return *order, nil
}

func (s *Service) GetOrder(_ context.Context, _ string, orderID string) (domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[orderID]
	if !ok {
		return domain.Order{}, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}
	return *order, nil
}

func (s *Service) GetAvailableItems(_ context.Context, _ string) ([]domain.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Item(nil), s.catalog...), nil
}

func (s *Service) PutItemToOrder(_ context.Context, _ string, orderID, itemID string, amount int32) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[orderID]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}
	switch order.Status.Kind() {
	case domain.KindCollecting:
		// already open, nothing to do
	case domain.KindBooked:
		// changing items on a Booked order reopens it for collection
		// (legal per the Booked -> Collecting transition), requiring the
		// caller to re-finalize.
		order.Status = domain.Collecting{}
	default:
		return false, nil
	}

	item, ok := s.findItemLocked(itemID)
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrItemNotFound, itemID)
	}

	order.Items[itemID] = domain.OrderLine{Item: item, Qty: amount}
	order.Version++
	s.bucketLog[orderID] = append(s.bucketLog[orderID], domain.BucketLogRecord{
		TransactionID:  uuid.NewString(),
		Timestamp:      time.Now(),
		UserInteracted: true,
	})
	return true, nil
}

func (s *Service) findItemLocked(itemID string) (domain.Item, bool) {
	for _, item := range s.catalog {
		if item.ID == itemID {
			return item, true
		}
	}
	return domain.Item{}, false
}

func (s *Service) FinalizeOrder(_ context.Context, orderID string) (domain.BookingDto, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[orderID]
	if !ok {
		return domain.BookingDto{}, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}

	failedItems := s.finalizeDecision(*order)
	bookingID := uuid.NewString()
	now := time.Now()
	for itemID := range order.Items {
		status := domain.BookingLineSuccess
		if _, failed := failedItems[itemID]; failed {
			status = domain.BookingLineFailed
		}
		s.bookingHistory[bookingID] = append(s.bookingHistory[bookingID], domain.BookingLogRecord{
			BookingID: bookingID,
			ItemID:    itemID,
			Status:    status,
			Amount:    order.Items[itemID].Qty,
			Timestamp: now,
		})
	}

	dto := domain.BookingDto{BookingID: bookingID, FailedItems: failedItems}
	if !dto.HasFailures() {
		order.Status = domain.Booked{}
		order.Version++
		s.bookingOf[orderID] = bookingID
	}
	return dto, nil
}

func (s *Service) GetDeliverySlots(_ context.Context, _ string) ([]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.deliverySlots...), nil
}

func (s *Service) SetDeliveryTime(_ context.Context, orderID string, timeSeconds int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[orderID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}
	order.DeliveryDurationSeconds = &timeSeconds
	order.Version++
	return nil
}

func (s *Service) PayOrder(_ context.Context, userID, orderID string) (domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[orderID]
	if !ok {
		return domain.Order{}, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}

	status := s.payDecision(*order)
	amount := order.TotalMinor()
	now := time.Now()
	order.PaymentHistory = append(order.PaymentHistory, domain.PaymentLogRecord{
		Timestamp: now,
		Status:    status,
		Amount:    amount,
	})

	if status == domain.PaymentSuccess {
		order.Status = domain.Payed{PaymentTime: now}
		s.financial[userID] = append(s.financial[userID], domain.FinancialLogRecord{
			Type:      domain.FinancialWithdraw,
			Amount:    amount,
			OrderID:   orderID,
			Timestamp: now,
		})
	}
	order.Version++
	return *order, nil
}

func (s *Service) SimulateDelivery(_ context.Context, orderID string) error {
	s.mu.Lock()
	order, ok := s.orders[orderID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}
	if order.DeliveryDurationSeconds == nil {
		s.mu.Unlock()
		return fmt.Errorf("fake: order %s has no delivery slot set", orderID)
	}
	duration := time.Duration(*order.DeliveryDurationSeconds) * time.Second
	start := time.Now()
	order.Status = domain.InDelivery{DeliveryStartTime: start}
	order.Version++
	orderSnapshot := *order
	s.mu.Unlock()

	// The committed delivery duration is measured from payment time, not
	// from this call (OrderDelivery.checkDelivered's deadline is
	// lastPayment.Timestamp+duration). Anchor the finish timestamp there so
	// a successful delivery never appears to violate its own deadline.
	deadline := start.Add(duration)
	if lastPayment, ok := domain.LastPayment(orderSnapshot.PaymentHistory); ok {
		deadline = lastPayment.Timestamp.Add(duration)
	}

	go s.finishDelivery(orderID, orderSnapshot, start, deadline, duration)
	return nil
}

func (s *Service) finishDelivery(orderID string, order domain.Order, start, finish time.Time, duration time.Duration) {
	time.Sleep(duration)

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.orders[orderID]
	if !ok {
		return
	}

	if s.deliveryDecision(order) {
		current.Status = domain.Delivered{DeliveryStartTime: start, DeliveryFinishTime: finish}
		current.Version++
		s.deliveryLog[orderID] = externalapi.DeliveryLogEntry{Outcome: externalapi.DeliverySuccess}
		return
	}

	current.Status = domain.Refund{}
	current.Version++
	s.deliveryLog[orderID] = externalapi.DeliveryLogEntry{Outcome: externalapi.DeliveryFailure}

	lastPayment, hasPayment := domain.LastPayment(current.PaymentHistory)
	if hasPayment {
		s.financial[current.UserID] = append(s.financial[current.UserID], domain.FinancialLogRecord{
			Type:      domain.FinancialRefund,
			Amount:    lastPayment.Amount,
			OrderID:   orderID,
			Timestamp: time.Now(),
		})
	}
}

func (s *Service) DeliveryLog(_ context.Context, orderID string) (externalapi.DeliveryLogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.deliveryLog[orderID]
	if !ok {
		return externalapi.DeliveryLogEntry{}, fmt.Errorf("%w: no delivery log for %s", ErrOrderNotFound, orderID)
	}
	return entry, nil
}

func (s *Service) AbandonedCardHistory(_ context.Context, orderID string) ([]domain.BucketLogRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.BucketLogRecord(nil), s.bucketLog[orderID]...), nil
}

func (s *Service) GetBookingHistory(_ context.Context, bookingID string) ([]domain.BookingLogRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	history, ok := s.bookingHistory[bookingID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBookingNotFound, bookingID)
	}
	return append([]domain.BookingLogRecord(nil), history...), nil
}

var _ externalapi.ExternalAPI = (*Service)(nil)
