// Package externalapi declares the narrow contract the stage pipeline uses
// to talk to the target service under test (spec.md §4.6/§6, component F).
// It is intentionally thin: every method is an asynchronous request over
// the wire in a real adapter, so every method takes a context.Context and
// returns an error alongside its result. Grounded on
// internal/service/payment/client.go and internal/service/inventory/client.go's
// interface-first adapter contracts in the teacher repo.
package externalapi

import (
	"context"

	"github.com/vladislavdragonenkov/bombardier/internal/domain"
)

// DeliveryOutcome is the result recorded in the target's delivery log.
type DeliveryOutcome string

const (
	DeliverySuccess DeliveryOutcome = "SUCCESS"
	DeliveryFailure DeliveryOutcome = "FAILURE"
)

// DeliveryLogEntry is the response of DeliveryLog.
type DeliveryLogEntry struct {
	Outcome DeliveryOutcome
}

// ExternalAPI is the full set of operations stages invoke against the
// target service (spec.md §6). Implementations: a real HTTP adapter (out of
// scope for this harness) and the in-memory fake used by this module's own
// tests (internal/externalapi/fake).
type ExternalAPI interface {
	CreateUser(ctx context.Context, name string, accountAmount int64) (domain.User, error)
	GetUser(ctx context.Context, userID string) (domain.User, error)
	GetFinancialHistory(ctx context.Context, userID, orderID string) ([]domain.FinancialLogRecord, error)

	CreateOrder(ctx context.Context, userID string) (domain.Order, error)
	GetOrder(ctx context.Context, userID, orderID string) (domain.Order, error)
	GetAvailableItems(ctx context.Context, userID string) ([]domain.Item, error)
	PutItemToOrder(ctx context.Context, userID, orderID, itemID string, amount int32) (bool, error)

	FinalizeOrder(ctx context.Context, orderID string) (domain.BookingDto, error)
	GetDeliverySlots(ctx context.Context, orderID string) ([]int, error)
	SetDeliveryTime(ctx context.Context, orderID string, timeSeconds int64) error

	PayOrder(ctx context.Context, userID, orderID string) (domain.Order, error)
	SimulateDelivery(ctx context.Context, orderID string) error
	DeliveryLog(ctx context.Context, orderID string) (DeliveryLogEntry, error)

	AbandonedCardHistory(ctx context.Context, orderID string) ([]domain.BucketLogRecord, error)
	GetBookingHistory(ctx context.Context, bookingID string) ([]domain.BookingLogRecord, error)
}
