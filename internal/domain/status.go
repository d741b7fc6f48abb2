package domain

import "time"

// OrderStatusKind names one arm of the OrderStatus sum type. The transition
// table in internal/statemachine is keyed on kind identity, not on instance
// equality, since Payed/InDelivery/Delivered/Failed carry payloads that vary
// per order.
type OrderStatusKind string

const (
	KindCollecting OrderStatusKind = "collecting"
	KindDiscarded  OrderStatusKind = "discarded"
	KindBooked     OrderStatusKind = "booked"
	KindPayed      OrderStatusKind = "payed"
	KindInDelivery OrderStatusKind = "in_delivery"
	KindDelivered  OrderStatusKind = "delivered"
	KindRefund     OrderStatusKind = "refund"
	KindFailed     OrderStatusKind = "failed"
)

// OrderStatus is the closed sum type over an order's lifecycle state
// (spec §3). Each arm below is a distinct Go type implementing this
// interface; only the arms declared in this file may ever satisfy it.
type OrderStatus interface {
	Kind() OrderStatusKind
	String() string

	sealedOrderStatus()
}

// Collecting: the order is open and items may still be added.
type Collecting struct{}

func (Collecting) Kind() OrderStatusKind { return KindCollecting }
func (Collecting) String() string        { return string(KindCollecting) }
func (Collecting) sealedOrderStatus()    {}

// Discarded: an abandoned-cart order the target auto-discarded.
type Discarded struct{}

func (Discarded) Kind() OrderStatusKind { return KindDiscarded }
func (Discarded) String() string        { return string(KindDiscarded) }
func (Discarded) sealedOrderStatus()    {}

// Booked: finalization succeeded and the order awaits payment.
type Booked struct{}

func (Booked) Kind() OrderStatusKind { return KindBooked }
func (Booked) String() string        { return string(KindBooked) }
func (Booked) sealedOrderStatus()    {}

// Payed carries the moment payment was captured.
type Payed struct {
	PaymentTime time.Time
}

func (Payed) Kind() OrderStatusKind { return KindPayed }
func (Payed) String() string        { return string(KindPayed) }
func (Payed) sealedOrderStatus()    {}

// InDelivery carries the moment delivery simulation started.
type InDelivery struct {
	DeliveryStartTime time.Time
}

func (InDelivery) Kind() OrderStatusKind { return KindInDelivery }
func (InDelivery) String() string        { return string(KindInDelivery) }
func (InDelivery) sealedOrderStatus()    {}

// Delivered carries the delivery window's start and finish times.
type Delivered struct {
	DeliveryStartTime  time.Time
	DeliveryFinishTime time.Time
}

func (Delivered) Kind() OrderStatusKind { return KindDelivered }
func (Delivered) String() string        { return string(KindDelivered) }
func (Delivered) sealedOrderStatus()    {}

// Refund: delivery failed and the payment was returned to the customer.
type Refund struct{}

func (Refund) Kind() OrderStatusKind { return KindRefund }
func (Refund) String() string        { return string(KindRefund) }
func (Refund) sealedOrderStatus()    {}

// Failed carries the reason and the status the order was in immediately
// before it failed, so stages can log and assert against it.
type Failed struct {
	Reason   string
	Previous OrderStatus
}

func (Failed) Kind() OrderStatusKind { return KindFailed }
func (Failed) String() string        { return string(KindFailed) }
func (Failed) sealedOrderStatus()    {}

var (
	_ OrderStatus = Collecting{}
	_ OrderStatus = Discarded{}
	_ OrderStatus = Booked{}
	_ OrderStatus = Payed{}
	_ OrderStatus = InDelivery{}
	_ OrderStatus = Delivered{}
	_ OrderStatus = Refund{}
	_ OrderStatus = Failed{}
)
