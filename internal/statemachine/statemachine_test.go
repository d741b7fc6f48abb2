package statemachine_test

import (
	"errors"
	"testing"

	"github.com/vladislavdragonenkov/bombardier/internal/domain"
	"github.com/vladislavdragonenkov/bombardier/internal/statemachine"
)

func TestIsTransitionAllowed_LegalPairs(t *testing.T) {
	m := statemachine.New()

	cases := []struct {
		name string
		from domain.OrderStatus
		to   domain.OrderStatus
	}{
		{"collecting->booked", domain.Collecting{}, domain.Booked{}},
		{"collecting->discarded", domain.Collecting{}, domain.Discarded{}},
		{"booked->collecting", domain.Booked{}, domain.Collecting{}},
		{"booked->booked (awaiting payment)", domain.Booked{}, domain.Booked{}},
		{"booked->payed", domain.Booked{}, domain.Payed{}},
		{"payed->indelivery", domain.Payed{}, domain.InDelivery{}},
		{"indelivery->delivered", domain.InDelivery{}, domain.Delivered{}},
		{"indelivery->refund", domain.InDelivery{}, domain.Refund{}},
		{"any->failed", domain.Collecting{}, domain.Failed{Reason: "boom"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ok, err := m.IsTransitionAllowed(tc.from, tc.to)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !ok {
				t.Fatalf("expected %s -> %s to be legal", tc.from, tc.to)
			}
		})
	}
}

func TestIsTransitionAllowed_IllegalPair(t *testing.T) {
	m := statemachine.New()

	ok, err := m.IsTransitionAllowed(domain.Booked{}, domain.Delivered{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected booked -> delivered to be illegal")
	}
}

func TestIsTransitionAllowed_UnknownFromState(t *testing.T) {
	m := statemachine.New()

	_, err := m.IsTransitionAllowed(domain.Refund{}, domain.Collecting{})
	if !errors.Is(err, statemachine.ErrUnknownState) {
		t.Fatalf("expected ErrUnknownState, got %v", err)
	}
}

func TestCheckTransition_IllegalReturnsWrappedSentinel(t *testing.T) {
	m := statemachine.New()

	err := m.CheckTransition(domain.Booked{}, domain.Delivered{})
	if err == nil {
		t.Fatal("expected an error")
	}
	if !errors.Is(err, statemachine.ErrIllegalTransition) {
		t.Fatalf("expected ErrIllegalTransition, got %v", err)
	}

	var illegal *statemachine.IllegalTransitionError
	if !errors.As(err, &illegal) {
		t.Fatalf("expected *IllegalTransitionError, got %T", err)
	}
	if illegal.From != domain.KindBooked || illegal.To != domain.KindDelivered {
		t.Fatalf("unexpected kinds on error: %+v", illegal)
	}
}

func TestCheckTransition_UnknownFromStatePassesThrough(t *testing.T) {
	m := statemachine.New()

	err := m.CheckTransition(domain.Discarded{}, domain.Booked{})
	if !errors.Is(err, statemachine.ErrUnknownState) {
		t.Fatalf("expected ErrUnknownState, got %v", err)
	}
}

func TestCheckTransition_AnyToFailedAlwaysLegal(t *testing.T) {
	m := statemachine.New()

	for _, from := range []domain.OrderStatus{
		domain.Collecting{}, domain.Discarded{}, domain.Booked{},
		domain.Payed{}, domain.InDelivery{}, domain.Delivered{}, domain.Refund{},
	} {
		if err := m.CheckTransition(from, domain.Failed{Reason: "x", Previous: from}); err != nil {
			t.Fatalf("expected %s -> failed to be legal, got %v", from, err)
		}
	}
}
