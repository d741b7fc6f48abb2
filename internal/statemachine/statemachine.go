// Package statemachine declares and checks the legal transitions of an
// order's OrderStatus (spec.md §4.1). The transition table is a fixed list
// of (from-kind, to-kind) pairs, indexed at construction time into a
// from-kind → allowed-to-kinds set, matching the "validate and collect"
// idiom of the teacher's domain package (internal/domain/order.go's
// ValidateInvariants): build once, answer many cheap lookups, fail with a
// named sentinel rather than a generic error.
package statemachine

import (
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/bombardier/internal/domain"
)

// ErrUnknownState is returned by IsTransitionAllowed when the from-kind has
// no entry in the table at all — distinct from an illegal-but-known
// transition (spec.md §4.1).
var ErrUnknownState = errors.New("statemachine: unknown from-state")

// IllegalTransitionError reports a transition that is not in the table,
// wrapping E_ILLEGAL_ORDER_TRANSITION so stages can recognize it with
// errors.Is/errors.As without parsing a message string.
type IllegalTransitionError struct {
	From domain.OrderStatusKind
	To   domain.OrderStatusKind
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("E_ILLEGAL_ORDER_TRANSITION: %s -> %s is not a legal order transition", e.From, e.To)
}

func (e *IllegalTransitionError) Is(target error) bool {
	return target == ErrIllegalTransition
}

// ErrIllegalTransition is the sentinel matched by IllegalTransitionError.Is,
// so callers can write errors.Is(err, ErrIllegalTransition) without caring
// about the specific kinds involved.
var ErrIllegalTransition = errors.New("E_ILLEGAL_ORDER_TRANSITION")

// transitionPair is one authoritative (from, to) entry (spec.md §4.1).
type transitionPair struct {
	from domain.OrderStatusKind
	to   domain.OrderStatusKind
}

// defaultTransitions is the authoritative transition set named in spec.md
// §4.1. "Any state → Failed" is handled specially in IsTransitionAllowed
// rather than enumerated here, since it applies uniformly to every kind,
// including kinds added later.
var defaultTransitions = []transitionPair{
	{domain.KindCollecting, domain.KindBooked},
	{domain.KindCollecting, domain.KindDiscarded},
	{domain.KindBooked, domain.KindCollecting},
	{domain.KindBooked, domain.KindBooked},
	{domain.KindBooked, domain.KindPayed},
	{domain.KindPayed, domain.KindInDelivery},
	{domain.KindInDelivery, domain.KindDelivered},
	{domain.KindInDelivery, domain.KindRefund},
}

// StateMachine is immutable after construction (lock-free reads, spec.md
// §5); New builds the from → allowed-to index once.
type StateMachine struct {
	table map[domain.OrderStatusKind]map[domain.OrderStatusKind]struct{}
}

// New builds the default, authoritative state machine from spec.md §4.1.
func New() *StateMachine {
	return newFromPairs(defaultTransitions)
}

func newFromPairs(pairs []transitionPair) *StateMachine {
	table := make(map[domain.OrderStatusKind]map[domain.OrderStatusKind]struct{})
	for _, p := range pairs {
		set, ok := table[p.from]
		if !ok {
			set = make(map[domain.OrderStatusKind]struct{})
			table[p.from] = set
		}
		set[p.to] = struct{}{}
	}
	return &StateMachine{table: table}
}

// IsTransitionAllowed reports whether from → to is legal. It returns
// ErrUnknownState (wrapped) if from has no entry in the table at all,
// distinguishing "state unknown" from "transition illegal" per spec.md
// §4.1. Any → Failed is always permitted.
func (m *StateMachine) IsTransitionAllowed(from, to domain.OrderStatus) (bool, error) {
	fromKind := from.Kind()
	toKind := to.Kind()

	if toKind == domain.KindFailed {
		return true, nil
	}

	allowed, ok := m.table[fromKind]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownState, fromKind)
	}

	_, legal := allowed[toKind]
	return legal, nil
}

// CheckTransition is IsTransitionAllowed plus the stage-facing error shape:
// nil on a legal transition, ErrUnknownState wrapped as-is on an unknown
// from-state, or an *IllegalTransitionError for a known-but-illegal one.
func (m *StateMachine) CheckTransition(from, to domain.OrderStatus) error {
	allowed, err := m.IsTransitionAllowed(from, to)
	if err != nil {
		return err
	}
	if !allowed {
		return &IllegalTransitionError{From: from.Kind(), To: to.Kind()}
	}
	return nil
}
