// Package userpool implements the per-service user pool and credit ledger
// named in spec.md §4.4 (component D): create a batch of users on the
// target service, track a local mirror of each user's credit balance, and
// hand out a random member to stages that need one. Grounded on
// internal/storage/memory/order_repository.go's sync.RWMutex-guarded map
// idiom, adapted to keep per-user balances in sync/atomic int64 counters so
// spend/refund take only the pool's read lock, to look the user up.
package userpool

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/bombardier/internal/externalapi"
)

// ErrNoUsersForService is returned by GetRandomUserID when the service's
// pool has no members (every creation attempt failed, or none were ever
// requested).
var ErrNoUsersForService = errors.New("userpool: no users for service")

// ErrUnknownUser is returned by Spend/Refund for a user id the pool never
// created.
var ErrUnknownUser = errors.New("userpool: unknown user")

// ledgerEntry mirrors one user's credit balance with an atomic counter so
// Spend/Refund never contend with pool membership reads.
type ledgerEntry struct {
	balance int64
}

// Pool is a per-service set of users created on the target, each with a
// local credit mirror. Safe under concurrent callers.
type Pool struct {
	service string

	mu      sync.RWMutex
	userIDs []string
	ledger  map[string]*ledgerEntry

	logger *log.Entry
}

// New returns an empty pool for service; call CreateUsers to populate it.
func New(service string) *Pool {
	return &Pool{
		service: service,
		ledger:  make(map[string]*ledgerEntry),
		logger:  log.WithFields(log.Fields{"component": "userpool", "service": service}),
	}
}

// CreateUsers issues n create-user requests via api. Failures are logged
// and skipped; the pool is best-effort and ends up with whatever number of
// users actually succeeded (spec.md §4.4).
func (p *Pool) CreateUsers(ctx context.Context, api externalapi.ExternalAPI, n int, initialAmount int64) {
	for i := 0; i < n; i++ {
		user, err := api.CreateUser(ctx, fmt.Sprintf("%s-user-%d", p.service, i), initialAmount)
		if err != nil {
			p.logger.WithError(err).Warn("create user failed, skipping")
			continue
		}

		p.mu.Lock()
		p.userIDs = append(p.userIDs, user.ID)
		p.ledger[user.ID] = &ledgerEntry{balance: user.AccountAmount}
		p.mu.Unlock()
	}
}

// GetRandomUserID returns a uniformly random member of the pool, or
// ErrNoUsersForService if the pool is empty.
func (p *Pool) GetRandomUserID() (string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if len(p.userIDs) == 0 {
		return "", ErrNoUsersForService
	}
	return p.userIDs[rand.Intn(len(p.userIDs))], nil
}

// Size returns the number of users currently in the pool.
func (p *Pool) Size() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.userIDs)
}

// Spend subtracts amount from userID's local credit mirror. Negative
// balances are permitted — over-withdrawal is a stage-level assertion, not
// a ledger error (spec.md §4.4, Open Question decision in DESIGN.md).
func (p *Pool) Spend(userID string, amount int64) error {
	return p.adjust(userID, -amount)
}

// Refund adds amount back to userID's local credit mirror.
func (p *Pool) Refund(userID string, amount int64) error {
	return p.adjust(userID, amount)
}

// Balance returns userID's current local credit mirror.
func (p *Pool) Balance(userID string) (int64, error) {
	entry, err := p.entry(userID)
	if err != nil {
		return 0, err
	}
	return atomic.LoadInt64(&entry.balance), nil
}

func (p *Pool) adjust(userID string, delta int64) error {
	entry, err := p.entry(userID)
	if err != nil {
		return err
	}
	atomic.AddInt64(&entry.balance, delta)
	return nil
}

func (p *Pool) entry(userID string) (*ledgerEntry, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	entry, ok := p.ledger[userID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownUser, userID)
	}
	return entry, nil
}
