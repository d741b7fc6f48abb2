package userpool_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/bombardier/internal/domain"
	"github.com/vladislavdragonenkov/bombardier/internal/externalapi/fake"
	"github.com/vladislavdragonenkov/bombardier/internal/userpool"
)

func TestCreateUsers_PopulatesPoolAndLedger(t *testing.T) {
	ctx := context.Background()
	api := fake.New()
	pool := userpool.New("svc-a")

	pool.CreateUsers(ctx, api, 5, 1000)

	require.Equal(t, 5, pool.Size())

	userID, err := pool.GetRandomUserID()
	require.NoError(t, err)

	balance, err := pool.Balance(userID)
	require.NoError(t, err)
	require.Equal(t, int64(1000), balance)
}

func TestGetRandomUserID_EmptyPoolFails(t *testing.T) {
	pool := userpool.New("svc-empty")

	_, err := pool.GetRandomUserID()
	require.ErrorIs(t, err, userpool.ErrNoUsersForService)
}

func TestSpendRefund_UnknownUserFails(t *testing.T) {
	pool := userpool.New("svc-b")

	err := pool.Spend("ghost", 100)
	require.ErrorIs(t, err, userpool.ErrUnknownUser)

	err = pool.Refund("ghost", 100)
	require.ErrorIs(t, err, userpool.ErrUnknownUser)
}

func TestSpend_PermitsNegativeBalance(t *testing.T) {
	ctx := context.Background()
	api := fake.New()
	pool := userpool.New("svc-c")
	pool.CreateUsers(ctx, api, 1, 100)

	userID, err := pool.GetRandomUserID()
	require.NoError(t, err)

	require.NoError(t, pool.Spend(userID, 500))

	balance, err := pool.Balance(userID)
	require.NoError(t, err)
	require.Equal(t, int64(-400), balance)
}

func TestSpendRefund_ConcurrentCallersAreSafe(t *testing.T) {
	ctx := context.Background()
	api := fake.New()
	pool := userpool.New("svc-d")
	pool.CreateUsers(ctx, api, 1, 0)
	userID, err := pool.GetRandomUserID()
	require.NoError(t, err)

	const n = 200
	var wg sync.WaitGroup
	wg.Add(n * 2)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_ = pool.Spend(userID, 1)
		}()
		go func() {
			defer wg.Done()
			_ = pool.Refund(userID, 1)
		}()
	}
	wg.Wait()

	balance, err := pool.Balance(userID)
	require.NoError(t, err)
	require.Equal(t, int64(0), balance)
}

func TestCreateUsers_SkipsFailuresAndKeepsSuccesses(t *testing.T) {
	ctx := context.Background()
	pool := userpool.New("svc-e")

	api := &flakyAPI{Service: fake.New(), failFirst: 2}
	pool.CreateUsers(ctx, api, 5, 10)

	require.Equal(t, 3, pool.Size())
}

// flakyAPI wraps the fake service and fails the first failFirst
// CreateUser calls, to exercise CreateUsers' best-effort skip-and-continue
// behaviour (spec.md §4.4).
type flakyAPI struct {
	*fake.Service
	failFirst int
	calls     int
}

func (f *flakyAPI) CreateUser(ctx context.Context, name string, accountAmount int64) (domain.User, error) {
	f.calls++
	if f.calls <= f.failFirst {
		return domain.User{}, errors.New("simulated transport error")
	}
	return f.Service.CreateUser(ctx, name, accountAmount)
}
