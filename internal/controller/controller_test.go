package controller_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/bombardier/internal/controller"
	"github.com/vladislavdragonenkov/bombardier/internal/domain"
	"github.com/vladislavdragonenkov/bombardier/internal/externalapi/fake"
)

func awaitFlowGone(t *testing.T, c *controller.Controller, service string, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if _, err := c.GetTestingFlowForService(service); errors.Is(err, controller.ErrNotFound) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("flow %q did not quiesce within %s", service, timeout)
}

func TestStartTestingForService_HappyPath_RunsToCompletionAndSelfRemoves(t *testing.T) {
	api := fake.New(fake.WithDeliverySlots([]int{1}))
	c := controller.New(api)

	params := domain.RunParams{
		ServiceName:   "checkout",
		NumberOfUsers: 5,
		NumberOfTests: 3,
		RatePerSecond: 1000,
		Workers:       2,

		StopAfterOrderCreation: true,
	}

	require.NoError(t, c.StartTestingForService(context.Background(), params))
	awaitFlowGone(t, c, "checkout", 5*time.Second)
}

func TestStartTestingForService_Validation_RejectsBadParams(t *testing.T) {
	api := fake.New()
	c := controller.New(api)

	cases := []domain.RunParams{
		{ServiceName: "", NumberOfUsers: 1, NumberOfTests: 1, RatePerSecond: 1},
		{ServiceName: "svc", NumberOfUsers: 0, NumberOfTests: 1, RatePerSecond: 1},
		{ServiceName: "svc", NumberOfUsers: 1, NumberOfTests: 0, RatePerSecond: 1},
		{ServiceName: "svc", NumberOfUsers: 1, NumberOfTests: 1, RatePerSecond: 0},
	}
	for _, params := range cases {
		err := c.StartTestingForService(context.Background(), params)
		require.ErrorIs(t, err, controller.ErrBadRequest)
	}
}

func TestStartTestingForService_DoubleStart_OnlyOneSucceeds(t *testing.T) {
	api := fake.New(fake.WithDeliverySlots([]int{1}))
	c := controller.New(api)

	params := domain.RunParams{
		ServiceName:            "checkout",
		NumberOfUsers:          5,
		NumberOfTests:          100000,
		RatePerSecond:          1_000_000,
		Workers:                4,
		StopAfterOrderCreation: true,
	}

	require.NoError(t, c.StartTestingForService(context.Background(), params))
	err := c.StartTestingForService(context.Background(), params)
	require.ErrorIs(t, err, controller.ErrAlreadyRunning)

	require.NoError(t, c.StopTestByServiceName(context.Background(), "checkout"))
}

func TestGetTestingFlowForService_NotFound_WhenAbsent(t *testing.T) {
	c := controller.New(fake.New())
	_, err := c.GetTestingFlowForService("nothing-running")
	require.ErrorIs(t, err, controller.ErrNotFound)
}

func TestStopTestByServiceName_CancelsInFlightWorkersPromptly(t *testing.T) {
	api := fake.New(fake.WithDeliverySlots([]int{1}))
	c := controller.New(api)

	params := domain.RunParams{
		ServiceName:            "checkout",
		NumberOfUsers:          5,
		NumberOfTests:          1_000_000,
		RatePerSecond:          1_000_000,
		Workers:                4,
		StopAfterOrderCreation: true,
	}
	require.NoError(t, c.StartTestingForService(context.Background(), params))

	snapshot, err := c.GetTestingFlowForService("checkout")
	require.NoError(t, err)
	require.True(t, snapshot.TestsStarted >= 0)

	require.NoError(t, c.StopTestByServiceName(context.Background(), "checkout"))

	_, err = c.GetTestingFlowForService("checkout")
	require.ErrorIs(t, err, controller.ErrNotFound)
}

func TestStopTestByServiceName_NotFound_WhenAbsent(t *testing.T) {
	c := controller.New(fake.New())
	err := c.StopTestByServiceName(context.Background(), "nothing-running")
	require.ErrorIs(t, err, controller.ErrNotFound)
}

func TestStopAllTests_StopsEveryRegisteredFlow(t *testing.T) {
	api := fake.New(fake.WithDeliverySlots([]int{1}))
	c := controller.New(api)

	for _, name := range []string{"checkout", "catalog"} {
		params := domain.RunParams{
			ServiceName:            name,
			NumberOfUsers:          5,
			NumberOfTests:          1_000_000,
			RatePerSecond:          1_000_000,
			Workers:                2,
			StopAfterOrderCreation: true,
		}
		require.NoError(t, c.StartTestingForService(context.Background(), params))
	}

	require.NoError(t, c.StopAllTests(context.Background()))

	for _, name := range []string{"checkout", "catalog"} {
		_, err := c.GetTestingFlowForService(name)
		require.ErrorIs(t, err, controller.ErrNotFound)
	}
}

func TestStartTestingForService_PaymentFactStopsBeforeDelivery(t *testing.T) {
	api := fake.New(fake.WithDeliverySlots([]int{1}))
	c := controller.New(api)

	params := domain.RunParams{
		ServiceName:                 "checkout",
		NumberOfUsers:               5,
		NumberOfTests:               2,
		RatePerSecond:               1000,
		Workers:                     2,
		TestSuccessByThePaymentFact: true,
	}

	require.NoError(t, c.StartTestingForService(context.Background(), params))
	awaitFlowGone(t, c, "checkout", 5*time.Second)
}
