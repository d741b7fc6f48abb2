package ordercache_test

import (
	"testing"

	"github.com/vladislavdragonenkov/bombardier/internal/domain"
	"github.com/vladislavdragonenkov/bombardier/internal/ordercache"
)

func TestGet_MissReturnsFalse(t *testing.T) {
	c := ordercache.New()

	_, ok := c.Get("does-not-exist")
	if ok {
		t.Fatal("expected a miss")
	}
}

func TestPutThenGet_ReturnsLatestSnapshot(t *testing.T) {
	c := ordercache.New()
	order := domain.Order{ID: "order-1", Status: domain.Collecting{}}
	c.Put(order)

	got, ok := c.Get("order-1")
	if !ok {
		t.Fatal("expected a hit")
	}
	if got.Status.Kind() != domain.KindCollecting {
		t.Fatalf("unexpected status: %v", got.Status)
	}

	order.Status = domain.Booked{}
	c.Put(order)

	got, ok = c.Get("order-1")
	if !ok || got.Status.Kind() != domain.KindBooked {
		t.Fatalf("expected cache to reflect latest put, got %+v ok=%v", got, ok)
	}
}
