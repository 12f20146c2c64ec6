package stream

import (
	"io"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/heardlabs/heard/internal/provider"
)

func poolFactory() func() *Provider {
	return func() *Provider {
		return New(Config{
			Name:     "deepgram",
			APIKey:   "test-key",
			Model:    "nova-2",
			Endpoint: provider.EndpointConfig{BaseURL: "wss://api.deepgram.com", Path: "/v1/listen"},
		}, log.New(io.Discard))
	}
}

func TestPoolCapacityOneReusesInstance(t *testing.T) {
	pool := NewPool(1, poolFactory())
	if pool.Size() != 1 {
		t.Fatalf("Size() = %d, want 1", pool.Size())
	}
	first := pool.Get()
	for i := 0; i < 5; i++ {
		if pool.Get() != first {
			t.Fatal("capacity-1 pool must always hand out the same provider")
		}
	}
}

func TestPoolRoundRobin(t *testing.T) {
	pool := NewPool(3, poolFactory())
	a, b, c := pool.Get(), pool.Get(), pool.Get()
	if a == b || b == c || a == c {
		t.Fatal("expected three distinct providers")
	}
	if pool.Get() != a {
		t.Error("fourth Get() should wrap around to the first provider")
	}
}

func TestPoolClampsSize(t *testing.T) {
	pool := NewPool(0, poolFactory())
	if pool.Size() != 1 {
		t.Errorf("Size() = %d, want clamp to 1", pool.Size())
	}
	if pool.Get() == nil {
		t.Error("clamped pool must still produce a provider")
	}
}

func TestPoolEach(t *testing.T) {
	pool := NewPool(2, poolFactory())
	var count int
	pool.Each(func(p *Provider) {
		if p == nil {
			t.Error("Each() visited a nil provider")
		}
		count++
	})
	if count != 2 {
		t.Errorf("Each() visited %d providers, want 2", count)
	}
}
