package audio

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

var (
	epIn  = Endpoint{ID: 1, Name: "A", MaxInputChannels: 1}
	epOut = Endpoint{ID: 2, Name: "B", MaxOutputChannels: 2}
)

func TestNegotiate(t *testing.T) {
	tests := []struct {
		name     string
		inRates  []int
		outRates []int
		want     int
		ok       bool
	}{
		{name: "both accept 48000 and 44100", inRates: []int{48000, 44100}, outRates: []int{44100, 48000}, want: 48000, ok: true},
		{name: "44100 beats lower shared rate", inRates: []int{44100, 16000, 96000}, outRates: []int{16000, 44100}, want: 44100, ok: true},
		{name: "lowest candidate", inRates: []int{16000}, outRates: []int{16000, 8000}, want: 16000, ok: true},
		{name: "disjoint", inRates: []int{32000}, outRates: []int{16000}, ok: false},
		{name: "only non-candidate overlap", inRates: []int{96000}, outRates: []int{96000}, ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			host := newFakeHost(epIn, epOut)
			host.rates[epIn.ID] = tt.inRates
			host.rates[epOut.ID] = tt.outRates

			n := NewNegotiator(host, 256, time.Second, zerolog.Nop())
			got, ok := n.Negotiate(context.Background(), epIn, epOut)
			if ok != tt.ok || got != tt.want {
				t.Fatalf("expected (%d, %v), got (%d, %v)", tt.want, tt.ok, got, ok)
			}
			if open := host.openCount(); open != 0 {
				t.Fatalf("expected no streams left open, got %d", open)
			}
		})
	}
}

func TestNegotiateOpensMono(t *testing.T) {
	host := newFakeHost(epIn, epOut)
	host.rates[epIn.ID] = []int{48000}
	host.rates[epOut.ID] = []int{48000}

	n := NewNegotiator(host, 128, 0, zerolog.Nop())
	if _, ok := n.Negotiate(context.Background(), epIn, epOut); !ok {
		t.Fatal("expected negotiation to succeed")
	}
	for _, s := range host.streams {
		if s.params.Channels != 1 || s.params.FramesPerBlock != 128 {
			t.Errorf("%s trial opened with %+v", s.name, s.params)
		}
	}
}

func TestNegotiateStopsAtFirstHungOpen(t *testing.T) {
	host := newFakeHost(epIn, epOut)
	host.rates[epIn.ID] = []int{48000}
	host.rates[epOut.ID] = []int{48000}
	host.block = make(chan struct{})

	n := NewNegotiator(host, 128, 10*time.Millisecond, zerolog.Nop())
	done := make(chan bool, 1)
	go func() {
		_, ok := n.Negotiate(context.Background(), epIn, epOut)
		done <- ok
	}()

	// Well past the open timeout: no other rate may be tried meanwhile.
	time.Sleep(50 * time.Millisecond)
	if inflight, peak := host.opens(); inflight != 1 || peak != 1 {
		t.Fatalf("expected one open in flight at most, got %d (peak %d)", inflight, peak)
	}
	select {
	case <-done:
		t.Fatal("Negotiate returned while its open was still running")
	default:
	}

	close(host.block)
	select {
	case ok := <-done:
		if ok {
			t.Fatal("expected a hung endpoint to fail negotiation")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Negotiate did not return after the open finished")
	}

	if inflight, peak := host.opens(); inflight != 0 || peak != 1 {
		t.Fatalf("expected no open left running, got %d (peak %d)", inflight, peak)
	}
	if opened, open := host.opened(), host.openCount(); opened != 1 || open != 0 {
		t.Fatalf("expected the late stream opened once then closed, got %d opened and %d open", opened, open)
	}
}

func TestNegotiateStopsWaitingWhenContextEnds(t *testing.T) {
	host := newFakeHost(epIn, epOut)
	host.rates[epIn.ID] = []int{48000}
	host.rates[epOut.ID] = []int{48000}
	host.block = make(chan struct{})
	t.Cleanup(func() { close(host.block) })

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	n := NewNegotiator(host, 128, 10*time.Millisecond, zerolog.Nop())
	start := time.Now()
	if _, ok := n.Negotiate(ctx, epIn, epOut); ok {
		t.Fatal("expected hung opens to fail negotiation")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("negotiation took %v", elapsed)
	}
	if _, peak := host.opens(); peak != 1 {
		t.Fatalf("expected a single open attempt, got peak %d", peak)
	}
}

func TestNegotiateHonoursCancellation(t *testing.T) {
	host := newFakeHost(epIn, epOut)
	host.rates[epIn.ID] = []int{48000}
	host.rates[epOut.ID] = []int{48000}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	n := NewNegotiator(host, 128, time.Second, zerolog.Nop())
	if _, ok := n.Negotiate(ctx, epIn, epOut); ok {
		t.Fatal("expected cancelled negotiation to fail")
	}
	if len(host.streams) != 0 {
		t.Fatalf("expected no trial opens, got %d", len(host.streams))
	}
}
