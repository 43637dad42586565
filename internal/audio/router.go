package audio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// DefaultFramesPerBlock is the callback period in frames.
const DefaultFramesPerBlock = 512

// State is the router lifecycle state.
type State int32

const (
	StateIdle State = iota
	StateNegotiating
	StateRunning
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateNegotiating:
		return "negotiating"
	case StateRunning:
		return "running"
	default:
		return "unknown"
	}
}

// RouterConfig wires a Router.
type RouterConfig struct {
	Host            Host
	FramesPerBlock  int
	ChannelCapacity int
	MeterGain       float32
	OpenTimeout     time.Duration
	Logger          zerolog.Logger
}

// Pipeline is the live input/output stream pair and the channel between
// them. It is created whole by Configure and discarded whole by Teardown.
type Pipeline struct {
	Config StreamConfig

	input  Stream
	output Stream
	ch     *Channel
}

// Router owns the passthrough pipeline. Configure and Teardown are control
// operations and are serialised internally; Levels and Stats may be called
// from any goroutine.
type Router struct {
	host       Host
	negotiator *Negotiator
	meter      Meter
	frames     int
	capacity   int
	log        zerolog.Logger

	mu   sync.Mutex
	pipe *Pipeline

	state    atomic.Int32
	captured atomicLevel
	played   atomicLevel
	stats    counters
}

// NewRouter returns an idle router.
func NewRouter(cfg RouterConfig) *Router {
	if cfg.FramesPerBlock <= 0 {
		cfg.FramesPerBlock = DefaultFramesPerBlock
	}
	if cfg.ChannelCapacity <= 0 {
		cfg.ChannelCapacity = DefaultChannelCapacity
	}
	if cfg.MeterGain <= 0 {
		cfg.MeterGain = DefaultMeterGain
	}
	return &Router{
		host:       cfg.Host,
		negotiator: NewNegotiator(cfg.Host, cfg.FramesPerBlock, cfg.OpenTimeout, cfg.Logger),
		meter:      Meter{Gain: cfg.MeterGain},
		frames:     cfg.FramesPerBlock,
		capacity:   cfg.ChannelCapacity,
		log:        cfg.Logger,
	}
}

// Configure replaces any running pipeline with one from in to out. The old
// pipeline is fully stopped and closed first. On failure the router is Idle
// with no stream open.
func (r *Router) Configure(ctx context.Context, in, out Endpoint) (StreamConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.teardownLocked(); err != nil {
		r.log.Warn().Err(err).Msg("Teardown before configure reported errors")
	}

	// The host must be quiet before anything new is opened on it.
	if err := r.negotiator.opens.settle(ctx); err != nil {
		return StreamConfig{}, fmt.Errorf("earlier open on %q or %q still pending: %w: %w", in.Name, out.Name, ErrDeviceUnavailable, err)
	}

	r.state.Store(int32(StateNegotiating))
	rate, ok := r.negotiator.Negotiate(ctx, in, out)
	if !ok {
		r.state.Store(int32(StateIdle))
		if err := ctx.Err(); err != nil {
			return StreamConfig{}, fmt.Errorf("negotiating %q -> %q: %w", in.Name, out.Name, err)
		}
		return StreamConfig{}, fmt.Errorf("negotiating %q -> %q: %w", in.Name, out.Name, ErrNegotiationFailed)
	}

	cfg := StreamConfig{
		InputID:        in.ID,
		OutputID:       out.ID,
		SampleRate:     rate,
		Channels:       1,
		FramesPerBlock: r.frames,
	}
	p, err := r.open(ctx, in, out, cfg)
	if err != nil {
		if err := r.negotiator.opens.settle(ctx); err != nil {
			r.log.Warn().Err(err).Msg("Abandoned open still pending")
		}
		r.state.Store(int32(StateIdle))
		return StreamConfig{}, err
	}

	r.pipe = p
	r.state.Store(int32(StateRunning))
	r.log.Info().
		Str("input", in.Name).
		Str("output", out.Name).
		Int("rate", cfg.SampleRate).
		Int("frames", cfg.FramesPerBlock).
		Dur("block", cfg.BlockDuration()).
		Msg("Passthrough running")
	return cfg, nil
}

// open brings up both streams or none of them.
func (r *Router) open(ctx context.Context, in, out Endpoint, cfg StreamConfig) (*Pipeline, error) {
	ch := NewChannel(r.capacity, cfg.BlockLen())
	params := StreamParams{
		SampleRate:     cfg.SampleRate,
		Channels:       cfg.Channels,
		FramesPerBlock: cfg.FramesPerBlock,
	}

	input, err := r.negotiator.opens.open(ctx, func() (Stream, error) {
		return r.host.OpenInput(in, params, r.captureFunc(ch))
	})
	if err != nil {
		return nil, fmt.Errorf("opening input %q at %d Hz: %w: %w", in.Name, cfg.SampleRate, ErrStreamOpenFailed, err)
	}

	output, err := r.negotiator.opens.open(ctx, func() (Stream, error) {
		return r.host.OpenOutput(out, params, r.playbackFunc(ch))
	})
	if err != nil {
		closeQuietly(input, r.log)
		return nil, fmt.Errorf("opening output %q at %d Hz: %w: %w", out.Name, cfg.SampleRate, ErrStreamOpenFailed, err)
	}

	// Playback starts first so the first captured block has somewhere to go.
	if err := output.Start(); err != nil {
		closeQuietly(input, r.log)
		closeQuietly(output, r.log)
		return nil, fmt.Errorf("starting output %q: %w: %w", out.Name, ErrStreamOpenFailed, err)
	}
	if err := input.Start(); err != nil {
		if err := output.Stop(); err != nil {
			r.log.Warn().Err(err).Msg("Failed to stop output stream")
		}
		closeQuietly(input, r.log)
		closeQuietly(output, r.log)
		return nil, fmt.Errorf("starting input %q: %w: %w", in.Name, ErrStreamOpenFailed, err)
	}

	return &Pipeline{Config: cfg, input: input, output: output, ch: ch}, nil
}

// Teardown stops and closes the live pipeline, if any, and returns to Idle.
// It returns once neither callback can run again. Calling it repeatedly is
// safe.
func (r *Router) Teardown() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.teardownLocked()
}

func (r *Router) teardownLocked() error {
	p := r.pipe
	r.pipe = nil
	defer func() {
		r.captured.Store(0)
		r.played.Store(0)
		r.state.Store(int32(StateIdle))
	}()
	if p == nil {
		return nil
	}

	var errs []error
	// Both sides stop before either is closed.
	if err := p.input.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("stopping input: %w", err))
	}
	if err := p.output.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("stopping output: %w", err))
	}
	if err := p.input.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing input: %w", err))
	}
	if err := p.output.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing output: %w", err))
	}
	p.ch.Drain()

	r.log.Info().Int("rate", p.Config.SampleRate).Msg("Passthrough stopped")
	return errors.Join(errs...)
}

func (r *Router) captureFunc(ch *Channel) CaptureFunc {
	return func(in []float32, status CallbackStatus) {
		if status != 0 {
			r.stats.fault(status)
		}
		r.stats.captured.Add(1)
		r.captured.Store(r.meter.Measure(in))
		if !ch.TryPush(in) {
			r.stats.dropped.Add(1)
		}
	}
}

func (r *Router) playbackFunc(ch *Channel) PlaybackFunc {
	return func(out []float32, status CallbackStatus) {
		if status != 0 {
			r.stats.fault(status)
		}
		if !ch.TryPop(out) {
			clear(out)
			r.played.Store(0)
			r.stats.underruns.Add(1)
			return
		}
		r.stats.played.Add(1)
		r.played.Store(r.meter.Measure(out))
	}
}

// State reports the current lifecycle state.
func (r *Router) State() State {
	return State(r.state.Load())
}

// Config returns the running pipeline's configuration.
func (r *Router) Config() (StreamConfig, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pipe == nil {
		return StreamConfig{}, false
	}
	return r.pipe.Config, true
}

// Buffered reports how many blocks sit in the live channel.
func (r *Router) Buffered() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pipe == nil {
		return 0
	}
	return r.pipe.ch.Len()
}

// Levels returns the latest captured and played levels.
func (r *Router) Levels() (captured, played Level) {
	return r.captured.Load(), r.played.Load()
}

// Stats returns a snapshot of the data-path counters.
func (r *Router) Stats() Stats {
	return r.stats.snapshot()
}
