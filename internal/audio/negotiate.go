package audio

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// CandidateRates is the negotiation order, best quality first.
var CandidateRates = []int{48000, 44100, 32000, 22050, 16000}

// DefaultOpenTimeout bounds a single trial open so unresponsive hardware
// fails fast.
const DefaultOpenTimeout = 2 * time.Second

// Negotiator finds a sample rate two endpoints both accept by trial-opening
// real streams. Driver-reported capability lists are not consulted.
type Negotiator struct {
	host           Host
	framesPerBlock int
	opens          *opener
	log            zerolog.Logger
}

// NewNegotiator returns a negotiator that opens trial streams on host.
func NewNegotiator(host Host, framesPerBlock int, openTimeout time.Duration, log zerolog.Logger) *Negotiator {
	return &Negotiator{
		host:           host,
		framesPerBlock: framesPerBlock,
		opens:          newOpener(openTimeout, log),
		log:            log,
	}
}

// Negotiate returns the first rate in CandidateRates at which both a mono
// input stream on in and a mono output stream on out open. Trial streams are
// closed before returning. It reports false when no candidate works or ctx
// is done.
//
// An endpoint that does not answer an open in time ends negotiation; no
// further rates are tried against it. Negotiate then waits, for as long as
// ctx allows, for the unanswered open to return so that nothing it produced
// outlives the call.
func (n *Negotiator) Negotiate(ctx context.Context, in, out Endpoint) (int, bool) {
	for _, rate := range CandidateRates {
		if ctx.Err() != nil {
			return 0, false
		}
		ok, err := n.try(ctx, in, out, rate)
		if err != nil {
			n.log.Warn().Err(err).Int("rate", rate).Msg("Endpoint did not answer, giving up negotiation")
			if err := n.opens.settle(ctx); err != nil {
				n.log.Warn().Err(err).Msg("Unanswered open still pending")
			}
			return 0, false
		}
		if ok {
			n.log.Debug().
				Str("input", in.Name).
				Str("output", out.Name).
				Int("rate", rate).
				Msg("Negotiated sample rate")
			return rate, true
		}
	}
	n.log.Warn().Str("input", in.Name).Str("output", out.Name).Msg("No common sample rate")
	return 0, false
}

// try reports whether both sides open at rate. A non-nil error means an open
// was abandoned and negotiation must stop.
func (n *Negotiator) try(ctx context.Context, in, out Endpoint, rate int) (bool, error) {
	p := StreamParams{SampleRate: rate, Channels: 1, FramesPerBlock: n.framesPerBlock}

	ins, err := n.opens.open(ctx, func() (Stream, error) {
		return n.host.OpenInput(in, p, func([]float32, CallbackStatus) {})
	})
	if errors.Is(err, errOpenAbandoned) {
		return false, fmt.Errorf("input %q: %w", in.Name, err)
	}
	if err != nil {
		n.log.Debug().Err(err).Int("rate", rate).Str("device", in.Name).Msg("Input rejected rate")
		return false, nil
	}
	defer closeQuietly(ins, n.log)

	outs, err := n.opens.open(ctx, func() (Stream, error) {
		return n.host.OpenOutput(out, p, func(out []float32, _ CallbackStatus) { clear(out) })
	})
	if errors.Is(err, errOpenAbandoned) {
		return false, fmt.Errorf("output %q: %w", out.Name, err)
	}
	if err != nil {
		n.log.Debug().Err(err).Int("rate", rate).Str("device", out.Name).Msg("Output rejected rate")
		return false, nil
	}
	closeQuietly(outs, n.log)
	return true, nil
}
