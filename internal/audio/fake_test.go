package audio

import (
	"errors"
	"sync"
	"time"
)

var errRejected = errors.New("rejected by driver")

// fakeHost stands in for the host audio subsystem. Each endpoint accepts
// the rates listed in rates; an endpoint missing from rates accepts none.
type fakeHost struct {
	mu        sync.Mutex
	endpoints []Endpoint
	queryErr  error
	queries   int
	rates     map[int][]int

	failOutputOpen  bool
	failInputStart  bool
	failOutputStart bool
	block           chan struct{} // when set, opens wait on it
	drive           bool          // when set, started streams run their callback on a goroutine

	inflight, peak int

	streams []*fakeStream
	events  []string
}

func newFakeHost(endpoints ...Endpoint) *fakeHost {
	return &fakeHost{endpoints: endpoints, rates: map[int][]int{}}
}

func (h *fakeHost) Endpoints() ([]Endpoint, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.queries++
	if h.queryErr != nil {
		return nil, h.queryErr
	}
	return append([]Endpoint(nil), h.endpoints...), nil
}

func (h *fakeHost) accepts(id, rate int) bool {
	for _, r := range h.rates[id] {
		if r == rate {
			return true
		}
	}
	return false
}

func (h *fakeHost) OpenInput(ep Endpoint, p StreamParams, cb CaptureFunc) (Stream, error) {
	h.enter()
	defer h.leave()
	if h.block != nil {
		<-h.block
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.accepts(ep.ID, p.SampleRate) {
		return nil, errRejected
	}
	s := &fakeStream{host: h, name: "input", params: p, capture: cb, failStart: h.failInputStart}
	h.streams = append(h.streams, s)
	return s, nil
}

func (h *fakeHost) OpenOutput(ep Endpoint, p StreamParams, cb PlaybackFunc) (Stream, error) {
	h.enter()
	defer h.leave()
	if h.block != nil {
		<-h.block
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.accepts(ep.ID, p.SampleRate) || h.failOutputOpen {
		return nil, errRejected
	}
	s := &fakeStream{host: h, name: "output", params: p, playback: cb, failStart: h.failOutputStart}
	h.streams = append(h.streams, s)
	return s, nil
}

func (h *fakeHost) enter() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.inflight++
	h.peak = max(h.peak, h.inflight)
}

func (h *fakeHost) leave() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.inflight--
}

// opens reports host open calls still running and the most ever running at
// once.
func (h *fakeHost) opens() (inflight, peak int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.inflight, h.peak
}

// opened reports how many streams the host has ever handed out.
func (h *fakeHost) opened() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.streams)
}

// openCount reports streams opened and not yet closed.
func (h *fakeHost) openCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, s := range h.streams {
		if !s.closed {
			n++
		}
	}
	return n
}

// live returns the most recent open input and output streams.
func (h *fakeHost) live() (in, out *fakeStream) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, s := range h.streams {
		if s.closed {
			continue
		}
		if s.capture != nil {
			in = s
		} else {
			out = s
		}
	}
	return in, out
}

func (h *fakeHost) record(ev string) {
	h.events = append(h.events, ev)
}

type fakeStream struct {
	host     *fakeHost
	name     string
	params   StreamParams
	capture  CaptureFunc
	playback PlaybackFunc

	failStart bool
	started   bool
	closed    bool

	quit   chan struct{}
	exited chan struct{}
}

func (s *fakeStream) Start() error {
	s.host.mu.Lock()
	defer s.host.mu.Unlock()
	if s.failStart {
		return errRejected
	}
	s.started = true
	s.host.record("start " + s.name)
	if s.host.drive {
		s.quit, s.exited = make(chan struct{}), make(chan struct{})
		go s.run(s.quit, s.exited)
	}
	return nil
}

// Stop returns once the stream's callback goroutine, if any, has exited.
func (s *fakeStream) Stop() error {
	wasStarted := s.halt()
	s.host.mu.Lock()
	defer s.host.mu.Unlock()
	if wasStarted {
		s.host.record("stop " + s.name)
	}
	return nil
}

func (s *fakeStream) Close() error {
	s.halt()
	s.host.mu.Lock()
	defer s.host.mu.Unlock()
	if !s.closed {
		s.host.record("close " + s.name)
	}
	s.closed = true
	return nil
}

func (s *fakeStream) halt() (wasStarted bool) {
	s.host.mu.Lock()
	quit, exited := s.quit, s.exited
	s.quit, s.exited = nil, nil
	wasStarted = s.started
	s.started = false
	s.host.mu.Unlock()

	if quit != nil {
		close(quit)
		<-exited
	}
	return wasStarted
}

// run plays the host's callback thread until quit is closed.
func (s *fakeStream) run(quit, exited chan struct{}) {
	defer close(exited)
	buf := make([]float32, s.params.FramesPerBlock*s.params.Channels)
	for {
		select {
		case <-quit:
			return
		default:
		}
		for i := range buf {
			buf[i] = 0.5
		}
		s.deliver(buf, 0)
		time.Sleep(100 * time.Microsecond)
	}
}

// deliver simulates one hardware callback on a running stream.
func (s *fakeStream) deliver(buf []float32, status CallbackStatus) {
	if s.capture != nil {
		s.capture(buf, status)
		return
	}
	s.playback(buf, status)
}
