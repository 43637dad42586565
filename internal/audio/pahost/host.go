// Package pahost implements audio.Host on top of PortAudio.
package pahost

import (
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
	"github.com/petems/scan-converter/internal/audio"
)

var _ audio.Host = (*Host)(nil)

// Host is a PortAudio session. Open it once per process.
//
// PortAudio is not safe for concurrent use outside stream callbacks, so
// device queries, opens and closes go through mu.
type Host struct {
	mu sync.Mutex
}

// Open initializes PortAudio.
func Open() (*Host, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	return &Host{}, nil
}

// Close terminates PortAudio. All streams must be closed first.
func (h *Host) Close() error {
	return portaudio.Terminate()
}

// Endpoints lists every device PortAudio reports.
func (h *Host) Endpoints() ([]audio.Endpoint, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}

	result := make([]audio.Endpoint, 0, len(devices))
	for _, d := range devices {
		result = append(result, toEndpoint(d))
	}
	return result, nil
}

func toEndpoint(d *portaudio.DeviceInfo) audio.Endpoint {
	ep := audio.Endpoint{
		ID:                d.Index,
		Name:              d.Name,
		MaxInputChannels:  d.MaxInputChannels,
		MaxOutputChannels: d.MaxOutputChannels,
		DefaultSampleRate: d.DefaultSampleRate,
	}
	if d.HostApi != nil {
		ep.HostAPI = d.HostApi.Name
	}
	// PortAudio only reports the default rate; the rest are found by trial.
	if d.DefaultSampleRate > 0 {
		ep.SampleRates = []int{int(d.DefaultSampleRate)}
	}
	return ep
}

// device resolves ep against the current device list.
func device(ep audio.Endpoint) (*portaudio.DeviceInfo, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate devices: %w", err)
	}
	for _, d := range devices {
		if d.Index == ep.ID && d.Name == ep.Name {
			return d, nil
		}
	}
	return nil, fmt.Errorf("%q: %w", ep.Name, audio.ErrDeviceUnavailable)
}

// OpenInput opens a callback-driven capture stream on ep.
func (h *Host) OpenInput(ep audio.Endpoint, p audio.StreamParams, cb audio.CaptureFunc) (audio.Stream, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	d, err := device(ep)
	if err != nil {
		return nil, err
	}
	pas, err := portaudio.OpenStream(portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   d,
			Channels: p.Channels,
			Latency:  d.DefaultLowInputLatency,
		},
		SampleRate:      float64(p.SampleRate),
		FramesPerBuffer: p.FramesPerBlock,
	}, func(in []float32, _ portaudio.StreamCallbackTimeInfo, flags portaudio.StreamCallbackFlags) {
		cb(in, status(flags))
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open input stream: %w", err)
	}
	return &stream{s: pas, host: h}, nil
}

// OpenOutput opens a callback-driven playback stream on ep.
func (h *Host) OpenOutput(ep audio.Endpoint, p audio.StreamParams, cb audio.PlaybackFunc) (audio.Stream, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	d, err := device(ep)
	if err != nil {
		return nil, err
	}
	pas, err := portaudio.OpenStream(portaudio.StreamParameters{
		Output: portaudio.StreamDeviceParameters{
			Device:   d,
			Channels: p.Channels,
			Latency:  d.DefaultLowOutputLatency,
		},
		SampleRate:      float64(p.SampleRate),
		FramesPerBuffer: p.FramesPerBlock,
	}, func(out []float32, _ portaudio.StreamCallbackTimeInfo, flags portaudio.StreamCallbackFlags) {
		cb(out, status(flags))
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open output stream: %w", err)
	}
	return &stream{s: pas, host: h}, nil
}

func status(f portaudio.StreamCallbackFlags) audio.CallbackStatus {
	var s audio.CallbackStatus
	if f&portaudio.InputUnderflow != 0 {
		s |= audio.InputUnderflow
	}
	if f&portaudio.InputOverflow != 0 {
		s |= audio.InputOverflow
	}
	if f&portaudio.OutputUnderflow != 0 {
		s |= audio.OutputUnderflow
	}
	if f&portaudio.OutputOverflow != 0 {
		s |= audio.OutputOverflow
	}
	if f&portaudio.PrimingOutput != 0 {
		s |= audio.PrimingOutput
	}
	return s
}

// stream makes Stop and Close safe to repeat.
type stream struct {
	s    *portaudio.Stream
	host *Host

	mu      sync.Mutex
	running bool
	closed  bool
}

func (s *stream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("stream closed")
	}
	if s.running {
		return nil
	}
	if err := s.s.Start(); err != nil {
		return fmt.Errorf("failed to start stream: %w", err)
	}
	s.running = true
	return nil
}

// Stop waits for pending callbacks to finish.
func (s *stream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil
	}
	s.running = false
	return s.s.Stop()
}

func (s *stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	s.host.mu.Lock()
	defer s.host.mu.Unlock()
	if s.running {
		s.running = false
		if err := s.s.Abort(); err != nil {
			s.s.Close()
			return err
		}
	}
	return s.s.Close()
}
