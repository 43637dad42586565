// Package audio routes mono audio from one host input device to one host
// output device.
//
// The host audio subsystem is reached through the [Host] interface; the
// PortAudio implementation lives in the pahost subpackage. A [Router] owns at
// most one live [Pipeline] at a time and replaces it wholesale on every
// reconfiguration.
package audio

import "time"

// Endpoint is an immutable snapshot of one host audio device.
type Endpoint struct {
	ID                int
	Name              string
	HostAPI           string
	MaxInputChannels  int
	MaxOutputChannels int
	// SampleRates lists natively supported rates. Empty means unknown and
	// rates are discovered by trial.
	SampleRates       []int
	DefaultSampleRate float64
}

// StreamConfig describes a negotiated pipeline.
type StreamConfig struct {
	InputID        int
	OutputID       int
	SampleRate     int
	Channels       int
	FramesPerBlock int
}

// BlockLen is the number of samples in one callback block.
func (c StreamConfig) BlockLen() int {
	return c.FramesPerBlock * c.Channels
}

// BlockDuration is the wall time covered by one block.
func (c StreamConfig) BlockDuration() time.Duration {
	if c.SampleRate <= 0 {
		return 0
	}
	return time.Duration(c.FramesPerBlock) * time.Second / time.Duration(c.SampleRate)
}

// StreamParams are passed to the host when opening one side of a pipeline.
type StreamParams struct {
	SampleRate     int
	Channels       int
	FramesPerBlock int
}

// CallbackStatus carries the status flags the host reports with a callback.
type CallbackStatus uint32

const (
	InputUnderflow CallbackStatus = 1 << iota
	InputOverflow
	OutputUnderflow
	OutputOverflow
	PrimingOutput
)

var statusNames = [...]struct {
	flag CallbackStatus
	name string
}{
	{InputUnderflow, "input_underflow"},
	{InputOverflow, "input_overflow"},
	{OutputUnderflow, "output_underflow"},
	{OutputOverflow, "output_overflow"},
	{PrimingOutput, "priming_output"},
}

// CaptureFunc is invoked by the host on its capture thread with one block of
// input samples. It must not block or allocate.
type CaptureFunc func(in []float32, status CallbackStatus)

// PlaybackFunc is invoked by the host on its playback thread and must fill
// out completely. It must not block or allocate.
type PlaybackFunc func(out []float32, status CallbackStatus)

// Stream is one open hardware stream.
type Stream interface {
	Start() error
	// Stop returns once the host has stopped delivering callbacks.
	Stop() error
	// Close releases the stream. Closing a closed stream is a no-op.
	Close() error
}

// Host is the host audio subsystem.
type Host interface {
	// Endpoints queries the host for every device currently present.
	Endpoints() ([]Endpoint, error)
	OpenInput(ep Endpoint, p StreamParams, cb CaptureFunc) (Stream, error)
	OpenOutput(ep Endpoint, p StreamParams, cb PlaybackFunc) (Stream, error)
}
