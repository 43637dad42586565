package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/petems/scan-converter/internal/audio"
	"github.com/petems/scan-converter/internal/config"
)

// StatusUpdater is an interface for updating status (e.g., tray icon)
type StatusUpdater interface {
	SetIdle()
	SetRunning()
	SetNoDevices()
	SetError(reason string)
}

type Config struct {
	Router        *audio.Router
	Catalog       *audio.Catalog
	Config        *config.Config
	Logger        zerolog.Logger
	StatusUpdater StatusUpdater // Optional - can be nil
}

// App is the control side of the passthrough: it turns device selections
// into router reconfigurations and reports the outcome.
type App struct {
	router  *audio.Router
	catalog *audio.Catalog
	cfg     *config.Config
	log     zerolog.Logger
	status  StatusUpdater

	mu       sync.Mutex
	inputID  int
	outputID int
}

const noDevice = -1

// configureTimeout bounds how long a selection may wait on the host,
// including waiting out a device that stopped answering opens.
const configureTimeout = 15 * time.Second

func New(cfg Config) *App {
	return &App{
		router:   cfg.Router,
		catalog:  cfg.Catalog,
		cfg:      cfg.Config,
		log:      cfg.Logger,
		status:   cfg.StatusUpdater,
		inputID:  noDevice,
		outputID: noDevice,
	}
}

// SetStatusUpdater sets the status sink (for circular dependency resolution)
func (a *App) SetStatusUpdater(s StatusUpdater) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.status = s
}

func (a *App) ListInputs() []audio.Endpoint {
	return a.catalog.Inputs()
}

func (a *App) ListOutputs() []audio.Endpoint {
	return a.catalog.Outputs()
}

// Configure routes inputID to outputID, replacing any running pipeline.
func (a *App) Configure(ctx context.Context, inputID, outputID int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.configureLocked(ctx, inputID, outputID)
}

// SelectInput remembers the input and starts passthrough once an output is
// also selected. The output saved in the config counts as selected while it
// is present.
func (a *App) SelectInput(ctx context.Context, id int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.inputID = id
	if a.outputID == noDevice {
		a.outputID = remembered(a.catalog.Outputs(), a.cfg.Audio.OutputDevice)
	}
	if a.outputID == noDevice {
		return nil
	}
	return a.configureLocked(ctx, id, a.outputID)
}

// SelectOutput remembers the output and starts passthrough once an input is
// also selected. The input saved in the config counts as selected while it is
// present.
func (a *App) SelectOutput(ctx context.Context, id int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.outputID = id
	if a.inputID == noDevice {
		a.inputID = remembered(a.catalog.Inputs(), a.cfg.Audio.InputDevice)
	}
	if a.inputID == noDevice {
		return nil
	}
	return a.configureLocked(ctx, a.inputID, id)
}

// Selected returns the remembered device ids; -1 means none.
func (a *App) Selected() (inputID, outputID int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.inputID, a.outputID
}

func (a *App) configureLocked(ctx context.Context, inputID, outputID int) error {
	a.inputID, a.outputID = inputID, outputID

	ctx, cancel := context.WithTimeout(ctx, configureTimeout)
	defer cancel()

	inputs, outputs := a.catalog.Inputs(), a.catalog.Outputs()
	if len(inputs) == 0 || len(outputs) == 0 {
		a.teardownLocked()
		a.log.Warn().Int("inputs", len(inputs)).Int("outputs", len(outputs)).Msg("No audio devices found")
		if a.status != nil {
			a.status.SetNoDevices()
		}
		return audio.ErrNoDevices
	}

	in, ok := find(inputs, inputID)
	if !ok {
		return a.failLocked(fmt.Errorf("input %d: %w", inputID, audio.ErrDeviceUnavailable))
	}
	out, ok := find(outputs, outputID)
	if !ok {
		return a.failLocked(fmt.Errorf("output %d: %w", outputID, audio.ErrDeviceUnavailable))
	}

	if _, err := a.router.Configure(ctx, in, out); err != nil {
		return a.failLocked(err)
	}

	a.cfg.Audio.InputDevice = in.Name
	a.cfg.Audio.OutputDevice = out.Name
	if err := a.cfg.Save(); err != nil {
		a.log.Warn().Err(err).Msg("Failed to save device selection")
	}
	if a.status != nil {
		a.status.SetRunning()
	}
	return nil
}

func (a *App) failLocked(err error) error {
	a.teardownLocked()
	a.log.Error().Err(err).Str("reason", audio.Reason(err)).Msg("Configure failed")
	if a.status != nil {
		a.status.SetError(audio.Reason(err))
	}
	return err
}

// Teardown stops passthrough. Device selections are kept.
func (a *App) Teardown() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	err := a.teardownLocked()
	if a.status != nil {
		a.status.SetIdle()
	}
	return err
}

func (a *App) teardownLocked() error {
	if err := a.router.Teardown(); err != nil {
		a.log.Error().Err(err).Msg("Teardown error")
		return err
	}
	return nil
}

// Autostart reopens the pair remembered in the config, if enabled and both
// devices are still present.
func (a *App) Autostart(ctx context.Context) error {
	ac := a.cfg.Audio
	if !ac.Autostart || ac.InputDevice == "" || ac.OutputDevice == "" {
		return nil
	}

	in, okIn := findByName(a.catalog.Inputs(), ac.InputDevice)
	out, okOut := findByName(a.catalog.Outputs(), ac.OutputDevice)
	if !okIn || !okOut {
		a.log.Info().
			Str("input", ac.InputDevice).
			Str("output", ac.OutputDevice).
			Msg("Remembered devices not present, not autostarting")
		return nil
	}
	return a.Configure(ctx, in.ID, out.ID)
}

func (a *App) PollLevels() (captured, played audio.Level) {
	return a.router.Levels()
}

func (a *App) IsRunning() bool {
	return a.router.State() == audio.StateRunning
}

// Monitor logs data-path degradations once per interval until ctx is done.
func (a *App) Monitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	prev := a.router.Stats()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cur := a.router.Stats()
			a.logDelta(prev, cur)
			prev = cur
		}
	}
}

func (a *App) logDelta(prev, cur audio.Stats) {
	dropped := cur.Dropped - prev.Dropped
	underruns := cur.Underruns - prev.Underruns
	faults := cur.TotalFaults() - prev.TotalFaults()
	if dropped == 0 && underruns == 0 && faults == 0 {
		return
	}

	ev := a.log.Warn().
		Uint64("dropped", dropped).
		Uint64("underruns", underruns)
	for flag, n := range cur.Faults {
		if d := n - prev.Faults[flag]; d > 0 {
			ev = ev.Uint64(flag, d)
		}
	}
	ev.Msg("Audio degraded")
}

// DeviceReport renders the current catalog snapshot and pipeline state.
func (a *App) DeviceReport() string {
	var b strings.Builder
	write := func(title string, eps []audio.Endpoint, channels func(audio.Endpoint) int) {
		fmt.Fprintf(&b, "%s:\n", title)
		if len(eps) == 0 {
			b.WriteString("  (none)\n")
		}
		for _, ep := range eps {
			fmt.Fprintf(&b, "  [%d] %s (%s, %d ch, %.0f Hz default)\n",
				ep.ID, ep.Name, ep.HostAPI, channels(ep), ep.DefaultSampleRate)
		}
	}
	write("Inputs", a.catalog.Inputs(), func(ep audio.Endpoint) int { return ep.MaxInputChannels })
	write("Outputs", a.catalog.Outputs(), func(ep audio.Endpoint) int { return ep.MaxOutputChannels })

	if sc, ok := a.router.Config(); ok {
		fmt.Fprintf(&b, "Passthrough: %d -> %d at %d Hz, %d frames/block\n",
			sc.InputID, sc.OutputID, sc.SampleRate, sc.FramesPerBlock)
	} else {
		b.WriteString("Passthrough: stopped\n")
	}
	return b.String()
}

// Shutdown stops passthrough. It gives up waiting when ctx is done; the
// teardown itself still completes in the background.
func (a *App) Shutdown(ctx context.Context) error {
	done := make(chan error, 1)
	go func() {
		done <- a.Teardown()
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("shutdown: %w", ctx.Err())
	}
}

func find(eps []audio.Endpoint, id int) (audio.Endpoint, bool) {
	for _, ep := range eps {
		if ep.ID == id {
			return ep, true
		}
	}
	return audio.Endpoint{}, false
}

// remembered resolves a saved device name to its current id.
func remembered(eps []audio.Endpoint, name string) int {
	if name == "" {
		return noDevice
	}
	if ep, ok := findByName(eps, name); ok {
		return ep.ID
	}
	return noDevice
}

func findByName(eps []audio.Endpoint, name string) (audio.Endpoint, bool) {
	for _, ep := range eps {
		if ep.Name == name {
			return ep, true
		}
	}
	return audio.Endpoint{}, false
}
