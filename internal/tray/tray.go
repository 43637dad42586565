package tray

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/atotto/clipboard"
	"github.com/getlantern/systray"
	"github.com/rs/zerolog"

	"github.com/petems/scan-converter/internal/app"
	"github.com/petems/scan-converter/internal/audio"
	"github.com/petems/scan-converter/internal/config"
	"github.com/petems/scan-converter/internal/logging"
)

// levelRefresh drives the title meter.
const levelRefresh = 100 * time.Millisecond

type UI struct {
	app     *app.App
	cfg     *config.Config
	version string
	commit  string
	log     zerolog.Logger

	mu     sync.Mutex
	status string
	reason string

	ready atomic.Bool // set once systray has a tray to draw on

	menuMu sync.Mutex // guards inputs and outputs

	// Menu items
	mStatus   *systray.MenuItem
	mInputs   *systray.MenuItem
	mOutputs  *systray.MenuItem
	mNoDevice *systray.MenuItem
	mStop     *systray.MenuItem
	inputs    map[int]*systray.MenuItem
	outputs   map[int]*systray.MenuItem
}

// Status update methods for the app to call
func (u *UI) SetIdle() {
	u.updateStatus("idle", "")
}

func (u *UI) SetRunning() {
	u.updateStatus("running", "")
}

func (u *UI) SetNoDevices() {
	u.updateStatus("no-devices", "")
}

func (u *UI) SetError(reason string) {
	u.updateStatus("error", reason)
}

func New(application *app.App, cfg *config.Config, log zerolog.Logger, version, commit string) *UI {
	return &UI{
		app:     application,
		cfg:     cfg,
		version: version,
		commit:  commit,
		log:     log,
		status:  "idle",
		inputs:  make(map[int]*systray.MenuItem),
		outputs: make(map[int]*systray.MenuItem),
	}
}

// SetApp sets the app reference (for circular dependency resolution)
func (u *UI) SetApp(application *app.App) {
	u.app = application
}

// Run blocks on the tray event loop until Quit. It MUST be called from the
// main goroutine.
func (u *UI) Run(ctx context.Context, onQuit func()) error {
	systray.Run(func() { u.onReady(ctx) }, onQuit)
	return nil
}

func (u *UI) onReady(ctx context.Context) {
	systray.SetTooltip("Audio passthrough monitor")

	u.mStatus = systray.AddMenuItem("Passthrough stopped", "")
	u.mStatus.Disable()
	systray.AddSeparator()

	u.mNoDevice = systray.AddMenuItem("No audio devices detected", "")
	u.mNoDevice.Disable()
	u.mNoDevice.Hide()
	u.mInputs = systray.AddMenuItem("Input", "Select capture device")
	u.mOutputs = systray.AddMenuItem("Output", "Select playback device")
	mRescan := systray.AddMenuItem("Rescan Devices", "Query the host for devices again")

	systray.AddSeparator()
	u.mStop = systray.AddMenuItem("Stop Passthrough", "Close both audio streams")
	mReport := systray.AddMenuItem("Copy Device Report", "Copy the device list to the clipboard")
	u.rescan(ctx)

	systray.AddSeparator()
	mLogs := systray.AddMenuItem("Open Logs", "View application logs")
	mAbout := systray.AddMenuItem("About", "About Scan Converter")
	mQuit := systray.AddMenuItem("Quit", "Exit application")

	u.ready.Store(true)
	u.redraw()
	go u.pollLevels(ctx)

	// Event loop
	go u.handleEvents(ctx, mRescan, mReport, mLogs, mAbout, mQuit)
}

func (u *UI) handleEvents(ctx context.Context, mRescan, mReport, mLogs, mAbout, mQuit *systray.MenuItem) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-mRescan.ClickedCh:
			u.rescan(ctx)
		case <-u.mStop.ClickedCh:
			if err := u.app.Teardown(); err != nil {
				u.log.Error().Err(err).Msg("Failed to stop passthrough")
			}
		case <-mReport.ClickedCh:
			u.copyReport()
		case <-mLogs.ClickedCh:
			u.openLogs()
		case <-mAbout.ClickedCh:
			u.showAbout()
		case <-mQuit.ClickedCh:
			systray.Quit()
			return
		}
	}
}

// rescan adds menu entries for new devices and hides vanished ones. systray
// cannot remove items, so entries are kept keyed by device id.
func (u *UI) rescan(ctx context.Context) {
	inputs := u.app.ListInputs()
	outputs := u.app.ListOutputs()
	u.syncDevices(ctx, u.mInputs, u.inputs, inputs, u.cfg.Audio.InputDevice, u.app.SelectInput)
	u.syncDevices(ctx, u.mOutputs, u.outputs, outputs, u.cfg.Audio.OutputDevice, u.app.SelectOutput)

	if len(inputs) == 0 || len(outputs) == 0 {
		u.mNoDevice.Show()
		u.mStop.Disable()
		u.SetNoDevices()
		return
	}
	u.mNoDevice.Hide()
	u.mStop.Enable()
	if u.currentStatus() == "no-devices" {
		u.SetIdle()
	}
}

func (u *UI) syncDevices(
	ctx context.Context,
	parent *systray.MenuItem,
	items map[int]*systray.MenuItem,
	eps []audio.Endpoint,
	remembered string,
	selectFn func(context.Context, int) error,
) {
	u.menuMu.Lock()
	defer u.menuMu.Unlock()

	present := make(map[int]bool, len(eps))
	for _, ep := range eps {
		present[ep.ID] = true
		if item, ok := items[ep.ID]; ok {
			item.Show()
			continue
		}

		item := parent.AddSubMenuItem(ep.Name, ep.HostAPI)
		if ep.Name == remembered {
			item.Check()
		}
		items[ep.ID] = item

		go func(id int, name string, menuItem *systray.MenuItem) {
			for {
				select {
				case <-ctx.Done():
					return
				case <-menuItem.ClickedCh:
				}
				// Uncheck all other items
				u.menuMu.Lock()
				for other, itm := range items {
					if other != id {
						itm.Uncheck()
					}
				}
				u.menuMu.Unlock()
				menuItem.Check()
				u.log.Info().Str("device", name).Msg("Selected audio device")
				if err := selectFn(ctx, id); err != nil {
					u.log.Warn().Err(err).Str("device", name).Msg("Device selection failed")
				}
			}
		}(ep.ID, ep.Name, item)
	}

	for id, item := range items {
		if !present[id] {
			item.Uncheck()
			item.Hide()
		}
	}
	parent.Enable()
	if len(eps) == 0 {
		parent.Disable()
	}
}

func (u *UI) pollLevels(ctx context.Context) {
	ticker := time.NewTicker(levelRefresh)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			u.refreshTitle()
		}
	}
}

func (u *UI) copyReport() {
	report := u.app.DeviceReport()
	if err := clipboard.WriteAll(report); err != nil {
		u.log.Error().Err(err).Msg("Failed to copy device report")
		return
	}
	u.log.Info().Msg("Copied device report to clipboard")
}

func (u *UI) openLogs() {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", logging.LogPath())
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", "", logging.LogPath())
	default:
		cmd = exec.Command("xdg-open", logging.LogPath())
	}
	if err := cmd.Start(); err != nil {
		u.log.Error().Err(err).Msg("Failed to open logs")
	}
}

func (u *UI) showAbout() {
	// TODO: Show about dialog with native UI
	fmt.Printf("Scan Converter %s (%s)\nAudio passthrough monitor\n", u.version, u.commit)
}

func (u *UI) currentStatus() string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.status
}

func (u *UI) updateStatus(status, reason string) {
	u.mu.Lock()
	u.status, u.reason = status, reason
	u.mu.Unlock()

	u.redraw()
}

// redraw shows the current status. Updates before the tray is ready are
// kept and drawn once it is.
func (u *UI) redraw() {
	if !u.ready.Load() {
		return
	}
	u.mu.Lock()
	status, reason := u.status, u.reason
	u.mu.Unlock()

	u.mStatus.SetTitle(statusLine(status, reason))
	u.refreshTitle()
}

// refreshTitle sets the tray title with the status emoji and both meters
func (u *UI) refreshTitle() {
	if !u.ready.Load() {
		return
	}
	status := u.currentStatus()
	if status != "running" {
		systray.SetTitle(fmt.Sprintf("🎛 %s", emojiForStatus(status)))
		return
	}
	captured, played := u.app.PollLevels()
	systray.SetTitle(fmt.Sprintf("🎛 %s in %s out %s", emojiForStatus(status), meterBar(captured, 6), meterBar(played, 6)))
}

func statusLine(status, reason string) string {
	switch status {
	case "running":
		return "Passthrough running"
	case "no-devices":
		return "No audio devices detected"
	case "error":
		return "Passthrough failed: " + reason
	default:
		return "Passthrough stopped"
	}
}

// emojiForStatus returns the appropriate status emoji
func emojiForStatus(status string) string {
	switch status {
	case "running":
		return "🟢" // Green - audio flowing
	case "error":
		return "🔴" // Red - configure failed
	case "no-devices":
		return "⚪️" // White - nothing to route
	case "idle":
		return "🟡" // Yellow - stopped
	default:
		return "🟡"
	}
}

// meterBar renders l as a fixed-width bar of filled and empty cells.
func meterBar(l audio.Level, width int) string {
	filled := int(float32(l)*float32(width) + 0.5)
	filled = max(0, min(width, filled))
	return strings.Repeat("▮", filled) + strings.Repeat("▯", width-filled)
}
