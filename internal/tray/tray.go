// Package tray provides a system tray menu for the trial recorder.
package tray

import (
	"fmt"
	"sync"
	"time"

	"github.com/getlantern/systray"

	"github.com/ayusman/thumbtrial/internal/session"
	"github.com/ayusman/thumbtrial/internal/trial"
)

// Tray represents the system tray application. It doubles as a pipeline
// observer so the menu shows the last committed trial and the camera status.
type Tray struct {
	onToggle   func(enabled bool)
	onSettings func()
	onQuit     func()
	enabled    bool
	lastTrial  string
	status     string
	mu         sync.RWMutex

	// Menu items stored for later updates
	menuToggle    *systray.MenuItem
	menuLastTrial *systray.MenuItem
	menuStatus    *systray.MenuItem
}

// New creates a new Tray instance with enabled state set to true by default.
func New() *Tray {
	return &Tray{
		enabled:   true,
		lastTrial: lastTrialTitle(nil),
		status:    statusTitle("", nil),
	}
}

// OnToggle sets the callback function to be called when the enabled state is toggled.
func (t *Tray) OnToggle(fn func(enabled bool)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onToggle = fn
}

// OnSettings sets the callback function to be called when the settings menu item is clicked.
func (t *Tray) OnSettings(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onSettings = fn
}

// OnQuit sets the callback function to be called when the quit menu item is clicked.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run starts the system tray application.
// This function blocks until systray.Quit() is called.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

func (t *Tray) onReady() {
	systray.SetTitle("Thumbtrial")
	systray.SetTooltip("Thumbtrial gesture trials")

	t.mu.Lock()
	t.menuToggle = systray.AddMenuItem("● Recording", "Toggle trial recording")
	systray.AddSeparator()

	t.menuLastTrial = systray.AddMenuItem(t.lastTrial, "Last committed trial")
	t.menuLastTrial.Disable()
	t.menuStatus = systray.AddMenuItem(t.status, "Camera pipeline status")
	t.menuStatus.Disable()
	t.mu.Unlock()
	systray.AddSeparator()

	menuSettings := systray.AddMenuItem("Open Settings...", "Open settings in browser")
	systray.AddSeparator()

	menuQuit := systray.AddMenuItem("Quit", "Quit Thumbtrial")

	go func() {
		for {
			select {
			case <-t.menuToggle.ClickedCh:
				t.handleToggle()
			case <-menuSettings.ClickedCh:
				t.handleSettings()
			case <-menuQuit.ClickedCh:
				t.handleQuit()
				return
			}
		}
	}()
}

func (t *Tray) onExit() {}

func (t *Tray) handleToggle() {
	t.mu.Lock()
	t.enabled = !t.enabled
	enabled := t.enabled

	if enabled {
		t.menuToggle.SetTitle("● Recording")
	} else {
		t.menuToggle.SetTitle("○ Paused")
	}

	callback := t.onToggle
	t.mu.Unlock()

	// Call the callback outside the lock to prevent deadlocks
	if callback != nil {
		callback(enabled)
	}
}

func (t *Tray) handleSettings() {
	t.mu.RLock()
	callback := t.onSettings
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}
}

func (t *Tray) handleQuit() {
	t.mu.RLock()
	callback := t.onQuit
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}

	systray.Quit()
}

// PublishFrame updates the last trial line when a frame commits a trial.
func (t *Tray) PublishFrame(f session.Frame, _ time.Duration) {
	if f.Packet == nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastTrial = lastTrialTitle(f.Packet)
	if t.menuLastTrial != nil {
		t.menuLastTrial.SetTitle(t.lastTrial)
	}
}

// PublishStatus updates the status line.
func (t *Tray) PublishStatus(status string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = statusTitle(status, err)
	if t.menuStatus != nil {
		t.menuStatus.SetTitle(t.status)
	}
}

// LastTrial returns the text of the last trial menu line.
func (t *Tray) LastTrial() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lastTrial
}

// Status returns the text of the status menu line.
func (t *Tray) Status() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}

// IsEnabled returns the current enabled state.
func (t *Tray) IsEnabled() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.enabled
}

func lastTrialTitle(p *trial.Packet) string {
	if p == nil {
		return "Last: none"
	}
	return fmt.Sprintf("Last: %s (#%d)", p.Gesture, p.Trial)
}

func statusTitle(status string, err error) string {
	switch {
	case status == "":
		return "Status: starting"
	case err != nil:
		return fmt.Sprintf("Status: %s (%v)", status, err)
	default:
		return "Status: " + status
	}
}

// Quit stops the tray event loop, unblocking Run.
func (t *Tray) Quit() {
	systray.Quit()
}
