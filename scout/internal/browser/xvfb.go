package browser

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// startXvfb runs a virtual display for the headful level. Some indexers
// fingerprint headless Chrome and only a real display gets past them.
func (m *Manager) startXvfb() error {
	if m.xvfb != nil {
		return nil
	}

	display := m.cfg.XvfbDisplay
	cmd := exec.Command("Xvfb", display, "-screen", "0", "1366x768x24", "-nolisten", "tcp")
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("browser: xvfb %s: %w", display, err)
	}
	m.xvfb = cmd

	if !waitDisplay(display, 3*time.Second) {
		m.stopXvfb()
		return fmt.Errorf("browser: xvfb %s: display socket never appeared", display)
	}
	m.cfg.Logger.Info("browser: xvfb up", "display", display, "pid", cmd.Process.Pid)
	return nil
}

// waitDisplay polls for the X socket of display (":99" -> /tmp/.X11-unix/X99).
func waitDisplay(display string, limit time.Duration) bool {
	sock := "/tmp/.X11-unix/X" + strings.TrimPrefix(display, ":")
	for deadline := time.Now().Add(limit); time.Now().Before(deadline); time.Sleep(50 * time.Millisecond) {
		if _, err := os.Stat(sock); err == nil {
			return true
		}
	}
	return false
}

func (m *Manager) stopXvfb() {
	if m.xvfb == nil {
		return
	}
	if p := m.xvfb.Process; p != nil {
		_ = p.Kill()
		_ = m.xvfb.Wait()
	}
	m.xvfb = nil
	m.cfg.Logger.Info("browser: xvfb stopped")
}
