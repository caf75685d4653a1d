package notify

import (
	"os/exec"
	"runtime"
)

// DesktopNotifier raises an OS notification on the machine running the bot,
// useful when runs happen on a workstation rather than a server.
type DesktopNotifier struct {
	enabled bool
}

// NewDesktopNotifier creates a desktop notifier
func NewDesktopNotifier(enabled bool) *DesktopNotifier {
	return &DesktopNotifier{enabled: enabled}
}

// Send raises the notification; unsupported platforms are a silent no-op
func (d *DesktopNotifier) Send(n Notification) error {
	if !d.enabled {
		return nil
	}

	switch runtime.GOOS {
	case "darwin":
		return d.sendMacOS(n)
	case "linux":
		return d.sendLinux(n)
	default:
		return nil
	}
}

func (d *DesktopNotifier) sendMacOS(n Notification) error {
	script := `display notification "` + n.Message + `" with title "` + n.Title + `"`
	cmd := exec.Command("osascript", "-e", script)
	return cmd.Run()
}

func (d *DesktopNotifier) sendLinux(n Notification) error {
	cmd := exec.Command("notify-send", n.Title, n.Message)
	return cmd.Run()
}
