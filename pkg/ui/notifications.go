package ui

import (
	"fmt"
	"os/exec"
	"runtime"
	"strings"

	"citystories/pkg/config"
	"citystories/pkg/ingest"
)

// NotificationSender delivers a desktop notification
type NotificationSender interface {
	Send(title, message string) error
}

// LinuxNotificationSender sends notifications on Linux using notify-send
type LinuxNotificationSender struct{}

func (l *LinuxNotificationSender) Send(title, message string) error {
	return exec.Command("notify-send", title, message).Run()
}

// MacOSNotificationSender sends notifications on macOS using osascript
type MacOSNotificationSender struct{}

func (m *MacOSNotificationSender) Send(title, message string) error {
	script := fmt.Sprintf(`display notification %q with title %q`, message, title)
	return exec.Command("osascript", "-e", script).Run()
}

// WindowsNotificationSender sends notifications on Windows using PowerShell
type WindowsNotificationSender struct{}

func (w *WindowsNotificationSender) Send(title, message string) error {
	script := fmt.Sprintf(`
		[Windows.UI.Notifications.ToastNotificationManager, Windows.UI.Notifications, ContentType = WindowsRuntime] | Out-Null
		$template = [Windows.UI.Notifications.ToastNotificationManager]::GetTemplateContent([Windows.UI.Notifications.ToastTemplateType]::ToastText02)
		$text = $template.GetElementsByTagName("text")
		$text.Item(0).AppendChild($template.CreateTextNode('%s')) | Out-Null
		$text.Item(1).AppendChild($template.CreateTextNode('%s')) | Out-Null
		$toast = [Windows.UI.Notifications.ToastNotification]::new($template)
		[Windows.UI.Notifications.ToastNotificationManager]::CreateToastNotifier("citystories").Show($toast)
	`, psQuote(title), psQuote(message))
	return exec.Command("powershell", "-NoProfile", "-NonInteractive", "-Command", script).Run()
}

func psQuote(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

// PlatformSender returns the sender for the current OS, or nil
func PlatformSender() NotificationSender {
	switch runtime.GOOS {
	case "linux":
		return &LinuxNotificationSender{}
	case "darwin":
		return &MacOSNotificationSender{}
	case "windows":
		return &WindowsNotificationSender{}
	default:
		return nil
	}
}

// Notifier is an ingest.Observer that raises a desktop notification when a
// run completes, according to the notification settings
type Notifier struct {
	sender NotificationSender
	cfg    config.NotificationConfig
}

// NewNotifier creates a Notifier; a nil sender makes it a no-op
func NewNotifier(cfg config.NotificationConfig, sender NotificationSender) *Notifier {
	return &Notifier{sender: sender, cfg: cfg}
}

func (n *Notifier) Observe(e ingest.Event) {
	if n.sender == nil || !n.cfg.Enabled || e.Stage != ingest.StageRunCompleted {
		return
	}
	switch {
	case e.Failed > 0 && n.cfg.OnError:
		n.send("citystories: run finished with errors",
			fmt.Sprintf("%d stories stored, %d accounts failed", e.Count, e.Failed))
	case e.Failed == 0 && n.cfg.OnComplete:
		n.send("citystories: run complete", fmt.Sprintf("%d stories stored", e.Count))
	}
}

// Fatal reports a run that returned an error
func (n *Notifier) Fatal(err error) {
	if n.sender == nil || !n.cfg.Enabled || !n.cfg.OnError || err == nil {
		return
	}
	n.send("citystories: run failed", err.Error())
}

func (n *Notifier) send(title, message string) {
	// a missing notify-send must not affect the run
	_ = n.sender.Send(title, message)
}
