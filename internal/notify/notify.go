// Package notify sends desktop notifications on the machine running the bus.
package notify

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
)

// Send shows a desktop notification. On macOS it prefers terminal-notifier
// (which supports a custom icon via the AGENTBUS_ICON env var) and falls
// back to osascript; on Linux it uses notify-send. Returns an error when no
// supported notifier is available or the command fails.
func Send(title, message string, sound bool) error {
	switch runtime.GOOS {
	case "darwin":
		return sendDarwin(title, message, sound)
	case "linux":
		return sendLinux(title, message)
	default:
		return fmt.Errorf("notifications not supported on %s", runtime.GOOS)
	}
}

func sendDarwin(title, message string, sound bool) error {
	if _, err := exec.LookPath("terminal-notifier"); err == nil {
		args := []string{
			"-title", title,
			"-message", message,
			"-group", "agentbus",
			"-sender", "com.apple.Terminal",
		}
		if sound {
			args = append(args, "-sound", "default")
		}
		if icon := os.Getenv("AGENTBUS_ICON"); icon != "" {
			if _, err := os.Stat(icon); err == nil {
				args = append(args, "-appIcon", icon)
			}
		}
		return run("terminal-notifier", args...)
	}

	// osascript fallback; no custom icon support.
	script := fmt.Sprintf("display notification %q with title %q", message, title)
	if sound {
		script += ` sound name "default"`
	}
	return run("osascript", "-e", script)
}

func sendLinux(title, message string) error {
	if _, err := exec.LookPath("notify-send"); err != nil {
		return fmt.Errorf("notify-send not found")
	}
	return run("notify-send", title, message)
}

func run(name string, args ...string) error {
	out, err := exec.Command(name, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("running %s: %w (output: %s)", name, err, out)
	}
	return nil
}
