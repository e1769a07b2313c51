package recorder

import (
	"bytes"
	"errors"
	"os/exec"
	"runtime"
	"strings"
)

type Notificator interface {
	Notify(title, message string) error
}

// NewNotificator returns a desktop notifier on macOS and a no-op elsewhere or when disabled.
func NewNotificator(enabled bool) Notificator {
	if !enabled || runtime.GOOS != "darwin" {
		return NopNotificator{}
	}
	return &MacNotificator{}
}

type MacNotificator struct{}

func (no *MacNotificator) Notify(title string, message string) error {
	var errOut bytes.Buffer
	script := `display notification "` + escapeAppleScript(message) + `" with title "kintai" subtitle "` + escapeAppleScript(title) + `" sound name "Blow"`
	cmd := exec.Command("osascript", "-e", script)
	cmd.Stderr = &errOut
	if err := cmd.Run(); err != nil {
		return errors.New(strings.TrimSpace(errOut.String()))
	}
	return nil
}

func escapeAppleScript(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s)
}

type NopNotificator struct{}

func (NopNotificator) Notify(string, string) error { return nil }
