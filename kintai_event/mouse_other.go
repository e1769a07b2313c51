//go:build !darwin || !cgo

package kintai_event

// systemCursor is only available on macOS.
func systemCursor() cursorFunc {
	return nil
}
