package config

import (
	"strings"
	"unicode"
)

// FallbackDeviceName is used when nothing usable can be derived from the
// config or the OS hostname.
const FallbackDeviceName = "Device"

const maxDeviceNameLen = 64

// NormalizeDeviceName sanitizes a device display name before it travels
// in handshake payloads and peer rosters:
//   - control characters and newlines are dropped
//   - whitespace runs collapse to a single space
//   - the result is trimmed and capped at 64 runes
//   - an empty result falls back to "Device"
func NormalizeDeviceName(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	lastSpace := false
	for _, r := range name {
		if unicode.IsControl(r) {
			continue
		}
		if unicode.IsSpace(r) {
			if !lastSpace {
				b.WriteByte(' ')
			}
			lastSpace = true
			continue
		}
		lastSpace = false
		b.WriteRune(r)
	}

	out := strings.TrimSpace(b.String())
	if runes := []rune(out); len(runes) > maxDeviceNameLen {
		out = strings.TrimSpace(string(runes[:maxDeviceNameLen]))
	}
	if out == "" {
		return FallbackDeviceName
	}
	return out
}
