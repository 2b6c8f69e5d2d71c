// internal/driver/profile.go
package driver

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/chromedp/chromedp"
)

// EngineProfile captures how a browser engine behaves against the synthetic
// media surface. Chromium runs under DevTools control; the other engines run
// against the emulated page environment, which is where their quirks matter.
type EngineProfile struct {
	Name string

	// Emulated engines run in the in-process JS environment instead of a
	// real browser.
	Emulated bool

	// NeedsRecorderShim forces the MediaRecorder emulation even when the
	// engine ships a native recorder, because the native one balks at
	// synthetic streams.
	NeedsRecorderShim bool

	// TrustsSyntheticPermissions is false for engines that re-prompt even
	// after a permission grant, so walkthroughs must keep the recovery
	// driver armed.
	TrustsSyntheticPermissions bool
}

var profiles = map[string]EngineProfile{
	"chromium": {
		Name:                       "chromium",
		NeedsRecorderShim:          false,
		TrustsSyntheticPermissions: true,
	},
	"firefox": {
		Name:                       "firefox",
		Emulated:                   true,
		NeedsRecorderShim:          true,
		TrustsSyntheticPermissions: false,
	},
	"webkit": {
		Name:                       "webkit",
		Emulated:                   true,
		NeedsRecorderShim:          true,
		TrustsSyntheticPermissions: false,
	},
}

// ProfileByName resolves an engine profile, case-insensitively.
func ProfileByName(name string) (EngineProfile, error) {
	p, ok := profiles[strings.ToLower(name)]
	if !ok {
		return EngineProfile{}, fmt.Errorf("unknown engine %q (known: chromium, firefox, webkit)", name)
	}
	return p, nil
}

// EngineNames lists the supported engines in a stable order.
func EngineNames() []string {
	return []string{"chromium", "firefox", "webkit"}
}

// allocatorOptions assembles the Chromium launch flags: fake media devices,
// auto-granted capture prompts, and autoplay without a gesture.
func allocatorOptions(headless bool) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("headless", headless),
		chromedp.Flag("disable-gpu", headless),
		chromedp.Flag("use-fake-device-for-media-stream", true),
		chromedp.Flag("use-fake-ui-for-media-stream", true),
		chromedp.Flag("autoplay-policy", "no-user-gesture-required"),
	)
	if runtime.GOOS == "linux" {
		opts = append(opts,
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
		)
	}
	return opts
}
