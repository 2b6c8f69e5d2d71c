// internal/inject/inject.go
package inject

import (
	"context"
	_ "embed"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/voxtest/fauxmic/internal/wav"
)

//go:embed stubs.js
var stubsTemplate string

// ConfigPlaceholder is the string replaced in the JS template with the actual
// JSON configuration.
const ConfigPlaceholder = "/*{{FAUXMIC_CONFIG}}*/"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Config drives what the injected script synthesizes. Field names mirror the
// keys the template reads.
type Config struct {
	FixtureBase64   string  `json:"fixtureBase64"`
	FixtureMIME     string  `json:"fixtureMime"`
	InstallRecorder bool    `json:"installRecorder"`
	SampleRate      int     `json:"sampleRate"`
	DurationSeconds float64 `json:"durationSeconds"`
	ToneHz          float64 `json:"toneHz"`
	Amplitude       float64 `json:"amplitude"`
}

// DefaultConfig mirrors the defaults of the synthesized tone.
func DefaultConfig() Config {
	return Config{
		FixtureMIME:     "audio/wav",
		SampleRate:      wav.DefaultSampleRate,
		DurationSeconds: wav.DefaultDuration,
		ToneHz:          wav.DefaultFrequency,
		Amplitude:       wav.DefaultAmplitude,
	}
}

// BuildStubScript injects the configuration into the embedded template.
func BuildStubScript(cfg Config) (string, error) {
	if !strings.Contains(stubsTemplate, ConfigPlaceholder) {
		return "", fmt.Errorf("template does not contain the required placeholder: %s", ConfigPlaceholder)
	}
	configJSON, err := json.MarshalToString(cfg)
	if err != nil {
		return "", fmt.Errorf("failed to marshal stub config: %w", err)
	}
	// The template applies the object over its own defaults, so a partial
	// config is safe; an empty one must still be a valid expression.
	if configJSON == "" {
		configJSON = "{}"
	}
	return strings.Replace(stubsTemplate, ConfigPlaceholder, configJSON, 1), nil
}

// Apply constructs the Chrome DevTools Protocol actions that pre-grant
// capture permissions and register the stub script to run on every new
// document before page scripts.
func Apply(cfg Config, logger *zap.Logger) (chromedp.Tasks, error) {
	script, err := BuildStubScript(cfg)
	if err != nil {
		return nil, err
	}
	logger.Debug("Registering synthetic media stubs",
		zap.Bool("installRecorder", cfg.InstallRecorder),
		zap.Bool("hasFixture", cfg.FixtureBase64 != ""),
	)

	return chromedp.Tasks{
		browser.GrantPermissions([]browser.PermissionType{
			browser.PermissionTypeAudioCapture,
			browser.PermissionTypeVideoCapture,
		}),

		// AddScriptToEvaluateOnNewDocument returns two values, so it needs
		// the ActionFunc wrapper.
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(script).Do(ctx)
			if err != nil {
				return fmt.Errorf("failed to register stub script: %w", err)
			}
			return nil
		}),
	}, nil
}

// Reapply re-runs the patch pass in the live page. Installed constructor
// markers make this a no-op when the stubs are already in place; it returns
// false when the page never had them (a navigation that raced the
// registration), in which case EvaluateFresh is the fallback.
func Reapply(ctx context.Context) (bool, error) {
	var ok bool
	err := chromedp.Run(ctx, chromedp.Evaluate(
		"typeof window.__fauxmicReapply === 'function' ? window.__fauxmicReapply() : false", &ok))
	if err != nil {
		return false, fmt.Errorf("failed to reapply stubs: %w", err)
	}
	return ok, nil
}

// EvaluateFresh evaluates the full stub script in the current page. Used when
// the page predates the on-new-document registration.
func EvaluateFresh(ctx context.Context, cfg Config) error {
	script, err := BuildStubScript(cfg)
	if err != nil {
		return err
	}
	if err := chromedp.Run(ctx, chromedp.Evaluate(script, nil)); err != nil {
		return fmt.Errorf("failed to evaluate stub script: %w", err)
	}
	return nil
}

// ResumePlayback nudges the page's audio graph after a UI interaction that
// may have suspended it.
func ResumePlayback(ctx context.Context) (bool, error) {
	var ok bool
	err := chromedp.Run(ctx, chromedp.Evaluate(
		"typeof window.__fauxmicResumePlayback === 'function' ? window.__fauxmicResumePlayback() : false", &ok))
	if err != nil {
		return false, fmt.Errorf("failed to resume playback: %w", err)
	}
	return ok, nil
}

// CollectBlob pulls the synthetic payload bytes out of the page for artifact
// verification.
func CollectBlob(ctx context.Context) ([]byte, error) {
	var encoded string
	err := chromedp.Run(ctx, chromedp.Evaluate(
		"typeof window.__fauxmicBlob === 'function' ? window.__fauxmicBlob() : ''", &encoded))
	if err != nil {
		return nil, fmt.Errorf("failed to collect blob: %w", err)
	}
	if encoded == "" {
		return nil, fmt.Errorf("stubs are not installed in the page")
	}
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode blob payload: %w", err)
	}
	return decoded, nil
}
