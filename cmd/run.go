// File: cmd/run.go
package cmd

import (
	"encoding/base64"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/voxtest/fauxmic/internal/config"
	"github.com/voxtest/fauxmic/internal/driver"
	"github.com/voxtest/fauxmic/internal/inject"
	"github.com/voxtest/fauxmic/internal/observability"
)

// newRunCommand builds the command that walks the recording flow end to end.
func newRunCommand() *cobra.Command {
	var (
		target      string
		engines     []string
		recordFor   time.Duration
		pauseFor    time.Duration
		fixturePath string
		artifactDir string
		headless    bool
		forceShim   bool
	)

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the record-stop-verify walkthrough against a target page.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFromContext(cmd.Context())
			if err != nil {
				return err
			}
			logger := observability.GetLogger()

			// Flags override file config where set.
			if target == "" {
				target = cfg.Harness.Target
			}
			if target == "" {
				return fmt.Errorf("a target URL is required (--target or harness.target)")
			}
			if len(engines) == 0 {
				engines = cfg.Harness.Engines
			}
			if recordFor == 0 {
				recordFor = cfg.Harness.RecordFor
			}
			if pauseFor == 0 {
				pauseFor = cfg.Harness.PauseFor
			}
			if fixturePath == "" {
				fixturePath = cfg.Fixture.Path
			}
			if artifactDir == "" {
				artifactDir = cfg.Harness.ArtifactDir
			}

			stub, err := buildStubConfig(cfg, fixturePath, forceShim)
			if err != nil {
				return err
			}

			opts := driver.Options{
				Target:             target,
				Headless:           headless,
				RecordFor:          recordFor,
				PauseFor:           pauseFor,
				Stub:               stub,
				RecoveryBudget:     cfg.Recovery.Budget,
				DeniedPhrases:      cfg.Recovery.DeniedPhrases,
				InterruptedPhrases: cfg.Recovery.InterruptedPhrases,
				Selectors: driver.Selectors{
					Record:         cfg.Selectors.Record,
					Stop:           cfg.Selectors.Stop,
					Retry:          cfg.Selectors.Retry,
					UploadComplete: cfg.Selectors.UploadComplete,
				},
				ArtifactDir: artifactDir,
				Logger:      logger,
			}

			logger.Info("Starting walkthrough",
				zap.String("target", target),
				zap.String("engines", strings.Join(engines, ",")),
				zap.Duration("record_for", recordFor),
			)

			results, err := driver.RunAll(cmd.Context(), opts, engines)
			if err != nil {
				return fmt.Errorf("walkthrough failed: %w", err)
			}

			for _, res := range results {
				logger.Info("Walkthrough complete",
					zap.String("engine", res.Engine),
					zap.Int("payload_bytes", len(res.Blob)),
					zap.Int("sample_rate", res.Header.SampleRate),
					zap.String("artifact", res.ArtifactPath),
					zap.Duration("elapsed", res.Elapsed),
				)
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d bytes @ %d Hz (%s)\n",
					res.Engine, len(res.Blob), res.Header.SampleRate, res.Elapsed.Round(time.Millisecond))
			}
			return nil
		},
	}

	runCmd.Flags().StringVarP(&target, "target", "t", "", "URL of the recording page")
	runCmd.Flags().StringSliceVarP(&engines, "engines", "e", nil, "engines to walk (chromium, firefox, webkit)")
	runCmd.Flags().DurationVar(&recordFor, "record-for", 0, "how long to record")
	runCmd.Flags().DurationVar(&pauseFor, "pause-for", 0, "pause leg duration (0 disables)")
	runCmd.Flags().StringVar(&fixturePath, "fixture", "", "WAV fixture to play instead of the tone")
	runCmd.Flags().StringVar(&artifactDir, "artifact-dir", "", "directory for captured payloads")
	runCmd.Flags().BoolVar(&headless, "headless", true, "run the browser headless")
	runCmd.Flags().BoolVar(&forceShim, "install-recorder", false, "force the MediaRecorder shim even on engines with a native one")
	return runCmd
}

// buildStubConfig assembles the injection config, loading the fixture file
// when one is named.
func buildStubConfig(cfg *config.Config, fixturePath string, forceShim bool) (inject.Config, error) {
	stub := inject.Config{
		FixtureMIME:     cfg.Fixture.MIMEType,
		InstallRecorder: forceShim || cfg.Harness.InstallRecorder,
		SampleRate:      cfg.Fixture.SampleRate,
		DurationSeconds: cfg.Fixture.DurationSeconds,
		ToneHz:          cfg.Fixture.ToneHz,
		Amplitude:       cfg.Fixture.Amplitude,
	}
	if fixturePath != "" {
		raw, err := os.ReadFile(fixturePath)
		if err != nil {
			return inject.Config{}, fmt.Errorf("failed to read fixture %s: %w", fixturePath, err)
		}
		stub.FixtureBase64 = base64.StdEncoding.EncodeToString(raw)
	}
	return stub, nil
}
