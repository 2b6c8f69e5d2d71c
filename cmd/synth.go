// File: cmd/synth.go
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/voxtest/fauxmic/internal/observability"
	"github.com/voxtest/fauxmic/internal/wav"
)

// newSynthCommand builds the command that writes a standalone tone fixture.
// Useful for seeding test suites that want a deterministic WAV on disk.
func newSynthCommand() *cobra.Command {
	var (
		out       string
		rate      int
		duration  float64
		frequency float64
		amplitude float64
	)

	synthCmd := &cobra.Command{
		Use:   "synth",
		Short: "Synthesize a WAV tone fixture and write it to disk.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFromContext(cmd.Context())
			if err != nil {
				return err
			}

			if rate == 0 {
				rate = cfg.Fixture.SampleRate
			}
			if duration == 0 {
				duration = cfg.Fixture.DurationSeconds
			}
			if frequency == 0 {
				frequency = cfg.Fixture.ToneHz
			}
			if amplitude == 0 {
				amplitude = cfg.Fixture.Amplitude
			}

			payload := wav.Synthesize(wav.ToneOptions{
				SampleRate: rate,
				Duration:   duration,
				Frequency:  frequency,
				Amplitude:  amplitude,
			})
			if err := os.WriteFile(out, payload, 0o644); err != nil {
				return fmt.Errorf("failed to write fixture: %w", err)
			}

			observability.GetLogger().Info("Fixture written",
				zap.String("path", out),
				zap.Int("bytes", len(payload)),
				zap.Int("sample_rate", rate),
			)
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d bytes)\n", out, len(payload))
			return nil
		},
	}

	synthCmd.Flags().StringVarP(&out, "out", "o", "fixture.wav", "output file path")
	synthCmd.Flags().IntVar(&rate, "rate", 0, "sample rate in Hz")
	synthCmd.Flags().Float64Var(&duration, "duration", 0, "duration in seconds")
	synthCmd.Flags().Float64Var(&frequency, "freq", 0, "tone frequency in Hz")
	synthCmd.Flags().Float64Var(&amplitude, "amplitude", 0, "tone amplitude (0..1)")
	return synthCmd
}
