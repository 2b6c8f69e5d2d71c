// internal/driver/driver.go
package driver

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/voxtest/fauxmic/internal/inject"
	"github.com/voxtest/fauxmic/internal/recovery"
	"github.com/voxtest/fauxmic/internal/wav"
)

// Selectors locate the recording UI's controls and landmarks.
type Selectors struct {
	Record         string
	Stop           string
	Retry          string
	UploadComplete string
}

// DefaultSelectors matches the stock recording UI.
func DefaultSelectors() Selectors {
	return Selectors{
		Record:         "#record",
		Stop:           "#stop",
		Retry:          "#retry",
		UploadComplete: ".upload-complete",
	}
}

// Options configures a walkthrough.
type Options struct {
	Engine         string
	Target         string
	Headless       bool
	RecordFor      time.Duration
	PauseFor       time.Duration
	Stub           inject.Config
	Selectors      Selectors
	RecoveryBudget int

	// Phrase overrides for the failure probes; empty slices keep the stock
	// copy.
	DeniedPhrases      []string
	InterruptedPhrases []string

	ArtifactDir string
	Logger      *zap.Logger
}

// Result is what a completed walkthrough produced.
type Result struct {
	Engine       string
	Blob         []byte
	Header       wav.Header
	ArtifactPath string
	Elapsed      time.Duration
}

// Driver owns one engine's browser process (or emulated environment) and
// runs walkthroughs against it.
type Driver struct {
	opts    Options
	profile EngineProfile
	logger  *zap.Logger

	allocatorCtx    context.Context
	allocatorCancel context.CancelFunc
}

// New resolves the engine profile and, for the DevTools-driven engine,
// launches the browser process and confirms it responds.
func New(ctx context.Context, opts Options) (*Driver, error) {
	profile, err := ProfileByName(opts.Engine)
	if err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.RecordFor <= 0 {
		opts.RecordFor = 2 * time.Second
	}
	if opts.Selectors == (Selectors{}) {
		opts.Selectors = DefaultSelectors()
	}
	// Engines that distrust synthetic permissions need the shim regardless
	// of what the caller asked for.
	if profile.NeedsRecorderShim {
		opts.Stub.InstallRecorder = true
	}

	d := &Driver{
		opts:    opts,
		profile: profile,
		logger:  opts.Logger.Named("driver").With(zap.String("engine", profile.Name)),
	}

	if !profile.Emulated {
		if err := d.launch(ctx); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// launch starts the browser process and verifies it is alive.
func (d *Driver) launch(ctx context.Context) error {
	d.logger.Info("Launching browser process.")
	allocCtx, cancel := chromedp.NewExecAllocator(ctx, allocatorOptions(d.opts.Headless)...)
	d.allocatorCtx = allocCtx
	d.allocatorCancel = cancel

	probeCtx, cancelProbe := context.WithTimeout(allocCtx, 30*time.Second)
	defer cancelProbe()
	probeCtx, cancelTab := chromedp.NewContext(probeCtx)
	defer cancelTab()

	if err := chromedp.Run(probeCtx, chromedp.Navigate("about:blank")); err != nil {
		d.allocatorCancel()
		return fmt.Errorf("browser failed to start or respond: %w", err)
	}
	d.logger.Info("Browser launched and responsive.")
	return nil
}

// Close terminates the browser process. Safe on emulated drivers.
func (d *Driver) Close() {
	if d.allocatorCancel != nil {
		d.allocatorCancel()
		<-d.allocatorCtx.Done()
	}
}

// Walkthrough performs the full record-stop-verify pass and returns the
// captured payload.
func (d *Driver) Walkthrough(ctx context.Context) (*Result, error) {
	start := time.Now()

	var (
		res *Result
		err error
	)
	if d.profile.Emulated {
		res, err = d.emulatedWalkthrough(ctx)
	} else {
		res, err = d.browserWalkthrough(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("walkthrough on %s failed: %w", d.profile.Name, err)
	}

	res.Engine = d.profile.Name
	res.Elapsed = time.Since(start)

	if header, perr := wav.ParseHeader(res.Blob); perr != nil {
		return nil, fmt.Errorf("captured payload is not a valid container: %w", perr)
	} else {
		res.Header = header
	}

	if d.opts.ArtifactDir != "" {
		path := filepath.Join(d.opts.ArtifactDir, fmt.Sprintf("%s-%s.wav", d.profile.Name, uuid.NewString()))
		if werr := os.WriteFile(path, res.Blob, 0o644); werr != nil {
			return nil, fmt.Errorf("failed to write artifact: %w", werr)
		}
		res.ArtifactPath = path
		d.logger.Info("Artifact written.", zap.String("path", path), zap.Int("bytes", len(res.Blob)))
	}
	return res, nil
}

// browserWalkthrough drives a real tab through the recording UI.
func (d *Driver) browserWalkthrough(ctx context.Context) (*Result, error) {
	tasks, err := inject.Apply(d.opts.Stub, d.logger)
	if err != nil {
		return nil, err
	}

	tabCtx, cancelTab := chromedp.NewContext(d.allocatorCtx)
	defer cancelTab()
	tabCtx, cancelDeadline := mergeDeadline(tabCtx, ctx)
	defer cancelDeadline()

	if err := chromedp.Run(tabCtx, tasks); err != nil {
		return nil, fmt.Errorf("failed to instrument tab: %w", err)
	}
	if err := chromedp.Run(tabCtx, chromedp.Navigate(d.opts.Target)); err != nil {
		return nil, fmt.Errorf("failed to navigate to %s: %w", d.opts.Target, err)
	}

	// The on-new-document registration normally wins the race with page
	// scripts; a page that loaded before instrumentation gets the script
	// evaluated in place.
	if ok, err := inject.Reapply(tabCtx); err != nil {
		return nil, err
	} else if !ok {
		d.logger.Warn("Stubs missing after navigation, evaluating in place.")
		if err := inject.EvaluateFresh(tabCtx, d.opts.Stub); err != nil {
			return nil, err
		}
	}

	rec, err := d.newRecoveryDriver(tabCtx)
	if err != nil {
		return nil, err
	}

	sel := d.opts.Selectors
	if err := chromedp.Run(tabCtx, chromedp.Click(sel.Record, chromedp.NodeVisible)); err != nil {
		return nil, fmt.Errorf("failed to start recording: %w", err)
	}
	if err := rec.Recover(tabCtx); err != nil {
		return nil, err
	}

	// Let the recording accumulate. The page sees wall-clock time, so this
	// is a deliberate fixed wait rather than a poll.
	if err := sleepCtx(tabCtx, d.opts.RecordFor); err != nil {
		return nil, err
	}

	if _, err := inject.ResumePlayback(tabCtx); err != nil {
		return nil, err
	}
	if d.opts.PauseFor > 0 {
		if err := sleepCtx(tabCtx, d.opts.PauseFor); err != nil {
			return nil, err
		}
	}

	if err := chromedp.Run(tabCtx, chromedp.Click(sel.Stop, chromedp.NodeVisible)); err != nil {
		return nil, fmt.Errorf("failed to stop recording: %w", err)
	}
	if err := rec.Recover(tabCtx); err != nil {
		return nil, err
	}
	if sel.UploadComplete != "" {
		if err := chromedp.Run(tabCtx, chromedp.WaitVisible(sel.UploadComplete)); err != nil {
			return nil, fmt.Errorf("upload confirmation never appeared: %w", err)
		}
	}

	blob, err := inject.CollectBlob(tabCtx)
	if err != nil {
		return nil, err
	}
	return &Result{Blob: blob}, nil
}

// newRecoveryDriver wires the recovery loop to the live tab.
func (d *Driver) newRecoveryDriver(tabCtx context.Context) (*recovery.Driver, error) {
	sel := d.opts.Selectors
	actions := recovery.Actions{
		Snapshot: func(ctx context.Context) (string, error) {
			var html string
			err := chromedp.Run(ctx, chromedp.OuterHTML("html", &html))
			return html, err
		},
		Reapply: func(ctx context.Context) error {
			if ok, err := inject.Reapply(ctx); err != nil {
				return err
			} else if !ok {
				return inject.EvaluateFresh(ctx, d.opts.Stub)
			}
			return nil
		},
		ResumePlayback: func(ctx context.Context) error {
			_, err := inject.ResumePlayback(ctx)
			return err
		},
	}
	if sel.Retry != "" {
		actions.ClickRetry = func(ctx context.Context) error {
			// The control only exists in the failed state, so a missing
			// node is not an error here.
			clickCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			defer cancel()
			if err := chromedp.Run(clickCtx, chromedp.Click(sel.Retry, chromedp.NodeVisible)); err != nil {
				d.logger.Debug("Retry control not clickable.", zap.Error(err))
			}
			return nil
		}
	}
	probes := recovery.DefaultProbes()
	if len(d.opts.DeniedPhrases) > 0 {
		probes.PermissionDenied = recovery.TextContains(d.opts.DeniedPhrases...)
	}
	if len(d.opts.InterruptedPhrases) > 0 {
		probes.Interrupted = recovery.TextContains(d.opts.InterruptedPhrases...)
	}
	return recovery.NewDriver(probes, actions, d.opts.RecoveryBudget, d.logger)
}

// sleepCtx waits for the duration unless the context ends first.
func sleepCtx(ctx context.Context, dur time.Duration) error {
	timer := time.NewTimer(dur)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("context done mid-recording: %w", ctx.Err())
	}
}

// mergeDeadline bounds child by parent's cancellation without reparenting it.
func mergeDeadline(child, parent context.Context) (context.Context, context.CancelFunc) {
	merged, cancel := context.WithCancel(child)
	stop := context.AfterFunc(parent, cancel)
	return merged, func() {
		stop()
		cancel()
	}
}

// RunAll walks every requested engine concurrently and collects the results
// in engine order. The first failure cancels the rest.
func RunAll(ctx context.Context, base Options, engines []string) ([]*Result, error) {
	if len(engines) == 0 {
		engines = EngineNames()
	}
	results := make([]*Result, len(engines))

	g, gctx := errgroup.WithContext(ctx)
	for i, engine := range engines {
		i, engine := i, engine
		g.Go(func() error {
			opts := base
			opts.Engine = engine
			d, err := New(gctx, opts)
			if err != nil {
				return err
			}
			defer d.Close()

			res, err := d.Walkthrough(gctx)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
