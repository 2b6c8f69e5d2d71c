// internal/recovery/recovery.go
package recovery

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/antchfx/htmlquery"
	"go.uber.org/zap"
	"golang.org/x/net/html"
)

// ErrBudgetExhausted is returned when the retry budget runs out before the
// page reaches a healthy state.
var ErrBudgetExhausted = errors.New("recovery budget exhausted")

// DefaultBudget bounds the recovery loop when the caller does not set one.
const DefaultBudget = 3

// State classifies what the page currently shows.
type State string

const (
	StateHealthy          State = "healthy"
	StatePermissionDenied State = "permission-denied"
	StateInterrupted      State = "interrupted"
)

// Condition decides whether a parsed page matches a failure state. Callers
// supply their own for app-specific markup; the Text and Selector builders
// cover the common cases.
type Condition func(doc *html.Node) bool

// TextContains matches when the page's visible text contains any of the
// phrases, case-insensitively. Copy drift in the page under test is handled
// by configuring the phrases, not by loosening the match.
func TextContains(phrases ...string) Condition {
	lowered := make([]string, len(phrases))
	for i, p := range phrases {
		lowered[i] = strings.ToLower(p)
	}
	return func(doc *html.Node) bool {
		text := strings.ToLower(htmlquery.InnerText(doc))
		for _, p := range lowered {
			if p != "" && strings.Contains(text, p) {
				return true
			}
		}
		return false
	}
}

// Selector matches when the XPath expression finds at least one node.
func Selector(xpath string) Condition {
	return func(doc *html.Node) bool {
		node, err := htmlquery.Query(doc, xpath)
		return err == nil && node != nil
	}
}

// Any combines conditions with OR semantics.
func Any(conds ...Condition) Condition {
	return func(doc *html.Node) bool {
		for _, c := range conds {
			if c != nil && c(doc) {
				return true
			}
		}
		return false
	}
}

// Probes holds the failure detectors. A nil probe never matches.
type Probes struct {
	PermissionDenied Condition
	Interrupted      Condition
}

// DefaultProbes sniffs the stock error copy of the recording UI.
func DefaultProbes() Probes {
	return Probes{
		PermissionDenied: TextContains("microphone access was denied"),
		Interrupted:      TextContains("recording interrupted", "reconnect"),
	}
}

// Actions are the levers the driver pulls against the live page. Snapshot is
// required; the others are skipped when nil.
type Actions struct {
	// Snapshot returns the current page HTML.
	Snapshot func(ctx context.Context) (string, error)
	// Reapply reinstalls the media patches in the page.
	Reapply func(ctx context.Context) error
	// ClickRetry activates the page's retry or reconnect control.
	ClickRetry func(ctx context.Context) error
	// ResumePlayback unsticks a suspended audio graph.
	ResumePlayback func(ctx context.Context) error
}

// Driver runs a bounded observe-classify-act loop until the page is healthy
// or the budget runs out.
type Driver struct {
	probes  Probes
	actions Actions
	budget  int
	logger  *zap.Logger
}

// NewDriver builds a driver. A zero or negative budget falls back to
// DefaultBudget.
func NewDriver(probes Probes, actions Actions, budget int, logger *zap.Logger) (*Driver, error) {
	if actions.Snapshot == nil {
		return nil, fmt.Errorf("recovery driver requires a snapshot action")
	}
	if budget <= 0 {
		budget = DefaultBudget
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Driver{
		probes:  probes,
		actions: actions,
		budget:  budget,
		logger:  logger.Named("recovery"),
	}, nil
}

// Check classifies the current page. Permission denial wins when both probes
// match, since reapplying patches also addresses interruptions.
func (d *Driver) Check(ctx context.Context) (State, error) {
	snapshot, err := d.actions.Snapshot(ctx)
	if err != nil {
		return StateHealthy, fmt.Errorf("failed to snapshot page: %w", err)
	}
	doc, err := htmlquery.Parse(strings.NewReader(snapshot))
	if err != nil {
		return StateHealthy, fmt.Errorf("failed to parse page snapshot: %w", err)
	}

	if d.probes.PermissionDenied != nil && d.probes.PermissionDenied(doc) {
		return StatePermissionDenied, nil
	}
	if d.probes.Interrupted != nil && d.probes.Interrupted(doc) {
		return StateInterrupted, nil
	}
	return StateHealthy, nil
}

// Recover drives the page back to health. Each attempt reapplies the patches
// and activates the retry control; interruptions additionally resume
// playback. Returns ErrBudgetExhausted (wrapped with the last seen state)
// when the attempts run out.
func (d *Driver) Recover(ctx context.Context) error {
	var lastState State
	for attempt := 1; attempt <= d.budget; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("context done during recovery: %w", err)
		}

		state, err := d.Check(ctx)
		if err != nil {
			return err
		}
		if state == StateHealthy {
			if attempt > 1 {
				d.logger.Info("Page recovered.", zap.Int("attempts", attempt-1))
			}
			return nil
		}
		lastState = state
		d.logger.Warn("Unhealthy page state detected.",
			zap.String("state", string(state)),
			zap.Int("attempt", attempt),
			zap.Int("budget", d.budget),
		)

		if err := d.act(ctx, state); err != nil {
			return fmt.Errorf("recovery action failed on attempt %d: %w", attempt, err)
		}
	}

	// One last look: the final action may have fixed it.
	state, err := d.Check(ctx)
	if err != nil {
		return err
	}
	if state == StateHealthy {
		d.logger.Info("Page recovered.", zap.Int("attempts", d.budget))
		return nil
	}
	if state != "" {
		lastState = state
	}
	return fmt.Errorf("page still %s after %d attempts: %w", lastState, d.budget, ErrBudgetExhausted)
}

func (d *Driver) act(ctx context.Context, state State) error {
	if d.actions.Reapply != nil {
		if err := d.actions.Reapply(ctx); err != nil {
			return fmt.Errorf("reapply: %w", err)
		}
	}
	if d.actions.ClickRetry != nil {
		if err := d.actions.ClickRetry(ctx); err != nil {
			return fmt.Errorf("click retry: %w", err)
		}
	}
	if state == StateInterrupted && d.actions.ResumePlayback != nil {
		if err := d.actions.ResumePlayback(ctx); err != nil {
			return fmt.Errorf("resume playback: %w", err)
		}
	}
	return nil
}
