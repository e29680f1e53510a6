package browser

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"
)

// Page is the query surface the Locator drives. *Session implements it;
// tests substitute fakes.
type Page interface {
	FindAll(ctx context.Context, sel string, timeout time.Duration) ([]Element, error)
	Eval(ctx context.Context, js string, out any, timeout time.Duration) error
}

// Locator resolves elements through selector fallback cascades, absorbing
// staleness and timeouts. Absence is an answer here, not an error.
type Locator struct {
	page         Page
	logger       *zap.Logger
	staleRetries int
	dismiss      []string // overlay close-button cascade tried between click attempts
	sleep        func(time.Duration)
}

func NewLocator(page Page, dismiss []string, logger *zap.Logger) *Locator {
	return &Locator{
		page:         page,
		logger:       logger,
		staleRetries: 3,
		dismiss:      dismiss,
		sleep:        time.Sleep,
	}
}

// staleBackoff spaces stale-element retries by 0.5-1.5s so a re-rendering
// feed has time to settle.
func staleBackoff() time.Duration {
	return time.Duration(500+rand.Intn(1001)) * time.Millisecond
}

// FindOne walks the candidate cascade and returns the first present element,
// preferring a visible one. A handle that goes stale between the presence
// and visibility checks is retried up to the stale budget. Absence yields
// (nil, false), never an error.
func (l *Locator) FindOne(ctx context.Context, candidates []string, timeout time.Duration) (Element, bool) {
	if len(candidates) == 0 {
		return nil, false
	}
	slice := timeout / time.Duration(len(candidates))
	if slice < 250*time.Millisecond {
		slice = 250 * time.Millisecond
	}

	for attempt := 1; attempt <= l.staleRetries; attempt++ {
		el, err := l.findPass(ctx, candidates, slice)
		if el != nil {
			return el, true
		}
		if err != nil && IsStale(err) {
			l.logger.Debug("stale element during lookup, retrying",
				zap.Int("attempt", attempt), zap.Int("max", l.staleRetries))
			l.sleep(staleBackoff())
			continue
		}
		if err != nil {
			l.logger.Debug("element lookup failed", zap.Error(err))
		}
		break
	}
	l.logger.Debug("element not found", zap.Strings("candidates", candidates))
	return nil, false
}

// findPass runs one sweep over the cascade. Stale errors abort the sweep so
// the caller can back off and retry; other failures just advance the
// cascade.
func (l *Locator) findPass(ctx context.Context, candidates []string, slice time.Duration) (Element, error) {
	var present Element
	for _, sel := range candidates {
		els, err := l.page.FindAll(ctx, sel, slice)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		if len(els) == 0 {
			continue
		}
		el := els[0]
		vis, err := el.Visible(ctx)
		if err != nil {
			return nil, err
		}
		if vis {
			return el, nil
		}
		if present == nil {
			present = el
		}
	}
	// Nothing visible; settle for a present element when there is one.
	return present, nil
}

// FindMany returns the matches of the first cascade entry that yields any,
// retrying stale sweeps like FindOne. Misses return an empty slice.
func (l *Locator) FindMany(ctx context.Context, candidates []string, timeout time.Duration) []Element {
	if len(candidates) == 0 {
		return nil
	}
	slice := timeout / time.Duration(len(candidates))
	if slice < 250*time.Millisecond {
		slice = 250 * time.Millisecond
	}

	for attempt := 1; attempt <= l.staleRetries; attempt++ {
		for _, sel := range candidates {
			els, err := l.page.FindAll(ctx, sel, slice)
			if err != nil {
				if errors.Is(err, ErrNotFound) {
					continue
				}
				if IsStale(err) {
					l.sleep(staleBackoff())
					break
				}
				l.logger.Debug("element list lookup failed", zap.String("selector", sel), zap.Error(err))
				continue
			}
			if len(els) > 0 {
				return els
			}
		}
		if ctx.Err() != nil {
			break
		}
	}
	return nil
}

// SafeClick clicks el, scrolling it into view first and dismissing whatever
// overlay swallowed the click between attempts. Later attempts click through
// the DOM when the native click keeps missing.
func (l *Locator) SafeClick(ctx context.Context, el Element) error {
	attempts := l.staleRetries
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := el.ScrollIntoView(ctx); err != nil {
			l.logger.Debug("scroll into view failed", zap.String("selector", el.Selector()), zap.Error(err))
		}

		var err error
		if attempt >= attempts-1 {
			err = l.jsClick(ctx, el.Selector())
		} else {
			err = el.Click(ctx)
		}
		if err == nil {
			return nil
		}
		lastErr = err
		l.logger.Debug("click attempt failed",
			zap.String("selector", el.Selector()), zap.Int("attempt", attempt), zap.Error(err))

		l.dismissOverlays(ctx)
		l.sleep(staleBackoff())
	}
	return fmt.Errorf("clicking %s failed after %d attempts: %w", el.Selector(), attempts, lastErr)
}

// jsClick clicks through the DOM directly, bypassing hit testing.
func (l *Locator) jsClick(ctx context.Context, sel string) error {
	js := fmt.Sprintf(`(() => { const el = document.querySelector(%q); if (!el) return false; el.click(); return true; })()`, sel)
	var clicked bool
	if err := l.page.Eval(ctx, js, &clicked, elementOpTimeout); err != nil {
		return err
	}
	if !clicked {
		return fmt.Errorf("%w: %s", ErrNotFound, sel)
	}
	return nil
}

// dismissOverlays closes consent walls and modals that intercept clicks.
func (l *Locator) dismissOverlays(ctx context.Context) {
	for _, sel := range l.dismiss {
		els, err := l.page.FindAll(ctx, sel, 500*time.Millisecond)
		if err != nil || len(els) == 0 {
			continue
		}
		if err := els[0].Click(ctx); err == nil {
			l.logger.Debug("dismissed overlay", zap.String("selector", sel))
			return
		}
	}
}
