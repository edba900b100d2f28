// File: internal/browser/locator.go
package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// LocatorKind discriminates the strategies used to find elements on the
// vendor pages.
type LocatorKind string

const (
	KindID    LocatorKind = "id"
	KindName  LocatorKind = "name"
	KindCSS   LocatorKind = "css"
	KindXPath LocatorKind = "xpath"
)

// Locator is a single element-lookup strategy. The vendor form is addressed
// through a mix of ASP.NET ClientIDs, raw name attributes, and CSS class
// queries, so every call site carries its strategy explicitly.
type Locator struct {
	Kind  LocatorKind
	Value string
}

func ByID(id string) Locator      { return Locator{Kind: KindID, Value: id} }
func ByName(name string) Locator  { return Locator{Kind: KindName, Value: name} }
func ByCSS(sel string) Locator    { return Locator{Kind: KindCSS, Value: sel} }
func ByXPath(expr string) Locator { return Locator{Kind: KindXPath, Value: expr} }

func (l Locator) String() string {
	return fmt.Sprintf("%s=%s", l.Kind, l.Value)
}

// Selector translates the locator into a chromedp selector plus query option.
func (l Locator) Selector() (string, chromedp.QueryOption) {
	switch l.Kind {
	case KindID:
		return "#" + l.Value, chromedp.ByID
	case KindName:
		return fmt.Sprintf(`[name=%q]`, l.Value), chromedp.ByQuery
	case KindXPath:
		return l.Value, chromedp.BySearch
	default:
		return l.Value, chromedp.ByQuery
	}
}

// waitWindows are the escalating timeouts used when resolving a locator. The
// target server's postback latency is wildly uneven, so a miss at the short
// window is retried at progressively longer ones before giving up.
var waitWindows = []time.Duration{5 * time.Second, 10 * time.Second, 15 * time.Second}

// WaitVisible blocks until the locator resolves to a visible element, walking
// the escalating timeout windows. The returned error carries the locator and
// the total time spent.
func (s *Session) WaitVisible(ctx context.Context, loc Locator) error {
	sel, opt := loc.Selector()
	start := time.Now()

	var lastErr error
	for _, window := range waitWindows {
		if err := ctx.Err(); err != nil {
			return err
		}
		attemptCtx, cancel := context.WithTimeout(ctx, window)
		lastErr = chromedp.Run(attemptCtx, chromedp.WaitVisible(sel, opt))
		cancel()
		if lastErr == nil {
			return nil
		}
		s.logger.Debug("locator not yet visible, widening wait",
			zap.String("locator", loc.String()),
			zap.Duration("window", window))
	}
	return fmt.Errorf("element %s not visible after %s: %w", loc, time.Since(start).Round(time.Millisecond), lastErr)
}

// WaitReady is WaitVisible's laxer sibling: the element must exist in the DOM
// but need not be visible. Used for hidden inputs and radio groups the vendor
// theme hides behind styled labels.
func (s *Session) WaitReady(ctx context.Context, loc Locator) error {
	sel, opt := loc.Selector()
	start := time.Now()

	var lastErr error
	for _, window := range waitWindows {
		if err := ctx.Err(); err != nil {
			return err
		}
		attemptCtx, cancel := context.WithTimeout(ctx, window)
		lastErr = chromedp.Run(attemptCtx, chromedp.WaitReady(sel, opt))
		cancel()
		if lastErr == nil {
			return nil
		}
	}
	return fmt.Errorf("element %s not present after %s: %w", loc, time.Since(start).Round(time.Millisecond), lastErr)
}

// Click waits for the locator and clicks it.
func (s *Session) Click(ctx context.Context, loc Locator) error {
	if err := s.WaitVisible(ctx, loc); err != nil {
		return err
	}
	sel, opt := loc.Selector()
	if err := chromedp.Run(ctx, chromedp.Click(sel, opt)); err != nil {
		return fmt.Errorf("clicking %s: %w", loc, err)
	}
	return nil
}

// ClickFirst tries each locator in order and clicks the first one that
// resolves within a single short window. Used for the vendor's button
// variants, which differ between form revisions.
func (s *Session) ClickFirst(ctx context.Context, locs ...Locator) (Locator, error) {
	for _, loc := range locs {
		sel, opt := loc.Selector()
		attemptCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := chromedp.Run(attemptCtx,
			chromedp.WaitVisible(sel, opt),
			chromedp.Click(sel, opt),
		)
		cancel()
		if err == nil {
			return loc, nil
		}
		if ctx.Err() != nil {
			return Locator{}, ctx.Err()
		}
	}
	return Locator{}, fmt.Errorf("none of %d candidate locators resolved", len(locs))
}

// SendKeys waits for the locator and types into it.
func (s *Session) SendKeys(ctx context.Context, loc Locator, text string) error {
	if err := s.WaitVisible(ctx, loc); err != nil {
		return err
	}
	sel, opt := loc.Selector()
	if err := chromedp.Run(ctx, chromedp.SendKeys(sel, text, opt)); err != nil {
		return fmt.Errorf("typing into %s: %w", loc, err)
	}
	return nil
}

// Value reads the current value property of the located element.
func (s *Session) Value(ctx context.Context, loc Locator) (string, error) {
	if err := s.WaitReady(ctx, loc); err != nil {
		return "", err
	}
	sel, opt := loc.Selector()
	var value string
	if err := chromedp.Run(ctx, chromedp.Value(sel, &value, opt)); err != nil {
		return "", fmt.Errorf("reading value of %s: %w", loc, err)
	}
	return value, nil
}
