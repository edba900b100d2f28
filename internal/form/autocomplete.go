// File: internal/form/autocomplete.go
package form

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp/kb"
	"go.uber.org/zap"

	"github.com/Attta-pangestu/venus-autofill/internal/browser"
)

// suggestionPollInterval is how long the driver waits after each typed
// character before counting the dropdown. The widget debounces its server
// lookup at roughly 100ms.
const suggestionPollInterval = 150 * time.Millisecond

// shouldAcceptSuggestion decides whether the dropdown has narrowed enough to
// commit. A single visible entry is always accepted. With several entries
// still showing, acceptance waits until at least half the query has been
// typed; before that the top entry is too often a false match.
func shouldAcceptSuggestion(visible, typed, total int) bool {
	if visible == 1 {
		return true
	}
	return visible > 1 && typed*2 >= total
}

// fillAutocomplete drives one autocomplete field to a committed selection,
// retrying the whole type-and-accept cycle within the interaction budget.
// The widget re-renders its input mid-lookup often enough that a single pass
// is not trustworthy.
func (d *Driver) fillAutocomplete(ctx context.Context, index int, text string) error {
	if text == "" {
		return fmt.Errorf("autocomplete field %d: empty query", index)
	}
	return d.withRetry(ctx, fmt.Sprintf("autocomplete field %d", index), func(ctx context.Context) error {
		return d.fillAutocompleteOnce(ctx, index, text)
	})
}

// fillAutocompleteOnce types a query into the index-th autocomplete field
// character by character, committing via the dropdown as soon as it narrows.
// If the text is exhausted without the dropdown ever cooperating, a blind
// ArrowDown+Enter is sent anyway: the widget frequently has the right entry
// highlighted even when its menu failed to render visibly.
func (d *Driver) fillAutocompleteOnce(ctx context.Context, index int, text string) error {

	var marked bool
	if err := d.session.Evaluate(ctx, markNthAutocompleteScript(index), &marked); err != nil {
		return fmt.Errorf("marking autocomplete field %d: %w", index, err)
	}
	if !marked {
		return fmt.Errorf("autocomplete field %d not present", index)
	}
	defer func() {
		var unmarked bool
		_ = d.session.Evaluate(context.WithoutCancel(ctx), unmarkAutocompleteScript(), &unmarked)
	}()

	loc := browser.ByCSS(markedAutocompleteSelector)
	if err := d.ClearField(ctx, loc); err != nil {
		return err
	}

	runes := []rune(text)
	for i, r := range runes {
		if err := d.session.SendKeys(ctx, loc, string(r)); err != nil {
			return fmt.Errorf("typing into autocomplete field %d: %w", index, err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(suggestionPollInterval):
		}

		var visible int
		if err := d.session.Evaluate(ctx, countVisibleSuggestionsScript, &visible); err != nil {
			return fmt.Errorf("counting suggestions: %w", err)
		}

		if shouldAcceptSuggestion(visible, i+1, len(runes)) {
			d.logger.Debug("accepting autocomplete suggestion",
				zap.Int("field", index),
				zap.Int("visible", visible),
				zap.Int("typed", i+1),
				zap.Int("total", len(runes)))
			return d.acceptSuggestion(ctx, loc, index)
		}
	}

	d.logger.Debug("dropdown never narrowed, sending blind accept",
		zap.Int("field", index),
		zap.String("query", text))
	return d.acceptSuggestion(ctx, loc, index)
}

// acceptSuggestion commits the highlighted dropdown entry and verifies the
// field kept a value afterwards. An empty field after accept means the widget
// rejected the selection outright.
func (d *Driver) acceptSuggestion(ctx context.Context, loc browser.Locator, index int) error {
	if err := d.session.SendKeys(ctx, loc, kb.ArrowDown); err != nil {
		return err
	}
	if err := d.session.SendKeys(ctx, loc, kb.Enter); err != nil {
		return err
	}
	d.settle(ctx)

	var value string
	if err := d.session.Evaluate(ctx, markedFieldValueScript, &value); err != nil {
		return fmt.Errorf("verifying autocomplete field %d: %w", index, err)
	}
	if value == "" {
		return fmt.Errorf("autocomplete field %d empty after accepting suggestion", index)
	}
	return nil
}
