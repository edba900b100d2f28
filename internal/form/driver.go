// File: internal/form/driver.go
package form

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"go.uber.org/zap"

	"github.com/Attta-pangestu/venus-autofill/internal/browser"
	"github.com/Attta-pangestu/venus-autofill/internal/config"
	"github.com/Attta-pangestu/venus-autofill/internal/staging"
)

// ASP.NET ClientIDs of the task register form fields. These are stable
// across form revisions; the buttons below are not, hence their selector
// chains.
const (
	docDateFieldID  = "MainContent_txtDocDate"
	trxDateFieldID  = "MainContent_txtTrxDate"
	hoursFieldID    = "MainContent_txtHours"
	radioNormalID   = "MainContent_rblOT_0"
	radioOvertimeID = "MainContent_rblOT_1"
)

// addButtonLocators are the Add-button variants seen across form revisions,
// most to least specific.
var addButtonLocators = []browser.Locator{
	browser.ByCSS("input[value='Add']"),
	browser.ByCSS("button[value='Add']"),
	browser.ByCSS("input[id*='Add']"),
	browser.ByCSS("button[id*='Add']"),
}

// newButtonLocators are the New-button variants.
var newButtonLocators = []browser.Locator{
	browser.ByName("ctl00$MainContent$btnNew"),
	browser.ByID("MainContent_btnNew"),
	browser.ByCSS("input[value='New']"),
}

const dateFillAttempts = 3

// interactionAttempts bounds the retry loop around each form interaction. A
// miss past this budget escalates to the session recovery ladder, which
// replays the whole entry.
const interactionAttempts = 3

// page is the slice of the browser session the driver needs, narrowed to an
// interface so the form logic is testable without a live tab.
type page interface {
	Responsive(ctx context.Context) bool
	WaitVisible(ctx context.Context, loc browser.Locator) error
	Click(ctx context.Context, loc browser.Locator) error
	ClickFirst(ctx context.Context, locs ...browser.Locator) (browser.Locator, error)
	SendKeys(ctx context.Context, loc browser.Locator, text string) error
	Value(ctx context.Context, loc browser.Locator) (string, error)
	Evaluate(ctx context.Context, expr string, out interface{}) error
	Run(ctx context.Context, actions ...chromedp.Action) error
	DismissPopups(ctx context.Context)
}

var _ page = (*browser.Session)(nil)

// Driver fills the task register form through a browser session. One driver
// serves one session; it keeps no per-entry state.
type Driver struct {
	session        page
	logger         *zap.Logger
	settleTime     time.Duration
	employeePrefix string
}

// NewDriver creates a form driver bound to the session.
func NewDriver(session *browser.Session, cfg *config.Config, logger *zap.Logger) *Driver {
	return &Driver{
		session:        session,
		logger:         logger.Named("form"),
		settleTime:     cfg.Automation.SettleTime,
		employeePrefix: cfg.Crosscheck.EmployeePrefix,
	}
}

// settle gives the page time to finish its partial postback. The form has no
// reliable completion signal for these, so a fixed pause is the contract.
func (d *Driver) settle(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(d.settleTime):
	}
}

// withRetry runs one form interaction up to interactionAttempts times,
// checking the tab still answers before each try. An unresponsive tab fails
// immediately so the recovery ladder can take over.
func (d *Driver) withRetry(ctx context.Context, label string, fn func(context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= interactionAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !d.session.Responsive(ctx) {
			return fmt.Errorf("%s: browser tab unresponsive", label)
		}
		if err := fn(ctx); err != nil {
			lastErr = err
			d.logger.Warn("form interaction failed",
				zap.String("interaction", label),
				zap.Int("attempt", attempt),
				zap.Error(err))
			d.settle(ctx)
			continue
		}
		return nil
	}
	return fmt.Errorf("%s failed after %d attempts: %w", label, interactionAttempts, lastErr)
}

// FillDocumentDate writes the document date field.
func (d *Driver) FillDocumentDate(ctx context.Context, value string) error {
	return d.fillDate(ctx, docDateFieldID, value)
}

// FillTransactionDate writes the transaction date field.
func (d *Driver) FillTransactionDate(ctx context.Context, value string) error {
	return d.fillDate(ctx, trxDateFieldID, value)
}

// fillDate commits a date value. The date inputs re-render on Enter and are
// guarded by a calendar widget that occasionally swallows the first write, so
// every attempt is verified by reading the value back. After the scripted
// attempts are spent, one keyboard-driven attempt runs as a fallback.
func (d *Driver) fillDate(ctx context.Context, id, value string) error {
	loc := browser.ByID(id)
	if err := d.session.WaitVisible(ctx, loc); err != nil {
		return err
	}

	for attempt := 1; attempt <= dateFillAttempts; attempt++ {
		var ok bool
		if err := d.session.Evaluate(ctx, setValueByIDScript(id, value), &ok); err != nil {
			return fmt.Errorf("injecting date into %s: %w", id, err)
		}
		if !ok {
			return fmt.Errorf("date field %s disappeared mid-fill", id)
		}
		if err := d.session.SendKeys(ctx, loc, kb.Enter); err != nil {
			return err
		}
		d.settle(ctx)

		got, err := d.readBack(ctx, id)
		if err != nil {
			return err
		}
		if got == value {
			return nil
		}
		d.logger.Warn("date field did not hold its value",
			zap.String("field", id),
			zap.String("want", value),
			zap.String("got", got),
			zap.Int("attempt", attempt))
	}

	// Scripted injection failed; go through the keyboard like a user would.
	if err := d.ClearField(ctx, loc); err != nil {
		return err
	}
	if err := d.session.SendKeys(ctx, loc, value+kb.Enter); err != nil {
		return err
	}
	d.settle(ctx)

	got, err := d.readBack(ctx, id)
	if err != nil {
		return err
	}
	if got != value {
		return fmt.Errorf("date field %s holds %q after all attempts, want %q", id, got, value)
	}
	return nil
}

func (d *Driver) readBack(ctx context.Context, id string) (string, error) {
	var got string
	if err := d.session.Evaluate(ctx, readValueByIDScript(id), &got); err != nil {
		return "", fmt.Errorf("reading back %s: %w", id, err)
	}
	return got, nil
}

// ClearField empties an input, escalating through three strategies: scripted
// clear, select-all plus Delete, and character-by-character Backspace.
func (d *Driver) ClearField(ctx context.Context, loc browser.Locator) error {
	sel, opt := loc.Selector()

	var ok bool
	if err := d.session.Evaluate(ctx, clearFieldScript(sel), &ok); err == nil && ok {
		if v, err := d.session.Value(ctx, loc); err == nil && v == "" {
			return nil
		}
	}

	err := d.session.Run(ctx,
		chromedp.Focus(sel, opt),
		chromedp.KeyEvent("a", chromedp.KeyModifiers(input.ModifierCtrl)),
		chromedp.KeyEvent(kb.Delete),
	)
	if err == nil {
		if v, err := d.session.Value(ctx, loc); err == nil && v == "" {
			return nil
		}
	}

	v, err := d.session.Value(ctx, loc)
	if err != nil {
		return err
	}
	for range v {
		if err := d.session.SendKeys(ctx, loc, kb.Backspace); err != nil {
			return fmt.Errorf("backspacing %s: %w", loc, err)
		}
	}
	v, err = d.session.Value(ctx, loc)
	if err != nil {
		return err
	}
	if v != "" {
		return fmt.Errorf("field %s still holds %q after all clearing strategies", loc, v)
	}
	return nil
}

// FillEmployee selects the employee through the first autocomplete field.
// The prefixed external id is tried first because it is unambiguous; the
// employee name is the fallback for records whose id never synced.
func (d *Driver) FillEmployee(ctx context.Context, ptrjID, name string) error {
	if ptrjID != "" {
		query := d.employeePrefix + ptrjID
		if err := d.fillAutocomplete(ctx, 0, query); err == nil {
			return nil
		}
		d.logger.Warn("employee id lookup failed, falling back to name",
			zap.String("id", query),
			zap.String("name", name))
	}
	if name == "" {
		return fmt.Errorf("employee has neither a usable id nor a name")
	}
	if err := d.fillAutocomplete(ctx, 0, name); err != nil {
		return fmt.Errorf("selecting employee %q: %w", name, err)
	}
	return nil
}

// SelectTransactionType checks the Normal/Overtime radio group.
func (d *Driver) SelectTransactionType(ctx context.Context, t staging.TransactionType) error {
	id := radioNormalID
	if t == staging.TypeOvertime {
		id = radioOvertimeID
	}

	var ok bool
	if err := d.session.Evaluate(ctx, clickRadioScript(id), &ok); err == nil && ok {
		d.settle(ctx)
		return nil
	}
	// The themed skin sometimes replaces the input with a styled label.
	if err := d.session.Click(ctx, browser.ByCSS(fmt.Sprintf("label[for=%q]", id))); err != nil {
		return fmt.Errorf("selecting transaction type %s: %w", t, err)
	}
	d.settle(ctx)
	return nil
}

// FillChargeJob walks the charge-job components through the autocomplete
// fields that follow the employee field. The fields materialize one by one as
// predecessors commit, so each round re-counts before typing.
func (d *Driver) FillChargeJob(ctx context.Context, components []string) error {
	if len(components) == 0 {
		return fmt.Errorf("charge job has no components")
	}
	for i, component := range components {
		fieldIndex := i + 1 // field 0 is the employee

		if err := d.waitForAutocompleteField(ctx, fieldIndex); err != nil {
			return fmt.Errorf("charge-job field %d never appeared: %w", fieldIndex, err)
		}
		if err := d.fillAutocomplete(ctx, fieldIndex, component); err != nil {
			return fmt.Errorf("charge-job component %d (%q): %w", i, component, err)
		}
	}
	return nil
}

// waitForAutocompleteField polls until at least index+1 autocomplete inputs
// are visible.
func (d *Driver) waitForAutocompleteField(ctx context.Context, index int) error {
	deadline := time.Now().Add(15 * time.Second)
	for {
		var count int
		if err := d.session.Evaluate(ctx, countVisibleAutocompleteFieldsScript, &count); err != nil {
			return err
		}
		if count > index {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("only %d autocomplete fields visible, need %d", count, index+1)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}
}

// FillHours writes the hours field by script injection and drops focus so the
// field's change and blur handlers both observe the new value. Zero is a
// legitimate value: it registers the attendance day without booking time.
func (d *Driver) FillHours(ctx context.Context, hours float64) error {
	value := strconv.FormatFloat(hours, 'f', -1, 64)
	return d.withRetry(ctx, "hours field", func(ctx context.Context) error {
		var ok bool
		if err := d.session.Evaluate(ctx, setValueByIDScript(hoursFieldID, value), &ok); err != nil {
			return fmt.Errorf("injecting hours: %w", err)
		}
		if !ok {
			return fmt.Errorf("hours field %s not present", hoursFieldID)
		}
		if err := d.session.Evaluate(ctx, blurFieldScript(hoursFieldID), nil); err != nil {
			return fmt.Errorf("blurring hours field: %w", err)
		}
		got, err := d.readBack(ctx, hoursFieldID)
		if err != nil {
			return err
		}
		if got != value {
			return fmt.Errorf("hours field holds %q, want %q", got, value)
		}
		return nil
	})
}

// ClickAdd commits the current entry and keeps the form open for the next
// one. One retry, because the button's panel occasionally re-renders under
// the first click.
func (d *Driver) ClickAdd(ctx context.Context) error {
	return d.clickButton(ctx, "Add", addButtonLocators)
}

// ClickNew commits the current entry and resets the form to a blank document.
func (d *Driver) ClickNew(ctx context.Context) error {
	return d.clickButton(ctx, "New", newButtonLocators)
}

func (d *Driver) clickButton(ctx context.Context, label string, locators []browser.Locator) error {
	var lastErr error
	for attempt := 1; attempt <= 2; attempt++ {
		loc, err := d.session.ClickFirst(ctx, locators...)
		if err == nil {
			d.logger.Debug("button clicked",
				zap.String("button", label),
				zap.String("locator", loc.String()),
				zap.Int("attempt", attempt))
			d.settle(ctx)
			d.session.DismissPopups(ctx)
			return nil
		}
		lastErr = err
		d.settle(ctx)
	}
	return fmt.Errorf("clicking %s button: %w", label, lastErr)
}
