// File: internal/browser/session.go
package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Attta-pangestu/venus-autofill/internal/config"
)

// Registry guards browser-session creation so that at most one live session
// drives the vendor system at a time. The vendor app keys server-side state to
// the ASP.NET session cookie; two concurrent tabs silently corrupt each
// other's postback state.
type Registry struct {
	mu     sync.Mutex
	active *Session
}

// NewRegistry creates an empty session registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Acquire creates and registers the session. Acquiring while a live session
// is registered is an error: the caller holding the session is the only one
// allowed to drive the browser, and a second caller must wait for Close.
func (r *Registry) Acquire(cfg *config.Config, logger *zap.Logger) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active != nil && !r.active.closed() {
		return nil, fmt.Errorf("session %s is already active", r.active.id)
	}

	id := uuid.NewString()
	s := &Session{
		id:     id,
		cfg:    cfg,
		logger: logger.Named("browser").With(zap.String("session_id", id[:8])),
		onClose: func(s *Session) {
			r.mu.Lock()
			defer r.mu.Unlock()
			if r.active == s {
				r.active = nil
			}
		},
	}
	r.active = s
	return s, nil
}

// Session owns one Chrome instance and one tab pointed at the vendor system.
// All page interaction goes through its tab context.
type Session struct {
	id     string
	cfg    *config.Config
	logger *zap.Logger

	mu          sync.Mutex
	allocCancel context.CancelFunc
	tabCtx      context.Context
	tabCancel   context.CancelFunc
	loggedIn    bool
	isClosed    bool

	onClose func(*Session)
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

func (s *Session) closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isClosed
}

// execOptions builds the allocator options for the configured browser.
func (s *Session) execOptions() []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", s.cfg.Browser.Headless),
		chromedp.DisableGPU,
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.WindowSize(s.cfg.Browser.WindowWidth, s.cfg.Browser.WindowHeight),
		// The vendor app breaks under aggressive throttling of background tabs.
		chromedp.Flag("disable-background-timer-throttling", true),
		chromedp.Flag("disable-renderer-backgrounding", true),
	)
	return opts
}

// Initialize launches Chrome and logs in. It is idempotent: a session whose
// tab is still responsive is reused as-is, which is what makes the recovery
// ladder's cheaper rungs worthwhile.
func (s *Session) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isClosed {
		return fmt.Errorf("session %s is closed", s.id)
	}
	if s.tabCtx != nil {
		if s.responsiveLocked() {
			s.logger.Debug("session already initialized and responsive")
			return nil
		}
		s.logger.Warn("existing tab unresponsive, relaunching browser")
		s.teardownLocked()
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), s.execOptions()...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	// Materialize the browser process now so failures surface here rather
	// than on the first navigation.
	startCtx, cancel := context.WithTimeout(tabCtx, s.cfg.Browser.PageLoadTimeout)
	err := chromedp.Run(startCtx, chromedp.Navigate("about:blank"))
	cancel()
	if err != nil {
		tabCancel()
		allocCancel()
		return fmt.Errorf("launching browser: %w", err)
	}

	s.allocCancel = allocCancel
	s.tabCtx = tabCtx
	s.tabCancel = tabCancel
	s.loggedIn = false
	s.logger.Info("browser launched",
		zap.Bool("headless", s.cfg.Browser.Headless),
		zap.Int("width", s.cfg.Browser.WindowWidth),
		zap.Int("height", s.cfg.Browser.WindowHeight))

	return s.loginLocked(ctx)
}

// tab returns the tab context or an error if the session has no live tab.
func (s *Session) tab() (context.Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tabCtx == nil || s.isClosed {
		return nil, fmt.Errorf("session %s has no live browser tab", s.id)
	}
	return s.tabCtx, nil
}

// run executes chromedp actions on the session tab, bounded by both the
// caller's context and the configured page-load timeout.
func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	tab, err := s.tab()
	if err != nil {
		return err
	}
	bounded, cancel := context.WithTimeout(tab, s.cfg.Browser.PageLoadTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- chromedp.Run(bounded, actions...) }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		cancel()
		<-done
		return ctx.Err()
	}
}

// CurrentURL reports the tab's location. It doubles as the responsiveness
// probe: a hung renderer cannot answer it.
func (s *Session) CurrentURL(ctx context.Context) (string, error) {
	var url string
	if err := s.run(ctx, chromedp.Location(&url)); err != nil {
		return "", fmt.Errorf("reading current url: %w", err)
	}
	return url, nil
}

// Responsive reports whether the tab answers a location probe within a short
// deadline.
func (s *Session) Responsive(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := s.CurrentURL(probeCtx)
	return err == nil
}

// responsiveLocked is the probe variant used while s.mu is already held.
func (s *Session) responsiveLocked() bool {
	if s.tabCtx == nil {
		return false
	}
	probeCtx, cancel := context.WithTimeout(s.tabCtx, 5*time.Second)
	defer cancel()
	var url string
	return chromedp.Run(probeCtx, chromedp.Location(&url)) == nil
}

// Login authenticates against the vendor system and lands the session on the
// main page, dismissing any announcement popups on the way.
func (s *Session) Login(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loginLocked(ctx)
}

func (s *Session) loginLocked(ctx context.Context) error {
	if s.tabCtx == nil {
		return fmt.Errorf("session %s has no live browser tab", s.id)
	}
	s.logger.Info("logging in", zap.String("url", s.cfg.URLs.Login))

	loginCtx, cancel := context.WithTimeout(s.tabCtx, s.cfg.Browser.PageLoadTimeout)
	defer cancel()

	err := chromedp.Run(loginCtx,
		chromedp.Navigate(s.cfg.URLs.Login),
		chromedp.WaitVisible("#txtUsername", chromedp.ByID),
		chromedp.Clear("#txtUsername", chromedp.ByID),
		chromedp.SendKeys("#txtUsername", s.cfg.Credentials.Username, chromedp.ByID),
		chromedp.Clear("#txtPassword", chromedp.ByID),
		chromedp.SendKeys("#txtPassword", s.cfg.Credentials.Password, chromedp.ByID),
		chromedp.Click("#btnLogin", chromedp.ByID),
	)
	if err != nil {
		return fmt.Errorf("submitting login form: %w", err)
	}

	if err := s.waitPageComplete(loginCtx); err != nil {
		return fmt.Errorf("waiting for post-login page: %w", err)
	}

	// The app greets logins with an announcement popup more often than not.
	s.dismissPopups(loginCtx)

	var url string
	if err := chromedp.Run(loginCtx, chromedp.Location(&url)); err != nil {
		return fmt.Errorf("reading post-login url: %w", err)
	}
	if strings.Contains(url, "login") || strings.Contains(url, "Login") {
		return fmt.Errorf("still on login page after submit, check credentials")
	}

	s.loggedIn = true
	s.logger.Info("login complete", zap.String("landed_on", url))
	return nil
}

// dismissPopupScript probes for the OK-button variants the vendor app uses
// across its modal dialogs and clicks the first visible one, reporting which
// selector was hit or "" when no modal is up. The id selectors are specific to
// the vendor dialogs; the generic ones must additionally sit inside a dialog
// container so an ordinary page button is never clicked by accident.
const dismissPopupScript = `(() => {
	const visible = (el) => el && el.offsetParent !== null;
	for (const sel of ["#MainContent_btnOkay", "#btnOK"]) {
		const el = document.querySelector(sel);
		if (visible(el)) { el.click(); return sel; }
	}
	for (const sel of [".btn-primary", "[value='OK']", "[value='Okay']"]) {
		for (const el of document.querySelectorAll(sel)) {
			if (visible(el) && el.closest(".modal, .ui-dialog, [role='dialog']")) {
				el.click();
				return sel;
			}
		}
	}
	return "";
})()`

// maxPopupRounds bounds the dismissal loop; a dismissed popup can reveal
// another underneath, but never this many.
const maxPopupRounds = 5

// dismissPopups clicks through any modal dialogs currently blocking the page.
// Absence of a popup is the normal case and never an error; the probe returns
// immediately when nothing is up, so calling this between form steps is cheap.
func (s *Session) dismissPopups(ctx context.Context) {
	for round := 0; round < maxPopupRounds; round++ {
		var clicked string
		probeCtx, cancel := context.WithTimeout(ctx, 1500*time.Millisecond)
		err := chromedp.Run(probeCtx, chromedp.Evaluate(dismissPopupScript, &clicked))
		cancel()
		if err != nil || clicked == "" {
			return
		}
		s.logger.Debug("dismissed popup", zap.String("selector", clicked))
		select {
		case <-ctx.Done():
			return
		case <-time.After(250 * time.Millisecond):
		}
	}
}

// DismissPopups is the exported variant used between form steps.
func (s *Session) DismissPopups(ctx context.Context) {
	tab, err := s.tab()
	if err != nil {
		return
	}
	s.dismissPopups(tab)
}

// waitPageComplete polls document.readyState until the page reports complete.
func (s *Session) waitPageComplete(ctx context.Context) error {
	return chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		for {
			var state string
			if err := chromedp.Evaluate(`document.readyState`, &state).Do(ctx); err != nil {
				return err
			}
			if state == "complete" {
				return nil
			}
			select {
			case <-ctx.Done():
				return fmt.Errorf("page never reached readyState=complete: %w", ctx.Err())
			case <-time.After(250 * time.Millisecond):
			}
		}
	}))
}

// setLocationPage is the URL fragment of the interstitial the app sometimes
// inserts after login, demanding a site selection.
const setLocationPage = "frmSystemUserSetlocation.aspx"

// navRetryBackoff spaces out navigation retries. The vendor server recovers
// from its redirect loops within a few seconds.
const navRetryBackoff = 3 * time.Second

// pause waits out the duration unless the context ends first.
func pause(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// handleSetLocation deals with the site-selection interstitial. The fast path
// redirects away from it through the page's own window.location, which the
// server accepts without a site having been picked; plain navigation is the
// fallback.
func (s *Session) handleSetLocation(ctx context.Context) error {
	s.logger.Info("set-location interstitial detected, bypassing")

	bypassCtx, cancel := context.WithTimeout(ctx, s.cfg.Browser.ScriptTimeout)
	defer cancel()

	script := fmt.Sprintf(`window.location.href = %q;`, s.cfg.URLs.TaskRegister)
	if err := chromedp.Run(bypassCtx, chromedp.Evaluate(script, nil)); err == nil {
		if err := s.waitPageComplete(bypassCtx); err == nil {
			return nil
		}
	}

	if err := chromedp.Run(bypassCtx, chromedp.Navigate(s.cfg.URLs.TaskRegister)); err != nil {
		return fmt.Errorf("leaving set-location page: %w", err)
	}
	return s.waitPageComplete(bypassCtx)
}

// NavigateToTaskRegister drives the tab onto the task register form, retrying
// through the interstitials and redirects the vendor app is prone to. Each
// attempt ends in one of four places: the form (done), the login page
// (re-authenticate), the set-location page (bypass), or somewhere else
// (retry via the landing page).
func (s *Session) NavigateToTaskRegister(ctx context.Context) error {
	tab, err := s.tab()
	if err != nil {
		return err
	}

	target := s.cfg.URLs.TaskRegister
	var lastErr error

	for attempt := 1; attempt <= s.cfg.Browser.NavRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if attempt > 1 {
			// Immediate retries hit the same transient server state.
			if err := pause(ctx, navRetryBackoff); err != nil {
				return err
			}
		}

		navCtx, cancel := context.WithTimeout(tab, s.cfg.Browser.PageLoadTimeout)
		err := chromedp.Run(navCtx, chromedp.Navigate(target))
		if err == nil {
			err = s.waitPageComplete(navCtx)
		}
		var url string
		if err == nil {
			err = chromedp.Run(navCtx, chromedp.Location(&url))
		}
		cancel()

		if err != nil {
			lastErr = err
			s.logger.Warn("navigation attempt failed",
				zap.Int("attempt", attempt),
				zap.Error(err))
			continue
		}

		switch {
		case strings.Contains(url, "frmPrTrxTaskRegisterDet.aspx"):
			s.DismissPopups(ctx)
			s.logger.Info("task register form reached", zap.Int("attempt", attempt))
			return nil

		case strings.Contains(url, setLocationPage):
			if err := s.handleSetLocation(tab); err != nil {
				lastErr = err
				s.logger.Warn("set-location bypass failed", zap.Error(err))
			}

		case strings.Contains(url, "login") || strings.Contains(url, "Login"):
			s.logger.Warn("session expired mid-navigation, re-authenticating")
			if err := s.Login(ctx); err != nil {
				lastErr = err
			}

		default:
			// Unknown page. Going through the landing page resets the app's
			// server-side menu state, after which direct navigation works.
			lastErr = fmt.Errorf("landed on unexpected page %s", url)
			s.logger.Warn("unexpected page, resetting via landing page",
				zap.Int("attempt", attempt),
				zap.String("url", url))
			resetCtx, cancel := context.WithTimeout(tab, s.cfg.Browser.PageLoadTimeout)
			_ = chromedp.Run(resetCtx, chromedp.Navigate(s.cfg.URLs.Landing))
			_ = s.waitPageComplete(resetCtx)
			cancel()
		}
	}
	return fmt.Errorf("task register unreachable after %d attempts: %w", s.cfg.Browser.NavRetries, lastErr)
}

// OnTaskRegister reports whether the tab currently shows the task register
// form.
func (s *Session) OnTaskRegister(ctx context.Context) bool {
	url, err := s.CurrentURL(ctx)
	return err == nil && strings.Contains(url, "frmPrTrxTaskRegisterDet.aspx")
}

// Refresh reloads the current page.
func (s *Session) Refresh(ctx context.Context) error {
	if err := s.run(ctx, chromedp.Reload()); err != nil {
		return fmt.Errorf("reloading page: %w", err)
	}
	tab, err := s.tab()
	if err != nil {
		return err
	}
	refreshCtx, cancel := context.WithTimeout(tab, s.cfg.Browser.PageLoadTimeout)
	defer cancel()
	return s.waitPageComplete(refreshCtx)
}

// Keepalive probes the tab on the configured interval until the context ends.
// It exists for long gaps between batches: the vendor app logs idle sessions
// out, and the probe plus a cheap navigation keeps the session warm.
func (s *Session) Keepalive(ctx context.Context) error {
	interval := s.cfg.Browser.KeepaliveEvery
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if s.closed() {
				return nil
			}
			if s.Responsive(ctx) {
				s.logger.Debug("keepalive probe ok")
				continue
			}
			s.logger.Warn("keepalive probe failed, session may need recovery")
		}
	}
}

// Evaluate runs a JS expression on the tab and optionally captures its result.
func (s *Session) Evaluate(ctx context.Context, expr string, out interface{}) error {
	if err := s.run(ctx, chromedp.Evaluate(expr, out)); err != nil {
		return fmt.Errorf("evaluating script: %w", err)
	}
	return nil
}

// Run exposes raw chromedp actions for the form layer.
func (s *Session) Run(ctx context.Context, actions ...chromedp.Action) error {
	return s.run(ctx, actions...)
}

// teardownLocked releases the chromedp contexts. Callers hold s.mu.
func (s *Session) teardownLocked() {
	if s.tabCancel != nil {
		s.tabCancel()
		s.tabCancel = nil
	}
	if s.allocCancel != nil {
		s.allocCancel()
		s.allocCancel = nil
	}
	s.tabCtx = nil
	s.loggedIn = false
}

// Close shuts the browser down and deregisters the session.
func (s *Session) Close() {
	s.mu.Lock()
	if s.isClosed {
		s.mu.Unlock()
		return
	}
	s.isClosed = true
	s.teardownLocked()
	onClose := s.onClose
	s.mu.Unlock()

	if onClose != nil {
		onClose(s)
	}
	s.logger.Info("session closed")
}
