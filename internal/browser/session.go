// Package browser drives the calendar page in headless Chromium through
// chromedp. End-to-end tests use a Session the way a user would: click a
// cell, fill the form, submit, answer the overlap dialog, read the toast.
package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"
)

// ReadySelector matches the page root once its script has initialised.
const ReadySelector = `[data-ready="true"]`

const (
	DefaultWidth   = 1280
	DefaultHeight  = 960
	DefaultTimeout = 10 * time.Second
)

// ErrNotVisible is returned when an element or text did not appear in time.
var ErrNotVisible = errors.New("element not visible")

// Options configures a browser session.
type Options struct {
	// ExecPath overrides the Chromium binary; empty means chromedp's lookup.
	ExecPath string
	// Headful shows the window, useful when debugging a scenario locally.
	Headful bool

	Width  int
	Height int

	// Timeout bounds every single step (navigate, click, wait).
	Timeout time.Duration
}

// Session is one browser tab.
type Session struct {
	ctx     context.Context
	cancel  context.CancelFunc
	timeout time.Duration
}

// NewSession starts Chromium and opens a tab. It fails fast when no
// browser is installed.
func NewSession(parent context.Context, opts Options) (*Session, error) {
	if opts.Width <= 0 {
		opts.Width = DefaultWidth
	}
	if opts.Height <= 0 {
		opts.Height = DefaultHeight
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.WindowSize(opts.Width, opts.Height),
		chromedp.Flag("headless", !opts.Headful),
		chromedp.NoSandbox,
	)
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(parent, allocOpts...)
	ctx, tabCancel := chromedp.NewContext(allocCtx)
	cancel := func() {
		tabCancel()
		allocCancel()
	}

	// the first Run launches the browser
	if err := chromedp.Run(ctx, chromedp.EmulateViewport(int64(opts.Width), int64(opts.Height))); err != nil {
		cancel()
		return nil, fmt.Errorf("browser: start chromium: %w", err)
	}

	return &Session{ctx: ctx, cancel: cancel, timeout: opts.Timeout}, nil
}

// Close shuts the tab and the browser down.
func (s *Session) Close() {
	s.cancel()
}

func (s *Session) run(actions ...chromedp.Action) error {
	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()
	return chromedp.Run(ctx, actions...)
}

// Goto loads url and waits until the page reports data-ready.
func (s *Session) Goto(url string) error {
	if err := s.run(
		chromedp.Navigate(url),
		chromedp.WaitVisible(ReadySelector, chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("browser: goto %s: %w", url, err)
	}
	return nil
}

// Reload reloads the current page and waits for data-ready again.
func (s *Session) Reload() error {
	if err := s.run(
		chromedp.Reload(),
		chromedp.WaitVisible(ReadySelector, chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("browser: reload: %w", err)
	}
	return nil
}

// Click clicks the first element matching the CSS selector.
func (s *Session) Click(sel string) error {
	if err := s.run(chromedp.Click(sel, chromedp.ByQuery, chromedp.NodeVisible)); err != nil {
		return fmt.Errorf("browser: click %s: %w", sel, err)
	}
	return nil
}

// ClickText clicks the first visible element whose trimmed text equals text.
func (s *Session) ClickText(text string) error {
	xp := "//*[normalize-space(text())=" + xpathLiteral(text) + "]"
	if err := s.run(chromedp.Click(xp, chromedp.BySearch, chromedp.NodeVisible)); err != nil {
		return fmt.Errorf("browser: click text %q: %w", text, err)
	}
	return nil
}

// Fill replaces the value of an input and fires input/change so the page
// script sees the edit.
func (s *Session) Fill(sel, value string) error {
	script := fmt.Sprintf(`(() => {
		const el = document.querySelector(%s);
		for (const type of ["input", "change"]) {
			el.dispatchEvent(new Event(type, { bubbles: true }));
		}
		return true;
	})()`, jsString(sel))

	var ok bool
	if err := s.run(
		chromedp.WaitVisible(sel, chromedp.ByQuery),
		chromedp.SetValue(sel, value, chromedp.ByQuery),
		chromedp.Evaluate(script, &ok),
	); err != nil {
		return fmt.Errorf("browser: fill %s: %w", sel, err)
	}
	return nil
}

// Value reads the current value of an input.
func (s *Session) Value(sel string) (string, error) {
	var v string
	if err := s.run(chromedp.Value(sel, &v, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("browser: value %s: %w", sel, err)
	}
	return v, nil
}

// Text returns the visible text of an element.
func (s *Session) Text(sel string) (string, error) {
	var v string
	if err := s.run(chromedp.Text(sel, &v, chromedp.ByQuery, chromedp.NodeVisible)); err != nil {
		return "", fmt.Errorf("browser: text %s: %w", sel, err)
	}
	return strings.TrimSpace(v), nil
}

// Hover moves the mouse over the centre of the element.
func (s *Session) Hover(sel string) error {
	script := fmt.Sprintf(`(() => {
		const r = document.querySelector(%s).getBoundingClientRect();
		return [r.left + r.width / 2, r.top + r.height / 2];
	})()`, jsString(sel))

	var pt []float64
	if err := s.run(
		chromedp.ScrollIntoView(sel, chromedp.ByQuery),
		chromedp.Evaluate(script, &pt),
	); err != nil {
		return fmt.Errorf("browser: hover %s: %w", sel, err)
	}
	if len(pt) != 2 {
		return fmt.Errorf("browser: hover %s: no bounding box", sel)
	}
	if err := s.run(chromedp.MouseEvent(input.MouseMoved, pt[0], pt[1])); err != nil {
		return fmt.Errorf("browser: hover %s: %w", sel, err)
	}
	return nil
}

// ComputedStyle returns getComputedStyle(el)[prop].
func (s *Session) ComputedStyle(sel, prop string) (string, error) {
	script := fmt.Sprintf(`getComputedStyle(document.querySelector(%s)).getPropertyValue(%s)`,
		jsString(sel), jsString(prop))

	var v string
	if err := s.run(chromedp.Evaluate(script, &v)); err != nil {
		return "", fmt.Errorf("browser: style %s %s: %w", sel, prop, err)
	}
	return strings.TrimSpace(v), nil
}

// Visible waits up to d for sel to become visible.
func (s *Session) Visible(sel string, d time.Duration) bool {
	return s.waitVisible(sel, chromedp.ByQuery, d) == nil
}

// WaitText waits until an element containing text is visible.
func (s *Session) WaitText(text string) error {
	if err := s.waitVisible(textXPath(text), chromedp.BySearch, s.timeout); err != nil {
		return fmt.Errorf("browser: text %q: %w", text, ErrNotVisible)
	}
	return nil
}

// TextVisible reports whether text shows up within d.
func (s *Session) TextVisible(text string, d time.Duration) bool {
	return s.waitVisible(textXPath(text), chromedp.BySearch, d) == nil
}

func (s *Session) waitVisible(sel string, by chromedp.QueryOption, d time.Duration) error {
	ctx, cancel := context.WithTimeout(s.ctx, d)
	defer cancel()
	return chromedp.Run(ctx, chromedp.WaitVisible(sel, by))
}

// CellKeys lists the data-testid of every rendered calendar cell in
// document order.
func (s *Session) CellKeys() ([]string, error) {
	var keys []string
	if err := s.run(chromedp.Evaluate(
		`Array.from(document.querySelectorAll('[data-testid^="calendar-cell-"]')).map(el => el.dataset.testid)`,
		&keys,
	)); err != nil {
		return nil, fmt.Errorf("browser: cell keys: %w", err)
	}
	return keys, nil
}

// Screenshot captures the full page as PNG.
func (s *Session) Screenshot() ([]byte, error) {
	var png []byte
	if err := s.run(chromedp.FullScreenshot(&png, 100)); err != nil {
		return nil, fmt.Errorf("browser: screenshot: %w", err)
	}
	return png, nil
}

// CellSelector returns the CSS selector of the cell with the given key.
func CellSelector(key string) string {
	return `[data-testid="` + key + `"]`
}

func textXPath(text string) string {
	return "//*[contains(normalize-space(.), " + xpathLiteral(text) + ") and not(.//*[contains(normalize-space(.), " + xpathLiteral(text) + ")])]"
}

// xpathLiteral quotes s for XPath 1.0, which has no escape sequences.
func xpathLiteral(s string) string {
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	parts := strings.Split(s, `"`)
	quoted := make([]string, 0, len(parts)*2)
	for i, p := range parts {
		if i > 0 {
			quoted = append(quoted, `'"'`)
		}
		quoted = append(quoted, `"`+p+`"`)
	}
	return "concat(" + strings.Join(quoted, ", ") + ")"
}

func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
