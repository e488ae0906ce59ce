package browser

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/chromedp/chromedp"
)

// CaptureOptions configures a one-shot screenshot of the calendar page.
type CaptureOptions struct {
	// URL to capture, e.g. "http://127.0.0.1:8080/?view=month&date=2025-11-15".
	URL string
	// OutputPath is where the PNG is written.
	OutputPath string

	Width  int
	Height int

	// Timeout bounds each browser step. Zero means 30 seconds.
	Timeout time.Duration
}

// Capture loads opts.URL in headless Chromium, waits for the page to report
// data-ready and writes a full-page PNG.
func Capture(parent context.Context, opts CaptureOptions) error {
	if opts.URL == "" {
		return fmt.Errorf("capture: URL is required")
	}
	if opts.OutputPath == "" {
		return fmt.Errorf("capture: OutputPath is required")
	}
	if opts.Width <= 0 {
		opts.Width = DefaultWidth
	}
	if opts.Height <= 0 {
		opts.Height = DefaultHeight
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	sess, err := NewSession(parent, Options{Width: opts.Width, Height: opts.Height, Timeout: opts.Timeout})
	if err != nil {
		return fmt.Errorf("capture: %w", err)
	}
	defer sess.Close()

	if err := sess.Goto(opts.URL); err != nil {
		return fmt.Errorf("capture: %w", err)
	}
	// let CSS transitions settle
	if err := sess.run(chromedp.Sleep(300 * time.Millisecond)); err != nil {
		return fmt.Errorf("capture: %w", err)
	}
	png, err := sess.Screenshot()
	if err != nil {
		return fmt.Errorf("capture: %w", err)
	}

	if err := os.WriteFile(opts.OutputPath, png, 0o644); err != nil {
		return fmt.Errorf("capture: write PNG: %w", err)
	}
	return nil
}
