// Package browserdriver defines the external-collaborator boundary (§1 Non-goals:
// "the browser automation tool the Runner/Gemini workers shell out to") between
// Kaya's core and a real browser. The default adapter is backed by go-rod; nothing
// outside this package imports rod directly, so a fake driver is a one-file swap
// in tests.
package browserdriver

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/google/uuid"

	"kaya/internal/pathsafe"
)

// Run is the outcome of driving a single test page through the browser:
// navigation, console/network capture, and a screenshot. It carries exactly
// the fields the Gemini worker needs to assemble a domain.ValidatorRecord.
type Run struct {
	Launched        bool
	Navigated       bool
	ScreenshotPaths []string
	ConsoleErrors   []string
	NetworkFailures []string
	DurationMS      int64
}

// Driver is the boundary the Gemini worker depends on. Implementations own
// their own process lifecycle; Close releases any resources acquired by New.
type Driver interface {
	// Validate launches a page at targetURL, captures console errors and
	// failed network requests for the duration of the wait, and writes a
	// screenshot to artifactsDir. It never returns an error for a page that
	// fails to load correctly — that is reflected in Run.Launched/Navigated
	// so the caller can still produce a rubric-checkable record.
	Validate(ctx context.Context, targetURL string, artifactsDir string, wait time.Duration) (Run, error)
	Close() error
}

// Config configures the default Rod-backed driver.
type Config struct {
	Headless            bool
	ViewportWidth        int
	ViewportHeight       int
	NavigationTimeoutMs  int
}

// DefaultConfig mirrors the teacher's browser.DefaultConfig defaults.
func DefaultConfig() Config {
	return Config{
		Headless:            true,
		ViewportWidth:       1280,
		ViewportHeight:      800,
		NavigationTimeoutMs: 30000,
	}
}

func (c Config) navigationTimeout() time.Duration {
	if c.NavigationTimeoutMs <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.NavigationTimeoutMs) * time.Millisecond
}

// RodDriver is the default Driver, adapted from the teacher's
// internal/browser/session_manager.go: a single lazily-launched browser
// instance, one incognito page per Validate call so runs never share cookies
// or storage with each other.
type RodDriver struct {
	cfg     Config
	mu      sync.Mutex
	browser *rod.Browser
}

// New returns a Driver that launches Chrome on first Validate call.
func New(cfg Config) *RodDriver {
	return &RodDriver{cfg: cfg}
}

func (d *RodDriver) ensureStarted() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.browser != nil {
		if _, err := d.browser.Version(); err == nil {
			return nil
		}
		_ = d.browser.Close()
		d.browser = nil
	}

	controlURL, err := launcher.New().Headless(d.cfg.Headless).Launch()
	if err != nil {
		return fmt.Errorf("launch chrome: %w", err)
	}
	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("connect to chrome: %w", err)
	}
	d.browser = browser
	return nil
}

// Validate implements Driver.
func (d *RodDriver) Validate(ctx context.Context, targetURL string, artifactsDir string, wait time.Duration) (Run, error) {
	start := time.Now()
	if err := d.ensureStarted(); err != nil {
		return Run{}, nil // launch failure is reported as Launched=false, not an error
	}

	d.mu.Lock()
	browser := d.browser
	d.mu.Unlock()

	incognito, err := browser.Incognito()
	if err != nil {
		return Run{}, nil
	}

	page, err := incognito.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return Run{}, nil
	}
	defer func() { _ = page.Close() }()

	run := Run{Launched: true}

	if err := (proto.EmulationSetDeviceMetricsOverride{
		Width:             nonZero(d.cfg.ViewportWidth, 1280),
		Height:            nonZero(d.cfg.ViewportHeight, 800),
		DeviceScaleFactor: 1.0,
		Mobile:            false,
	}).Call(page); err != nil {
		// Viewport override failing is cosmetic; keep going.
		_ = err
	}

	var mu sync.Mutex
	waitStop := page.Context(ctx).EachEvent(
		func(ev *proto.RuntimeConsoleAPICalled) {
			if ev.Type != proto.RuntimeConsoleAPICalledTypeError {
				return
			}
			mu.Lock()
			run.ConsoleErrors = append(run.ConsoleErrors, stringifyConsoleArgs(ev.Args))
			mu.Unlock()
		},
		func(ev *proto.NetworkResponseReceived) {
			if ev.Response == nil || ev.Response.Status < 400 {
				return
			}
			mu.Lock()
			run.NetworkFailures = append(run.NetworkFailures, fmt.Sprintf("%s %d", ev.Response.URL, ev.Response.Status))
			mu.Unlock()
		},
	)
	go waitStop()

	navErr := page.Context(ctx).Timeout(d.cfg.navigationTimeout()).Navigate(targetURL)
	run.Navigated = navErr == nil

	if run.Navigated {
		select {
		case <-ctx.Done():
		case <-time.After(wait):
		}
	}

	if path, shotErr := d.screenshot(page, artifactsDir); shotErr == nil {
		run.ScreenshotPaths = append(run.ScreenshotPaths, path)
	}

	run.DurationMS = time.Since(start).Milliseconds()
	return run, nil
}

func (d *RodDriver) screenshot(page *rod.Page, artifactsDir string) (string, error) {
	if artifactsDir == "" {
		artifactsDir = "artifacts"
	}
	path, err := pathsafe.Resolve(artifactsDir, fmt.Sprintf("%s.png", uuid.NewString()))
	if err != nil {
		return "", fmt.Errorf("screenshot path rejected: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	data, err := page.Screenshot(true, nil)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// Close shuts down the underlying browser, if one was ever launched.
func (d *RodDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.browser == nil {
		return nil
	}
	err := d.browser.Close()
	d.browser = nil
	return err
}

func stringifyConsoleArgs(args []*proto.RuntimeRemoteObject) string {
	parts := make([]string, 0, len(args))
	for _, a := range args {
		if a == nil {
			continue
		}
		if !a.Value.Nil() {
			parts = append(parts, a.Value.String())
			continue
		}
		if a.Description != "" {
			parts = append(parts, a.Description)
		}
	}
	return strings.Join(parts, " ")
}

func nonZero(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
