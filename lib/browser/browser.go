// Package browser manages hidden, scriptable browser sessions. A session
// is used purely as a programmable HTTP+JS client: it navigates, runs
// script in page context and exposes its cookie jar. It is never shown
// to the user.
package browser

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"itsdu-backend/lib/cookieutil"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/ysmood/gson"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/semaphore"
)

var tracer = otel.Tracer("itsdu.lib.browser")

var ErrNavigationTimeout = fmt.Errorf("navigation did not settle in time")

const (
	DefaultMaxSessions     = 4
	DefaultNavigateTimeout = 30 * time.Second
)

type Options struct {
	// Bin overrides the browser binary; empty means rod's own lookup.
	Bin string
	// MaxSessions caps concurrent hidden sessions. Every session costs an
	// OS-level rendering process, so the cap is load-bearing.
	MaxSessions int64
	// NavigateTimeout bounds every navigation inside a session.
	NavigateTimeout time.Duration
}

// Manager owns one headless browser process and hands out isolated
// sessions backed by fresh incognito contexts. Sessions are never reused
// across requests; stale redirect or cookie state from a previous request
// must not leak into the next one.
type Manager struct {
	browser         *rod.Browser
	cleanup         func()
	sem             *semaphore.Weighted
	navigateTimeout time.Duration
	active          atomic.Int64

	// spawn is swapped out in tests so pool accounting can be exercised
	// without a real browser process.
	spawn func(ctx context.Context) (*rod.Page, func(), error)
}

func NewManager(opts Options) (*Manager, error) {
	if opts.MaxSessions <= 0 {
		opts.MaxSessions = DefaultMaxSessions
	}
	if opts.NavigateTimeout <= 0 {
		opts.NavigateTimeout = DefaultNavigateTimeout
	}

	l := launcher.New().
		Headless(true).
		Set("no-sandbox").
		Set("disable-gpu").
		Set("disable-dev-shm-usage")
	if opts.Bin != "" {
		l = l.Bin(opts.Bin)
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		l.Cleanup()
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	m := &Manager{
		browser:         b,
		cleanup:         l.Cleanup,
		sem:             semaphore.NewWeighted(opts.MaxSessions),
		navigateTimeout: opts.NavigateTimeout,
	}
	m.spawn = m.spawnPage
	return m, nil
}

func (m *Manager) spawnPage(ctx context.Context) (*rod.Page, func(), error) {
	inc, err := m.browser.Context(ctx).Incognito()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create incognito context: %w", err)
	}
	page, err := stealth.Page(inc)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open page: %w", err)
	}
	dispose := func() {
		_ = page.Close()
		_ = proto.TargetDisposeBrowserContext{
			BrowserContextID: inc.BrowserContextID,
		}.Call(m.browser)
	}
	return page, dispose, nil
}

// Acquire blocks until a session slot is free, then opens a fresh
// isolated session. The caller must Close the session on every exit
// path; a missed Close leaks a renderer process and a pool slot.
func (m *Manager) Acquire(ctx context.Context) (*Session, error) {
	ctx, span := tracer.Start(ctx, "Acquire")
	defer span.End()

	if err := m.sem.Acquire(ctx, 1); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "interrupted while waiting for a session slot")
		return nil, err
	}

	page, dispose, err := m.spawn(ctx)
	if err != nil {
		m.sem.Release(1)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	m.active.Add(1)
	s := &Session{
		page:            page,
		navigateTimeout: m.navigateTimeout,
	}
	s.release = func() {
		if dispose != nil {
			dispose()
		}
		m.active.Add(-1)
		m.sem.Release(1)
	}
	return s, nil
}

// Active reports the number of sessions currently handed out.
func (m *Manager) Active() int64 {
	return m.active.Load()
}

func (m *Manager) Close() error {
	err := m.browser.Close()
	if m.cleanup != nil {
		m.cleanup()
	}
	return err
}

// Session is a disposable hidden browser context exclusively owned by
// one in-flight request until Close.
type Session struct {
	page            *rod.Page
	navigateTimeout time.Duration
	release         func()
	closed          atomic.Bool
}

// Close tears down the session and returns its pool slot. Safe to call
// more than once.
func (s *Session) Close() {
	if s.closed.Swap(true) {
		return
	}
	s.release()
}

// Navigate loads the url and waits for the load event. A navigation that
// never settles within the manager's timeout yields ErrNavigationTimeout;
// the session must be discarded afterwards.
func (s *Session) Navigate(ctx context.Context, url string) error {
	ctx, span := tracer.Start(ctx, "Navigate")
	defer span.End()
	span.SetAttributes(attribute.String("url", url))

	page := s.page.Context(ctx).Timeout(s.navigateTimeout)
	if err := page.Navigate(url); err != nil {
		err = navError(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "navigation failed")
		return err
	}
	if err := page.WaitLoad(); err != nil {
		err = navError(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "page never settled")
		return err
	}
	return nil
}

func navError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s", ErrNavigationTimeout, err)
	}
	return err
}

// Eval runs script in page context and returns its JSON result.
func (s *Session) Eval(ctx context.Context, js string) (gson.JSON, error) {
	obj, err := s.page.Context(ctx).Eval(js)
	if err != nil {
		return gson.New(nil), err
	}
	return obj.Value, nil
}

// Location reports the page's current URL, i.e. where the last
// navigation's redirect chain actually landed.
func (s *Session) Location(ctx context.Context) (string, error) {
	info, err := s.page.Context(ctx).Info()
	if err != nil {
		return "", err
	}
	return info.URL, nil
}

// BodyHTML returns the rendered innerHTML of the document body.
func (s *Session) BodyHTML(ctx context.Context) (string, error) {
	val, err := s.Eval(ctx, `() => document.querySelector('body').innerHTML`)
	if err != nil {
		return "", err
	}
	return val.Str(), nil
}

// CookiesForDomain harvests the session's cookies scoped to the given
// origin. Only meaningful after navigation has completed; cookies read
// earlier may predate the redirect chain.
func (s *Session) CookiesForDomain(ctx context.Context, originURL string) ([]cookieutil.Cookie, error) {
	ctx, span := tracer.Start(ctx, "CookiesForDomain")
	defer span.End()
	span.SetAttributes(attribute.String("origin", originURL))

	cookies, err := s.page.Context(ctx).Cookies([]string{originURL})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to read cookie jar")
		return nil, err
	}
	return cookieutil.FromNetworkCookies(cookies), nil
}
