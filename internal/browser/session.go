// Package browser owns the Chrome lifecycle and the element-level primitives
// the scraper drives the page with. Sessions are created per scrape run and
// torn down unconditionally; handles to page nodes rot as the feed
// re-renders, so lookups go through the Locator's retry cascades.
package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"go.uber.org/zap"

	"leadscraper/internal/config"
	"leadscraper/internal/proxy"
)

// stealthScript runs before every document load and hides the usual
// automation tells.
const stealthScript = `
Object.defineProperty(navigator, 'webdriver', {get: () => undefined});
Object.defineProperty(navigator, 'languages', {get: () => ['en-US', 'en']});
Object.defineProperty(navigator, 'plugins', {get: () => [1, 2, 3, 4, 5]});
window.chrome = window.chrome || {runtime: {}};
if (window.navigator.permissions && window.navigator.permissions.query) {
	const originalQuery = window.navigator.permissions.query.bind(window.navigator.permissions);
	window.navigator.permissions.query = (parameters) => (
		parameters && parameters.name === 'notifications'
			? Promise.resolve({state: Notification.permission})
			: originalQuery(parameters)
	);
}
`

// Session owns one Chrome instance: the exec allocator, the tab context and
// the timeouts every page interaction inherits.
type Session struct {
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	cfg         *config.Config
	logger      *zap.Logger
	closeOnce   sync.Once
}

// Open launches a Chrome instance with the anti-detection profile and
// installs the stealth init script. The returned session must be closed by
// the caller; Open cleans up after itself when launching fails.
func Open(ctx context.Context, cfg *config.Config, pm *proxy.Manager, logger *zap.Logger) (*Session, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-infobars", true),
		chromedp.Flag("disable-notifications", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-popup-blocking", true),
		chromedp.Flag("lang", "en-US"),
		chromedp.WindowSize(cfg.WindowWidth, cfg.WindowHeight),
	)
	if ua := pm.GetUserAgent(); ua != "" {
		opts = append(opts, chromedp.UserAgent(ua))
	}
	if p := cfg.ProxyServer; p != "" {
		opts = append(opts, chromedp.ProxyServer(p))
	} else if p := pm.GetProxy(); p != "" {
		opts = append(opts, chromedp.ProxyServer(p))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	s := &Session{
		ctx:         tabCtx,
		cancel:      tabCancel,
		allocCancel: allocCancel,
		cfg:         cfg,
		logger:      logger,
	}

	// First Run starts the browser process; failures here are environment
	// errors and propagate.
	err := s.run(ctx, cfg.PageLoad(),
		network.Enable(),
		network.SetExtraHTTPHeaders(network.Headers{"Accept-Language": "en-US,en;q=0.9"}),
		emulation.SetDeviceMetricsOverride(int64(cfg.WindowWidth), int64(cfg.WindowHeight), 1, false),
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(stealthScript).Do(ctx)
			return err
		}),
	)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("launching browser: %w", err)
	}
	return s, nil
}

// Close tears down the tab and the browser process. Safe to call more than
// once and after a failed Open.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		if s.allocCancel != nil {
			s.allocCancel()
		}
	})
}

// run executes chromedp actions on the tab under a timeout, propagating
// cancellation from the caller's context.
func (s *Session) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	runCtx, cancel := context.WithTimeout(s.ctx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(runCtx, actions...)
}

// Navigate loads url and waits for the load event.
func (s *Session) Navigate(ctx context.Context, url string) error {
	if err := s.run(ctx, s.cfg.PageLoad(), chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigating to %s: %w", url, err)
	}
	return nil
}

// Reload refreshes the current page.
func (s *Session) Reload(ctx context.Context) error {
	if err := s.run(ctx, s.cfg.PageLoad(), chromedp.Reload()); err != nil {
		return fmt.Errorf("reloading page: %w", err)
	}
	return nil
}

// Eval runs a JavaScript expression, unmarshaling its result into out when
// out is non-nil.
func (s *Session) Eval(ctx context.Context, js string, out any, timeout time.Duration) error {
	if err := s.run(ctx, timeout, chromedp.Evaluate(js, out)); err != nil {
		return wrapDOM("evaluating script", err)
	}
	return nil
}

// CaptureHTML snapshots the outer HTML of the first node matching sel.
func (s *Session) CaptureHTML(ctx context.Context, sel string, timeout time.Duration) (string, error) {
	var html string
	if err := s.run(ctx, timeout, chromedp.OuterHTML(sel, &html, chromedp.ByQuery)); err != nil {
		return "", wrapDOM("capturing html for "+sel, err)
	}
	return html, nil
}

// TypeInto clears the matching input and types text into it.
func (s *Session) TypeInto(ctx context.Context, sel, text string, timeout time.Duration) error {
	err := s.run(ctx, timeout,
		chromedp.WaitVisible(sel, chromedp.ByQuery),
		chromedp.Clear(sel, chromedp.ByQuery),
		chromedp.SendKeys(sel, text, chromedp.ByQuery),
	)
	if err != nil {
		return wrapDOM("typing into "+sel, err)
	}
	return nil
}

// PressEnter sends a return keystroke to the focused element.
func (s *Session) PressEnter(ctx context.Context) error {
	if err := s.run(ctx, 5*time.Second, chromedp.KeyEvent(kb.Enter)); err != nil {
		return wrapDOM("pressing enter", err)
	}
	return nil
}

// FindAll resolves sel into element handles, waiting up to timeout for at
// least one match. A timeout maps to ErrNotFound; devtools staleness maps
// to ErrStale.
func (s *Session) FindAll(ctx context.Context, sel string, timeout time.Duration) ([]Element, error) {
	var nodes []*cdp.Node
	err := s.run(ctx, timeout, chromedp.Nodes(sel, &nodes, chromedp.ByQueryAll))
	if err != nil {
		if IsTimeout(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, sel)
		}
		return nil, wrapDOM("querying "+sel, err)
	}
	els := make([]Element, 0, len(nodes))
	for _, n := range nodes {
		els = append(els, &nodeElement{sess: s, sel: sel, node: n})
	}
	return els, nil
}

// outerHTMLByNode snapshots a node's outer HTML through the DOM domain.
func (s *Session) outerHTMLByNode(ctx context.Context, id cdp.NodeID, timeout time.Duration) (string, error) {
	var html string
	err := s.run(ctx, timeout, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		html, err = dom.GetOuterHTML().WithNodeID(id).Do(ctx)
		return err
	}))
	if err != nil {
		return "", wrapDOM("reading node html", err)
	}
	return html, nil
}

// wrapDOM folds devtools errors into the sentinel taxonomy.
func wrapDOM(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsStale(err) {
		return fmt.Errorf("%s: %w", op, ErrStale)
	}
	return fmt.Errorf("%s: %w", op, err)
}
