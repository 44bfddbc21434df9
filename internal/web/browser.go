// Package web provides the browsing collaborator. Pages are rendered
// through a headless Chromium session so script-heavy sites still yield
// content, then parsed with x/net/html.
package web

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"agentflow/internal/types"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/sync/errgroup"
)

// Config controls the browser session.
type Config struct {
	Headless            bool
	NavigationTimeoutMs int
	SearchBaseURL       string
	MaxCandidates       int
	MaxHeadlines        int
	MaxBodyBytes        int
}

// DefaultConfig returns production settings.
func DefaultConfig() Config {
	return Config{
		Headless:            true,
		NavigationTimeoutMs: 30000,
		SearchBaseURL:       "https://html.duckduckgo.com/html/?q=",
		MaxCandidates:       3,
		MaxHeadlines:        10,
		MaxBodyBytes:        20000,
	}
}

var requestURLPattern = regexp.MustCompile(`https?://[^\s)\]">]+`)

// Browser implements types.WebBrowser over a shared headless Chromium
// instance. The instance is launched on first use.
type Browser struct {
	cfg  Config
	log  *zap.Logger
	http *http.Client

	mu      sync.Mutex
	browser *rod.Browser
}

// NewBrowser creates a browser collaborator. The Chromium session is not
// started until the first Browse call.
func NewBrowser(cfg Config, log *zap.Logger) *Browser {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.MaxCandidates <= 0 {
		cfg.MaxCandidates = 1
	}
	return &Browser{
		cfg:  cfg,
		log:  log,
		http: &http.Client{Timeout: time.Duration(cfg.NavigationTimeoutMs) * time.Millisecond},
	}
}

// Start launches the headless session. Safe to call more than once.
func (b *Browser) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.browser != nil {
		return nil
	}

	controlURL, err := launcher.New().Headless(b.cfg.Headless).Launch()
	if err != nil {
		return fmt.Errorf("failed to launch browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("failed to connect to browser: %w", err)
	}

	b.browser = browser
	b.log.Info("browser session started", zap.Bool("headless", b.cfg.Headless))
	return nil
}

// Close shuts down the headless session.
func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.browser == nil {
		return nil
	}
	err := b.browser.Close()
	b.browser = nil
	return err
}

// Browse resolves a request to a page. An explicit URL in the request is
// visited directly; otherwise the request is run through the search
// endpoint and the top result pages are fetched.
func (b *Browser) Browse(ctx context.Context, request string) (*types.BrowseResult, error) {
	if err := b.Start(ctx); err != nil {
		return nil, err
	}

	start := time.Now()
	if direct := requestURLPattern.FindString(request); direct != "" {
		res, err := b.browsePage(ctx, strings.TrimRight(direct, ".,;"))
		if err != nil {
			return nil, err
		}
		b.log.Info("browsed direct URL",
			zap.String("url", res.URL),
			zap.String("domain", res.Domain),
			zap.Duration("duration", time.Since(start)))
		return res, nil
	}

	res, err := b.browseSearch(ctx, request)
	if err != nil {
		return nil, err
	}
	b.log.Info("browsed via search",
		zap.String("url", res.URL),
		zap.String("domain", res.Domain),
		zap.Int("headlines", len(res.Headlines)),
		zap.Duration("duration", time.Since(start)))
	return res, nil
}

// browsePage renders a single URL and extracts its content.
func (b *Browser) browsePage(ctx context.Context, target string) (*types.BrowseResult, error) {
	doc, err := b.renderHTML(ctx, target)
	if err != nil {
		return nil, err
	}
	return &types.BrowseResult{
		URL:       target,
		Domain:    domainOf(target),
		Title:     extractTitle(doc),
		Headlines: extractHeadlines(doc, b.cfg.MaxHeadlines),
		Content:   extractBody(doc, b.cfg.MaxBodyBytes),
	}, nil
}

// browseSearch runs the request through the search endpoint, then pulls
// the top result pages in parallel and combines their content.
func (b *Browser) browseSearch(ctx context.Context, request string) (*types.BrowseResult, error) {
	searchURL := b.cfg.SearchBaseURL + url.QueryEscape(request)
	doc, err := b.renderHTML(ctx, searchURL)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	candidates := resultLinks(doc, b.cfg.SearchBaseURL, b.cfg.MaxCandidates)
	if len(candidates) == 0 {
		// No usable results; fall back to the search page itself.
		return &types.BrowseResult{
			URL:       searchURL,
			Domain:    domainOf(searchURL),
			Title:     extractTitle(doc),
			Headlines: extractHeadlines(doc, b.cfg.MaxHeadlines),
			Content:   extractBody(doc, b.cfg.MaxBodyBytes),
		}, nil
	}

	pages := make([]*types.BrowseResult, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	for i, link := range candidates {
		g.Go(func() error {
			page, err := b.fetchCandidate(gctx, link)
			if err != nil {
				b.log.Warn("candidate fetch failed", zap.String("url", link), zap.Error(err))
				return nil
			}
			pages[i] = page
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var primary *types.BrowseResult
	var sb strings.Builder
	for _, page := range pages {
		if page == nil || page.Content == "" {
			continue
		}
		if primary == nil {
			primary = page
		}
		fmt.Fprintf(&sb, "## %s (%s)\n%s\n\n", page.Title, page.URL, page.Content)
		if sb.Len() >= b.cfg.MaxBodyBytes {
			break
		}
	}
	if primary == nil {
		return nil, fmt.Errorf("no search result pages yielded content for %q", request)
	}

	content := sb.String()
	if len(content) > b.cfg.MaxBodyBytes {
		content = content[:b.cfg.MaxBodyBytes]
	}
	return &types.BrowseResult{
		URL:       primary.URL,
		Domain:    primary.Domain,
		Title:     primary.Title,
		Headlines: primary.Headlines,
		Content:   content,
	}, nil
}

// renderHTML loads a URL in the headless session and returns its parsed
// DOM after the page settles.
func (b *Browser) renderHTML(ctx context.Context, target string) (*html.Node, error) {
	b.mu.Lock()
	browser := b.browser
	b.mu.Unlock()

	page, err := browser.Page(proto.TargetCreateTarget{URL: target})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", target, err)
	}
	defer page.Close()

	page = page.Context(ctx).Timeout(time.Duration(b.cfg.NavigationTimeoutMs) * time.Millisecond)
	if err := page.WaitLoad(); err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", target, err)
	}

	raw, err := page.HTML()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", target, err)
	}

	doc, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", target, err)
	}
	return doc, nil
}

// fetchCandidate retrieves a result page with a plain HTTP GET. Result
// pages rarely need rendering and plain fetches keep candidate fan-out
// off the single Chromium session.
func (b *Browser) fetchCandidate(ctx context.Context, target string) (*types.BrowseResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; agentflow/1.0)")

	resp, err := b.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d from %s", resp.StatusCode, target)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}

	doc, err := html.Parse(strings.NewReader(string(body)))
	if err != nil {
		return nil, err
	}
	return &types.BrowseResult{
		URL:       target,
		Domain:    domainOf(target),
		Title:     extractTitle(doc),
		Headlines: extractHeadlines(doc, b.cfg.MaxHeadlines),
		Content:   extractBody(doc, b.cfg.MaxBodyBytes),
	}, nil
}

// resultLinks pulls external result URLs from a search page, unwrapping
// redirect links and skipping the search engine's own domain.
func resultLinks(doc *html.Node, searchBase string, max int) []string {
	searchDomain := domainOf(searchBase)
	var out []string
	for _, link := range extractLinks(doc, max*10) {
		link = unwrapRedirect(link)
		d := domainOf(link)
		if d == "" || d == searchDomain || strings.Contains(d, "duckduckgo") {
			continue
		}
		out = append(out, link)
		if len(out) >= max {
			break
		}
	}
	return out
}

// unwrapRedirect resolves search-engine redirect links that carry the
// destination in a uddg query parameter.
func unwrapRedirect(link string) string {
	u, err := url.Parse(link)
	if err != nil {
		return link
	}
	if dest := u.Query().Get("uddg"); dest != "" {
		if decoded, err := url.QueryUnescape(dest); err == nil {
			return decoded
		}
	}
	return link
}

// domainOf returns the host of a URL without a www prefix.
func domainOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(u.Hostname(), "www.")
}
