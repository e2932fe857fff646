// Package fetch retrieves full article text over HTTP for sources whose
// ingestion policy asks for it.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ppiankov/corroborate/internal/cache"
	"github.com/ppiankov/corroborate/internal/extract"
	"github.com/ppiankov/corroborate/internal/logging"
	"github.com/ppiankov/corroborate/internal/merge"
	"github.com/ppiankov/corroborate/internal/model"
	"github.com/ppiankov/corroborate/internal/util"
	"github.com/ppiankov/corroborate/internal/worker"
)

// ErrTooShort is returned when the extracted text is below the minimum length
var ErrTooShort = errors.New("extraction returned empty or too short")

// Fetcher downloads article pages and extracts their text. It implements
// merge.ArticleFetcher; failures that retrying cannot fix wrap merge.ErrPermanent.
type Fetcher struct {
	httpClient *http.Client
	userAgent  string
	maxBytes   int64
	minLength  int

	robots  *RobotsChecker
	limiter *worker.Limiter
	store   *cache.ArticleStore
	log     *logging.Logger
	now     func() time.Time
}

var _ merge.ArticleFetcher = (*Fetcher)(nil)

// New creates a fetcher. store may be nil to disable caching.
func New(cfg model.HTTPConfig, minLength int, store *cache.ArticleStore) *Fetcher {
	client := &http.Client{
		Timeout:   cfg.Timeout,
		Transport: util.NewTransport(cfg.HTTPProxy, cfg.HTTPSProxy, cfg.NoProxy),
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return fmt.Errorf("stopped after 5 redirects")
			}
			return nil
		},
	}

	maxBytes := cfg.MaxBodyBytes
	if maxBytes <= 0 {
		maxBytes = 5_000_000
	}

	f := &Fetcher{
		httpClient: client,
		userAgent:  cfg.UserAgent,
		maxBytes:   maxBytes,
		minLength:  minLength,
		limiter:    worker.NewLimiter(cfg.RequestsPerSecond, cfg.BurstSize),
		store:      store,
		log:        logging.Nop(),
		now:        time.Now,
	}
	if cfg.RespectRobots {
		f.robots = NewRobotsChecker(client, cfg.UserAgent)
	}
	return f
}

// WithLogger sets the logger used for non-fatal problems such as cache writes
func (f *Fetcher) WithLogger(log *logging.Logger) *Fetcher {
	if log != nil {
		f.log = log
	}
	return f
}

// Fetch returns the extracted text of the article at url
func (f *Fetcher) Fetch(ctx context.Context, url string) (string, error) {
	if cached, ok := f.store.Get(url); ok {
		return cached.Text, nil
	}

	if f.robots != nil {
		allowed, delay, err := f.robots.CanFetch(ctx, url)
		if err != nil {
			return "", fmt.Errorf("%w: %v", merge.ErrPermanent, err)
		}
		if !allowed {
			return "", fmt.Errorf("%w: disallowed by robots.txt", merge.ErrPermanent)
		}
		f.limiter.SlowHost(url, delay)
	}

	if err := f.limiter.Wait(ctx, url); err != nil {
		return "", err
	}

	page, finalURL, err := f.download(ctx, url)
	if err != nil {
		return "", err
	}

	text, err := extract.ArticleText(page)
	if err != nil {
		return "", fmt.Errorf("%w: parse html: %v", merge.ErrPermanent, err)
	}
	text = strings.TrimSpace(text)
	if text == "" || utf8.RuneCountInString(text) <= f.minLength {
		return "", fmt.Errorf("%w: %w", merge.ErrPermanent, ErrTooShort)
	}

	if err := f.store.Put(cache.Article{URL: url, FinalURL: finalURL, Text: text, FetchedAt: f.now()}); err != nil {
		f.log.Debug("article cache write failed", "url", url, "error", err)
	}
	return text, nil
}

func (f *Fetcher) download(ctx context.Context, url string) (string, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", "", fmt.Errorf("%w: create request: %v", merge.ErrPermanent, err)
	}

	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("fetch: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := fmt.Errorf("unexpected status: %d", resp.StatusCode)
		if retryableStatus(resp.StatusCode) {
			return "", "", err
		}
		return "", "", fmt.Errorf("%w: %v", merge.ErrPermanent, err)
	}

	if ct := resp.Header.Get("Content-Type"); ct != "" {
		mediaType, _, _ := mime.ParseMediaType(ct)
		if mediaType != "text/html" && mediaType != "application/xhtml+xml" {
			return "", "", fmt.Errorf("%w: unsupported content type %q", merge.ErrPermanent, mediaType)
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes))
	if err != nil {
		return "", "", fmt.Errorf("read body: %w", err)
	}

	return string(body), resp.Request.URL.String(), nil
}

// retryableStatus reports whether a failed status is worth another attempt
func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code == http.StatusRequestTimeout || code >= 500
}
