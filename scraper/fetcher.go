package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"golang.org/x/time/rate"
)

// Fetcher retrieves raw page content. Implementations own the transport; the
// extractor only ever sees the returned content.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (string, error)
}

// FetchError carries the HTTP status of a failed fetch (0 when the request
// never got a response).
type FetchError struct {
	URL    string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("fetch %s: status %d", e.URL, e.Status)
	}
	return fmt.Sprintf("fetch %s (status %d): %v", e.URL, e.Status, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// HTTPFetcher fetches static HTML with colly. Requests to the same host are
// spaced by a token bucket so a long product list does not hammer one shop.
type HTTPFetcher struct {
	userAgent string
	timeout   time.Duration
	perHost   rate.Limit
	burst     int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewHTTPFetcher(userAgent string, timeout time.Duration) *HTTPFetcher {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPFetcher{
		userAgent: userAgent,
		timeout:   timeout,
		perHost:   rate.Every(time.Second),
		burst:     2,
		limiters:  make(map[string]*rate.Limiter),
	}
}

// SetHostRate overrides the per-host request rate.
func (f *HTTPFetcher) SetHostRate(per time.Duration, burst int) {
	if per <= 0 || burst <= 0 {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.perHost = rate.Every(per)
	f.burst = burst
	f.limiters = make(map[string]*rate.Limiter)
}

// Fetch performs a single GET. Transport errors, timeouts and non-2xx
// statuses are returned as *FetchError; nothing is retried.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	target, err := normalizeURL(rawURL)
	if err != nil {
		return "", &FetchError{URL: rawURL, Err: err}
	}
	if err := f.limiterFor(hostKey(target)).Wait(ctx); err != nil {
		return "", &FetchError{URL: target, Err: err}
	}

	c := f.newCollector(ctx)

	var (
		body   []byte
		status int
		reqErr error
	)
	c.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		body = append([]byte(nil), r.Body...)
	})
	c.OnError(func(r *colly.Response, err error) {
		if r != nil {
			status = r.StatusCode
		}
		reqErr = err
	})

	hdr := http.Header{}
	hdr.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")
	hdr.Set("Accept-Language", "pt-BR,pt;q=0.9,en;q=0.8")

	if err := c.Request(http.MethodGet, target, nil, colly.NewContext(), hdr); err != nil && reqErr == nil {
		reqErr = err
	}
	if ctx.Err() != nil {
		return "", &FetchError{URL: target, Status: status, Err: ctx.Err()}
	}
	if reqErr != nil {
		return "", &FetchError{URL: target, Status: status, Err: reqErr}
	}
	if status < 200 || status > 299 {
		return "", &FetchError{URL: target, Status: status}
	}
	return string(body), nil
}

func (f *HTTPFetcher) newCollector(ctx context.Context) *colly.Collector {
	c := colly.NewCollector(
		colly.UserAgent(f.userAgent),
		colly.AllowURLRevisit(),
		colly.StdlibContext(ctx),
	)
	c.SetRequestTimeout(f.timeout)

	c.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
		}
	})
	return c
}

func (f *HTTPFetcher) limiterFor(host string) *rate.Limiter {
	f.mu.Lock()
	defer f.mu.Unlock()
	if l, ok := f.limiters[host]; ok {
		return l
	}
	l := rate.NewLimiter(f.perHost, f.burst)
	f.limiters[host] = l
	return l
}

func normalizeURL(rawURL string) (string, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return "", errors.New("empty url")
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" {
		u, err = url.Parse("https://" + rawURL)
		if err != nil {
			return "", err
		}
	}
	if u.Host == "" {
		return "", fmt.Errorf("url %q has no host", rawURL)
	}
	return u.String(), nil
}

func hostKey(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "default"
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}
