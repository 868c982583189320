package scheduler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"pricewatch/models"
	"pricewatch/scraper"
)

type stubSource struct {
	products []models.Product
	err      error
}

func (s *stubSource) Load(context.Context) ([]models.Product, error) {
	return s.products, s.err
}

// pageFetcher serves canned pages by URL; unknown URLs fail.
type pageFetcher struct {
	mu    sync.Mutex
	pages map[string]string
	errs  map[string]error
	calls []string
	after func(url string)
}

func (f *pageFetcher) Fetch(_ context.Context, url string) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, url)
	f.mu.Unlock()
	if f.after != nil {
		defer f.after(url)
	}
	if err, ok := f.errs[url]; ok {
		return "", err
	}
	if page, ok := f.pages[url]; ok {
		return page, nil
	}
	return "", &scraper.FetchError{URL: url, Status: http.StatusNotFound}
}

type recordingNotifier struct {
	mu     sync.Mutex
	alerts []models.Alert
	err    error
}

func (n *recordingNotifier) Send(_ context.Context, a models.Alert) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, a)
	return n.err
}

func metaPage(price string) string {
	return fmt.Sprintf(`<html><head><meta itemprop="price" content="%s"></head><body></body></html>`, price)
}

func product(t *testing.T, name, url, desired string) models.Product {
	t.Helper()
	p, err := models.NewProduct(name, url, decimal.RequireFromString(desired))
	require.NoError(t, err)
	return p
}

func newTestRunner(f scraper.Fetcher, n *recordingNotifier, opts ...RunnerOption) *Runner {
	opts = append([]RunnerOption{WithProductDelay(0)}, opts...)
	return NewRunner(nil, f, scraper.NewPriceExtractor(nil), n, zap.NewNop(), opts...)
}

func TestRun_AlertWhenPriceBelowDesired(t *testing.T) {
	f := &pageFetcher{pages: map[string]string{"https://x/widget": metaPage("89.90")}}
	n := &recordingNotifier{}

	summary := newTestRunner(f, n).Run(context.Background(), []models.Product{
		product(t, "Widget", "https://x/widget", "100"),
	})

	assert.Equal(t, 1, summary.Checked)
	assert.Equal(t, 1, summary.AlertsSent)
	assert.Equal(t, 1, summary.PricesFound)
	require.Len(t, n.alerts, 1)
	assert.Equal(t, "Widget", n.alerts[0].Name)
	assert.Equal(t, "https://x/widget", n.alerts[0].URL)
	assert.True(t, n.alerts[0].Price.Equal(decimal.RequireFromString("89.90")))
	assert.True(t, n.alerts[0].DesiredPrice.Equal(decimal.NewFromInt(100)))
}

func TestRun_EqualPriceAlerts(t *testing.T) {
	f := &pageFetcher{pages: map[string]string{"https://x/a": metaPage("100.00")}}
	n := &recordingNotifier{}

	summary := newTestRunner(f, n).Run(context.Background(), []models.Product{
		product(t, "A", "https://x/a", "100"),
	})

	assert.Equal(t, 1, summary.AlertsSent)
}

func TestRun_StrictThreshold(t *testing.T) {
	f := &pageFetcher{pages: map[string]string{"https://x/a": metaPage("100.00")}}
	n := &recordingNotifier{}

	summary := newTestRunner(f, n, WithStrictThreshold(true)).Run(context.Background(), []models.Product{
		product(t, "A", "https://x/a", "100"),
	})

	assert.Equal(t, 1, summary.Checked)
	assert.Equal(t, 0, summary.AlertsSent)
	assert.Empty(t, n.alerts)
}

func TestRun_PriceAboveDesired(t *testing.T) {
	f := &pageFetcher{pages: map[string]string{"https://x/a": metaPage("150.00")}}
	n := &recordingNotifier{}

	summary := newTestRunner(f, n).Run(context.Background(), []models.Product{
		product(t, "A", "https://x/a", "100"),
	})

	assert.Equal(t, 1, summary.PricesFound)
	assert.Equal(t, 0, summary.AlertsSent)
}

func TestRun_FetchTimeoutIsAbsorbed(t *testing.T) {
	f := &pageFetcher{
		pages: map[string]string{"https://x/b": metaPage("50")},
		errs:  map[string]error{"https://x/a": &scraper.FetchError{URL: "https://x/a", Err: context.DeadlineExceeded}},
	}
	n := &recordingNotifier{}

	var summary models.Summary
	require.NotPanics(t, func() {
		summary = newTestRunner(f, n).Run(context.Background(), []models.Product{
			product(t, "A", "https://x/a", "100"),
			product(t, "B", "https://x/b", "100"),
		})
	})

	assert.Equal(t, 2, summary.Checked)
	assert.Equal(t, 1, summary.Misses)
	assert.Equal(t, 1, summary.AlertsSent)
	assert.Equal(t, []string{"https://x/a", "https://x/b"}, f.calls)
}

func TestRun_ExtractionMissAndImplausiblePrice(t *testing.T) {
	f := &pageFetcher{pages: map[string]string{
		"https://x/empty": "<html><body><p>nothing here</p></body></html>",
		"https://x/tiny":  metaPage("0.01"),
		"https://x/bot":   "<html><head><title>Are you a robot?</title></head><body>captcha</body></html>",
	}}
	n := &recordingNotifier{}

	r := newTestRunner(f, n, WithBotDetector(scraper.NewBotDetector()))
	summary := r.Run(context.Background(), []models.Product{
		product(t, "Empty", "https://x/empty", "100"),
		product(t, "Tiny", "https://x/tiny", "100"),
		product(t, "Bot", "https://x/bot", "100"),
	})

	assert.Equal(t, 3, summary.Checked)
	assert.Equal(t, 3, summary.Misses)
	assert.Equal(t, 0, summary.AlertsSent)
	assert.Empty(t, n.alerts)
}

func TestRun_NotifyFailureDoesNotStopPass(t *testing.T) {
	f := &pageFetcher{pages: map[string]string{
		"https://x/a": metaPage("20"),
		"https://x/b": metaPage("30"),
	}}
	n := &recordingNotifier{err: errors.New("telegram down")}

	summary := newTestRunner(f, n).Run(context.Background(), []models.Product{
		product(t, "A", "https://x/a", "100"),
		product(t, "B", "https://x/b", "100"),
	})

	assert.Equal(t, 2, summary.Checked)
	assert.Equal(t, 0, summary.AlertsSent)
	assert.Equal(t, 2, summary.NotifyFailures)
	assert.Len(t, n.alerts, 2)
}

func TestRun_NoProducts(t *testing.T) {
	n := &recordingNotifier{}
	summary := newTestRunner(&pageFetcher{}, n).Run(context.Background(), nil)

	assert.Equal(t, 0, summary.Checked)
	assert.Equal(t, 0, summary.AlertsSent)
	assert.False(t, summary.Cancelled)
	assert.False(t, summary.FinishedAt.IsZero())
}

func TestRun_CancelDuringDelay(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := &pageFetcher{
		pages: map[string]string{"https://x/a": metaPage("200")},
		after: func(string) { cancel() },
	}
	n := &recordingNotifier{}
	r := newTestRunner(f, n, WithProductDelay(time.Minute))

	start := time.Now()
	summary := r.Run(ctx, []models.Product{
		product(t, "A", "https://x/a", "100"),
		product(t, "B", "https://x/b", "100"),
		product(t, "C", "https://x/c", "100"),
	})

	assert.Less(t, time.Since(start), 10*time.Second)
	assert.True(t, summary.Cancelled)
	assert.Equal(t, 1, summary.Checked)
	assert.Len(t, f.calls, 1)
}

func TestRun_DelaySkippedAfterLastProduct(t *testing.T) {
	f := &pageFetcher{pages: map[string]string{"https://x/a": metaPage("200")}}
	r := newTestRunner(f, &recordingNotifier{}, WithProductDelay(time.Minute))

	start := time.Now()
	summary := r.Run(context.Background(), []models.Product{product(t, "A", "https://x/a", "100")})

	assert.Less(t, time.Since(start), 10*time.Second)
	assert.Equal(t, 1, summary.Checked)
	assert.False(t, summary.Cancelled)
}

func TestRunOnce_SourceUnavailable(t *testing.T) {
	src := &stubSource{err: errors.New("sheet not reachable")}
	r := NewRunner(src, &pageFetcher{}, scraper.NewPriceExtractor(nil), &recordingNotifier{}, zap.NewNop())

	summary, err := r.RunOnce(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSourceUnavailable)
	assert.Equal(t, 0, summary.Checked)
}

func TestRunOnce_LoadsFromSource(t *testing.T) {
	src := &stubSource{products: []models.Product{product(t, "Widget", "https://x/widget", "100")}}
	f := &pageFetcher{pages: map[string]string{"https://x/widget": metaPage("89.90")}}
	n := &recordingNotifier{}
	r := NewRunner(src, f, scraper.NewPriceExtractor(nil), n, zap.NewNop(), WithProductDelay(0))

	summary, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Checked)
	assert.Equal(t, 1, summary.AlertsSent)
}

func TestRun_WithHTTPFetcher(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/widget":
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte(metaPage("89.90")))
		case "/slow":
			time.Sleep(2 * time.Second)
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	n := &recordingNotifier{}
	fetcher := scraper.NewHTTPFetcher("pricewatch-test", 500*time.Millisecond)
	r := NewRunner(nil, fetcher, scraper.NewPriceExtractor(nil), n, zap.NewNop(), WithProductDelay(0))

	summary := r.Run(context.Background(), []models.Product{
		product(t, "Slow", server.URL+"/slow", "100"),
		product(t, "Missing", server.URL+"/missing", "100"),
		product(t, "Widget", server.URL+"/widget", "100"),
	})

	assert.Equal(t, 3, summary.Checked)
	assert.Equal(t, 1, summary.AlertsSent)
	assert.Equal(t, 2, summary.Misses)
	require.Len(t, n.alerts, 1)
	assert.Equal(t, "Widget", n.alerts[0].Name)
}
