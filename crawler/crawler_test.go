package crawler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aluiziolira/go-scrape-catalogue/config"
	"github.com/aluiziolira/go-scrape-catalogue/models"
	"github.com/aluiziolira/go-scrape-catalogue/render"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRenderer struct {
	mu       sync.Mutex
	pages    map[string]string
	failures map[string]error
	notReady bool
	loads    []string
	closed   int
}

func newFakeRenderer() *fakeRenderer {
	return &fakeRenderer{
		pages:    make(map[string]string),
		failures: make(map[string]error),
	}
}

func (f *fakeRenderer) Load(_ context.Context, url string) (render.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads = append(f.loads, url)

	if err, ok := f.failures[url]; ok {
		return nil, &render.LoadError{URL: url, Err: err}
	}
	body, ok := f.pages[url]
	if !ok {
		return nil, &render.LoadError{URL: url, StatusCode: 404, Kind: render.KindNotFound, Err: errors.New("Not Found")}
	}
	doc, err := render.ParseHTML(url, body)
	if err != nil {
		return nil, err
	}
	if f.notReady {
		return notReadyDocument{doc}, nil
	}
	return doc, nil
}

func (f *fakeRenderer) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

type notReadyDocument struct {
	render.Document
}

func (notReadyDocument) WaitReady(context.Context, string, time.Duration) error {
	return render.ErrNotReady
}

func factoryFor(r render.Renderer, acquired *int) render.Factory {
	return func(context.Context) (render.Renderer, error) {
		if acquired != nil {
			*acquired++
		}
		return r, nil
	}
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.SettleDelay = 0
	cfg.ReadyTimeout = 0
	return cfg
}

func newTestCrawler(t *testing.T, cfg *config.Config, r render.Renderer) *Crawler {
	t.Helper()
	c, err := New(cfg, factoryFor(r, nil))
	require.NoError(t, err)
	return c
}

type bookSpec struct {
	title  string
	rating string
}

func catalogPage(books []bookSpec, next string) string {
	var b strings.Builder
	b.WriteString(`<html><body><section><ol class="row">`)
	for _, book := range books {
		b.WriteString(`<li><article class="product_pod">`)
		if book.rating != "" {
			fmt.Fprintf(&b, `<p class="star-rating %s"></p>`, book.rating)
		}
		fmt.Fprintf(&b, `<h3><a href="%s/index.html" title="%s">%s</a></h3>`, strings.ToLower(book.title), book.title, book.title)
		b.WriteString(`<div class="product_price"><p class="price_color">£10.00</p>`)
		b.WriteString(`<p class="instock availability">  In stock  </p></div>`)
		b.WriteString(`</article></li>`)
	}
	b.WriteString(`</ol>`)
	if next != "" {
		fmt.Fprintf(&b, `<ul class="pager"><li class="next"><a href="%s">next</a></li></ul>`, next)
	}
	b.WriteString(`</section></body></html>`)
	return b.String()
}

func twoPageCatalog() *fakeRenderer {
	r := newFakeRenderer()
	r.pages["http://example.test/catalogue/page-1.html"] = catalogPage([]bookSpec{
		{title: "A", rating: "Three"},
		{title: "B"},
	}, "page-2.html")
	r.pages["http://example.test/catalogue/page-2.html"] = catalogPage([]bookSpec{
		{title: "C", rating: "Five"},
	}, "")
	return r
}

func titles(items []*models.Item) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, item.Title.OrElse(models.Placeholder))
	}
	return out
}

func TestRunTwoPageCatalog(t *testing.T) {
	r := twoPageCatalog()
	acquired := 0
	c, err := New(testConfig(), factoryFor(r, &acquired))
	require.NoError(t, err)

	result, err := c.Run(context.Background(), "http://example.test/catalogue/page-1.html")
	require.NoError(t, err)

	require.Len(t, result.Items, 3)
	assert.Equal(t, []string{"A", "B", "C"}, titles(result.Items))

	rating, ok := result.Items[0].Rating.Get()
	assert.True(t, ok)
	assert.Equal(t, 3, rating)
	assert.False(t, result.Items[1].Rating.Valid())
	rating, ok = result.Items[2].Rating.Get()
	assert.True(t, ok)
	assert.Equal(t, 5, rating)

	assert.Equal(t, "http://example.test/catalogue/a/index.html", result.Items[0].Link.OrElse(""))
	assert.Equal(t, "In stock", result.Items[2].Availability.OrElse(""))

	assert.Equal(t, 2, result.PageCount)
	assert.Equal(t, models.StopNoNextPage, result.StopReason)
	assert.Equal(t, 1, result.FieldMisses["rating"])
	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, []string{
		"http://example.test/catalogue/page-1.html",
		"http://example.test/catalogue/page-2.html",
	}, r.loads)

	assert.Equal(t, 1, acquired)
	assert.Equal(t, 1, r.closed)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.Metrics.PagesLoadedTotal))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.Metrics.ItemsExtractedTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Metrics.FieldMissesTotal.WithLabelValues("rating")))
}

func TestRunIsDeterministic(t *testing.T) {
	cfg := testConfig()

	first, err := newTestCrawler(t, cfg, twoPageCatalog()).Run(context.Background(), "http://example.test/catalogue/page-1.html")
	require.NoError(t, err)
	second, err := newTestCrawler(t, cfg, twoPageCatalog()).Run(context.Background(), "http://example.test/catalogue/page-1.html")
	require.NoError(t, err)

	require.Equal(t, len(first.Items), len(second.Items))
	for i := range first.Items {
		assert.Equal(t, first.Items[i].Row(), second.Items[i].Row())
	}
}

func TestRunLongChainTerminates(t *testing.T) {
	r := newFakeRenderer()
	const pages = 30
	for i := 1; i <= pages; i++ {
		next := ""
		if i < pages {
			next = fmt.Sprintf("page-%d.html", i+1)
		}
		r.pages[fmt.Sprintf("http://example.test/page-%d.html", i)] = catalogPage([]bookSpec{{title: fmt.Sprintf("Book%d", i), rating: "One"}}, next)
	}

	cfg := testConfig()
	cfg.MaxPages = 0
	result, err := newTestCrawler(t, cfg, r).Run(context.Background(), "http://example.test/page-1.html")
	require.NoError(t, err)

	assert.Equal(t, pages, result.PageCount)
	assert.Len(t, result.Items, pages)
	assert.Equal(t, "Book1", result.Items[0].Title.OrElse(""))
	assert.Equal(t, "Book30", result.Items[pages-1].Title.OrElse(""))
	assert.Equal(t, models.StopNoNextPage, result.StopReason)
}

func TestRunEmptyFinalPage(t *testing.T) {
	r := newFakeRenderer()
	r.pages["http://example.test/page-1.html"] = catalogPage([]bookSpec{{title: "A", rating: "Two"}}, "page-2.html")
	r.pages["http://example.test/page-2.html"] = `<html><body><p>oops</p>`

	result, err := newTestCrawler(t, testConfig(), r).Run(context.Background(), "http://example.test/page-1.html")
	require.NoError(t, err)
	assert.Equal(t, 2, result.PageCount)
	assert.Equal(t, []string{"A"}, titles(result.Items))
}

func TestRunStartURLLoadFailure(t *testing.T) {
	r := newFakeRenderer()
	r.failures["http://example.test/"] = errors.New("dial tcp: connection refused")

	c := newTestCrawler(t, testConfig(), r)
	result, err := c.Run(context.Background(), "http://example.test/")

	require.Error(t, err)
	assert.Nil(t, result)
	assert.ErrorIs(t, err, render.ErrPageLoad)

	var crawlErr *CrawlError
	require.ErrorAs(t, err, &crawlErr)
	assert.Equal(t, 1, crawlErr.Page)
	assert.Equal(t, "http://example.test/", crawlErr.URL)

	assert.Equal(t, 1, r.closed)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Metrics.ErrorsTotal.WithLabelValues("other")))
	assert.Zero(t, testutil.ToFloat64(c.Metrics.PagesLoadedTotal))
}

func TestRunMidCrawlFailureDropsPartialRecords(t *testing.T) {
	r := newFakeRenderer()
	r.pages["http://example.test/page-1.html"] = catalogPage([]bookSpec{{title: "A"}}, "page-2.html")

	c := newTestCrawler(t, testConfig(), r)
	result, err := c.Run(context.Background(), "http://example.test/page-1.html")

	require.Error(t, err)
	assert.Nil(t, result)

	var crawlErr *CrawlError
	require.ErrorAs(t, err, &crawlErr)
	assert.Equal(t, 2, crawlErr.Page)
	assert.Equal(t, "not_found", render.ErrorTypeLabel(err))
	assert.Equal(t, 1, r.closed)
}

func TestRunSelfReferencingNextLink(t *testing.T) {
	const self = "http://example.test/page-1.html"

	t.Run("cycle guard stops after first page", func(t *testing.T) {
		r := newFakeRenderer()
		r.pages[self] = catalogPage([]bookSpec{{title: "Loop", rating: "Four"}}, "page-1.html#top")

		result, err := newTestCrawler(t, testConfig(), r).Run(context.Background(), self)
		require.NoError(t, err)
		assert.Equal(t, 1, result.PageCount)
		assert.Equal(t, models.StopCycleDetected, result.StopReason)
		assert.Len(t, r.loads, 1)
	})

	t.Run("page cap bounds iterations without cycle guard", func(t *testing.T) {
		r := newFakeRenderer()
		r.pages[self] = catalogPage([]bookSpec{{title: "Loop", rating: "Four"}}, "page-1.html")

		cfg := testConfig()
		cfg.VisitedCacheSize = 0
		cfg.MaxPages = 5

		result, err := newTestCrawler(t, cfg, r).Run(context.Background(), self)
		require.NoError(t, err)
		assert.Equal(t, 5, result.PageCount)
		assert.Equal(t, models.StopMaxPages, result.StopReason)
		assert.Len(t, result.Items, 5)
		assert.Len(t, r.loads, 5)
		assert.Equal(t, 1, r.closed)
	})
}

func TestRunReadinessFallback(t *testing.T) {
	r := twoPageCatalog()
	r.notReady = true

	cfg := testConfig()
	cfg.SettleDelay = 250 * time.Millisecond
	c := newTestCrawler(t, cfg, r)

	var slept []time.Duration
	c.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	result, err := c.Run(context.Background(), "http://example.test/catalogue/page-1.html")
	require.NoError(t, err)
	assert.Len(t, result.Items, 3)
	assert.Equal(t, 2, result.ReadinessFallbacks)
	assert.Equal(t, []time.Duration{250 * time.Millisecond, 250 * time.Millisecond}, slept)
	assert.Equal(t, 2.0, testutil.ToFloat64(c.Metrics.ReadinessFallbacks))
}

func TestRunCanceledContextReleasesRenderer(t *testing.T) {
	r := twoPageCatalog()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := newTestCrawler(t, testConfig(), r).Run(ctx, "http://example.test/catalogue/page-1.html")
	require.Error(t, err)
	assert.Nil(t, result)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, r.loads)
	assert.Equal(t, 1, r.closed)
}

func TestRunCanceledDuringSettle(t *testing.T) {
	r := twoPageCatalog()
	r.notReady = true

	cfg := testConfig()
	cfg.SettleDelay = time.Hour
	c := newTestCrawler(t, cfg, r)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	result, err := c.Run(ctx, "http://example.test/catalogue/page-1.html")
	require.Error(t, err)
	assert.Nil(t, result)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, r.closed)
}

func TestRunFactoryError(t *testing.T) {
	boom := errors.New("no browser")
	c, err := New(testConfig(), func(context.Context) (render.Renderer, error) {
		return nil, boom
	})
	require.NoError(t, err)

	result, err := c.Run(context.Background(), "http://example.test/")
	assert.Nil(t, result)
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, err, render.ErrPageLoad)

	var crawlErr *CrawlError
	require.ErrorAs(t, err, &crawlErr)
	assert.Equal(t, 1, crawlErr.Page)
	assert.Equal(t, "http://example.test/", crawlErr.URL)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Metrics.ErrorsTotal.WithLabelValues("other")))
}

func TestRunFactoryReturnsNoRenderer(t *testing.T) {
	c, err := New(testConfig(), func(context.Context) (render.Renderer, error) {
		return nil, nil
	})
	require.NoError(t, err)

	var result *models.CrawlResult
	require.NotPanics(t, func() {
		result, err = c.Run(context.Background(), "http://example.test/")
	})
	assert.Nil(t, result)
	assert.ErrorIs(t, err, render.ErrPageLoad)
}

func TestNewRejectsMissingDependencies(t *testing.T) {
	_, err := New(nil, factoryFor(newFakeRenderer(), nil))
	assert.Error(t, err)

	_, err = New(testConfig(), nil)
	assert.Error(t, err)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "loading", stateLoading.String())
	assert.Equal(t, "extracting", stateExtracting.String())
	assert.Equal(t, "advancing", stateAdvancing.String())
	assert.Equal(t, "done", stateDone.String())
}
