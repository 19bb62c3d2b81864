// Package crawler walks a paginated catalogue one page at a time and
// collects the items of every page in order.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aluiziolira/go-scrape-catalogue/config"
	"github.com/aluiziolira/go-scrape-catalogue/models"
	"github.com/aluiziolira/go-scrape-catalogue/parser"
	"github.com/aluiziolira/go-scrape-catalogue/render"
	"github.com/google/uuid"
)

type state int

const (
	stateLoading state = iota
	stateExtracting
	stateAdvancing
	stateDone
)

func (s state) String() string {
	switch s {
	case stateLoading:
		return "loading"
	case stateExtracting:
		return "extracting"
	case stateAdvancing:
		return "advancing"
	case stateDone:
		return "done"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Crawler owns the traversal loop. It is not safe for concurrent Runs.
type Crawler struct {
	cfg           *config.Config
	factory       render.Factory
	extractorOpts []parser.Option
	Metrics       *Metrics

	sleep func(ctx context.Context, d time.Duration) error
}

// New builds a crawler that acquires its renderer from factory on each Run.
func New(cfg *config.Config, factory render.Factory, opts ...parser.Option) (*Crawler, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if factory == nil {
		return nil, errors.New("renderer factory is nil")
	}
	return &Crawler{
		cfg:           cfg,
		factory:       factory,
		extractorOpts: opts,
		Metrics:       NewMetrics(),
		sleep:         sleepContext,
	}, nil
}

// Run crawls from startURL until a page has no next link or a guard trips.
// A page that fails to load aborts the crawl with a *CrawlError and the
// records gathered so far are discarded.
func (c *Crawler) Run(ctx context.Context, startURL string) (*models.CrawlResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	runID := uuid.NewString()
	logger := slog.Default().With(slog.String("run_id", runID))
	start := time.Now()

	renderer, err := c.factory(ctx)
	if err == nil && renderer == nil {
		err = errors.New("factory returned no renderer")
	}
	if err != nil {
		return nil, c.fail(logger, startURL, 1, &render.LoadError{
			URL: startURL,
			Err: fmt.Errorf("acquire renderer: %w", err),
		})
	}
	defer func() {
		if err := renderer.Close(); err != nil {
			logger.Warn("release renderer failed", slog.Any("error", err))
		}
	}()

	visited, err := newVisitedSet(c.cfg.VisitedCacheSize)
	if err != nil {
		return nil, err
	}

	misses := make(map[string]int)
	opts := append([]parser.Option{}, c.extractorOpts...)
	opts = append(opts, parser.WithMissFunc(func(field string, err error) {
		misses[field]++
		c.Metrics.IncFieldMiss(field)
		logger.Debug("field unavailable", slog.String("field", field), slog.Any("error", err))
	}))
	extractor := parser.NewExtractor(opts...)

	var (
		st         = stateLoading
		currentURL = startURL
		pageIndex  int
		records    = make([]*models.Item, 0)
		doc        render.Document
		next       models.Optional[string]
		stop       models.StopReason
		fallbacks  int
	)

	for st != stateDone {
		logger.Debug("crawl state", slog.String("state", st.String()), slog.String("url", currentURL))

		switch st {
		case stateLoading:
			if err := ctx.Err(); err != nil {
				return nil, c.fail(logger, currentURL, pageIndex+1, err)
			}
			loadStart := time.Now()
			doc, err = renderer.Load(ctx, currentURL)
			c.Metrics.ObserveLoad(time.Since(loadStart))
			if err != nil {
				return nil, c.fail(logger, currentURL, pageIndex+1, err)
			}
			pageIndex++
			visited.add(currentURL)
			visited.add(doc.URL())
			logger.Info("scraping page", slog.Int("page", pageIndex), slog.String("url", currentURL))
			st = stateExtracting

		case stateExtracting:
			fellBack, err := c.settle(ctx, doc, extractor.Selectors().Item)
			if fellBack {
				fallbacks++
				c.Metrics.IncFallback()
			}
			if err != nil {
				return nil, c.fail(logger, currentURL, pageIndex, err)
			}

			items, nextURL := extractor.ExtractPage(doc)
			records = append(records, items...)
			c.Metrics.IncPage()
			c.Metrics.AddItems(len(items))
			logger.Debug("page extracted", slog.Int("page", pageIndex), slog.Int("items", len(items)))

			next = nextURL
			if !next.Valid() {
				stop = models.StopNoNextPage
				logger.Info("no more pages")
				st = stateDone
				continue
			}
			st = stateAdvancing

		case stateAdvancing:
			nextURL, _ := next.Get()
			if c.cfg.MaxPages > 0 && pageIndex >= c.cfg.MaxPages {
				stop = models.StopMaxPages
				logger.Warn("page limit reached, stopping", slog.Int("max_pages", c.cfg.MaxPages), slog.String("next", nextURL))
				st = stateDone
				continue
			}
			if visited.seen(nextURL) {
				stop = models.StopCycleDetected
				logger.Warn("next page already visited, stopping", slog.String("next", nextURL))
				st = stateDone
				continue
			}
			currentURL = nextURL
			st = stateLoading
		}
	}

	result := &models.CrawlResult{
		RunID:              runID,
		StartURL:           startURL,
		Items:              records,
		PageCount:          pageIndex,
		StopReason:         stop,
		StartTime:          start,
		EndTime:            time.Now(),
		FieldMisses:        misses,
		ReadinessFallbacks: fallbacks,
	}
	logger.Info("crawl finished",
		slog.Int("pages", result.PageCount),
		slog.Int("records", len(result.Items)),
		slog.String("stop_reason", string(result.StopReason)),
	)
	return result, nil
}

// settle waits for the item selector, falling back to the fixed delay.
func (c *Crawler) settle(ctx context.Context, doc render.Document, selector string) (bool, error) {
	err := doc.WaitReady(ctx, selector, c.cfg.ReadyTimeout)
	if err == nil {
		return false, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return false, ctxErr
	}
	slog.Debug("readiness wait failed, using settle delay", slog.Any("error", err), slog.Duration("delay", c.cfg.SettleDelay))
	return true, c.sleep(ctx, c.cfg.SettleDelay)
}

func (c *Crawler) fail(logger *slog.Logger, url string, page int, err error) error {
	category := render.ErrorTypeLabel(err)
	c.Metrics.IncError(category)
	logger.Error("crawl aborted",
		slog.Int("page", page),
		slog.String("url", url),
		slog.String("category", category),
		slog.Any("error", err),
	)
	return &CrawlError{URL: url, Page: page, Err: err}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
