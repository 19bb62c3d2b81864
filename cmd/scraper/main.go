package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/aluiziolira/go-scrape-catalogue/config"
	"github.com/aluiziolira/go-scrape-catalogue/crawler"
	"github.com/aluiziolira/go-scrape-catalogue/models"
	"github.com/aluiziolira/go-scrape-catalogue/pipeline"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	if err := config.LoadEnvFiles(".env.local", ".env"); err != nil {
		fmt.Fprintf(os.Stderr, "load env files: %v\n", err)
		os.Exit(1)
	}

	defaults, err := configFromEnv(config.DefaultConfig())
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	startURL := flag.String("start-url", defaults.StartURL, "First catalogue page to crawl")
	renderer := flag.String("renderer", defaults.Renderer, "Page renderer: static or browser")
	maxPages := flag.Int("pages", defaults.MaxPages, "Stop after this many pages (0 = no limit)")
	visitedCache := flag.Int("visited-cache", defaults.VisitedCacheSize, "Visited URL cache size for cycle detection (0 = off)")
	timeout := flag.Duration("timeout", defaults.Timeout, "Page load timeout")
	readyTimeout := flag.Duration("ready-timeout", defaults.ReadyTimeout, "How long to wait for items to render")
	settleDelay := flag.Duration("settle-delay", defaults.SettleDelay, "Fixed delay used when the readiness wait fails")
	delay := flag.Duration("delay", defaults.Delay, "Delay between page requests (static renderer)")
	respectRobots := flag.Bool("respect-robots", defaults.RespectRobotsTxt, "Respect robots.txt directives")
	headless := flag.Bool("headless", defaults.Headless, "Run the browser headless")
	browserBin := flag.String("browser-bin", defaults.BrowserBin, "Chromium binary for the browser renderer")
	outputFile := flag.String("output", defaults.OutputFile, "Output file path")
	outputFormat := flag.String("format", defaults.OutputFormat, "Output format: csv, json, or dual")
	metricsAddr := flag.String("metrics-addr", defaults.MetricsAddr, "Prometheus metrics listen address (e.g. :9090)")
	verbose := flag.Bool("v", false, "Enable verbose logging")

	flag.Parse()

	logger, level := newLogger(os.Stdout, *verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	cfg := *defaults
	cfg.StartURL = *startURL
	cfg.Renderer = strings.ToLower(*renderer)
	cfg.MaxPages = *maxPages
	cfg.VisitedCacheSize = *visitedCache
	cfg.Timeout = *timeout
	cfg.ReadyTimeout = *readyTimeout
	cfg.SettleDelay = *settleDelay
	cfg.Delay = *delay
	cfg.RespectRobotsTxt = *respectRobots
	cfg.Headless = *headless
	cfg.BrowserBin = *browserBin
	cfg.OutputFile = *outputFile
	cfg.OutputFormat = strings.ToLower(*outputFormat)
	cfg.MetricsAddr = *metricsAddr
	cfg.Verbose = *verbose

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	if err := run(&cfg); err != nil {
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	slog.Info("starting crawl",
		slog.String("start_url", cfg.StartURL),
		slog.String("renderer", cfg.Renderer),
		slog.Int("max_pages", cfg.MaxPages),
	)

	c, err := crawler.New(cfg, crawler.NewRendererFactory(cfg))
	if err != nil {
		slog.Error("initialising crawler", slog.Any("error", err))
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.MetricsAddr != "" {
		metricsServer := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           promhttp.HandlerFor(c.Metrics.Registry, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				slog.Error("metrics server shutdown failed", slog.Any("error", err))
			}
		}()
		slog.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
	}

	result, err := c.Run(ctx, cfg.StartURL)
	if err != nil {
		slog.Error("crawl failed, no output written", slog.Any("error", err))
		return err
	}

	if err := export(cfg, result.Items); err != nil {
		slog.Error("writing output failed", slog.Any("error", err))
		return err
	}

	printSummary(os.Stdout, result, cfg)
	return nil
}

// export hands the finished record set to the configured writers.
func export(cfg *config.Config, items []*models.Item) error {
	writer, err := createWriter(cfg.OutputFormat, cfg.OutputFile)
	if err != nil {
		return fmt.Errorf("create writer: %w", err)
	}

	p := pipeline.NewPipeline(writer, cfg)
	p.Start()
	processErr := p.Process(items...)
	closeErr := p.Close()
	writerErr := writer.Close()
	if err := errors.Join(processErr, closeErr, writerErr); err != nil {
		return err
	}

	if err := writer.Validate(); err != nil {
		return fmt.Errorf("validate output: %w", err)
	}

	if missing, ok := p.GetMetrics()["missing_fields"].(map[string]int); ok && len(missing) > 0 {
		slog.Info("records with unavailable fields", slog.Any("missing", missing))
	}
	return nil
}

func configFromEnv(cfg *config.Config) (*config.Config, error) {
	if value, ok := config.EnvString("SCRAPER_START_URL"); ok {
		cfg.StartURL = value
	}
	if value, ok := config.EnvString("SCRAPER_RENDERER"); ok {
		cfg.Renderer = value
	}
	if value, ok, err := config.EnvInt("SCRAPER_PAGES"); err != nil {
		return nil, fmt.Errorf("invalid SCRAPER_PAGES: %w", err)
	} else if ok {
		cfg.MaxPages = value
	}
	if value, ok, err := config.EnvDuration("SCRAPER_SETTLE_DELAY"); err != nil {
		return nil, fmt.Errorf("invalid SCRAPER_SETTLE_DELAY: %w", err)
	} else if ok {
		cfg.SettleDelay = value
	}
	if value, ok := config.EnvString("SCRAPER_BROWSER_BIN"); ok {
		cfg.BrowserBin = value
	}
	if value, ok := config.EnvString("SCRAPER_OUTPUT"); ok {
		cfg.OutputFile = value
	}
	if value, ok := config.EnvString("SCRAPER_METRICS_ADDR"); ok {
		cfg.MetricsAddr = value
	}
	return cfg, nil
}

func createWriter(format, filename string) (pipeline.OutputWriter, error) {
	csvPath, jsonPath := outputPaths(filename)
	switch format {
	case "json":
		return pipeline.NewJSONWriter(jsonPath)
	case "csv":
		return pipeline.NewCSVWriter(csvPath)
	case "dual":
		return pipeline.NewDualWriter(csvPath, jsonPath)
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

// outputPaths swaps the extension of filename for .csv and .json.
func outputPaths(filename string) (csvPath, jsonPath string) {
	base := strings.TrimSuffix(filename, filepath.Ext(filename))
	return base + ".csv", base + ".json"
}

func outputFiles(cfg *config.Config) string {
	csvPath, jsonPath := outputPaths(cfg.OutputFile)
	switch cfg.OutputFormat {
	case "csv":
		return csvPath
	case "json":
		return jsonPath
	default:
		return csvPath + ", " + jsonPath
	}
}

func printSummary(w io.Writer, result *models.CrawlResult, cfg *config.Config) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetTitle("Crawl complete")
	tw.AppendRows([]table.Row{
		{"Run", result.RunID},
		{"Pages", result.PageCount},
		{"Records", len(result.Items)},
		{"Stop reason", result.StopReason},
		{"Readiness fallbacks", result.ReadinessFallbacks},
		{"Duration", result.Duration().Round(time.Millisecond)},
		{"Output", outputFiles(cfg)},
	})
	if len(result.FieldMisses) > 0 {
		fields := make([]string, 0, len(result.FieldMisses))
		for field := range result.FieldMisses {
			fields = append(fields, field)
		}
		sort.Strings(fields)
		for _, field := range fields {
			tw.AppendRow(table.Row{"Unavailable " + field, result.FieldMisses[field]})
		}
	}
	tw.SetStyle(table.StyleLight)
	tw.Render()
}

func newLogger(out *os.File, verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(out) {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
