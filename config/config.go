package config

import (
	"fmt"
	"net/url"
	"time"
)

// Renderer names accepted by Config.Renderer.
const (
	RendererStatic  = "static"
	RendererBrowser = "browser"
)

// Config holds crawler configuration.
type Config struct {
	StartURL         string
	Renderer         string // static or browser
	MaxPages         int    // 0 disables the page guard
	VisitedCacheSize int    // 0 disables the cycle guard
	Timeout          time.Duration
	ReadyTimeout     time.Duration
	SettleDelay      time.Duration
	Delay            time.Duration
	UserAgent        string
	RespectRobotsTxt bool
	Headless         bool
	BrowserBin       string
	OutputFile       string
	OutputFormat     string // csv, json, or dual
	BatchSize        int
	MetricsAddr      string
	Verbose          bool
}

// DefaultConfig returns conservative defaults for the demo target.
func DefaultConfig() *Config {
	return &Config{
		StartURL:         "https://books.toscrape.com/catalogue/page-1.html",
		Renderer:         RendererStatic,
		MaxPages:         1000,
		VisitedCacheSize: 4096,
		Timeout:          15 * time.Second,
		ReadyTimeout:     5 * time.Second,
		SettleDelay:      2 * time.Second,
		Delay:            0,
		UserAgent:        "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/117.0.0.0 Safari/537.36",
		RespectRobotsTxt: false,
		Headless:         true,
		OutputFile:       "output/books.csv",
		OutputFormat:     "dual",
		BatchSize:        64,
		Verbose:          false,
	}
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.StartURL == "" {
		return fmt.Errorf("start URL cannot be empty")
	}

	parsedURL, err := url.Parse(c.StartURL)
	if err != nil {
		return fmt.Errorf("invalid start URL: %w", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("start URL must use http or https")
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("start URL must include a host")
	}

	if c.Renderer != RendererStatic && c.Renderer != RendererBrowser {
		return fmt.Errorf("renderer must be static or browser")
	}
	if c.MaxPages < 0 {
		return fmt.Errorf("max pages cannot be negative")
	}
	if c.VisitedCacheSize < 0 {
		return fmt.Errorf("visited cache size cannot be negative")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.ReadyTimeout < 0 {
		return fmt.Errorf("ready timeout cannot be negative")
	}
	if c.Renderer == RendererBrowser && c.ReadyTimeout == 0 {
		return fmt.Errorf("ready timeout must be positive for the browser renderer")
	}
	if c.SettleDelay < 0 {
		return fmt.Errorf("settle delay cannot be negative")
	}
	if c.Delay < 0 {
		return fmt.Errorf("delay cannot be negative")
	}
	if c.OutputFile == "" {
		return fmt.Errorf("output file cannot be empty")
	}
	if c.OutputFormat != "csv" && c.OutputFormat != "json" && c.OutputFormat != "dual" {
		return fmt.Errorf("output format must be csv, json, or dual")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}

	return nil
}

// StartHost returns the host of StartURL, or "" when it does not parse.
func (c *Config) StartHost() string {
	parsed, err := url.Parse(c.StartURL)
	if err != nil {
		return ""
	}
	return parsed.Hostname()
}
