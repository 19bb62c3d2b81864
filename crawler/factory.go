package crawler

import (
	"context"

	"github.com/aluiziolira/go-scrape-catalogue/config"
	"github.com/aluiziolira/go-scrape-catalogue/render"
)

// NewRendererFactory returns the factory matching cfg.Renderer.
func NewRendererFactory(cfg *config.Config) render.Factory {
	if cfg.Renderer == config.RendererBrowser {
		return func(ctx context.Context) (render.Renderer, error) {
			r, err := render.NewBrowserRenderer(ctx, render.BrowserOptions{
				Bin:       cfg.BrowserBin,
				Headless:  cfg.Headless,
				NoSandbox: true,
				UserAgent: cfg.UserAgent,
				Timeout:   cfg.Timeout,
			})
			if err != nil {
				return nil, err
			}
			return r, nil
		}
	}

	return func(context.Context) (render.Renderer, error) {
		var domains []string
		if host := cfg.StartHost(); host != "" {
			domains = []string{host}
		}
		r, err := render.NewStaticRenderer(render.StaticOptions{
			UserAgent:        cfg.UserAgent,
			Timeout:          cfg.Timeout,
			Delay:            cfg.Delay,
			AllowedDomains:   domains,
			RespectRobotsTxt: cfg.RespectRobotsTxt,
		})
		if err != nil {
			return nil, err
		}
		return r, nil
	}
}
