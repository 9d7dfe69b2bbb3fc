package paginate

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/NitinNanjeGowda00/dynamic-web-scraper/internal/fetch"
	"github.com/NitinNanjeGowda00/dynamic-web-scraper/internal/models"
)

// Extractor is the external collaborator that understands page markup. It
// returns the items on the page and the next page URL ("" when there is
// none). The driver never inspects HTML itself.
type Extractor interface {
	Extract(pageBody string) (items []models.Quote, nextURL string, err error)
}

// ExtractorFunc adapts a function to the Extractor interface.
type ExtractorFunc func(pageBody string) ([]models.Quote, string, error)

func (f ExtractorFunc) Extract(pageBody string) ([]models.Quote, string, error) {
	return f(pageBody)
}

// PageFetcher is the slice of fetch.Fetcher the driver needs.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (*fetch.PageResult, error)
}

// PageHook is called after each extracted page, before the driver advances.
// Returning an error stops pagination; already-collected items are kept.
type PageHook func(page int, pageURL string, items []models.Quote) error

// Driver walks the fetch, extract, advance loop across pages. A driver is
// not restartable: it shares the fetcher's error counters across runs.
type Driver struct {
	fetcher   PageFetcher
	extractor Extractor
	logger    *slog.Logger
	onPage    PageHook
}

// Option customizes a Driver.
type Option func(*Driver)

// WithPageHook registers a callback invoked once per extracted page.
func WithPageHook(hook PageHook) Option {
	return func(d *Driver) { d.onPage = hook }
}

func NewDriver(fetcher PageFetcher, extractor Extractor, opts ...Option) *Driver {
	d := &Driver{
		fetcher:   fetcher,
		extractor: extractor,
		logger:    slog.Default().With("component", "paginate"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run paginates from startURL until the next link disappears, pageCap pages
// have been fetched (0 means no cap), the fetcher reports a terminal
// failure, or ctx is cancelled. Items collected before the stop condition
// are always returned; the error explains an early stop.
func (d *Driver) Run(ctx context.Context, startURL string, pageCap int) ([]models.Quote, error) {
	var collected []models.Quote

	pageURL := startURL
	page := 0

	for pageURL != "" {
		if pageCap > 0 && page >= pageCap {
			d.logger.Info("page cap reached", "pages", page)
			break
		}
		if err := ctx.Err(); err != nil {
			d.logger.Warn("pagination cancelled", "pages", page, "items", len(collected))
			return collected, err
		}

		page++
		d.logger.Info("fetching page", "page", page, "url", pageURL)

		result, err := d.fetcher.Fetch(ctx, pageURL)
		if err != nil {
			d.logger.Error("fetch failed, stopping pagination",
				"page", page,
				"url", pageURL,
				"items_collected", len(collected),
				"error", err,
			)
			return collected, fmt.Errorf("page %d (%s): %w", page, pageURL, err)
		}

		items, nextURL, err := d.extractor.Extract(result.Body)
		if err != nil {
			d.logger.Error("extraction failed, stopping pagination", "page", page, "error", err)
			return collected, fmt.Errorf("extracting page %d (%s): %w", page, pageURL, err)
		}

		d.logger.Info("extracted items", "page", page, "count", len(items))
		collected = append(collected, items...)

		if d.onPage != nil {
			if err := d.onPage(page, pageURL, items); err != nil {
				return collected, fmt.Errorf("page hook on page %d: %w", page, err)
			}
		}

		if nextURL == "" {
			d.logger.Info("no next link, pagination complete", "pages", page)
			break
		}
		pageURL = resolveNext(result.FinalURL, nextURL)
	}

	return collected, nil
}

// resolveNext resolves a possibly relative next link against the page it
// came from.
func resolveNext(pageURL, next string) string {
	base, err := url.Parse(pageURL)
	if err != nil {
		return next
	}
	ref, err := url.Parse(next)
	if err != nil {
		return next
	}
	return base.ResolveReference(ref).String()
}
