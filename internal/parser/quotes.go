package parser

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/NitinNanjeGowda00/dynamic-web-scraper/internal/models"
)

// QuoteParser extracts quote records and the next-page link from pages in
// the quotes.toscrape.com markup family.
type QuoteParser struct {
	logger *slog.Logger
}

func NewQuoteParser() *QuoteParser {
	return &QuoteParser{
		logger: slog.Default().With("component", "parser"),
	}
}

// Extract parses one page body. Quote blocks that fail validation are
// skipped, not fatal. nextURL is "" on the last page and may be relative.
func (p *QuoteParser) Extract(pageBody string) ([]models.Quote, string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(pageBody))
	if err != nil {
		return nil, "", fmt.Errorf("failed to parse HTML: %w", err)
	}

	var quotes []models.Quote
	doc.Find("div.quote").Each(func(_ int, sel *goquery.Selection) {
		quote := models.Quote{
			Text:   sel.Find("span.text").First().Text(),
			Author: sel.Find("small.author").First().Text(),
		}
		sel.Find("a.tag").Each(func(_ int, tag *goquery.Selection) {
			quote.Tags = append(quote.Tags, tag.Text())
		})

		quote.Normalize()
		if err := quote.Validate(); err != nil {
			p.logger.Warn("skipping malformed quote block", "error", err)
			return
		}
		quotes = append(quotes, quote)
	})

	p.logger.Debug("extracted quotes from page", "count", len(quotes))

	nextURL, _ := doc.Find("li.next a").First().Attr("href")
	return quotes, nextURL, nil
}
