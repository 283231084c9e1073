package webfetch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/codibridge/codi/internal/links"
	"github.com/codibridge/codi/internal/metrics"
)

// Augmenter replaces bracketed links in a message with the content behind them.
type Augmenter struct {
	fetcher Fetcher
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewAugmenter(log *slog.Logger, fetcher Fetcher, m *metrics.Metrics) *Augmenter {
	if log == nil {
		log = slog.Default()
	}
	return &Augmenter{
		fetcher: fetcher,
		logger:  log.With(slog.String("component", "augmenter")),
		metrics: m,
	}
}

// Augment fetches every distinct link, removes its bracketed token from text
// and appends a labelled block with the page content. A link that cannot be
// fetched is left in the text as a bare URL and contributes no block; one
// failure never stops the others.
func (a *Augmenter) Augment(ctx context.Context, text string, found []links.Link) string {
	if len(found) == 0 || a.fetcher == nil {
		return text
	}
	type outcome struct {
		content string
		err     error
		emitted bool
	}
	var blocks strings.Builder
	fetched := make(map[string]*outcome, len(found))
	for _, link := range found {
		res, ok := fetched[link.URL]
		if !ok {
			content, err := a.fetcher.Fetch(ctx, link.URL)
			a.metrics.URLFetched(err == nil)
			if err != nil {
				a.logger.Warn("fetch linked content failed", slog.String("url", link.URL), slog.Any("error", err))
			}
			res = &outcome{content: content, err: err}
			fetched[link.URL] = res
		}
		if res.err != nil {
			text = strings.ReplaceAll(text, link.Raw, link.URL)
			continue
		}
		text = strings.ReplaceAll(text, link.Raw, "")
		if !res.emitted {
			res.emitted = true
			blocks.WriteString(contentBlock(link.URL, res.content))
		}
	}
	if blocks.Len() == 0 {
		return text
	}
	return text + "\n" + blocks.String()
}

func contentBlock(url, content string) string {
	return fmt.Sprintf(" Contents of %s : \n \"\"\" %s \"\"\"", url, content)
}
