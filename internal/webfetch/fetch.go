// Package webfetch turns linked pages into plain text and folds that text into
// chat messages before they reach the agent.
package webfetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"
	"golang.org/x/time/rate"
)

const (
	defaultTimeout  = 30 * time.Second
	defaultMaxBytes = 4 << 20
)

var (
	// ErrUnsupportedContent is returned for responses that are neither HTML nor text.
	ErrUnsupportedContent = errors.New("unsupported content type")
	// ErrEmptyContent is returned when nothing readable could be extracted.
	ErrEmptyContent = errors.New("no readable content")

	blankLines = regexp.MustCompile(`\n{3,}`)
	spaces     = regexp.MustCompile(`[ \t\r\f\v]+`)
)

// Fetcher retrieves a URL and renders its readable content as text.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (string, error)
}

// Options configures a ReadabilityFetcher. Zero values fall back to defaults;
// RatePerSecond <= 0 disables throttling.
type Options struct {
	Timeout       time.Duration
	UserAgent     string
	MaxBytes      int64
	RatePerSecond float64
	Client        *http.Client
}

// ReadabilityFetcher downloads pages over HTTP and extracts the main article
// with go-readability, falling back to the page body text.
type ReadabilityFetcher struct {
	logger    *slog.Logger
	client    *http.Client
	limiter   *rate.Limiter
	userAgent string
	maxBytes  int64
	timeout   time.Duration
}

func NewReadabilityFetcher(log *slog.Logger, opts Options) *ReadabilityFetcher {
	if log == nil {
		log = slog.Default()
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{}
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	maxBytes := opts.MaxBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxBytes
	}
	var limiter *rate.Limiter
	if opts.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RatePerSecond), 1)
	}
	return &ReadabilityFetcher{
		logger:    log.With(slog.String("component", "webfetch")),
		client:    client,
		limiter:   limiter,
		userAgent: strings.TrimSpace(opts.UserAgent),
		maxBytes:  maxBytes,
		timeout:   timeout,
	}
}

// Fetch downloads rawURL under the fetcher timeout and returns its text.
func (f *ReadabilityFetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	pageURL, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if pageURL.Scheme != "http" && pageURL.Scheme != "https" {
		return "", fmt.Errorf("url must use http or https: %s", rawURL)
	}
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return "", err
		}
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL.String(), nil)
	if err != nil {
		return "", err
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,*/*;q=0.5")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("fetch %s: http %d", rawURL, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes))
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	if resp.Request != nil && resp.Request.URL != nil {
		pageURL = resp.Request.URL
	}

	var text string
	switch contentType := mediaType(resp.Header.Get("Content-Type"), body); {
	case contentType == "text/html" || contentType == "application/xhtml+xml":
		text, err = ExtractHTML(body, pageURL)
		if err != nil {
			return "", err
		}
	case strings.HasPrefix(contentType, "text/"), contentType == "application/json", strings.HasSuffix(contentType, "+json"):
		text = string(body)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedContent, contentType)
	}

	text = tidy(text)
	if text == "" {
		return "", ErrEmptyContent
	}
	f.logger.Debug("fetched url", slog.String("url", rawURL), slog.Int("chars", len(text)))
	return text, nil
}

// ExtractHTML renders the main content of an HTML document as markdown-ish text.
func ExtractHTML(body []byte, pageURL *url.URL) (string, error) {
	article, err := readability.FromReader(bytes.NewReader(body), pageURL)
	if err == nil {
		if content := strings.TrimSpace(article.Content); content != "" {
			if md, convErr := htmltomarkdown.ConvertString(content); convErr == nil && strings.TrimSpace(md) != "" {
				return withTitle(article.Title, md), nil
			}
		}
		if text := strings.TrimSpace(article.TextContent); text != "" {
			return withTitle(article.Title, text), nil
		}
	}
	return bodyText(body)
}

func bodyText(body []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	doc.Find("script, style, noscript, template, svg").Remove()
	title := strings.TrimSpace(doc.Find("title").First().Text())
	lines := strings.Split(doc.Find("body").Text(), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(spaces.ReplaceAllString(line, " "))
	}
	text := strings.TrimSpace(strings.Join(lines, "\n"))
	if text == "" {
		return "", ErrEmptyContent
	}
	return withTitle(title, text), nil
}

func withTitle(title, text string) string {
	title = strings.TrimSpace(title)
	if title == "" || strings.HasPrefix(strings.TrimSpace(text), "# "+title) {
		return text
	}
	return "# " + title + "\n\n" + text
}

func mediaType(header string, body []byte) string {
	if header == "" {
		header = http.DetectContentType(body)
	}
	mt, _, err := mime.ParseMediaType(header)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(strings.Split(header, ";")[0]))
	}
	return strings.ToLower(mt)
}

func tidy(text string) string {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t\f\v")
	}
	return strings.TrimSpace(blankLines.ReplaceAllString(strings.Join(lines, "\n"), "\n\n"))
}
