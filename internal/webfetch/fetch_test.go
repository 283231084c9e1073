package webfetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

const articleHTML = `<!doctype html>
<html><head><title>Quarterly Widgets</title><script>var tracking = "nope";</script></head>
<body>
<nav><a href="/">Home</a></nav>
<article>
<h1>Quarterly Widgets</h1>
<p>The widget factory shipped forty thousand blue widgets during the third quarter, which beat every forecast the planning team had published.</p>
<p>Demand for green widgets stayed flat, so the factory moved two assembly lines over to blue production at the start of August.</p>
<p>Next quarter the team expects shipments to rise again as the new distribution center comes online in the northern region.</p>
</article>
<footer>copyright</footer>
</body></html>`

func newPageServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/article", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(articleHTML))
	})
	mux.HandleFunc("/plain", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("  just text  \n\n\n\nmore text "))
	})
	mux.HandleFunc("/image", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte{0x89, 'P', 'N', 'G'})
	})
	mux.HandleFunc("/agent", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte(r.Header.Get("User-Agent")))
	})
	mux.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchExtractsArticle(t *testing.T) {
	t.Parallel()

	srv := newPageServer(t)
	f := NewReadabilityFetcher(nil, Options{})
	text, err := f.Fetch(context.Background(), srv.URL+"/article")
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if !strings.Contains(text, "forty thousand blue widgets") {
		t.Fatalf("expected article text, got %q", text)
	}
	if strings.Contains(text, "tracking") {
		t.Fatalf("script content leaked into %q", text)
	}
}

func TestFetchPlainText(t *testing.T) {
	t.Parallel()

	srv := newPageServer(t)
	f := NewReadabilityFetcher(nil, Options{})
	text, err := f.Fetch(context.Background(), srv.URL+"/plain")
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if text != "just text\n\nmore text" {
		t.Fatalf("unexpected text: %q", text)
	}
}

func TestFetchSendsUserAgent(t *testing.T) {
	t.Parallel()

	srv := newPageServer(t)
	f := NewReadabilityFetcher(nil, Options{UserAgent: "codi-test"})
	text, err := f.Fetch(context.Background(), srv.URL+"/agent")
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if text != "codi-test" {
		t.Fatalf("unexpected user agent: %q", text)
	}
}

func TestFetchErrors(t *testing.T) {
	t.Parallel()

	srv := newPageServer(t)
	f := NewReadabilityFetcher(nil, Options{Timeout: 100 * time.Millisecond})

	if _, err := f.Fetch(context.Background(), srv.URL+"/missing"); err == nil || !strings.Contains(err.Error(), "http 404") {
		t.Fatalf("expected http 404 error, got %v", err)
	}
	if _, err := f.Fetch(context.Background(), srv.URL+"/image"); !errors.Is(err, ErrUnsupportedContent) {
		t.Fatalf("expected ErrUnsupportedContent, got %v", err)
	}
	if _, err := f.Fetch(context.Background(), "ftp://example.com/file"); err == nil {
		t.Fatal("expected scheme error")
	}
	if _, err := f.Fetch(context.Background(), srv.URL+"/slow"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestExtractHTMLFallsBackToBody(t *testing.T) {
	t.Parallel()

	text, err := bodyText([]byte(`<html><head><title>T</title><style>p{}</style></head><body><p>  hello   world </p></body></html>`))
	if err != nil {
		t.Fatalf("bodyText failed: %v", err)
	}
	if text != "# T\n\nhello world" {
		t.Fatalf("unexpected text: %q", text)
	}
	if _, err := bodyText([]byte(`<html><body><script>x()</script></body></html>`)); !errors.Is(err, ErrEmptyContent) {
		t.Fatalf("expected ErrEmptyContent, got %v", err)
	}
}

func TestMediaType(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"text/html; charset=utf-8": "text/html",
		"TEXT/PLAIN":               "text/plain",
		"application/ld+json":      "application/ld+json",
	}
	for in, want := range cases {
		if got := mediaType(in, nil); got != want {
			t.Fatalf("mediaType(%q)=%q want %q", in, got, want)
		}
	}
	if got := mediaType("", []byte("<html><body>x</body></html>")); got != "text/html" {
		t.Fatalf("expected sniffed html, got %q", got)
	}
}
