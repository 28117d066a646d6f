package parser

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const searchPage = `
<ol class="breathe-horizontal">
  <li class="arxiv-result">
    <div class="is-marginless">
      <p class="list-title is-inline-block"><a href="/abs/2511.00001">arXiv:2511.00001</a></p>
    </div>
    <p class="title is-5 mathjax">
      Deep Learning for
      Early Cancer Detection
    </p>
    <p class="abstract mathjax">
      <span class="abstract-short">Short...</span>
      <span class="abstract-full">We present a model for screening. <a class="is-size-7">△ Less</a></span>
    </p>
    <p class="is-size-7"><span>Submitted</span> 8 November, 2025; <span>originally announced</span> November 2025.</p>
  </li>
  <li class="arxiv-result">
    <div class="is-marginless">
      <p class="list-title is-inline-block"><a href="https://arxiv.org/abs/2511.00002">arXiv:2511.00002</a></p>
    </div>
    <p class="title is-5 mathjax">Second Paper</p>
    <p class="abstract mathjax"><span class="abstract-short">Only a short abstract.</span></p>
    <p class="is-size-7"><span>Submitted</span> 6 November, 2025;</p>
  </li>
  <li class="arxiv-result">
    <div class="is-marginless">
      <p class="list-title is-inline-block"><a href="/abs/2510.00003">arXiv:2510.00003</a></p>
    </div>
    <p class="title is-5 mathjax">Old Paper</p>
    <p class="is-size-7"><span>Submitted</span> 1 October, 2025;</p>
  </li>
</ol>`

func TestBuildSearchURL(t *testing.T) {
	t.Parallel()

	u, err := buildSearchURL("https://arxiv.org", "AI oncology", 30)
	if err != nil {
		t.Fatalf("buildSearchURL returned error: %v", err)
	}

	parsed, err := url.Parse(u)
	if err != nil {
		t.Fatalf("parse result: %v", err)
	}
	if parsed.Host != "arxiv.org" || parsed.Path != "/search/" {
		t.Fatalf("unexpected url: %s", u)
	}

	q := parsed.Query()
	if q.Get("query") != "AI oncology" {
		t.Fatalf("expected query, got %s", q.Get("query"))
	}
	if q.Get("size") != "50" {
		t.Fatalf("expected size=50, got %s", q.Get("size"))
	}

	u, _ = buildSearchURL("https://arxiv.org", "x", 1000)
	if !strings.Contains(u, "size=200") {
		t.Fatalf("expected size capped at 200: %s", u)
	}
}

func TestParseResult(t *testing.T) {
	t.Parallel()

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(searchPage))
	if err != nil {
		t.Fatalf("new document: %v", err)
	}

	article, ok := parseResult(doc.Find("li.arxiv-result").First(), "https://arxiv.org")
	if !ok {
		t.Fatal("parseResult rejected a valid entry")
	}
	if article.URL != "https://arxiv.org/abs/2511.00001" {
		t.Fatalf("unexpected url: %s", article.URL)
	}
	if article.Title != "Deep Learning for Early Cancer Detection" {
		t.Fatalf("unexpected title: %q", article.Title)
	}
	if article.Snippet != "We present a model for screening." {
		t.Fatalf("unexpected snippet: %q", article.Snippet)
	}
	want := time.Date(2025, time.November, 8, 0, 0, 0, 0, time.UTC)
	if !article.PublishedAt.Equal(want) {
		t.Fatalf("unexpected published date: %v", article.PublishedAt)
	}
}

func TestArxivProviderSearch(t *testing.T) {
	t.Parallel()

	queries := make(chan string, 2)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		queries <- r.URL.Query().Get("query")
		_, _ = w.Write([]byte(searchPage))
	}))
	defer server.Close()

	p := NewArxivProvider(server.Client(), server.URL, "")
	p.now = func() time.Time { return time.Date(2025, time.November, 10, 12, 0, 0, 0, time.UTC) }

	articles, err := p.Search(context.Background(), "cancer detection", 10, 7)
	if err != nil {
		t.Fatalf("Search error: %v", err)
	}
	if got := <-queries; got != "cancer detection" {
		t.Fatalf("unexpected query: %s", got)
	}
	if len(articles) != 2 {
		t.Fatalf("expected 2 recent articles, got %d", len(articles))
	}
	if articles[0].URL != server.URL+"/abs/2511.00001" {
		t.Fatalf("unexpected first url: %s", articles[0].URL)
	}
	if articles[1].Snippet != "Only a short abstract." {
		t.Fatalf("unexpected fallback snippet: %q", articles[1].Snippet)
	}

	limited, err := p.Search(context.Background(), "cancer detection", 1, 0)
	if err != nil {
		t.Fatalf("Search error: %v", err)
	}
	<-queries
	if len(limited) != 1 {
		t.Fatalf("expected maxResults to cap results, got %d", len(limited))
	}
}

func TestArxivProviderStatusError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := NewArxivProvider(server.Client(), server.URL, "").Search(context.Background(), "q", 5, 7)
	if err == nil || !strings.Contains(err.Error(), "503") {
		t.Fatalf("expected status error, got %v", err)
	}
}
