package search

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/net/html"

	"github.com/mempirate/delver/log"
)

const DDG_ENDPOINT = "https://html.duckduckgo.com/html/"

// The JS-free endpoint refuses requests without a browser-looking agent.
const USER_AGENT = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36"

// DuckDuckGo searches the HTML (JS-free) endpoint and scrapes the result
// list. No API key required.
type DuckDuckGo struct {
	log      zerolog.Logger
	client   *http.Client
	endpoint string
}

func NewDuckDuckGo(timeout time.Duration) *DuckDuckGo {
	return &DuckDuckGo{
		log:      log.NewLogger("search"),
		client:   &http.Client{Timeout: timeout},
		endpoint: DDG_ENDPOINT,
	}
}

func (d *DuckDuckGo) Search(ctx context.Context, query string, max int) ([]Result, error) {
	form := url.Values{}
	form.Set("q", query)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, errors.Wrap(err, "failed to build search request")
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", USER_AGENT)

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "search request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("search returned status %s", resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read search response")
	}

	results := parseResults(string(body), max)

	d.log.Debug().Str("query", query).Int("results", len(results)).Msg("Search finished")

	return results, nil
}

// parseResults walks the result page. Hits are anchors with the result__a
// class; the snippet anchor that follows belongs to the preceding hit.
func parseResults(page string, max int) []Result {
	doc, err := html.Parse(strings.NewReader(page))
	if err != nil {
		return nil
	}

	var results []Result

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			switch {
			case hasClass(n, "result__a"):
				target := resolveRedirect(getAttr(n, "href"))
				if target == "" {
					break
				}

				results = append(results, Result{
					Title: strings.TrimSpace(nodeText(n)),
					URL:   target,
				})
			case hasClass(n, "result__snippet"):
				if len(results) > 0 && results[len(results)-1].Snippet == "" {
					results[len(results)-1].Snippet = strings.TrimSpace(nodeText(n))
				}
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	if len(results) > max {
		results = results[:max]
	}

	return results
}

// resolveRedirect unwraps DuckDuckGo's /l/?uddg=<target> indirection and drops
// ad links. Returns "" for links that should be skipped.
func resolveRedirect(href string) string {
	if href == "" {
		return ""
	}

	// Ad results route through y.js.
	if strings.Contains(href, "duckduckgo.com/y.js") {
		return ""
	}

	u, err := url.Parse(href)
	if err != nil {
		return ""
	}

	if u.Path == "/l/" || strings.HasSuffix(u.Path, "/l/") {
		target := u.Query().Get("uddg")
		if target == "" {
			return ""
		}
		return target
	}

	if u.Scheme == "http" || u.Scheme == "https" {
		return href
	}

	return ""
}

func getAttr(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(getAttr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func nodeText(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}

	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		b.WriteString(nodeText(c))
	}
	return b.String()
}
