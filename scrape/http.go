package scrape

import (
	"bytes"
	"context"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"

	"github.com/mempirate/delver/document"
	"github.com/mempirate/delver/log"
	"github.com/mempirate/delver/util"
)

const USER_AGENT = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36"

// Pages larger than this are cut off before parsing.
const MAX_BODY_BYTES = 10 * util.MiB

// Extractions shorter than this count as no content. Keeps link farms and
// cookie walls out of the researcher prompt.
const MIN_CONTENT_RUNES = 40

// Elements that never carry main content.
var boilerplateTags = map[string]struct{}{
	"script":   {},
	"style":    {},
	"noscript": {},
	"nav":      {},
	"header":   {},
	"footer":   {},
	"aside":    {},
	"form":     {},
	"iframe":   {},
	"svg":      {},
	"button":   {},
}

// HTTP scrapes pages with a plain HTTP client and local content extraction:
// boilerplate elements are dropped from the parsed tree and the remainder is
// converted to markdown.
type HTTP struct {
	log    zerolog.Logger
	client *http.Client
}

func NewHTTP(timeout time.Duration) *HTTP {
	return &HTTP{
		log:    log.NewLogger("scrape"),
		client: &http.Client{Timeout: timeout},
	}
}

func (s *HTTP) Name() string {
	return "http"
}

func (s *HTTP) Scrape(ctx context.Context, uri *url.URL) (*document.Document, error) {
	body, err := s.fetch(ctx, uri)
	if err != nil {
		return nil, err
	}

	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse HTML")
	}

	meta := extractMeta(doc)

	root := contentRoot(doc)
	stripBoilerplate(root)

	var rendered bytes.Buffer
	if err := html.Render(&rendered, root); err != nil {
		return nil, errors.Wrap(err, "failed to render content tree")
	}

	mdBody, err := md.ConvertReader(&rendered, converter.WithDomain(uri.Host))
	if err != nil {
		return nil, errors.Wrap(err, "failed to convert HTML to Markdown")
	}

	content := strings.TrimSpace(string(mdBody))
	if len([]rune(content)) < MIN_CONTENT_RUNES {
		return nil, ErrNoContent
	}

	d := &document.Document{
		Content: content,
		Metadata: document.Metadata{
			Title:         meta.title,
			Description:   meta.description,
			Source:        uri.String(),
			SiteName:      meta.siteName,
			PublishedTime: meta.published,
			ModifiedTime:  meta.modified,
			RetrievedTime: time.Now().Format(time.RFC3339),
			Type:          document.TypeArticle,
		},
	}

	// PDFs never reach this point, so anything untitled falls back to the
	// first heading of the converted markdown.
	d.FindTitle()

	s.log.Debug().
		Str("url", uri.String()).
		Str("title", d.Metadata.Title).
		Str("size", util.FormatBytes(int64(len(content)))).
		Msg("Page scraped")

	return d, nil
}

// fetch downloads the page, enforcing the content type and the body cap. The
// charset reader normalizes legacy encodings to UTF-8 before parsing.
func (s *HTTP) fetch(ctx context.Context, uri *url.URL) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri.String(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build request")
	}

	req.Header.Set("User-Agent", USER_AGENT)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch URL")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, errors.Errorf("fetch returned status %s", resp.Status)
	}

	ct, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse content type")
	}

	switch ct {
	case "text/html", "application/xhtml+xml":
	default:
		return nil, errors.Wrapf(ErrUnsupportedContent, "%s", ct)
	}

	reader, err := charset.NewReader(io.LimitReader(resp.Body, MAX_BODY_BYTES), resp.Header.Get("Content-Type"))
	if err != nil {
		return nil, errors.Wrap(err, "failed to detect charset")
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read body")
	}

	return body, nil
}

type pageMeta struct {
	title       string
	description string
	siteName    string
	published   string
	modified    string
}

// extractMeta pulls the title and the usual meta/OpenGraph fields out of the
// document head. OpenGraph wins over the bare title tag.
func extractMeta(doc *html.Node) pageMeta {
	var meta pageMeta
	var titleTag string

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "title":
				if n.FirstChild != nil && titleTag == "" {
					titleTag = strings.TrimSpace(n.FirstChild.Data)
				}
			case "meta":
				content := getAttr(n, "content")
				if content == "" {
					break
				}

				switch getAttr(n, "property") {
				case "og:title":
					meta.title = content
				case "og:description":
					if meta.description == "" {
						meta.description = content
					}
				case "og:site_name":
					meta.siteName = content
				case "article:published_time":
					meta.published = content
				case "article:modified_time":
					meta.modified = content
				}

				if getAttr(n, "name") == "description" && meta.description == "" {
					meta.description = content
				}
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	if meta.title == "" {
		meta.title = titleTag
	}
	meta.title = sanitizeTitle(meta.title)

	return meta
}

// contentRoot picks the most specific content container: article, then main,
// then body, then the whole document.
func contentRoot(doc *html.Node) *html.Node {
	for _, tag := range []string{"article", "main", "body"} {
		if n := findElement(doc, tag); n != nil {
			return n
		}
	}
	return doc
}

func findElement(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, tag); found != nil {
			return found
		}
	}

	return nil
}

// stripBoilerplate removes non-content elements from the tree in place.
func stripBoilerplate(n *html.Node) {
	var doomed []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			if _, ok := boilerplateTags[c.Data]; ok {
				doomed = append(doomed, c)
				continue
			}
		}
		stripBoilerplate(c)
	}

	for _, c := range doomed {
		n.RemoveChild(c)
	}
}

func getAttr(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

func sanitizeTitle(title string) string {
	return strings.Trim(strings.Join(strings.Fields(title), " "), " .")
}
