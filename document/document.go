package document

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
	"gopkg.in/yaml.v3"

	"github.com/mempirate/delver/util"
)

type Type = string

const (
	TypeArticle Type = "article"
	TypePDF     Type = "pdf"
	TypeReport  Type = "report"
)

// Metadata describes where a document came from and how it was obtained.
// It is rendered as YAML front matter by ToMarkdown.
type Metadata struct {
	Title       string `yaml:"title"`
	Description string `yaml:"description,omitempty"`
	// Query is the search query that surfaced this source, if any.
	Query         string   `yaml:"query,omitempty"`
	Source        string   `yaml:"source"`
	SiteName      string   `yaml:"siteName,omitempty"`
	PublishedTime string   `yaml:"publishedTime,omitempty"`
	ModifiedTime  string   `yaml:"modifiedTime,omitempty"`
	RetrievedTime string   `yaml:"retrievedTime"`
	Type          Type     `yaml:"type"`
	Links         []string `yaml:"links,omitempty"`
}

// Document is a scraped source in markdown form.
type Document struct {
	// The markdown content of the scraped document.
	Content string
	// Metadata about the document.
	Metadata Metadata
}

func (d *Document) HasTitle() bool {
	return d.Metadata.Title != ""
}

// FindTitle returns the document title, falling back to the first H1 in the
// markdown content when the metadata has none. A found fallback is written
// back into the metadata.
func (d *Document) FindTitle() string {
	if d.Metadata.Title != "" {
		return d.Metadata.Title
	}

	md := goldmark.New(
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
	)

	content := []byte(d.Content)
	reader := text.NewReader(content)
	doc := md.Parser().Parse(reader)

	var title string
	ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if heading, ok := n.(*ast.Heading); ok && entering && heading.Level == 1 {
			var titleBuilder strings.Builder
			for child := heading.FirstChild(); child != nil; child = child.NextSibling() {
				if text, ok := child.(*ast.Text); ok {
					titleBuilder.Write(text.Segment.Value(content))
				}
			}
			title = titleBuilder.String()
			return ast.WalkStop, nil
		}
		return ast.WalkContinue, nil
	})

	d.Metadata.Title = title

	return title
}

// TruncatedContent returns the markdown content capped at n runes. The
// researcher uses this to keep scraped pages inside the model context.
func (d *Document) TruncatedContent(n int) string {
	return util.TruncateRunes(d.Content, n)
}

// ToMarkdown converts the Document to a markdown string, with metadata as YAML
// front matter. It returns the filename and the markdown content, and an
// optional error.
func (d *Document) ToMarkdown() (string, string, error) {
	d.FindTitle()

	var builder strings.Builder
	frontMatter, err := yaml.Marshal(d.Metadata)
	if err != nil {
		return "", "", errors.Wrap(err, "failed to marshal metadata to YAML")
	}

	builder.WriteString("---\n")
	builder.Write(frontMatter)
	builder.WriteString("---\n")
	builder.WriteString(d.Content)

	fileName := util.Slugify(d.Metadata.Title)
	if fileName == "" {
		fileName = "document"
	}
	fileName += ".md"

	return fileName, builder.String(), nil
}
