package report

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"gopkg.in/yaml.v3"

	"github.com/mempirate/delver/document"
	"github.com/mempirate/delver/util"
)

// htmlTemplate wraps a rendered report body into a standalone page that
// prints well.
const htmlTemplate = `<html>
<head>
    <style>
        body { font-family: Helvetica, sans-serif; font-size: 12px; }
        h1 { color: #333; font-size: 24px; }
        h2 { color: #444; font-size: 20px; }
        h3 { color: #555; font-size: 16px; }
        p { line-height: 1.5; }
        code { background-color: #f4f4f4; padding: 2px; }
        pre { background-color: #f4f4f4; padding: 10px; }
    </style>
</head>
<body>
%s
</body>
</html>`

// Report is the final artifact of a research run.
type Report struct {
	// Topic is the research topic as given by the user.
	Topic string
	// Body is the report markdown produced by the writer.
	Body string
	// GeneratedAt is when the run finished.
	GeneratedAt time.Time
	// Sources holds the metadata of every page that informed the report.
	Sources []document.Metadata
}

type frontMatter struct {
	Topic       string   `yaml:"topic"`
	GeneratedAt string   `yaml:"generatedAt"`
	Sources     []string `yaml:"sources,omitempty"`
}

// Title returns the first H1 of the body, or the topic when the body has
// none.
func (r *Report) Title() string {
	doc := document.Document{Content: r.Body}
	if title := doc.FindTitle(); title != "" {
		return title
	}

	return r.Topic
}

// FileName returns a slugified file name for the report.
func (r *Report) FileName() string {
	name := util.Slugify(r.Topic)
	if name == "" {
		name = "report"
	}

	return name + ".md"
}

// Markdown renders the report as markdown with YAML front matter carrying the
// topic, generation time and source URLs.
func (r *Report) Markdown() (string, error) {
	fm, err := yaml.Marshal(frontMatter{
		Topic:       r.Topic,
		GeneratedAt: r.GeneratedAt.Format(time.RFC3339),
		Sources:     r.sourceURLs(),
	})
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal front matter")
	}

	var builder strings.Builder
	builder.WriteString("---\n")
	builder.Write(fm)
	builder.WriteString("---\n")
	builder.WriteString(r.Body)

	return builder.String(), nil
}

// HTML renders the report body to a styled standalone HTML page for export.
func (r *Report) HTML() (string, error) {
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))

	var body bytes.Buffer
	if err := md.Convert([]byte(r.Body), &body); err != nil {
		return "", errors.Wrap(err, "failed to render markdown")
	}

	return fmt.Sprintf(htmlTemplate, body.String()), nil
}

func (r *Report) sourceURLs() []string {
	urls := make([]string, 0, len(r.Sources))
	for _, src := range r.Sources {
		if src.Source != "" {
			urls = append(urls, src.Source)
		}
	}

	return urls
}
