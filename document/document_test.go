package document

import (
	"strings"
	"testing"
)

func TestFindTitle(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		expected string
	}{
		{
			name:     "empty",
			content:  "",
			expected: "",
		},
		{
			name:     "simple",
			content:  "# Title\n",
			expected: "Title",
		},
		{
			name:     "empty title",
			content:  "#\n",
			expected: "",
		},
		{
			name:     "no title",
			content:  "content",
			expected: "",
		},
		{
			name:     "multiple titles",
			content:  "# Title 1\n# Title 2\n",
			expected: "Title 1",
		},
		{
			name:     "h2 before h1",
			content:  "## Section\n# Real Title\n",
			expected: "Real Title",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			doc := &Document{
				Content: test.content,
			}

			title := doc.FindTitle()
			if title != test.expected {
				t.Errorf("unexpected title: %s", title)
			}
		})
	}
}

func TestFindTitlePrefersMetadata(t *testing.T) {
	doc := &Document{
		Content:  "# Content Title\n",
		Metadata: Metadata{Title: "Meta Title"},
	}

	if title := doc.FindTitle(); title != "Meta Title" {
		t.Errorf("unexpected title: %s", title)
	}
}

func TestTruncatedContent(t *testing.T) {
	doc := &Document{Content: "0123456789"}

	if got := doc.TruncatedContent(4); got != "0123" {
		t.Errorf("unexpected content: %q", got)
	}

	if got := doc.TruncatedContent(100); got != "0123456789" {
		t.Errorf("unexpected content: %q", got)
	}
}

func TestToMarkdown(t *testing.T) {
	doc := &Document{
		Content: "# LangChain Docs\n\nSome body.\n",
		Metadata: Metadata{
			Source:        "https://example.com/docs",
			Query:         "langchain documentation",
			RetrievedTime: "2025-01-02T15:04:05Z",
			Type:          TypeArticle,
		},
	}

	name, md, err := doc.ToMarkdown()
	if err != nil {
		t.Fatal(err)
	}

	if name != "langchain-docs.md" {
		t.Errorf("unexpected filename: %s", name)
	}

	if !strings.HasPrefix(md, "---\n") {
		t.Error("missing front matter open")
	}

	for _, want := range []string{
		"title: LangChain Docs",
		"source: https://example.com/docs",
		"query: langchain documentation",
		"type: article",
		"# LangChain Docs",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q", want)
		}
	}
}

func TestToMarkdownUntitled(t *testing.T) {
	doc := &Document{
		Content:  "plain text, no heading",
		Metadata: Metadata{Source: "https://example.com", Type: TypeArticle},
	}

	name, _, err := doc.ToMarkdown()
	if err != nil {
		t.Fatal(err)
	}

	if name != "document.md" {
		t.Errorf("unexpected filename: %s", name)
	}
}
