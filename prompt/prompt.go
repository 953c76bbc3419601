package prompt

import (
	"fmt"
	"strings"
)

// PLANNER_INSTRUCTIONS is the system prompt for the planning stage. The
// response contract (one query per line, no decoration) is what ParsePlan
// expects on the way back.
const PLANNER_INSTRUCTIONS = "You are a research planner. Break down the user's topic into 3 distinct, " +
	"search-optimized queries. Return ONLY the 3 queries, one per line. " +
	"Do not include numbering or bullet points."

const RESEARCHER_PROMPT = "You are a research assistant. Analyze the following scraped text for the query: '%s'. " +
	"Provide a concise, fact-heavy summary of the key information found. " +
	"Ignore irrelevant navigation or boilerplate text.\n\n%s"

const WRITER_PROMPT = "You are a professional technical writer. The user asked for a report on: '%s'.\n" +
	"Below are the summaries from the research phase:\n\n%s\n\n" +
	"Write a comprehensive, well-structured Markdown report based ONLY on the above findings. " +
	"Include a Title, Introduction, Key Findings (structured appropriately), and Conclusion."

// NULL_SUMMARY is recorded for a query none of whose search hits could be
// scraped. Reports assembled from nothing but null summaries still get
// written; they document the absence of results.
const NULL_SUMMARY = "No detailed information could be scraped for the query: %s"

// SOURCE_FRAME wraps one scraped page for the researcher prompt.
const SOURCE_FRAME = "SOURCE: %s\nCONTENT:\n%s"

// SUMMARY_SEPARATOR joins the per-query summaries for the writer prompt.
const SUMMARY_SEPARATOR = "\n\n---\n\n"

func CreateResearcherPrompt(query, scraped string) string {
	return fmt.Sprintf(RESEARCHER_PROMPT, query, scraped)
}

func CreateWriterPrompt(topic string, summaries []string) string {
	return fmt.Sprintf(WRITER_PROMPT, topic, strings.Join(summaries, SUMMARY_SEPARATOR))
}

func CreateNullSummary(query string) string {
	return fmt.Sprintf(NULL_SUMMARY, query)
}

func CreateSourceFrame(source, content string) string {
	return fmt.Sprintf(SOURCE_FRAME, source, content)
}

// ParsePlan extracts up to max queries from a planner response: one query per
// line, trimmed, empties dropped. Models occasionally number the lines anyway,
// so common list prefixes are stripped.
func ParsePlan(response string, max int) []string {
	lines := strings.Split(strings.TrimSpace(response), "\n")

	queries := make([]string, 0, max)
	for _, line := range lines {
		if len(queries) == max {
			break
		}

		query := stripListPrefix(strings.TrimSpace(line))
		if query == "" {
			continue
		}

		queries = append(queries, query)
	}

	return queries
}

func stripListPrefix(line string) string {
	for _, prefix := range []string{"- ", "* ", "+ "} {
		if strings.HasPrefix(line, prefix) {
			return strings.TrimSpace(strings.TrimPrefix(line, prefix))
		}
	}

	// Numbered prefixes: "1. query", "2) query".
	i := 0
	for i < len(line) && line[i] >= '0' && line[i] <= '9' {
		i++
	}
	if i > 0 && i < len(line) && (line[i] == '.' || line[i] == ')') {
		return strings.TrimSpace(line[i+1:])
	}

	return line
}
