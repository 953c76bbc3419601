package util

import (
	"fmt"
	"strings"
	"unicode"
)

const KiB = 1024
const MiB = KiB * 1024
const GiB = MiB * 1024

func FormatBytes(bytes int64) string {
	if bytes < KiB {
		return fmt.Sprintf("%dB", bytes)
	} else if bytes < MiB {
		return fmt.Sprintf("%.1fKiB", float64(bytes)/KiB)
	} else if bytes < GiB {
		return fmt.Sprintf("%.1fMiB", float64(bytes)/MiB)
	} else {
		return fmt.Sprintf("%.1fGiB", float64(bytes)/GiB)
	}
}

// TruncateRunes caps s at n runes. Byte-based slicing would split multi-byte
// characters on non-ASCII pages.
func TruncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}

	runes := []rune(s)
	if len(runes) <= n {
		return s
	}

	return string(runes[:n])
}

// Slugify converts a topic or title into a filesystem- and URL-safe slug.
// Example: "LangChain Documentation & RAG" -> "langchain-documentation-rag".
func Slugify(s string) string {
	s = strings.ToLower(s)

	var b strings.Builder
	lastDash := false
	for _, r := range s {
		if (unicode.IsLetter(r) && r <= unicode.MaxASCII) || unicode.IsDigit(r) {
			b.WriteRune(r)
			lastDash = false
		} else if !lastDash && b.Len() > 0 {
			b.WriteByte('-')
			lastDash = true
		}
	}

	slug := strings.Trim(b.String(), "-")

	const maxLen = 64
	if len(slug) > maxLen {
		slug = strings.TrimRight(slug[:maxLen], "-")
	}

	return slug
}
