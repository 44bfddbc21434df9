package hybrid

import (
	"regexp"
	"strings"
)

// The sentinel literals are an external contract: content between them
// must survive synthesis byte for byte. Do not generalize them.
const (
	SentinelStart = "!!DETAILED_ANALYSIS_SECTION_START!!"
	SentinelEnd   = "!!DETAILED_ANALYSIS_SECTION_END!!"
)

// preservedHeading guards against double insertion when the LLM already
// kept the section.
const preservedHeading = "Detailed Analysis from Top Sources"

const sourcesHeading = "# Sources"

var urlInTextPattern = regexp.MustCompile(`https?://[^\s)\]">]+`)

// extractPreserved splits content into the sentinel-delimited block
// (inclusive of both sentinels) and the remainder with the block removed.
// Returns an empty block when either sentinel is missing.
func extractPreserved(content string) (block, remainder string) {
	start := strings.Index(content, SentinelStart)
	if start < 0 {
		return "", content
	}
	end := strings.Index(content[start:], SentinelEnd)
	if end < 0 {
		return "", content
	}
	end = start + end + len(SentinelEnd)

	block = content[start:end]
	remainder = content[:start] + content[end:]
	return block, remainder
}

// splicePreserved inserts the preserved block immediately before the
// "# Sources" heading, or appends it when the draft has no such section.
// Drafts that already carry the preserved section are left alone.
func splicePreserved(draft, block string) string {
	if block == "" || strings.Contains(draft, preservedHeading) || strings.Contains(draft, block) {
		return draft
	}

	if idx := strings.Index(draft, sourcesHeading); idx >= 0 {
		return draft[:idx] + block + "\n\n" + draft[idx:]
	}
	return strings.TrimRight(draft, "\n") + "\n\n" + block + "\n"
}

// appendSources ensures a single Sources section listing the main URL
// first, then any URLs found in the preserved block, deduplicated and
// skipping URLs the draft already lists.
func appendSources(draft, mainURL, block string) string {
	var ordered []string
	seen := make(map[string]bool)
	add := func(u string) {
		u = strings.TrimRight(u, ".,;")
		if u == "" || seen[u] {
			return
		}
		seen[u] = true
		if !strings.Contains(draft, u) {
			ordered = append(ordered, u)
		}
	}

	add(mainURL)
	for _, u := range urlInTextPattern.FindAllString(block, -1) {
		add(u)
	}

	if len(ordered) == 0 {
		return draft
	}

	var sb strings.Builder
	sb.WriteString(strings.TrimRight(draft, "\n"))
	if !strings.Contains(draft, sourcesHeading) {
		sb.WriteString("\n\n" + sourcesHeading + "\n")
	} else {
		sb.WriteString("\n")
	}
	for _, u := range ordered {
		sb.WriteString("- " + u + "\n")
	}
	return sb.String()
}

// markdownStructured reports whether content already reads as a full
// markdown document: a title heading, at least one section heading, and
// enough length to stand on its own.
func markdownStructured(content string) bool {
	return strings.Contains(content, "# ") &&
		strings.Contains(content, "## ") &&
		len(content) > 1000
}
