package classify

import (
	"path/filepath"
	"regexp"
	"strings"
)

// FileSpec is the extractor's verdict: the target filename and the
// semantic content type of the requested artifact.
type FileSpec struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
}

// intentPattern is one entry of the ordered filename pattern table.
// Patterns capture the filename in group 1 or 2 (quoted vs bare).
type intentPattern struct {
	name     string
	re       *regexp.Regexp
	verbatim bool // filename already carries its extension; skip defaulting
}

// filenamePatterns are tried in order; first match wins.
var filenamePatterns = []intentPattern{
	{"named", regexp.MustCompile(`(?i)\bnamed\s+(?:"([^"]+)"|([\w.-]+))`), false},
	{"save_as", regexp.MustCompile(`(?i)\bsave\s+(?:(?:it|this|that|them|the\s+\w+)\s+)?(?:to|as|in)\s+(?:"([^"]+)"|([\w.-]+))`), false},
	{"save_file_named", regexp.MustCompile(`(?i)\bsave\s+(?:to|in|as)\s+(?:a\s+)?(?:file|document)\s+(?:named|called)\s+(?:"([^"]+)"|([\w.-]+))`), false},
	{"create_file_named", regexp.MustCompile(`(?i)\b(?:create|write)\s+(?:a\s+)?(?:file|document)\s+(?:named|called)\s+(?:"([^"]+)"|([\w.-]+))`), false},
	{"quoted", regexp.MustCompile(`"([^"]+)"`), false},
	{"bare_filename", regexp.MustCompile(`\b([\w-]+\.[A-Za-z]{2,4})\b`), true},
	{"file_named", regexp.MustCompile(`(?i)\bfile\s+(?:named|called)\s+(?:"([^"]+)"|([\w.-]+))`), false},
	{"named_at_end", regexp.MustCompile(`(?i)\bnamed\s+"([^"]+)"[.?!]?\s*$`), false},
}

// contentTypeKeywords map request keywords to a content type label,
// first match wins. "document" is the fallback.
var contentTypeKeywords = []string{
	"essay", "story", "poem", "report", "summary", "letter",
	"script", "code", "recipe", "note",
}

// ExtractFileSpec derives the target filename and content type from a
// request. It always returns a non-empty filename with an extension.
func ExtractFileSpec(request string) FileSpec {
	contentType := extractContentType(request)

	for _, p := range filenamePatterns {
		m := p.re.FindStringSubmatch(request)
		if m == nil {
			continue
		}
		name := m[1]
		if name == "" && len(m) > 2 {
			name = m[2]
		}
		name = sanitizeFilename(name)
		if name == "" {
			continue
		}
		if !p.verbatim && filepath.Ext(name) == "" {
			name += ".txt"
		}
		return FileSpec{Filename: name, ContentType: contentType}
	}

	return FileSpec{Filename: contentType + ".txt", ContentType: contentType}
}

// extractContentType scans the keyword table in order.
func extractContentType(request string) string {
	lower := strings.ToLower(request)
	for _, kw := range contentTypeKeywords {
		if containsWord(lower, kw) {
			return kw
		}
	}
	return "document"
}

func containsWord(haystack, word string) bool {
	idx := 0
	for {
		i := strings.Index(haystack[idx:], word)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(word)
		beforeOK := start == 0 || !isWordChar(haystack[start-1])
		afterOK := end == len(haystack) || !isWordChar(haystack[end])
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
	}
}

// sanitizeFilename reduces a captured token to a safe basename.
func sanitizeFilename(name string) string {
	name = strings.TrimSpace(name)
	name = strings.Trim(name, `"'`)
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(name)
	name = strings.Trim(name, ". ")
	if name == "" || name == "/" || name == ".." {
		return ""
	}
	return name
}
