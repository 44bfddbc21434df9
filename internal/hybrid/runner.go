// Package hybrid implements the web-to-file fast path: browse once,
// synthesize a markdown document, write it under the documents
// directory. Content delimited by the sentinel literals survives
// synthesis verbatim.
package hybrid

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"agentflow/internal/classify"
	"agentflow/internal/logging"
	"agentflow/internal/types"
)

// Runner executes the hybrid shape. It browses exactly once; fallback
// on failure belongs to the engine, not the runner.
type Runner struct {
	llm          types.LLMClient
	web          types.WebBrowser
	files        types.FileStore
	documentsDir string
}

// NewRunner wires a hybrid runner.
func NewRunner(llm types.LLMClient, web types.WebBrowser, files types.FileStore, documentsDir string) *Runner {
	return &Runner{llm: llm, web: web, files: files, documentsDir: documentsDir}
}

const synthesisPrompt = `Write a markdown document answering this request:

%s

Source material gathered from the web:
%s

Requirements:
- Start with a title heading, then section headings.
- End with a "# Sources" list of the actual source URLs, not search URLs.
- If a "Detailed Analysis from Top Sources" section exists in the material, preserve it verbatim.
- Output only the document, no commentary.`

// Run browses, synthesizes, and writes one file. Failures are reported
// in the TaskResult; the runner never retries or falls back itself.
func (r *Runner) Run(ctx context.Context, request string) types.TaskResult {
	logging.Hybrid("hybrid run: %s", request)

	browsed, err := r.web.Browse(ctx, request)
	if err != nil {
		return types.Failure(fmt.Sprintf("browse failed: %v", err))
	}

	content := browsed.Content
	if strings.TrimSpace(content) == "" {
		content = stitch(browsed)
	}

	preserved, remainder := extractPreserved(content)
	if preserved != "" {
		logging.HybridDebug("preserved block found (%d bytes)", len(preserved))
	}

	var draft string
	if markdownStructured(remainder) {
		// Already a full document; skip the LLM round-trip.
		draft = remainder
	} else {
		draft, err = r.llm.Complete(ctx, fmt.Sprintf(synthesisPrompt, request, limit(remainder, 6000)))
		if err != nil {
			return types.Failure(fmt.Sprintf("synthesis failed: %v", err))
		}
		if strings.TrimSpace(draft) == "" {
			return types.Failure("synthesis produced empty draft")
		}
	}

	final := splicePreserved(draft, preserved)
	final = appendSources(final, browsed.URL, preserved)

	spec := classify.ExtractFileSpec(request)
	if err := r.files.MkdirAll(r.documentsDir); err != nil {
		return types.Failure(fmt.Sprintf("failed to create documents dir: %v", err))
	}
	target := filepath.Join(r.documentsDir, spec.Filename)
	if err := r.files.Write(target, []byte(final)); err != nil {
		return types.Failure(fmt.Sprintf("failed to write %s: %v", target, err))
	}

	logging.Hybrid("wrote %s (%d bytes) from %s", target, len(final), browsed.Domain)
	return types.TaskResult{
		Success: true,
		Artifacts: map[string]any{
			"filename":        target,
			"content_preview": limit(final, 200),
			"web_url":         browsed.URL,
			"web_domain":      browsed.Domain,
		},
	}
}

// stitch builds fallback source material when the browse returned no
// body content.
func stitch(b *types.BrowseResult) string {
	var sb strings.Builder
	if b.Title != "" {
		sb.WriteString(b.Title + "\n\n")
	}
	for _, h := range b.Headlines {
		sb.WriteString("- " + h + "\n")
	}
	if b.URL != "" {
		sb.WriteString("\nSource: " + b.URL + "\n")
	}
	return sb.String()
}

func limit(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
