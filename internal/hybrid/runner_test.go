package hybrid

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"agentflow/internal/types"
)

type stubLLM struct {
	mu           sync.Mutex
	count        int
	CompleteFunc func(ctx context.Context, prompt string) (string, error)
}

func (s *stubLLM) Complete(ctx context.Context, prompt string) (string, error) {
	s.mu.Lock()
	s.count++
	s.mu.Unlock()
	if s.CompleteFunc != nil {
		return s.CompleteFunc(ctx, prompt)
	}
	return "# Title\n\n## Findings\n\ncontent\n", nil
}

func (s *stubLLM) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return s.Complete(ctx, userPrompt)
}

type stubWeb struct {
	mu         sync.Mutex
	count      int
	BrowseFunc func(ctx context.Context, request string) (*types.BrowseResult, error)
}

func (s *stubWeb) Browse(ctx context.Context, request string) (*types.BrowseResult, error) {
	s.mu.Lock()
	s.count++
	s.mu.Unlock()
	return s.BrowseFunc(ctx, request)
}

type stubFiles struct {
	mu    sync.Mutex
	files map[string][]byte
	dirs  map[string]bool
}

func newStubFiles() *stubFiles {
	return &stubFiles{files: make(map[string][]byte), dirs: make(map[string]bool)}
}

func (s *stubFiles) Write(path string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[path] = append([]byte(nil), data...)
	return nil
}

func (s *stubFiles) MkdirAll(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dirs[path] = true
	return nil
}

func (s *stubFiles) Read(path string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.files[path]
	if !ok {
		return nil, fmt.Errorf("no such file: %s", path)
	}
	return data, nil
}

func browseResult(content string) *types.BrowseResult {
	return &types.BrowseResult{
		URL:     "https://example.com/page",
		Domain:  "example.com",
		Title:   "Example Page",
		Content: content,
	}
}

func TestRunnerWritesSynthesizedFile(t *testing.T) {
	web := &stubWeb{BrowseFunc: func(ctx context.Context, request string) (*types.BrowseResult, error) {
		return browseResult("raw page text about climate"), nil
	}}
	llm := &stubLLM{}
	files := newStubFiles()
	r := NewRunner(llm, web, files, "docs")

	res := r.Run(context.Background(), "Search for information about climate change and create a summary file")
	if !res.Success {
		t.Fatalf("run failed: %s", res.Error)
	}

	target := filepath.Join("docs", "summary.txt")
	if res.Artifacts["filename"] != target {
		t.Errorf("filename artifact = %v, want %s", res.Artifacts["filename"], target)
	}
	if res.Artifacts["web_url"] != "https://example.com/page" {
		t.Errorf("web_url artifact = %v", res.Artifacts["web_url"])
	}
	if web.count != 1 {
		t.Errorf("browse invoked %d times, want exactly once", web.count)
	}

	written, err := files.Read(target)
	if err != nil {
		t.Fatalf("file not written: %v", err)
	}
	if len(written) == 0 {
		t.Fatal("written file is empty")
	}
}

func TestRunnerPreservesSentinelBlockExactlyOnce(t *testing.T) {
	block := SentinelStart + "\nALPHA\nBETA\n" + SentinelEnd
	web := &stubWeb{BrowseFunc: func(ctx context.Context, request string) (*types.BrowseResult, error) {
		return browseResult("intro text\n" + block + "\nmore text"), nil
	}}
	var llmInput string
	llm := &stubLLM{CompleteFunc: func(ctx context.Context, prompt string) (string, error) {
		llmInput = prompt
		return "# Climate Summary\n\n## Overview\n\ntext\n\n# Sources\n- https://example.com/page\n", nil
	}}
	files := newStubFiles()
	r := NewRunner(llm, web, files, "docs")

	res := r.Run(context.Background(), "Search for information about climate change and create a summary file")
	if !res.Success {
		t.Fatalf("run failed: %s", res.Error)
	}

	// The block is withheld from the LLM and re-inserted afterwards.
	if strings.Contains(llmInput, "ALPHA") {
		t.Error("preserved block leaked into the synthesis prompt")
	}

	written, err := files.Read(filepath.Join("docs", "summary.txt"))
	if err != nil {
		t.Fatalf("file not written: %v", err)
	}
	out := string(written)
	if strings.Count(out, "ALPHA\nBETA") != 1 {
		t.Fatalf("preserved content must appear exactly once:\n%s", out)
	}
	blockIdx := strings.Index(out, "ALPHA\nBETA")
	sourcesIdx := strings.Index(out, "# Sources")
	if sourcesIdx >= 0 && sourcesIdx < blockIdx {
		t.Error("preserved content must precede the Sources heading")
	}
}

func TestRunnerPassesThroughStructuredMarkdown(t *testing.T) {
	doc := "# Ready Made\n\n## Section One\n\n" + strings.Repeat("prose ", 200)
	web := &stubWeb{BrowseFunc: func(ctx context.Context, request string) (*types.BrowseResult, error) {
		return browseResult(doc), nil
	}}
	llm := &stubLLM{}
	files := newStubFiles()
	r := NewRunner(llm, web, files, "docs")

	res := r.Run(context.Background(), "Search the docs and write a report file")
	if !res.Success {
		t.Fatalf("run failed: %s", res.Error)
	}
	if llm.count != 0 {
		t.Errorf("LLM invoked %d times, want passthrough without synthesis", llm.count)
	}
}

func TestRunnerBrowseFailure(t *testing.T) {
	web := &stubWeb{BrowseFunc: func(ctx context.Context, request string) (*types.BrowseResult, error) {
		return nil, fmt.Errorf("net unreachable")
	}}
	r := NewRunner(&stubLLM{}, web, newStubFiles(), "docs")

	res := r.Run(context.Background(), "Search for news and save a summary")
	if res.Success {
		t.Fatal("browse failure must fail the run")
	}
	if !strings.Contains(res.Error, "browse failed") {
		t.Errorf("error = %q", res.Error)
	}
}

func TestRunnerSynthesisFailure(t *testing.T) {
	web := &stubWeb{BrowseFunc: func(ctx context.Context, request string) (*types.BrowseResult, error) {
		return browseResult("short text"), nil
	}}
	llm := &stubLLM{CompleteFunc: func(ctx context.Context, prompt string) (string, error) {
		return "", fmt.Errorf("model unavailable")
	}}
	r := NewRunner(llm, web, newStubFiles(), "docs")

	res := r.Run(context.Background(), "Search for news and save a summary")
	if res.Success {
		t.Fatal("synthesis failure must fail the run")
	}
	if !strings.Contains(res.Error, "synthesis failed") {
		t.Errorf("error = %q", res.Error)
	}
}

func TestRunnerStitchesWhenContentEmpty(t *testing.T) {
	web := &stubWeb{BrowseFunc: func(ctx context.Context, request string) (*types.BrowseResult, error) {
		return &types.BrowseResult{
			URL:       "https://example.com/page",
			Domain:    "example.com",
			Title:     "Bare Page",
			Headlines: []string{"One", "Two"},
		}, nil
	}}
	var llmInput string
	llm := &stubLLM{CompleteFunc: func(ctx context.Context, prompt string) (string, error) {
		llmInput = prompt
		return "# Doc\n\n## Part\n\ntext\n", nil
	}}
	files := newStubFiles()
	r := NewRunner(llm, web, files, "docs")

	res := r.Run(context.Background(), "Search for news and write a report file")
	if !res.Success {
		t.Fatalf("run failed: %s", res.Error)
	}
	if !strings.Contains(llmInput, "Bare Page") || !strings.Contains(llmInput, "- One") {
		t.Errorf("stitched fallback material missing from prompt:\n%s", llmInput)
	}
}
