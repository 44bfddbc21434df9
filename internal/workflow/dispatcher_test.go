package workflow

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"agentflow/internal/types"
)

func newTestDispatcher(llm *mockLLM, web *mockWeb, vision *mockVision, files *mockFiles, dir string) *Dispatcher {
	if llm == nil {
		llm = &mockLLM{}
	}
	if web == nil {
		web = &mockWeb{}
	}
	if vision == nil {
		vision = &mockVision{}
	}
	if files == nil {
		files = newMockFiles()
	}
	return NewDispatcher(llm, web, vision, files, dir)
}

func TestDispatchUnknownTypeFails(t *testing.T) {
	d := newTestDispatcher(nil, nil, nil, nil, "docs")
	res := d.Dispatch(context.Background(), &Task{ID: "t1", Type: "teleportation"}, nil)
	if res.Success {
		t.Fatal("unknown task type must fail")
	}
	if !strings.Contains(res.Error, "no handler") {
		t.Fatalf("unexpected error: %q", res.Error)
	}
}

func TestDispatchFileCreationWritesNamedFile(t *testing.T) {
	llm := &mockLLM{
		CompleteFunc: func(ctx context.Context, prompt string) (string, error) {
			return "Leaves are falling.\n", nil
		},
	}
	files := newMockFiles()
	d := newTestDispatcher(llm, nil, nil, files, "docs")

	task := &Task{ID: "t1", Type: TypeFileCreation,
		Description: "Create a poem about autumn and save it as autumn_poem.txt"}
	res := d.Dispatch(context.Background(), task, nil)
	if !res.Success {
		t.Fatalf("dispatch failed: %s", res.Error)
	}

	target := filepath.Join("docs", "autumn_poem.txt")
	if res.Artifacts["filename"] != target {
		t.Fatalf("filename artifact = %v, want %s", res.Artifacts["filename"], target)
	}
	if files.content(target) != "Leaves are falling.\n" {
		t.Fatalf("file content = %q", files.content(target))
	}
	if !files.dirs["docs"] {
		t.Fatal("documents dir was not created")
	}
}

func TestDispatchFileCreationStripsOuterFence(t *testing.T) {
	llm := &mockLLM{
		CompleteFunc: func(ctx context.Context, prompt string) (string, error) {
			return "```\nplain content\n```", nil
		},
	}
	files := newMockFiles()
	d := newTestDispatcher(llm, nil, nil, files, "docs")

	res := d.Dispatch(context.Background(), &Task{ID: "t1", Type: TypeFileCreation,
		Description: "write notes.txt"}, nil)
	if !res.Success {
		t.Fatalf("dispatch failed: %s", res.Error)
	}
	if got := files.content(filepath.Join("docs", "notes.txt")); got != "plain content" {
		t.Fatalf("content = %q, want fence stripped", got)
	}
}

func TestDispatchFileCreationFoldsDependencyMaterial(t *testing.T) {
	var prompt string
	llm := &mockLLM{
		CompleteFunc: func(ctx context.Context, p string) (string, error) {
			prompt = p
			return "summary text", nil
		},
	}
	d := newTestDispatcher(llm, nil, nil, nil, "docs")

	deps := []*Task{
		{ID: "d1", Description: "research step", State: TaskCompleted,
			Result: &types.TaskResult{Success: true,
				Artifacts: map[string]any{"full_content": "gathered facts"}}},
		{ID: "d2", Description: "failed step", State: TaskFailed,
			Result: &types.TaskResult{Success: false, Error: "boom",
				Artifacts: map[string]any{"full_content": "must not appear"}}},
	}
	res := d.Dispatch(context.Background(), &Task{ID: "t1", Type: TypeFileCreation,
		Description: "write a summary file"}, deps)
	if !res.Success {
		t.Fatalf("dispatch failed: %s", res.Error)
	}
	if !strings.Contains(prompt, "gathered facts") {
		t.Fatal("dependency material missing from prompt")
	}
	if strings.Contains(prompt, "must not appear") {
		t.Fatal("failed dependency material leaked into prompt")
	}
}

func TestDispatchWebBrowsingArtifacts(t *testing.T) {
	web := &mockWeb{
		BrowseFunc: func(ctx context.Context, request string) (*types.BrowseResult, error) {
			return &types.BrowseResult{
				URL:       "https://news.example.com/story",
				Domain:    "news.example.com",
				Title:     "Story",
				Headlines: []string{"First", "Second"},
				Content:   strings.Repeat("x", 500),
			}, nil
		},
	}
	d := newTestDispatcher(nil, web, nil, nil, "docs")

	res := d.Dispatch(context.Background(), &Task{ID: "t1", Type: TypeWebBrowsing,
		Description: "check the news"}, nil)
	if !res.Success {
		t.Fatalf("dispatch failed: %s", res.Error)
	}
	if res.Artifacts["url"] != "https://news.example.com/story" {
		t.Fatalf("url artifact = %v", res.Artifacts["url"])
	}
	if res.Artifacts["domain"] != "news.example.com" {
		t.Fatalf("domain artifact = %v", res.Artifacts["domain"])
	}
	preview, _ := res.Artifacts["content_preview"].(string)
	if len(preview) != 200 {
		t.Fatalf("content_preview length = %d, want 200", len(preview))
	}
	full, _ := res.Artifacts["full_content"].(string)
	if len(full) != 500 {
		t.Fatalf("full_content length = %d, want 500", len(full))
	}
}

func TestDispatchWebBrowsingFailure(t *testing.T) {
	web := &mockWeb{
		BrowseFunc: func(ctx context.Context, request string) (*types.BrowseResult, error) {
			return nil, fmt.Errorf("dns failure")
		},
	}
	d := newTestDispatcher(nil, web, nil, nil, "docs")

	res := d.Dispatch(context.Background(), &Task{ID: "t1", Type: TypeWebBrowsing,
		Description: "check the news"}, nil)
	if res.Success {
		t.Fatal("browse failure must fail the task")
	}
	if !strings.Contains(res.Error, "dns failure") {
		t.Fatalf("error = %q", res.Error)
	}
}

func TestDispatchImageAnalysisPathFromDescription(t *testing.T) {
	var gotPath string
	vision := &mockVision{
		AnalyzeFunc: func(ctx context.Context, imagePath, prompt string) (string, error) {
			gotPath = imagePath
			return "a red bicycle", nil
		},
	}
	d := newTestDispatcher(nil, nil, vision, nil, "docs")

	res := d.Dispatch(context.Background(), &Task{ID: "t1", Type: TypeImageAnalysis,
		Description: "describe photos/bike.jpg in detail"}, nil)
	if !res.Success {
		t.Fatalf("dispatch failed: %s", res.Error)
	}
	if gotPath != "photos/bike.jpg" {
		t.Fatalf("image path = %q", gotPath)
	}
	if res.Artifacts["analysis"] != "a red bicycle" {
		t.Fatalf("analysis artifact = %v", res.Artifacts["analysis"])
	}
}

func TestDispatchImageAnalysisParameterWins(t *testing.T) {
	var gotPath string
	vision := &mockVision{
		AnalyzeFunc: func(ctx context.Context, imagePath, prompt string) (string, error) {
			gotPath = imagePath
			return "ok", nil
		},
	}
	d := newTestDispatcher(nil, nil, vision, nil, "docs")

	res := d.Dispatch(context.Background(), &Task{ID: "t1", Type: TypeImageAnalysis,
		Description: "describe other.png",
		Parameters:  map[string]string{"image_path": "exact/path.png"}}, nil)
	if !res.Success {
		t.Fatalf("dispatch failed: %s", res.Error)
	}
	if gotPath != "exact/path.png" {
		t.Fatalf("image path = %q, parameter should win", gotPath)
	}
}

func TestDispatchImageAnalysisWithoutPathFails(t *testing.T) {
	d := newTestDispatcher(nil, nil, nil, nil, "docs")
	res := d.Dispatch(context.Background(), &Task{ID: "t1", Type: TypeImageAnalysis,
		Description: "describe the picture"}, nil)
	if res.Success {
		t.Fatal("missing image path must fail")
	}
}

func TestDispatchGeneral(t *testing.T) {
	llm := &mockLLM{
		CompleteFunc: func(ctx context.Context, prompt string) (string, error) {
			return "forty-two", nil
		},
	}
	d := newTestDispatcher(llm, nil, nil, nil, "docs")

	res := d.Dispatch(context.Background(), &Task{ID: "t1", Type: TypeGeneral,
		Description: "answer the question"}, nil)
	if !res.Success {
		t.Fatalf("dispatch failed: %s", res.Error)
	}
	if res.Artifacts["message"] != "forty-two" {
		t.Fatalf("message artifact = %v", res.Artifacts["message"])
	}
}
