package workflow

import (
	"context"
	"fmt"
	"sync"

	"agentflow/internal/types"
)

// mockLLM records prompts and delegates to CompleteFunc.
type mockLLM struct {
	mu           sync.Mutex
	prompts      []string
	CompleteFunc func(ctx context.Context, prompt string) (string, error)
}

func (m *mockLLM) Complete(ctx context.Context, prompt string) (string, error) {
	m.mu.Lock()
	m.prompts = append(m.prompts, prompt)
	m.mu.Unlock()
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, prompt)
	}
	return "ok", nil
}

func (m *mockLLM) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return m.Complete(ctx, userPrompt)
}

func (m *mockLLM) calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.prompts))
	copy(out, m.prompts)
	return out
}

// mockWeb delegates to BrowseFunc and counts calls.
type mockWeb struct {
	mu         sync.Mutex
	count      int
	BrowseFunc func(ctx context.Context, request string) (*types.BrowseResult, error)
}

func (m *mockWeb) Browse(ctx context.Context, request string) (*types.BrowseResult, error) {
	m.mu.Lock()
	m.count++
	m.mu.Unlock()
	if m.BrowseFunc != nil {
		return m.BrowseFunc(ctx, request)
	}
	return &types.BrowseResult{
		URL:     "https://example.com/page",
		Domain:  "example.com",
		Title:   "Example",
		Content: "example content",
	}, nil
}

func (m *mockWeb) browseCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.count
}

// mockVision delegates to AnalyzeFunc.
type mockVision struct {
	AnalyzeFunc func(ctx context.Context, imagePath, prompt string) (string, error)
}

func (m *mockVision) Analyze(ctx context.Context, imagePath, prompt string) (string, error) {
	if m.AnalyzeFunc != nil {
		return m.AnalyzeFunc(ctx, imagePath, prompt)
	}
	return "a picture", nil
}

// mockFiles is an in-memory FileStore.
type mockFiles struct {
	mu      sync.Mutex
	files   map[string][]byte
	dirs    map[string]bool
	WriteErr error
}

func newMockFiles() *mockFiles {
	return &mockFiles{files: make(map[string][]byte), dirs: make(map[string]bool)}
}

func (m *mockFiles) Write(path string, data []byte) error {
	if m.WriteErr != nil {
		return m.WriteErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[path] = append([]byte(nil), data...)
	return nil
}

func (m *mockFiles) MkdirAll(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dirs[path] = true
	return nil
}

func (m *mockFiles) Read(path string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[path]
	if !ok {
		return nil, fmt.Errorf("no such file: %s", path)
	}
	return data, nil
}

func (m *mockFiles) content(path string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return string(m.files[path])
}
