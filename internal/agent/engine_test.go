package agent

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"agentflow/internal/classify"
	"agentflow/internal/hybrid"
	"agentflow/internal/types"
	"agentflow/internal/workflow"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLLM struct {
	mu           sync.Mutex
	count        int
	CompleteFunc func(ctx context.Context, prompt string) (string, error)
}

func (f *fakeLLM) Complete(ctx context.Context, prompt string) (string, error) {
	f.mu.Lock()
	f.count++
	f.mu.Unlock()
	if f.CompleteFunc != nil {
		return f.CompleteFunc(ctx, prompt)
	}
	return "generated content", nil
}

func (f *fakeLLM) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return f.Complete(ctx, userPrompt)
}

type fakeWeb struct {
	mu         sync.Mutex
	count      int
	BrowseFunc func(ctx context.Context, request string) (*types.BrowseResult, error)
}

func (f *fakeWeb) Browse(ctx context.Context, request string) (*types.BrowseResult, error) {
	f.mu.Lock()
	f.count++
	f.mu.Unlock()
	if f.BrowseFunc != nil {
		return f.BrowseFunc(ctx, request)
	}
	return &types.BrowseResult{
		URL:     "https://example.com/page",
		Domain:  "example.com",
		Title:   "Example",
		Content: "page content about the topic",
	}, nil
}

func (f *fakeWeb) browseCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.count
}

type fakeVision struct{}

func (fakeVision) Analyze(ctx context.Context, imagePath, prompt string) (string, error) {
	return "image description", nil
}

type fakeFiles struct {
	mu    sync.Mutex
	files map[string][]byte
}

func newFakeFiles() *fakeFiles {
	return &fakeFiles{files: make(map[string][]byte)}
}

func (f *fakeFiles) Write(path string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[path] = append([]byte(nil), data...)
	return nil
}

func (f *fakeFiles) MkdirAll(path string) error { return nil }

func (f *fakeFiles) Read(path string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.files[path]
	if !ok {
		return nil, fmt.Errorf("no such file: %s", path)
	}
	return data, nil
}

func (f *fakeFiles) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.files)
}

func newTestEngine(t *testing.T, llm *fakeLLM, web *fakeWeb, files *fakeFiles) *Engine {
	t.Helper()
	if llm == nil {
		llm = &fakeLLM{}
	}
	if web == nil {
		web = &fakeWeb{}
	}
	if files == nil {
		files = newFakeFiles()
	}

	store, err := workflow.NewStore(t.TempDir(), nil)
	require.NoError(t, err)

	dispatcher := workflow.NewDispatcher(llm, web, fakeVision{}, files, "docs")
	planner := workflow.NewPlanner(llm, store)
	executor := workflow.NewExecutor(store, dispatcher, 2, 0)
	runner := hybrid.NewRunner(llm, web, files, "docs")
	classifier := classify.NewClassifier(nil)

	return NewEngine(classifier, dispatcher, runner, planner, store, executor)
}

func TestEngineDirectFile(t *testing.T) {
	web := &fakeWeb{}
	files := newFakeFiles()
	e := newTestEngine(t, nil, web, files)

	out, err := e.Run(context.Background(), "Create a poem about autumn and save it as autumn_poem.txt")
	require.NoError(t, err)

	assert.Equal(t, classify.ShapeDirectFile, out.Shape)
	assert.True(t, out.Success)
	assert.Equal(t, filepath.Join("docs", "autumn_poem.txt"), out.Artifacts["filename"])
	assert.Zero(t, web.browseCount())

	content, err := files.Read(filepath.Join("docs", "autumn_poem.txt"))
	require.NoError(t, err)
	assert.NotEmpty(t, content)
}

func TestEngineWebOnly(t *testing.T) {
	web := &fakeWeb{}
	files := newFakeFiles()
	e := newTestEngine(t, nil, web, files)

	out, err := e.Run(context.Background(), "Search for information about climate change")
	require.NoError(t, err)

	assert.Equal(t, classify.ShapeWebOnly, out.Shape)
	assert.True(t, out.Success)
	assert.Equal(t, 1, web.browseCount())
	assert.Equal(t, "https://example.com/page", out.Artifacts["url"])
	assert.Contains(t, out.Artifacts, "content_preview")
	assert.Zero(t, files.count())
}

func TestEngineWebOnlyFailureWithoutSignalsReports(t *testing.T) {
	web := &fakeWeb{BrowseFunc: func(ctx context.Context, request string) (*types.BrowseResult, error) {
		return nil, fmt.Errorf("network down")
	}}
	e := newTestEngine(t, nil, web, nil)

	out, err := e.Run(context.Background(), "Search for information about climate change")
	require.NoError(t, err)

	assert.Equal(t, classify.ShapeWebOnly, out.Shape)
	assert.False(t, out.Success)
	assert.Contains(t, out.Message, "browse failed")
	assert.Equal(t, 1, web.browseCount())
}

func TestEngineWebOnlyFailureMultiStepRoutesToPlanner(t *testing.T) {
	web := &fakeWeb{BrowseFunc: func(ctx context.Context, request string) (*types.BrowseResult, error) {
		return nil, fmt.Errorf("network down")
	}}
	llm := &fakeLLM{CompleteFunc: func(ctx context.Context, prompt string) (string, error) {
		if strings.Contains(prompt, "task planner") {
			return `{"tasks": [{"description": "answer from prior knowledge", "type": "general", "depends_on": []}]}`, nil
		}
		return "planned answer", nil
	}}
	e := newTestEngine(t, llm, web, nil)

	out, err := e.Run(context.Background(), "Search and download the quarterly dataset")
	require.NoError(t, err)

	assert.Equal(t, classify.ShapeWebOnly, out.Shape)
	assert.True(t, out.Success)
	assert.NotEmpty(t, out.WorkflowID)
	// The failed browser is never re-invoked by the fallback.
	assert.Equal(t, 1, web.browseCount())
}

func TestEngineHybrid(t *testing.T) {
	web := &fakeWeb{}
	files := newFakeFiles()
	llm := &fakeLLM{CompleteFunc: func(ctx context.Context, prompt string) (string, error) {
		return "# Summary\n\n## Findings\n\ntext\n", nil
	}}
	e := newTestEngine(t, llm, web, files)

	out, err := e.Run(context.Background(), "Search for information about climate change and create a summary file")
	require.NoError(t, err)

	assert.Equal(t, classify.ShapeHybrid, out.Shape)
	assert.True(t, out.Success)
	assert.Equal(t, 1, web.browseCount())
	assert.Equal(t, 1, files.count())
	assert.Equal(t, filepath.Join("docs", "summary.txt"), out.Artifacts["filename"])
}

func TestEngineHybridFailureFallsBackToDirectFile(t *testing.T) {
	web := &fakeWeb{BrowseFunc: func(ctx context.Context, request string) (*types.BrowseResult, error) {
		return nil, fmt.Errorf("connection refused")
	}}
	files := newFakeFiles()
	e := newTestEngine(t, nil, web, files)

	out, err := e.Run(context.Background(), "Search for information about climate change and create a summary file")
	require.NoError(t, err)

	assert.Equal(t, classify.ShapeHybrid, out.Shape)
	assert.True(t, out.Success)
	// The fallback writes from the original request without browsing again.
	assert.Equal(t, 1, web.browseCount())
	assert.Equal(t, 1, files.count())
}

func TestEngineComplexPlanAndExecute(t *testing.T) {
	plan := `{"tasks": [
		{"description": "research the papers", "type": "web_browsing", "depends_on": []},
		{"description": "summarize the findings", "type": "general", "depends_on": [1]},
		{"description": "compile report.txt", "type": "file_creation", "depends_on": [1, 2]}
	]}`
	llm := &fakeLLM{CompleteFunc: func(ctx context.Context, prompt string) (string, error) {
		if strings.Contains(prompt, "task planner") {
			return plan, nil
		}
		return "step output", nil
	}}
	web := &fakeWeb{}
	files := newFakeFiles()
	e := newTestEngine(t, llm, web, files)

	out, err := e.Run(context.Background(), "Research AI papers, summarize them, find images of the top 3, and compile a report")
	require.NoError(t, err)

	assert.Equal(t, classify.ShapeComplex, out.Shape)
	assert.True(t, out.Success)
	assert.NotEmpty(t, out.WorkflowID)
	assert.Contains(t, out.Artifacts, "web_browsing_url")
	assert.Contains(t, out.Artifacts, "file_creation_filename")

	st, err := e.Status(out.WorkflowID)
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusCompleted, st.Overall)
}

func TestEngineComplexPlanningFailureSurfacesError(t *testing.T) {
	llm := &fakeLLM{CompleteFunc: func(ctx context.Context, prompt string) (string, error) {
		return `{"tasks": [{"description": "a", "type": "general", "depends_on": [1]}]}`, nil
	}}
	e := newTestEngine(t, llm, nil, nil)

	_, err := e.Run(context.Background(), "Summarize and analyze the quarterly data")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "planning")
}

func TestEngineResume(t *testing.T) {
	llm := &fakeLLM{CompleteFunc: func(ctx context.Context, prompt string) (string, error) {
		if strings.Contains(prompt, "task planner") {
			return `{"tasks": [{"description": "one step", "type": "general", "depends_on": []}]}`, nil
		}
		return "resumed output", nil
	}}
	e := newTestEngine(t, llm, nil, nil)

	wf, err := e.Plan(context.Background(), "Summarize and analyze the quarterly data")
	require.NoError(t, err)

	out, err := e.Resume(context.Background(), wf.ID)
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, wf.ID, out.WorkflowID)

	ids, err := e.List()
	require.NoError(t, err)
	assert.Equal(t, []string{wf.ID}, ids)
}
