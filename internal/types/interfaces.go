// Package types defines the shared data types and collaborator interfaces
// used across agentflow. Collaborators are narrow capability interfaces;
// concrete implementations live in internal/llm, internal/web, and
// internal/vision.
package types

import "context"

// LLMClient is the interface for language model completion.
// Model selection is construction state on the concrete client.
type LLMClient interface {
	// Complete sends a prompt and returns the completion.
	Complete(ctx context.Context, prompt string) (string, error)

	// CompleteWithSystem sends a prompt with a system message.
	CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// BrowseResult is the outcome of a single browse operation.
type BrowseResult struct {
	URL       string   `json:"url"`
	Domain    string   `json:"domain"`
	Title     string   `json:"title"`
	Headlines []string `json:"headlines"`
	Content   string   `json:"content"`
}

// WebBrowser fetches and extracts content for a natural-language request.
// Implementations perform exactly one logical browse per call; the engine
// owns any fallback behavior.
type WebBrowser interface {
	Browse(ctx context.Context, request string) (*BrowseResult, error)
}

// VisionAnalyzer answers a prompt about an image on disk.
type VisionAnalyzer interface {
	Analyze(ctx context.Context, imagePath, prompt string) (string, error)
}

// FileStore abstracts file output so handlers can be tested without
// touching the real filesystem.
type FileStore interface {
	Write(path string, data []byte) error
	MkdirAll(path string) error
	Read(path string) ([]byte, error)
}

// TaskResult is the uniform envelope returned by task handlers.
// Handler-level failures are reported here, not as Go errors.
type TaskResult struct {
	Success   bool           `json:"success"`
	Error     string         `json:"error,omitempty"`
	Artifacts map[string]any `json:"artifacts,omitempty"`
}

// Failure builds a failed TaskResult carrying only an error message.
func Failure(msg string) TaskResult {
	return TaskResult{Success: false, Error: msg}
}
