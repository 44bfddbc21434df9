// Package vision provides the Gemini-backed image analysis collaborator.
package vision

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"agentflow/internal/logging"

	"google.golang.org/genai"
)

// GeminiAnalyzer implements types.VisionAnalyzer using Gemini's
// multimodal input.
type GeminiAnalyzer struct {
	client *genai.Client
	model  string
}

// NewGeminiAnalyzer creates an analyzer for the given API key and model.
func NewGeminiAnalyzer(ctx context.Context, apiKey, model string) (*GeminiAnalyzer, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &GeminiAnalyzer{client: client, model: model}, nil
}

// Analyze answers a prompt about an image on disk.
func (a *GeminiAnalyzer) Analyze(ctx context.Context, imagePath, prompt string) (string, error) {
	data, err := os.ReadFile(imagePath)
	if err != nil {
		return "", fmt.Errorf("failed to read image %s: %w", imagePath, err)
	}

	if strings.TrimSpace(prompt) == "" {
		prompt = "Describe this image in detail."
	}

	parts := []*genai.Part{
		genai.NewPartFromBytes(data, mimeForImage(imagePath)),
		genai.NewPartFromText(prompt),
	}
	contents := []*genai.Content{
		genai.NewContentFromParts(parts, genai.RoleUser),
	}

	resp, err := a.client.Models.GenerateContent(ctx, a.model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("image analysis failed: %w", err)
	}

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("image analysis returned empty result")
	}

	logging.API("vision: analyzed %s (%d chars)", filepath.Base(imagePath), len(text))
	return text, nil
}

func mimeForImage(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	case ".bmp":
		return "image/bmp"
	default:
		return "image/jpeg"
	}
}
