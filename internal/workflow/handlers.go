package workflow

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"agentflow/internal/classify"
	"agentflow/internal/logging"
	"agentflow/internal/types"
)

var imagePathPattern = regexp.MustCompile(`(?i)\b[\w./\\-]+\.(?:png|jpe?g|gif|webp|bmp)\b`)

// handleFileCreation generates file content with the LLM and writes it
// under the documents directory. Artifacts from completed dependencies
// are folded into the prompt as source material.
func (d *Dispatcher) handleFileCreation(ctx context.Context, task *Task, deps []*Task) types.TaskResult {
	spec := d.fileSpecFor(task)

	var sb strings.Builder
	fmt.Fprintf(&sb, "Task: %s\n\n", task.Description)
	if material := collectDependencyMaterial(deps); material != "" {
		fmt.Fprintf(&sb, "Use the following material gathered by earlier steps:\n%s\n\n", material)
	}
	sb.WriteString("Output ONLY the file content. No explanations, no markdown fences around the whole output.")

	content, err := d.llm.Complete(ctx, sb.String())
	if err != nil {
		return types.Failure(fmt.Sprintf("content generation failed: %v", err))
	}
	content = stripOuterCodeFence(content)
	if strings.TrimSpace(content) == "" {
		return types.Failure("content generation produced empty output")
	}

	if err := d.files.MkdirAll(d.documentsDir); err != nil {
		return types.Failure(fmt.Sprintf("failed to create documents dir: %v", err))
	}

	target := filepath.Join(d.documentsDir, spec.Filename)
	if err := d.files.Write(target, []byte(content)); err != nil {
		return types.Failure(fmt.Sprintf("failed to write %s: %v", target, err))
	}

	logging.Dispatch("task %s: wrote %s (%d bytes)", task.ID, target, len(content))
	return types.TaskResult{
		Success: true,
		Artifacts: map[string]any{
			"filename":        target,
			"file_type":       spec.ContentType,
			"content_preview": preview(content, 200),
		},
	}
}

// handleWebBrowsing runs one browse and surfaces the conventional
// artifact keys.
func (d *Dispatcher) handleWebBrowsing(ctx context.Context, task *Task) types.TaskResult {
	query := task.Description
	if q, ok := task.Parameters["query"]; ok && q != "" {
		query = q
	}

	res, err := d.web.Browse(ctx, query)
	if err != nil {
		return types.Failure(fmt.Sprintf("browse failed: %v", err))
	}

	return types.TaskResult{
		Success: true,
		Artifacts: map[string]any{
			"url":             res.URL,
			"domain":          res.Domain,
			"headlines":       res.Headlines,
			"content_preview": preview(res.Content, 200),
			"full_content":    res.Content,
		},
	}
}

// handleImageAnalysis resolves an image path and asks the vision
// collaborator about it.
func (d *Dispatcher) handleImageAnalysis(ctx context.Context, task *Task) types.TaskResult {
	imagePath := task.Parameters["image_path"]
	if imagePath == "" {
		imagePath = imagePathPattern.FindString(task.Description)
	}
	if imagePath == "" {
		return types.Failure("no image path in task parameters or description")
	}

	prompt := task.Parameters["prompt"]
	if prompt == "" {
		prompt = task.Description
	}

	analysis, err := d.vision.Analyze(ctx, imagePath, prompt)
	if err != nil {
		return types.Failure(fmt.Sprintf("image analysis failed: %v", err))
	}

	return types.TaskResult{
		Success: true,
		Artifacts: map[string]any{
			"image_path": imagePath,
			"analysis":   analysis,
		},
	}
}

// handleGeneral is a plain completion.
func (d *Dispatcher) handleGeneral(ctx context.Context, task *Task) types.TaskResult {
	resp, err := d.llm.Complete(ctx, task.Description)
	if err != nil {
		return types.Failure(fmt.Sprintf("completion failed: %v", err))
	}

	return types.TaskResult{
		Success:   true,
		Artifacts: map[string]any{"message": resp},
	}
}

// fileSpecFor prefers an explicitly parameterized filename, falling back
// to extraction from the task description.
func (d *Dispatcher) fileSpecFor(task *Task) classify.FileSpec {
	if name := task.Parameters["filename"]; name != "" {
		spec := classify.ExtractFileSpec(task.Description)
		spec.Filename = name
		return spec
	}
	return classify.ExtractFileSpec(task.Description)
}

// collectDependencyMaterial stitches usable artifacts from completed
// dependencies into prompt material.
func collectDependencyMaterial(deps []*Task) string {
	var parts []string
	for _, dep := range deps {
		if dep.Result == nil || !dep.Result.Success {
			continue
		}
		for _, key := range []string{"full_content", "analysis", "message", "content_preview"} {
			if v, ok := dep.Result.Artifacts[key]; ok {
				if s, ok := v.(string); ok && s != "" {
					parts = append(parts, fmt.Sprintf("[%s] %s", dep.Description, s))
					break
				}
			}
		}
	}
	return strings.Join(parts, "\n\n")
}

// stripOuterCodeFence removes a markdown fence wrapping the whole
// response, keeping fences that are part of the content.
func stripOuterCodeFence(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return s
	}
	lines := strings.Split(trimmed, "\n")
	if len(lines) < 2 || !strings.HasPrefix(strings.TrimSpace(lines[len(lines)-1]), "```") {
		return s
	}
	return strings.Join(lines[1:len(lines)-1], "\n")
}

// preview returns the first n characters of s.
func preview(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
