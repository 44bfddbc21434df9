package classify

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Signals holds the phrase tables the classifier matches against.
// The zero value is unusable; start from DefaultSignals and override
// from a YAML file if one is configured.
type Signals struct {
	WebVerbs           []string `yaml:"web_verbs"`
	NewsNouns          []string `yaml:"news_nouns"`
	TemporalQualifiers []string `yaml:"temporal_qualifiers"`
	TLDs               []string `yaml:"tlds"`
	FileVerbs          []string `yaml:"file_verbs"`
	FileNouns          []string `yaml:"file_nouns"`
	CreationVerbs      []string `yaml:"creation_verbs"`
	ActionVerbs        []string `yaml:"action_verbs"`
	SequencingMarkers  []string `yaml:"sequencing_markers"`
}

// DefaultSignals returns the built-in signal tables.
func DefaultSignals() *Signals {
	return &Signals{
		WebVerbs: []string{
			"search", "find", "look up", "browse", "visit", "go to",
			"research", "open", "check",
		},
		NewsNouns:          []string{"news", "headlines", "article"},
		TemporalQualifiers: []string{"latest", "current", "today"},
		TLDs: []string{
			"com", "org", "net", "edu", "gov", "io", "ai", "co.uk", "co",
		},
		FileVerbs: []string{
			"save", "write", "store", "create", "generate", "compile",
			"draft", "compose",
		},
		FileNouns: []string{
			"file", "document", "report", "summary", "story", "poem",
			"essay", "note", "analysis",
		},
		CreationVerbs: []string{"create", "write", "generate", "draft", "compose"},
		ActionVerbs: []string{
			"search", "find", "research", "browse", "visit", "check",
			"summarize", "compile", "create", "write", "generate",
			"draft", "compose", "save", "analyze", "download", "fetch",
		},
		SequencingMarkers: []string{
			"and then", "after that", "first", "second", "third",
			"followed by", "next,",
		},
	}
}

// LoadSignals reads signal tables from a YAML file. Missing keys keep
// their defaults so a partial override file is valid.
func LoadSignals(path string) (*Signals, error) {
	s := DefaultSignals()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read signals file: %w", err)
	}

	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("failed to parse signals file: %w", err)
	}

	return s, nil
}
