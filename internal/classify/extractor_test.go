package classify

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestExtractFileSpec(t *testing.T) {
	tests := []struct {
		name    string
		request string
		want    FileSpec
	}{
		{
			"save as with extension",
			"Create a poem about autumn and save it as autumn_poem.txt",
			FileSpec{Filename: "autumn_poem.txt", ContentType: "poem"},
		},
		{
			"save as without extension",
			"Write an essay and save it as thoughts",
			FileSpec{Filename: "thoughts.txt", ContentType: "essay"},
		},
		{
			"named",
			"Create a story named dragon_tale",
			FileSpec{Filename: "dragon_tale.txt", ContentType: "story"},
		},
		{
			"named quoted",
			`Create a file named "My Notes.md"`,
			FileSpec{Filename: "My Notes.md", ContentType: "document"},
		},
		{
			"save to",
			"Summarize the meeting and save to minutes.txt",
			FileSpec{Filename: "minutes.txt", ContentType: "document"},
		},
		{
			"quoted filename",
			`Put the recipe in "grandma pie.txt" please`,
			FileSpec{Filename: "grandma pie.txt", ContentType: "recipe"},
		},
		{
			"bare filename is verbatim",
			"Refresh config.yaml with the new values",
			FileSpec{Filename: "config.yaml", ContentType: "document"},
		},
		{
			"keyword fallback summary",
			"Search for information about climate change and create a summary file",
			FileSpec{Filename: "summary.txt", ContentType: "summary"},
		},
		{
			"keyword fallback report",
			"Compile a report on the findings",
			FileSpec{Filename: "report.txt", ContentType: "report"},
		},
		{
			"no signals at all",
			"Do something useful",
			FileSpec{Filename: "document.txt", ContentType: "document"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractFileSpec(tt.request)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ExtractFileSpec(%q) mismatch (-want +got):\n%s", tt.request, diff)
			}
		})
	}
}

func TestExtractFileSpecIdempotent(t *testing.T) {
	first := ExtractFileSpec("Create a poem about autumn and save it as autumn_poem.txt")
	second := ExtractFileSpec(first.Filename)
	if first.Filename != second.Filename {
		t.Errorf("extraction not idempotent: %q then %q", first.Filename, second.Filename)
	}
}

func TestExtractFileSpecSanitizesPaths(t *testing.T) {
	got := ExtractFileSpec(`save it as "../../etc/passwd"`)
	if got.Filename != "passwd.txt" {
		t.Errorf("Filename = %q, want path components stripped", got.Filename)
	}
}

func TestExtractContentTypeFirstKeywordWins(t *testing.T) {
	// "essay" precedes "report" in the keyword table.
	got := ExtractFileSpec("Write an essay style report")
	if got.ContentType != "essay" {
		t.Errorf("ContentType = %q, want essay", got.ContentType)
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"notes.txt", "notes.txt"},
		{`"quoted.txt"`, "quoted.txt"},
		{"dir/sub/name.txt", "name.txt"},
		{`win\style\name.txt`, "name.txt"},
		{"..", ""},
		{"   ", ""},
		{"trailing...", "trailing"},
	}
	for _, tt := range tests {
		if got := sanitizeFilename(tt.in); got != tt.want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
