// Package classify decides a request's shape and extracts the target
// filename and content type. Classification is a total function driven by
// an ordered rule table; the signal phrase tables are data and can be
// overridden from YAML (see signals.go) and hot-reloaded (see watcher.go).
package classify

import (
	"regexp"
	"strings"
	"sync"

	"agentflow/internal/logging"
)

// Shape is the classifier's verdict on a request.
type Shape string

const (
	ShapeDirectFile Shape = "direct_file"
	ShapeWebOnly    Shape = "web_only"
	ShapeHybrid     Shape = "hybrid"
	ShapeComplex    Shape = "complex"
)

// features are the boolean/count signals extracted from a request once,
// then consumed by the rule table.
type features struct {
	hasWeb          bool
	hasFile         bool
	directFile      bool // creation verb + named artifact, the direct-file pattern
	hasCreationVerb bool
	actionVerbs     int
	hasSequencing   bool
	namedFiles      int
	multiStep       bool
	hasTemporal     bool
}

// rule is one entry of the ordered classification table. First match wins.
type rule struct {
	name  string
	match func(f features) bool
	shape Shape
}

// ruleTable is evaluated top to bottom. A hybrid needs both signal kinds
// but defers to the planner when the request is multi-step: a hybrid is
// inherently two actions (fetch + write), so three or more distinct action
// verbs, sequencing markers, or two named output files push it down to the
// complex rule.
var ruleTable = []rule{
	{"hybrid_signals", func(f features) bool { return f.hasWeb && f.hasFile && !f.multiStep }, ShapeHybrid},
	{"direct_file", func(f features) bool { return f.directFile && !f.hasWeb }, ShapeDirectFile},
	{"web_only", func(f features) bool { return f.hasWeb && !f.hasFile }, ShapeWebOnly},
	{"multi_step", func(f features) bool { return f.actionVerbs >= 2 || f.hasSequencing || f.namedFiles >= 2 }, ShapeComplex},
	{"creation_fallback", func(f features) bool { return f.hasCreationVerb }, ShapeDirectFile},
	{"web_fallback", func(f features) bool { return (f.hasWeb || f.hasTemporal) && !f.hasFile }, ShapeWebOnly},
	{"file_fallback", func(f features) bool { return f.hasFile }, ShapeDirectFile},
	{"planner_fallback", func(f features) bool { return true }, ShapeComplex},
}

var (
	urlPattern      = regexp.MustCompile(`(?i)\bhttps?://\S+`)
	quotedPattern   = regexp.MustCompile(`"([^"]+)"`)
	namedPattern    = regexp.MustCompile(`(?i)\bnamed\s+\S+`)
	filenamePattern = regexp.MustCompile(`\b([\w-]+)\.([A-Za-z]{2,4})\b`)
)

// Classifier routes requests to a shape. Safe for concurrent use;
// SetSignals swaps the signal tables atomically.
type Classifier struct {
	mu  sync.RWMutex
	sig *Signals
	m   *matchers
}

// matchers are the compiled form of a Signals table.
type matchers struct {
	webVerbs      []*regexp.Regexp
	newsNouns     []*regexp.Regexp
	temporal      []*regexp.Regexp
	fileVerbs     []*regexp.Regexp
	fileNouns     []*regexp.Regexp
	creationVerbs []*regexp.Regexp
	actionVerbs   []*regexp.Regexp
	sequencing    []*regexp.Regexp
	domain        *regexp.Regexp
	tldSet        map[string]bool
}

// NewClassifier builds a classifier over the given signal tables.
// Pass nil to use the defaults.
func NewClassifier(sig *Signals) *Classifier {
	if sig == nil {
		sig = DefaultSignals()
	}
	return &Classifier{sig: sig, m: compile(sig)}
}

// SetSignals replaces the signal tables. Used by the watcher on reload.
func (c *Classifier) SetSignals(sig *Signals) {
	if sig == nil {
		return
	}
	m := compile(sig)
	c.mu.Lock()
	c.sig = sig
	c.m = m
	c.mu.Unlock()
	logging.Classify("signal tables reloaded")
}

// Signals returns the active signal tables.
func (c *Classifier) Signals() *Signals {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sig
}

// Classify decides the shape of a request. It never fails; ambiguity is
// resolved by the fallback rules at the bottom of the table.
func (c *Classifier) Classify(request string) Shape {
	c.mu.RLock()
	m := c.m
	c.mu.RUnlock()

	f := m.extract(request)

	for _, r := range ruleTable {
		if r.match(f) {
			logging.ClassifyDebug("rule %q matched: shape=%s", r.name, r.shape)
			return r.shape
		}
	}
	return ShapeComplex
}

// HasFileSignal reports whether the request carries a file-output signal.
// The engine consults this when choosing the web-only fallback chain.
func (c *Classifier) HasFileSignal(request string) bool {
	c.mu.RLock()
	m := c.m
	c.mu.RUnlock()
	return m.extract(request).hasFile
}

// IsMultiStep reports whether the request looks like it needs a plan.
func (c *Classifier) IsMultiStep(request string) bool {
	c.mu.RLock()
	m := c.m
	c.mu.RUnlock()
	f := m.extract(request)
	return f.actionVerbs >= 2 || f.hasSequencing || f.namedFiles >= 2
}

func compile(sig *Signals) *matchers {
	m := &matchers{
		webVerbs:      compilePhrases(sig.WebVerbs),
		newsNouns:     compilePhrases(sig.NewsNouns),
		temporal:      compilePhrases(sig.TemporalQualifiers),
		fileVerbs:     compilePhrases(sig.FileVerbs),
		fileNouns:     compilePhrases(sig.FileNouns),
		creationVerbs: compilePhrases(sig.CreationVerbs),
		actionVerbs:   compilePhrases(sig.ActionVerbs),
		sequencing:    compilePhrases(sig.SequencingMarkers),
		tldSet:        make(map[string]bool, len(sig.TLDs)),
	}
	for _, tld := range sig.TLDs {
		m.tldSet[strings.ToLower(tld)] = true
	}
	m.domain = compileDomain(sig.TLDs)
	return m
}

// compilePhrases builds word-boundary matchers for a phrase list.
func compilePhrases(phrases []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(phrases))
	for _, p := range phrases {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		expr := regexp.QuoteMeta(strings.ToLower(p))
		if isWordChar(p[0]) {
			expr = `\b` + expr
		}
		if isWordChar(p[len(p)-1]) {
			expr = expr + `\b`
		}
		out = append(out, regexp.MustCompile(`(?i)`+expr))
	}
	return out
}

func isWordChar(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

// compileDomain builds a bare-domain matcher restricted to the TLD
// allow-list. Multi-label TLDs (co.uk) sort first so they win.
func compileDomain(tlds []string) *regexp.Regexp {
	alts := make([]string, 0, len(tlds))
	for _, tld := range tlds {
		if strings.Contains(tld, ".") {
			alts = append([]string{regexp.QuoteMeta(tld)}, alts...)
		} else {
			alts = append(alts, regexp.QuoteMeta(tld))
		}
	}
	return regexp.MustCompile(`(?i)\b[a-z0-9][a-z0-9-]*(?:\.[a-z0-9-]+)*\.(?:` + strings.Join(alts, "|") + `)\b`)
}

func anyMatch(res []*regexp.Regexp, s string) bool {
	for _, re := range res {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

func countMatches(res []*regexp.Regexp, s string) int {
	n := 0
	for _, re := range res {
		if re.MatchString(s) {
			n++
		}
	}
	return n
}

// extract computes the feature vector for a request.
func (m *matchers) extract(request string) features {
	var f features

	namedFiles := m.countFilenames(request)

	hasURL := urlPattern.MatchString(request)
	hasDomain := m.domain.MatchString(request)
	hasWebVerb := anyMatch(m.webVerbs, request)
	hasNews := anyMatch(m.newsNouns, request)
	f.hasWeb = hasURL || hasDomain || hasWebVerb || hasNews
	// Temporal qualifiers alone are too weak to count as a firm web
	// signal; they only tip the final fallback toward the browser.
	f.hasTemporal = anyMatch(m.temporal, request)

	hasFileVerb := anyMatch(m.fileVerbs, request)
	hasFileNoun := anyMatch(m.fileNouns, request)
	hasNamed := namedPattern.MatchString(request)
	f.hasFile = hasFileVerb || hasFileNoun || hasNamed || namedFiles > 0

	f.hasCreationVerb = anyMatch(m.creationVerbs, request)
	f.directFile = f.hasCreationVerb && (hasFileNoun || hasNamed || namedFiles > 0)

	f.actionVerbs = countMatches(m.actionVerbs, request)
	f.hasSequencing = anyMatch(m.sequencing, request)
	f.namedFiles = namedFiles
	f.multiStep = f.actionVerbs >= 3 || f.hasSequencing || f.namedFiles >= 2

	return f
}

// countFilenames counts distinct <base>.<ext> tokens, ignoring tokens
// whose extension is in the TLD allow-list (those are domains).
func (m *matchers) countFilenames(request string) int {
	seen := make(map[string]bool)
	for _, match := range filenamePattern.FindAllStringSubmatch(request, -1) {
		ext := strings.ToLower(match[2])
		if m.tldSet[ext] {
			continue
		}
		seen[strings.ToLower(match[0])] = true
	}
	return len(seen)
}
