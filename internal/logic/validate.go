package logic

import (
	"fmt"
	"sort"
)

// workflowSchema declares the workflow facts and the violation rules.
// Task ids are strings; task types are name constants.
const workflowSchema = `
Decl wf_task(Id).
Decl wf_dep(Task, Dep).
Decl wf_type(Task, Type).
Decl known_type(Type).
Decl task_reaches(X, Y).
Decl dep_cycle(X).
Decl dangling_dep(Task, Dep).
Decl unknown_type(Task, Type).

known_type(/file_creation).
known_type(/web_browsing).
known_type(/image_analysis).
known_type(/general).

task_reaches(X, Y) :- wf_dep(X, Y).
task_reaches(X, Z) :- wf_dep(X, Y), task_reaches(Y, Z).

dep_cycle(X) :- task_reaches(X, X).
dangling_dep(T, D) :- wf_dep(T, D), !wf_task(D).
unknown_type(T, Ty) :- wf_type(T, Ty), !known_type(Ty).
`

// PlanTask is the minimal task view the validator needs.
type PlanTask struct {
	ID        string
	Type      string
	DependsOn []string
}

// Issue is one violation derived from the rules.
type Issue struct {
	Kind   string // cycle, dangling_dependency, unknown_type, empty_plan
	TaskID string
	Detail string
}

func (i Issue) String() string {
	if i.TaskID == "" {
		return fmt.Sprintf("%s: %s", i.Kind, i.Detail)
	}
	return fmt.Sprintf("%s on task %s: %s", i.Kind, i.TaskID, i.Detail)
}

// ValidatePlan loads the tasks as facts into a fresh engine and returns
// the derived violations, sorted for stable output.
func ValidatePlan(tasks []PlanTask) ([]Issue, error) {
	if len(tasks) == 0 {
		return []Issue{{Kind: "empty_plan", Detail: "plan contains no tasks"}}, nil
	}

	eng := NewEngine(DefaultConfig())
	if err := eng.LoadSchemaString(workflowSchema); err != nil {
		return nil, fmt.Errorf("failed to load workflow rules: %w", err)
	}

	var facts []Fact
	for _, t := range tasks {
		facts = append(facts, Fact{Predicate: "wf_task", Args: []interface{}{t.ID}})
		facts = append(facts, Fact{Predicate: "wf_type", Args: []interface{}{t.ID, "/" + t.Type}})
		for _, dep := range t.DependsOn {
			facts = append(facts, Fact{Predicate: "wf_dep", Args: []interface{}{t.ID, dep}})
		}
	}
	if err := eng.AddFacts(facts); err != nil {
		return nil, fmt.Errorf("failed to load workflow facts: %w", err)
	}

	var issues []Issue

	cycles, err := eng.GetFacts("dep_cycle")
	if err != nil {
		return nil, err
	}
	for _, f := range cycles {
		issues = append(issues, Issue{
			Kind:   "cycle",
			TaskID: argString(f, 0),
			Detail: "task participates in a dependency cycle",
		})
	}

	dangling, err := eng.GetFacts("dangling_dep")
	if err != nil {
		return nil, err
	}
	for _, f := range dangling {
		issues = append(issues, Issue{
			Kind:   "dangling_dependency",
			TaskID: argString(f, 0),
			Detail: fmt.Sprintf("depends on unknown task %q", argString(f, 1)),
		})
	}

	unknown, err := eng.GetFacts("unknown_type")
	if err != nil {
		return nil, err
	}
	for _, f := range unknown {
		issues = append(issues, Issue{
			Kind:   "unknown_type",
			TaskID: argString(f, 0),
			Detail: fmt.Sprintf("unknown task type %q", argString(f, 1)),
		})
	}

	sort.Slice(issues, func(a, b int) bool {
		if issues[a].Kind != issues[b].Kind {
			return issues[a].Kind < issues[b].Kind
		}
		return issues[a].TaskID < issues[b].TaskID
	})
	return issues, nil
}

func argString(f Fact, i int) string {
	if i >= len(f.Args) {
		return ""
	}
	s, _ := f.Args[i].(string)
	return s
}
