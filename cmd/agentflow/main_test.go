package main

import (
	"errors"
	"testing"

	"agentflow/internal/agent"
)

func TestOutcomeErr(t *testing.T) {
	if err := outcomeErr(&agent.Outcome{Success: true}); err != nil {
		t.Errorf("outcomeErr(success) = %v, want nil", err)
	}

	err := outcomeErr(&agent.Outcome{Success: false, Message: "browse failed"})
	if !errors.Is(err, errRunFailed) {
		t.Errorf("outcomeErr(failure) = %v, want errRunFailed", err)
	}
}

func TestJoinArgs(t *testing.T) {
	if got := joinArgs([]string{"save", "a", "poem"}); got != "save a poem" {
		t.Errorf("joinArgs = %q", got)
	}
}
