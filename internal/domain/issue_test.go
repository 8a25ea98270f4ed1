package domain

import "testing"

func TestParsePriority(t *testing.T) {
	cases := []struct {
		in   string
		want Priority
	}{
		{"urgent", PriorityUrgent},
		{"Urgent", PriorityUrgent},
		{"high", PriorityHigh},
		{"Medium", PriorityMedium},
		{"normal", PriorityMedium},
		{"low", PriorityLow},
		{"", PriorityNone},
		{"whatever", PriorityNone},
	}

	for _, tc := range cases {
		if got := ParsePriority(tc.in); got != tc.want {
			t.Errorf("ParsePriority(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestPriorityOrdering(t *testing.T) {
	if !(PriorityUrgent < PriorityHigh && PriorityHigh < PriorityMedium && PriorityMedium < PriorityLow && PriorityLow < PriorityNone) {
		t.Error("priority ordinals out of order")
	}
}

func TestIssue_IsActionable(t *testing.T) {
	cases := []struct {
		state State
		want  bool
	}{
		{State{Name: "Todo", Type: StateUnstarted}, true},
		{State{Name: "In Progress", Type: StateStarted}, true},
		{State{Name: "Done", Type: StateCompleted}, false},
		{State{Name: "Canceled", Type: StateCanceled}, false},
		{State{Name: "In Review", Type: StateStarted}, false},
		{State{Name: "Backlog", Type: StateUnknown}, true},
	}

	for _, tc := range cases {
		issue := Issue{Identifier: "PROJ-1", State: tc.state}
		if got := issue.IsActionable(); got != tc.want {
			t.Errorf("IsActionable with state %q/%s = %v, want %v", tc.state.Name, tc.state.Type, got, tc.want)
		}
	}
}

func TestIssue_HasLabel(t *testing.T) {
	issue := Issue{Identifier: "PROJ-2", Labels: []string{"agent-ready", "bug"}}

	if !issue.HasLabel("agent-ready") {
		t.Error("HasLabel(agent-ready) = false, want true")
	}
	if issue.HasLabel("feature") {
		t.Error("HasLabel(feature) = true, want false")
	}
}
