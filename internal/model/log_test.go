package model

import "testing"

func TestFromActivities(t *testing.T) {
	l := FromActivities("demo", []string{"A", "B", "C"}, []string{"A"}, nil)

	if l.Name != "demo" {
		t.Errorf("Name = %q, want %q", l.Name, "demo")
	}
	if got := l.TraceCount(); got != 3 {
		t.Errorf("TraceCount() = %d, want 3", got)
	}
	if got := l.EventCount(); got != 4 {
		t.Errorf("EventCount() = %d, want 4", got)
	}

	ids := []string{"1", "2", "3"}
	for i, tr := range l.Traces {
		if tr.CaseID != ids[i] {
			t.Errorf("Traces[%d].CaseID = %q, want %q", i, tr.CaseID, ids[i])
		}
	}
}

func TestTrace_Activities(t *testing.T) {
	tr := Trace{Events: []Event{{Activity: "register"}, {Activity: "check", Resource: "bob"}}}

	got := tr.Activities()
	if len(got) != 2 || got[0] != "register" || got[1] != "check" {
		t.Errorf("Activities() = %v, want [register check]", got)
	}
	if tr.Len() != 2 {
		t.Errorf("Len() = %d, want 2", tr.Len())
	}
}
