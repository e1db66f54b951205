package mission

import (
	"reflect"
	"testing"
)

func TestReadyStepsDiamond(t *testing.T) {
	steps := []Step{
		{ID: "a", Status: StepPending},
		{ID: "b", Status: StepPending, DependsOn: []string{"a"}},
		{ID: "c", Status: StepPending, DependsOn: []string{"a"}},
		{ID: "d", Status: StepPending, DependsOn: []string{"b", "c"}},
	}

	if got := ReadySteps(steps); !reflect.DeepEqual(got, []string{"a"}) {
		t.Fatalf("first wavefront = %v, want [a]", got)
	}

	steps[0].Status = StepCompleted
	if got := ReadySteps(steps); !reflect.DeepEqual(got, []string{"b", "c"}) {
		t.Fatalf("second wavefront = %v, want [b c]", got)
	}

	// d stays unready until both b and c complete.
	steps[1].Status = StepCompleted
	if got := ReadySteps(steps); !reflect.DeepEqual(got, []string{"c"}) {
		t.Fatalf("partial wavefront = %v, want [c]", got)
	}

	steps[2].Status = StepCompleted
	if got := ReadySteps(steps); !reflect.DeepEqual(got, []string{"d"}) {
		t.Fatalf("final wavefront = %v, want [d]", got)
	}
}

func TestReadyStepsFailedDependency(t *testing.T) {
	steps := []Step{
		{ID: "a", Status: StepFailed},
		{ID: "b", Status: StepPending, DependsOn: []string{"a"}},
	}
	if got := ReadySteps(steps); got != nil {
		t.Fatalf("step behind failed dependency should not be ready, got %v", got)
	}
	if PendingCount(steps) != 1 {
		t.Fatalf("expected 1 pending step")
	}
}

func TestReadyStepsUnknownDependency(t *testing.T) {
	steps := []Step{
		{ID: "a", Status: StepPending, DependsOn: []string{"ghost"}},
	}
	if got := ReadySteps(steps); got != nil {
		t.Fatalf("dependency on unknown step should never be ready, got %v", got)
	}
}

func TestResolveStatus(t *testing.T) {
	cases := []struct {
		name    string
		results []StepResult
		want    Status
	}{
		{"all completed", []StepResult{
			{Status: StepCompleted}, {Status: StepCompleted},
		}, StatusCompleted},
		{"some completed", []StepResult{
			{Status: StepCompleted}, {Status: StepFailed}, {Status: StepSkipped},
		}, StatusPartial},
		{"none completed", []StepResult{
			{Status: StepFailed}, {Status: StepSkipped},
		}, StatusFailed},
		{"empty", nil, StatusFailed},
	}
	for _, tc := range cases {
		if got := ResolveStatus(tc.results); got != tc.want {
			t.Errorf("%s: ResolveStatus = %v, want %v", tc.name, got, tc.want)
		}
	}
}
