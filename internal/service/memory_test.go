package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/vanguard-ai/vanguard/internal/domain/memory"
	"github.com/vanguard-ai/vanguard/internal/domain/mission"
)

func TestPromoteInsights(t *testing.T) {
	store := newMockStore()
	svc := NewMemoryService(store)
	svc.now = fixedClock(testNow)

	store.memories = []memory.Record{
		{ID: "w-hot", AgentID: "a1", Tier: memory.TierWorking, AccessCount: 3},
		{ID: "w-cold", AgentID: "a1", Tier: memory.TierWorking, AccessCount: 2},
		{ID: "s-old", AgentID: "a1", Tier: memory.TierShortTerm, AccessCount: 10, CreatedAt: testNow.Add(-25 * time.Hour)},
		{ID: "s-young", AgentID: "a1", Tier: memory.TierShortTerm, AccessCount: 12, CreatedAt: testNow.Add(-time.Hour)},
		{ID: "w-other", AgentID: "a2", Tier: memory.TierWorking, AccessCount: 5},
	}

	usage, err := svc.PromoteInsights(context.Background(), "a1")
	if err != nil {
		t.Fatal(err)
	}
	if store.tierUpdates["w-hot"] != memory.TierShortTerm {
		t.Error("frequently accessed working record should move to short_term")
	}
	if store.tierUpdates["s-old"] != memory.TierLongTerm {
		t.Error("aged, accessed short_term record should move to long_term")
	}
	for _, id := range []string{"w-cold", "s-young", "w-other"} {
		if _, moved := store.tierUpdates[id]; moved {
			t.Errorf("%s should not have been promoted", id)
		}
	}
	if usage.Actions != 2 {
		t.Errorf("usage = %+v, want 2 promotions", usage)
	}
}

func TestLearnFromOutcomes(t *testing.T) {
	store := newMockStore()
	svc := NewMemoryService(store)
	svc.now = fixedClock(testNow)

	store.recentMissions = []mission.Mission{
		{
			ID: "done", Title: "ship release", CreatedBy: "a1",
			Steps: []mission.Step{
				{AssignedGeneral: "coder", Status: mission.StepCompleted},
				{AssignedGeneral: "coder", Status: mission.StepFailed},
				{AssignedGeneral: "tester", Status: mission.StepCompleted},
			},
		},
		{
			ID: "running", Title: "in flight", CreatedBy: "a1",
			Steps: []mission.Step{
				{AssignedGeneral: "coder", Status: mission.StepInProgress},
			},
		},
	}

	usage, err := svc.LearnFromOutcomes(context.Background(), "a1")
	if err != nil {
		t.Fatal(err)
	}
	if len(store.newMemories) != 1 {
		t.Fatalf("insights = %d, want 1 (running mission is not done)", len(store.newMemories))
	}
	rec := store.newMemories[0]
	if rec.Tier != memory.TierShortTerm || rec.Kind != "insight" {
		t.Errorf("insight = tier %q kind %q", rec.Tier, rec.Kind)
	}
	if !strings.Contains(rec.Content, "2/3 steps completed") {
		t.Errorf("content = %q", rec.Content)
	}
	if !strings.Contains(rec.Content, "general coder failed 1 step") {
		t.Errorf("content = %q, want failing general named", rec.Content)
	}
	if usage.Actions != 1 {
		t.Errorf("usage = %+v", usage)
	}
}
