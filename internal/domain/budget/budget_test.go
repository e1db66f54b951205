package budget

import "testing"

func TestDetermineAlertLevel(t *testing.T) {
	th := DefaultThresholds()

	cases := []struct {
		cost float64
		want AlertLevel
	}{
		{0, AlertNormal},
		{4.99, AlertNormal},
		{5, AlertWarning},
		{9.99, AlertWarning},
		{10, AlertSlowdown},
		{14.99, AlertSlowdown},
		{15, AlertEmergency},
		{100, AlertEmergency},
	}
	for _, tc := range cases {
		if got := DetermineAlertLevel(tc.cost, th); got != tc.want {
			t.Errorf("DetermineAlertLevel(%v) = %v, want %v", tc.cost, got, tc.want)
		}
	}
}

// Alert levels must never regress as cost grows.
func TestDetermineAlertLevelMonotone(t *testing.T) {
	th := DefaultThresholds()
	rank := map[AlertLevel]int{AlertNormal: 0, AlertWarning: 1, AlertSlowdown: 2, AlertEmergency: 3}

	prev := AlertNormal
	for cost := 0.0; cost <= 20; cost += 0.25 {
		level := DetermineAlertLevel(cost, th)
		if rank[level] < rank[prev] {
			t.Fatalf("level regressed from %v to %v at cost %v", prev, level, cost)
		}
		prev = level
	}
}

func TestThresholdsValidate(t *testing.T) {
	if err := DefaultThresholds().Validate(); err != nil {
		t.Fatalf("default thresholds should validate: %v", err)
	}

	bad := []Thresholds{
		{WarningUSD: 0, SlowdownUSD: 10, EmergencyUSD: 15},
		{WarningUSD: -1, SlowdownUSD: 10, EmergencyUSD: 15},
		{WarningUSD: 10, SlowdownUSD: 10, EmergencyUSD: 15}, // not strictly ascending
		{WarningUSD: 5, SlowdownUSD: 10, EmergencyUSD: 10},
		{WarningUSD: 15, SlowdownUSD: 10, EmergencyUSD: 5},
	}
	for i, th := range bad {
		if err := th.Validate(); err == nil {
			t.Errorf("case %d: expected validation error", i)
		}
	}
}
