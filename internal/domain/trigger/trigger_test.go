package trigger

import (
	"testing"
	"time"
)

func TestInCooldown(t *testing.T) {
	now := time.Date(2025, 3, 3, 12, 0, 0, 0, time.UTC)

	t.Run("never fired", func(t *testing.T) {
		r := &Rule{CooldownMinutes: 30}
		if in, _ := r.InCooldown(now); in {
			t.Error("rule that never fired should not be in cooldown")
		}
	})

	t.Run("inside window", func(t *testing.T) {
		fired := now.Add(-10 * time.Minute)
		r := &Rule{CooldownMinutes: 30, LastFiredAt: &fired}
		in, remaining := r.InCooldown(now)
		if !in {
			t.Fatal("expected rule in cooldown")
		}
		if remaining != 20*time.Minute {
			t.Errorf("remaining = %v, want 20m", remaining)
		}
	})

	t.Run("window elapsed", func(t *testing.T) {
		fired := now.Add(-30 * time.Minute)
		r := &Rule{CooldownMinutes: 30, LastFiredAt: &fired}
		if in, _ := r.InCooldown(now); in {
			t.Error("cooldown boundary should count as elapsed")
		}
	})

	t.Run("no cooldown configured", func(t *testing.T) {
		fired := now.Add(-time.Second)
		r := &Rule{CooldownMinutes: 0, LastFiredAt: &fired}
		if in, _ := r.InCooldown(now); in {
			t.Error("zero cooldown should never block")
		}
	})
}
