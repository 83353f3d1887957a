package quota

import (
	"testing"
	"time"
)

func TestConsumeWithinWindow(t *testing.T) {
	now := time.Unix(0, 0)
	m := New(Config{MaxActions: 2, WindowHours: 1})
	m.now = func() time.Time { return now }

	if !m.Consume("a") {
		t.Fatal("first action should be allowed")
	}
	if !m.Consume("a") {
		t.Fatal("second action should be allowed")
	}
	if m.Consume("a") {
		t.Fatal("third action should exceed quota")
	}
}

func TestWindowSlidesPastRequirement(t *testing.T) {
	now := time.Unix(0, 0)
	m := New(Config{MaxActions: 1, WindowHours: 1})
	m.now = func() time.Time { return now }

	if !m.Consume("a") {
		t.Fatal("first action should be allowed")
	}
	if m.Consume("a") {
		t.Fatal("second action within the window should be denied")
	}

	now = now.Add(61 * time.Minute)
	if !m.Consume("a") {
		t.Fatal("expected the window to have slid past the first action")
	}
}

func TestPerAgentOverride(t *testing.T) {
	m := New(Config{MaxActions: 1, WindowHours: 1})
	m.SetQuota("vip", Config{MaxActions: 5, WindowHours: 1})

	for i := 0; i < 5; i++ {
		if !m.Consume("vip") {
			t.Fatalf("vip action %d should be allowed under its override", i)
		}
	}
	if m.Consume("vip") {
		t.Fatal("vip should be denied past its own override limit")
	}
}

func TestRemainingReflectsPruning(t *testing.T) {
	now := time.Unix(0, 0)
	m := New(Config{MaxActions: 2, WindowHours: 1})
	m.now = func() time.Time { return now }

	m.Consume("a")
	if got := m.Remaining("a"); got != 1 {
		t.Fatalf("expected 1 remaining, got %d", got)
	}

	now = now.Add(61 * time.Minute)
	if got := m.Remaining("a"); got != 2 {
		t.Fatalf("expected pruning to restore full quota, got %d", got)
	}
}

func TestResetClearsWindow(t *testing.T) {
	m := New(Config{MaxActions: 1, WindowHours: 1})
	m.Consume("a")
	m.Reset("a")
	if !m.Consume("a") {
		t.Fatal("expected a fresh window after reset")
	}
}
