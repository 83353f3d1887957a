package postgres

import (
	"testing"
)

func TestToSetFromSetRoundTrip(t *testing.T) {
	names := []string{"alice", "bob"}

	set := toSet(names)
	if len(set) != 2 {
		t.Fatalf("toSet: want 2 entries, got %d", len(set))
	}
	for _, n := range names {
		if _, ok := set[n]; !ok {
			t.Errorf("toSet: missing %q", n)
		}
	}

	back := fromSet(set)
	if len(back) != len(names) {
		t.Fatalf("fromSet: want %d names, got %d", len(names), len(back))
	}
	seen := make(map[string]bool, len(back))
	for _, n := range back {
		seen[n] = true
	}
	for _, n := range names {
		if !seen[n] {
			t.Errorf("fromSet: missing %q", n)
		}
	}
}

func TestToSetEmpty(t *testing.T) {
	if set := toSet(nil); set != nil {
		t.Errorf("toSet(nil): want nil, got %v", set)
	}
	if set := toSet([]string{}); set != nil {
		t.Errorf("toSet(empty): want nil, got %v", set)
	}
}

func TestFromSetEmpty(t *testing.T) {
	out := fromSet(nil)
	if out == nil {
		t.Fatal("fromSet(nil): want non-nil empty slice for the TEXT[] column, got nil")
	}
	if len(out) != 0 {
		t.Errorf("fromSet(nil): want empty slice, got %v", out)
	}
}
