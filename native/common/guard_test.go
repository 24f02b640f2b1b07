package common

import (
	"errors"
	"testing"
)

func TestGuardNilView(t *testing.T) {
	if err := Guard(nil, "lending"); err != nil {
		t.Fatalf("nil view should not pause: %v", err)
	}
}

func TestPauseSetToggle(t *testing.T) {
	set := NewPauseSet(map[string]bool{"staking": true, "pool": false})
	if err := Guard(set, "staking"); !errors.Is(err, ErrModulePaused) {
		t.Fatalf("expected paused staking, got %v", err)
	}
	if err := Guard(set, "pool"); err != nil {
		t.Fatalf("pool should be open: %v", err)
	}
	set.Set("staking", false)
	set.Set("lending", true)
	if err := Guard(set, "staking"); err != nil {
		t.Fatalf("staking should resume: %v", err)
	}
	snap := set.Snapshot()
	if len(snap) != 1 || !snap["lending"] {
		t.Fatalf("unexpected snapshot %v", snap)
	}
}
