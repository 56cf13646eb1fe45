package main

import (
	"path/filepath"
	"sync"
	"testing"
)

func TestTryAcquireConflictsAcrossKinds(t *testing.T) {
	reg := NewLockRegistry()

	granted, holder := reg.TryAcquire(OpBuild, "/tmp/proj")
	if !granted {
		t.Fatalf("first acquire should succeed, got holder %+v", holder)
	}

	// A different kind on the same target must still be denied.
	granted, holder = reg.TryAcquire(OpAddPackage, "/tmp/proj")
	if granted {
		t.Fatal("second acquire on same target should be denied")
	}
	if holder == nil {
		t.Fatal("denied acquire should return the current holder")
	}
	if holder.Kind != OpBuild {
		t.Errorf("holder kind = %q, want %q", holder.Kind, OpBuild)
	}
	if holder.Target != normalizeTarget("/tmp/proj") {
		t.Errorf("holder target = %q, want %q", holder.Target, normalizeTarget("/tmp/proj"))
	}
	if holder.AcquiredAt.IsZero() {
		t.Error("holder should carry its acquisition time")
	}

	// Same kind conflicts too.
	granted, _ = reg.TryAcquire(OpBuild, "/tmp/proj")
	if granted {
		t.Fatal("same-kind acquire on same target should be denied")
	}
}

func TestReleaseAllowsReacquire(t *testing.T) {
	reg := NewLockRegistry()

	if granted, _ := reg.TryAcquire(OpBuild, "/tmp/proj"); !granted {
		t.Fatal("first acquire should succeed")
	}
	reg.Release(OpBuild, "/tmp/proj")
	if granted, _ := reg.TryAcquire(OpBuild, "/tmp/proj"); !granted {
		t.Fatal("acquire after release should succeed")
	}
}

func TestReleaseUnheldIsNoOp(t *testing.T) {
	reg := NewLockRegistry()

	// Releasing a target nobody holds must be silent.
	reg.Release(OpBuild, "/tmp/never-held")
	reg.Release(OpBuild, "/tmp/never-held")

	if reg.Count() != 0 {
		t.Errorf("registry should be empty, has %d locks", reg.Count())
	}
}

func TestDistinctTargetsAcquireIndependently(t *testing.T) {
	reg := NewLockRegistry()

	if granted, _ := reg.TryAcquire(OpBuild, "/tmp/proj-a"); !granted {
		t.Fatal("acquire on proj-a should succeed")
	}
	if granted, _ := reg.TryAcquire(OpTest, "/tmp/proj-b"); !granted {
		t.Fatal("acquire on proj-b should succeed while proj-a is held")
	}
	if reg.Count() != 2 {
		t.Errorf("lock count = %d, want 2", reg.Count())
	}
}

func TestClearReleasesEverything(t *testing.T) {
	reg := NewLockRegistry()

	targets := []string{"/tmp/a", "/tmp/b", "/tmp/c"}
	for _, target := range targets {
		if granted, _ := reg.TryAcquire(OpBuild, target); !granted {
			t.Fatalf("acquire on %s should succeed", target)
		}
	}

	reg.Clear()

	for _, target := range targets {
		if granted, _ := reg.TryAcquire(OpBuild, target); !granted {
			t.Errorf("acquire on %s after Clear should succeed", target)
		}
	}
}

func TestTargetNormalization(t *testing.T) {
	reg := NewLockRegistry()

	abs, err := filepath.Abs("some/project")
	if err != nil {
		t.Fatalf("abs: %v", err)
	}

	if granted, _ := reg.TryAcquire(OpBuild, "some/project"); !granted {
		t.Fatal("acquire via relative path should succeed")
	}

	// The absolute spelling of the same path must hit the same lock key.
	granted, holder := reg.TryAcquire(OpTest, abs)
	if granted {
		t.Fatal("absolute spelling of held relative path should be denied")
	}
	if holder.Target != abs {
		t.Errorf("holder target = %q, want %q", holder.Target, abs)
	}
}

func TestConcurrentAcquireSingleWinner(t *testing.T) {
	reg := NewLockRegistry()

	const contenders = 32
	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0

	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if granted, _ := reg.TryAcquire(OpBuild, "/tmp/contended"); granted {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if winners != 1 {
		t.Errorf("winners = %d, want exactly 1", winners)
	}
}
