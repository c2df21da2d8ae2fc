package flow

import (
	"fmt"
	"testing"
	"time"
)

func TestSessionTable(t *testing.T) {
	table := newSessionTable(0)
	if len(table.shards) != defaultShards {
		t.Fatalf("shards = %d, want %d", len(table.shards), defaultShards)
	}

	now := time.Now()
	create := func(id string) func() *SessionContext {
		return func() *SessionContext { return newSessionContext("u", id, PlatformWeb, now) }
	}

	for i := range 100 {
		id := fmt.Sprintf("s-%d", i)
		if _, created := table.getOrCreate(id, int64(i), create(id)); !created {
			t.Fatalf("%s should be created", id)
		}
	}
	if _, created := table.getOrCreate("s-1", 1000, create("s-1")); created {
		t.Error("existing session recreated")
	}
	if table.len() != 100 || len(table.entries()) != 100 {
		t.Fatalf("len = %d, want 100", table.len())
	}

	// s-1 was touched at 1000, so only ids below 50 other than s-1 are stale.
	stale := table.staleKeys(50)
	if len(stale) != 49 {
		t.Errorf("stale = %d, want 49", len(stale))
	}
	if table.removeIfStale("s-1", 50) {
		t.Error("recently touched session removed")
	}
	if !table.removeIfStale("s-2", 50) {
		t.Error("stale session kept")
	}
	if _, ok := table.get("s-2"); ok {
		t.Error("removed session still present")
	}
}
