package agentloop

import (
	"context"
	"errors"
	"testing"

	"github.com/agentd-dev/agentd/taskstore"
)

func TestTaskIDDeterministic(t *testing.T) {
	a := TaskID("find all TODOs")
	b := TaskID("find all TODOs")
	if a != b {
		t.Errorf("expected identical task ids, got %q and %q", a, b)
	}
	if len(a) != 8 {
		t.Errorf("expected 8-character task id, got %q", a)
	}
	if TaskID("another query") == a {
		t.Error("expected different queries to yield different task ids")
	}
}

func TestTaskIDTrimsWhitespace(t *testing.T) {
	if TaskID("  find all TODOs  ") != TaskID("find all TODOs") {
		t.Error("expected surrounding whitespace to be ignored")
	}
}

func TestCheckpointAppendOnly(t *testing.T) {
	cp := NewCheckpoint("test query")
	cp.AddStep("read_file", true, "content", "")
	cp.AddStep("execute_command", false, "", "exit 1")
	cp.AddStep("read_file", true, "more", "")

	steps := cp.Snapshot()
	if len(steps) != 3 {
		t.Fatalf("expected 3 steps, got %d", len(steps))
	}
	if steps[0].Label != "read_file" || !steps[0].Succeeded {
		t.Errorf("step 0 mismatch: %+v", steps[0])
	}
	if steps[1].Label != "execute_command" || steps[1].Succeeded || steps[1].Error != "exit 1" {
		t.Errorf("step 1 mismatch: %+v", steps[1])
	}
	for i := 1; i < len(steps); i++ {
		if steps[i].Timestamp.Before(steps[i-1].Timestamp) {
			t.Errorf("steps out of chronological order at %d", i)
		}
	}
}

func TestCheckpointHasAnySuccess(t *testing.T) {
	cp := NewCheckpoint("q")
	if cp.HasAnySuccess() {
		t.Error("empty checkpoint should have no successes")
	}
	cp.AddStep("a", false, "", "failed")
	if cp.HasAnySuccess() {
		t.Error("all-failed checkpoint should have no successes")
	}
	cp.AddStep("b", true, "ok", "")
	if !cp.HasAnySuccess() {
		t.Error("expected success to be detected")
	}
}

func TestCheckpointSaveLoadRoundTrip(t *testing.T) {
	store := taskstore.NewMemory()
	ctx := context.Background()

	cp := NewCheckpoint("round trip query")
	cp.AddStep("search_files", true, "3 matches", "")
	cp.AddStep("write_file", false, "", "permission denied")

	if err := cp.Save(ctx, store); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := LoadCheckpoint(ctx, store, cp.TaskID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.TaskID != cp.TaskID {
		t.Errorf("task id mismatch: %q vs %q", loaded.TaskID, cp.TaskID)
	}
	if loaded.Query != "round trip query" {
		t.Errorf("query mismatch: %q", loaded.Query)
	}
	steps := loaded.Snapshot()
	if len(steps) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(steps))
	}
	if steps[0].Payload != "3 matches" {
		t.Errorf("payload mismatch: %q", steps[0].Payload)
	}
	if steps[1].Error != "permission denied" {
		t.Errorf("error mismatch: %q", steps[1].Error)
	}
}

func TestLoadCheckpointNotFound(t *testing.T) {
	store := taskstore.NewMemory()
	_, err := LoadCheckpoint(context.Background(), store, "nope1234")
	if !errors.Is(err, taskstore.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
