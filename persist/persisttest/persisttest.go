// Package persisttest provides a reusable conformance suite for
// persist.Store implementations. Backend packages run it from their own
// tests so every implementation honors the same contract.
package persisttest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/formsmith/stepflow-go/persist"
	"github.com/formsmith/stepflow-go/state"
)

// StoreFactory creates a fresh store instance for one test.
type StoreFactory func(t *testing.T) persist.Store

// RunStoreTests runs the complete snapshot-store suite against the factory.
func RunStoreTests(t *testing.T, factory StoreFactory) {
	t.Run("SaveAndLoad", func(t *testing.T) { testSaveAndLoad(t, factory) })
	t.Run("LoadMissing", func(t *testing.T) { testLoadMissing(t, factory) })
	t.Run("Overwrite", func(t *testing.T) { testOverwrite(t, factory) })
	t.Run("Delete", func(t *testing.T) { testDelete(t, factory) })
	t.Run("DeleteMissing", func(t *testing.T) { testDeleteMissing(t, factory) })
	t.Run("FormIsolation", func(t *testing.T) { testFormIsolation(t, factory) })
	t.Run("TTLExpiry", func(t *testing.T) { testTTLExpiry(t, factory) })
}

func sampleSnapshot(currentStep string) state.Snapshot {
	s := state.NewStore()
	s.SetField("email", state.Scalar("a@example.com"))
	s.SetField("interests", state.List("go", "forms"))
	s.UpdateStep(currentStep, state.Visible(true), state.Visited(true))
	s.UpdateStep("locked", state.AllowSkipUndo(false))
	s.AddSkip("locked", "not applicable", []string{"code"})
	s.SetCurrentStep(currentStep)
	s.PushPreviousStep("intro")
	s.Activate("branchA", "basic")
	return s.Export()
}

func testSaveAndLoad(t *testing.T, factory StoreFactory) {
	store := factory(t)
	defer store.Close()
	ctx := context.Background()

	want := sampleSnapshot("start")
	if err := store.Save(ctx, "form-1", want); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := store.Load(ctx, "form-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.CurrentStep != "start" {
		t.Fatalf("CurrentStep = %q, want start", got.CurrentStep)
	}
	if got.Fields["email"].Value != "a@example.com" {
		t.Fatalf("field email lost: %+v", got.Fields["email"])
	}
	if len(got.Fields["interests"].Multi) != 2 {
		t.Fatalf("multi-value field lost: %+v", got.Fields["interests"])
	}
	if !got.Steps["locked"].Skipped || got.Steps["locked"].AllowSkipUndo {
		t.Fatalf("step info lost: %+v", got.Steps["locked"])
	}
	if len(got.SkipHistory) != 1 || got.SkipHistory[0].StepID != "locked" {
		t.Fatalf("skip history lost: %+v", got.SkipHistory)
	}
	if got.ActiveConditions["branchA"] != "basic" {
		t.Fatalf("active conditions lost: %+v", got.ActiveConditions)
	}

	// A restored store must rebuild the skipped set from step info.
	restored := state.NewStore()
	restored.Restore(got)
	if !restored.IsSkipped("locked") {
		t.Fatal("restored store lost skip state")
	}
}

func testLoadMissing(t *testing.T, factory StoreFactory) {
	store := factory(t)
	defer store.Close()

	_, err := store.Load(context.Background(), "nope")
	if !errors.Is(err, persist.ErrNotFound) {
		t.Fatalf("Load of missing snapshot = %v, want ErrNotFound", err)
	}
}

func testOverwrite(t *testing.T, factory StoreFactory) {
	store := factory(t)
	defer store.Close()
	ctx := context.Background()

	if err := store.Save(ctx, "form-1", sampleSnapshot("start")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := store.Save(ctx, "form-1", sampleSnapshot("branchA")); err != nil {
		t.Fatalf("second Save: %v", err)
	}

	got, err := store.Load(ctx, "form-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.CurrentStep != "branchA" {
		t.Fatalf("CurrentStep = %q, want branchA", got.CurrentStep)
	}
}

func testDelete(t *testing.T, factory StoreFactory) {
	store := factory(t)
	defer store.Close()
	ctx := context.Background()

	if err := store.Save(ctx, "form-1", sampleSnapshot("start")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := store.Delete(ctx, "form-1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Load(ctx, "form-1"); !errors.Is(err, persist.ErrNotFound) {
		t.Fatalf("Load after Delete = %v, want ErrNotFound", err)
	}
}

func testDeleteMissing(t *testing.T, factory StoreFactory) {
	store := factory(t)
	defer store.Close()

	if err := store.Delete(context.Background(), "never-saved"); err != nil {
		t.Fatalf("Delete of missing snapshot: %v", err)
	}
}

func testFormIsolation(t *testing.T, factory StoreFactory) {
	store := factory(t)
	defer store.Close()
	ctx := context.Background()

	if err := store.Save(ctx, "form-1", sampleSnapshot("start")); err != nil {
		t.Fatalf("Save form-1: %v", err)
	}
	if err := store.Save(ctx, "form-2", sampleSnapshot("end")); err != nil {
		t.Fatalf("Save form-2: %v", err)
	}
	if err := store.Delete(ctx, "form-1"); err != nil {
		t.Fatalf("Delete form-1: %v", err)
	}

	got, err := store.Load(ctx, "form-2")
	if err != nil {
		t.Fatalf("Load form-2: %v", err)
	}
	if got.CurrentStep != "end" {
		t.Fatalf("form-2 CurrentStep = %q, want end", got.CurrentStep)
	}
}

func testTTLExpiry(t *testing.T, factory StoreFactory) {
	store := factory(t)
	defer store.Close()
	ctx := context.Background()

	if err := store.Save(ctx, "form-ttl", sampleSnapshot("start"), persist.WithTTL(50*time.Millisecond)); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := store.Load(ctx, "form-ttl"); err != nil {
		t.Fatalf("Load before expiry: %v", err)
	}

	time.Sleep(100 * time.Millisecond)

	if _, err := store.Load(ctx, "form-ttl"); !errors.Is(err, persist.ErrNotFound) {
		t.Fatalf("Load after expiry = %v, want ErrNotFound", err)
	}
}
