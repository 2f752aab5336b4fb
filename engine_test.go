package stepflow

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/formsmith/stepflow-go/events"
	"github.com/formsmith/stepflow-go/markup"
	"github.com/formsmith/stepflow-go/persist/memory"
)

const wizardHTML = `
<form data-form="multistep">
  <div data-form="step" data-answer="start">
    <label><input type="radio" name="plan" value="basic" data-go-to="branchA"></label>
    <label><input type="radio" name="plan" value="pro" data-go-to="branchB"></label>
    <input type="checkbox" name="newsletter" value="newsletter" data-go-to="wants_promo">
  </div>
  <div data-form="step" data-answer="branchA">
    <input type="text" name="team_name">
  </div>
  <div data-form="step" data-answer="branchB">
    <input type="text" name="company_name">
    <div data-show-if="branchB">Pro plan details</div>
  </div>
  <div data-form="step" data-answer="promo"
       data-skip-if="wants_promo" data-skip-to="end" data-skip-reason="already_subscribed">
    <input type="text" name="promo_code">
  </div>
  <div data-form="step" data-answer="end"></div>
  <button data-form="back"></button>
  <button data-form="next"></button>
  <button data-form="submit"></button>
</form>`

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func parseWizard(t *testing.T) *markup.Document {
	t.Helper()
	doc, err := markup.ParseHTML(strings.NewReader(wizardHTML))
	if err != nil {
		t.Fatalf("ParseHTML: %v", err)
	}
	return doc
}

func newEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	e := New(append([]Option{WithLogger(quietLogger())}, opts...)...)
	if err := e.Init(parseWizard(t)); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return e
}

func TestRadioBranchNavigation(t *testing.T) {
	e := newEngine(t)

	e.Radio("plan", "basic")

	cur := e.CurrentStep()
	if cur.ID != "branchA" {
		t.Fatalf("current step = %q, want branchA", cur.ID)
	}
	ds := e.GetDebugState()
	if ds.Fields["plan"] != "basic" {
		t.Fatalf("plan = %q", ds.Fields["plan"])
	}
	if ds.ActiveConditions["branchA"] != "basic" {
		t.Fatalf("active conditions = %v", ds.ActiveConditions)
	}
}

func TestBranchSwitchClearsAbandonedFields(t *testing.T) {
	e := newEngine(t)

	e.Radio("plan", "basic")
	e.Text("team_name", "Tigers")
	e.Back()
	e.Radio("plan", "pro")

	if e.CurrentStep().ID != "branchB" {
		t.Fatalf("current step = %q, want branchB", e.CurrentStep().ID)
	}
	ds := e.GetDebugState()
	if _, ok := ds.Fields["team_name"]; ok {
		t.Fatal("abandoned branch's field should be cleared")
	}
	if _, ok := ds.ActiveConditions["branchA"]; ok {
		t.Fatal("abandoned branch's condition should be deactivated")
	}
	if ds.ActiveConditions["branchB"] != "pro" {
		t.Fatalf("active conditions = %v", ds.ActiveConditions)
	}
	// The show-if element tied to the new branch is revealed.
	conditional := e.Document().Conditionals()[0]
	if conditional.Hidden() {
		t.Fatal("data-show-if element should be visible while its condition is active")
	}
}

func TestReselectingSameBranchDoesNotRestoreFields(t *testing.T) {
	e := newEngine(t)

	e.Radio("plan", "basic")
	e.Text("team_name", "Tigers")
	e.Back()
	e.Radio("plan", "pro")
	e.Back()
	e.Radio("plan", "basic")

	if _, ok := e.GetDebugState().Fields["team_name"]; ok {
		t.Fatal("re-entering a branch must start with cleared fields")
	}
}

func TestCheckboxActivatesWithoutNavigating(t *testing.T) {
	e := newEngine(t)

	e.Checkbox("newsletter", true)

	if e.CurrentStep().ID != "start" {
		t.Fatal("checkbox triggers must not navigate")
	}
	ds := e.GetDebugState()
	if ds.ActiveConditions["wants_promo"] != "newsletter" {
		t.Fatalf("active conditions = %v", ds.ActiveConditions)
	}

	e.Checkbox("newsletter", false)
	ds = e.GetDebugState()
	if _, ok := ds.ActiveConditions["wants_promo"]; ok {
		t.Fatal("unchecking must deactivate the condition")
	}
	if _, ok := ds.Fields["newsletter"]; ok {
		t.Fatal("unchecking must clear the field")
	}
}

func TestDeclarativeSkipBypassesStep(t *testing.T) {
	e := newEngine(t)

	e.Checkbox("newsletter", true)
	e.Radio("plan", "pro")
	e.Next() // branchB -> promo would be next, but promo's condition holds

	if e.CurrentStep().ID != "end" {
		t.Fatalf("current step = %q, want end", e.CurrentStep().ID)
	}
	ds := e.GetDebugState()
	if len(ds.SkippedSteps) != 1 || ds.SkippedSteps[0] != "promo" {
		t.Fatalf("skipped steps = %v", ds.SkippedSteps)
	}
	if ds.SkipStats.ActiveSkips != 1 || ds.SkipStats.TotalSkips != 1 {
		t.Fatalf("skip stats = %+v", ds.SkipStats)
	}
}

func TestConditionChangeUndoesDeclarativeSkip(t *testing.T) {
	e := newEngine(t)

	e.Checkbox("newsletter", true)
	e.EvaluateSkipConditions()
	if len(e.GetDebugState().SkippedSteps) != 1 {
		t.Fatal("promo should be skipped while the condition holds")
	}

	e.Checkbox("newsletter", false)
	e.EvaluateSkipConditions()
	if got := e.GetDebugState().SkippedSteps; len(got) != 0 {
		t.Fatalf("skip should be undone, got %v", got)
	}
}

func TestImperativeSkip(t *testing.T) {
	e := newEngine(t)
	e.Radio("plan", "basic")
	e.Text("team_name", "Tigers")

	if !e.Skip("end", "not_applicable") {
		t.Fatal("skip to a known step should succeed")
	}
	if e.CurrentStep().ID != "end" {
		t.Fatalf("current step = %q, want end", e.CurrentStep().ID)
	}
	ds := e.GetDebugState()
	if len(ds.SkippedSteps) != 1 || ds.SkippedSteps[0] != "branchA" {
		t.Fatalf("skipped steps = %v", ds.SkippedSteps)
	}
	if _, ok := ds.Fields["team_name"]; ok {
		t.Fatal("skipping must clear the skipped step's fields")
	}
	if ds.SkipStats.ActiveSkips != 1 {
		t.Fatalf("skip stats = %+v", ds.SkipStats)
	}
}

func TestSkipRejectsBadTargets(t *testing.T) {
	e := newEngine(t)
	before := e.GetDebugState()

	for _, target := range []string{"", "placeholder", "no-such-step"} {
		if e.Skip(target, "") {
			t.Fatalf("skip to %q should fail", target)
		}
	}

	after := e.GetDebugState()
	if after.CurrentStep != before.CurrentStep || len(after.SkippedSteps) != 0 {
		t.Fatal("failed skips must not change state")
	}
}

func TestUndoSkipRestoresStep(t *testing.T) {
	e := newEngine(t)
	e.Skip("end", "later")

	if !e.UndoSkip("start") {
		t.Fatal("undo of an eligible skip should succeed")
	}
	if len(e.GetDebugState().SkippedSteps) != 0 {
		t.Fatal("step should no longer be skipped")
	}
	if e.UndoSkip("start") {
		t.Fatal("undoing twice should fail")
	}
}

func TestGoToStepIdempotence(t *testing.T) {
	e := newEngine(t)

	e.GoToStep(1)
	e.GoToStep(1)

	ds := e.GetDebugState()
	if len(ds.PreviousSteps) != 1 || ds.PreviousSteps[0] != "start" {
		t.Fatalf("history = %v", ds.PreviousSteps)
	}
}

func TestUninitializedEngineOpsAreNoOps(t *testing.T) {
	e := New(WithLogger(quietLogger()))

	e.Radio("plan", "basic")
	e.Next()
	e.GoToStepID("end")
	if e.Skip("end", "") {
		t.Fatal("skip before init should fail")
	}
	if got := e.CurrentStep(); got.Index != -1 {
		t.Fatalf("current step before init = %+v", got)
	}
}

func TestNavigationGatedBeforeInit(t *testing.T) {
	e := New(WithLogger(quietLogger()))

	// Navigation events published before the navigator exists are dropped
	// rather than queued.
	e.Bus().Emit(events.StepNavigate{TargetStepID: "end"})

	if err := e.Init(parseWizard(t)); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if e.CurrentStep().ID != "start" {
		t.Fatalf("current step = %q, want start", e.CurrentStep().ID)
	}
}

func TestResetDetachesNavigation(t *testing.T) {
	e := newEngine(t)
	e.Reset()

	e.Bus().Emit(events.StepNavigate{TargetStepID: "end"})
	if e.CurrentStep().Index != -1 {
		t.Fatal("reset engine should not navigate")
	}

	if err := e.Init(parseWizard(t)); err != nil {
		t.Fatalf("re-Init: %v", err)
	}
	e.GoToStepID("end")
	if got := e.GetDebugState().PreviousSteps; len(got) != 1 {
		t.Fatalf("duplicate listener delivery detected, history = %v", got)
	}
}

func TestFieldEventsReachSubscribers(t *testing.T) {
	e := newEngine(t)
	var kinds []events.Kind
	e.Bus().Subscribe(events.KindFieldChange, func(ev events.Event) {
		kinds = append(kinds, ev.Kind())
	})
	e.Bus().Subscribe(events.KindFieldInput, func(ev events.Event) {
		kinds = append(kinds, ev.Kind())
	})
	e.Bus().Subscribe(events.KindFieldBlur, func(ev events.Event) {
		kinds = append(kinds, ev.Kind())
	})

	e.Radio("plan", "basic")
	e.Text("team_name", "Tigers")
	e.Blur("team_name")

	want := []events.Kind{events.KindFieldChange, events.KindFieldInput, events.KindFieldBlur}
	if len(kinds) != len(want) {
		t.Fatalf("kinds = %v", kinds)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("kinds = %v, want %v", kinds, want)
		}
	}
}

func TestCheckboxGroupAccumulatesValues(t *testing.T) {
	doc, err := markup.ParseHTML(strings.NewReader(`
<form>
  <div data-form="step" data-answer="only">
    <input type="checkbox" name="addons" value="support">
    <input type="checkbox" name="addons" value="backup">
  </div>
</form>`))
	if err != nil {
		t.Fatalf("ParseHTML: %v", err)
	}
	e := New(WithLogger(quietLogger()))
	if err := e.Init(doc); err != nil {
		t.Fatalf("Init: %v", err)
	}

	e.CheckboxValue("addons", "support", true)
	e.CheckboxValue("addons", "backup", true)
	if got := e.GetDebugState().Fields["addons"]; got != "support, backup" {
		t.Fatalf("addons = %q", got)
	}

	e.CheckboxValue("addons", "support", false)
	if got := e.GetDebugState().Fields["addons"]; got != "backup" {
		t.Fatalf("addons = %q", got)
	}

	e.CheckboxValue("addons", "backup", false)
	if _, ok := e.GetDebugState().Fields["addons"]; ok {
		t.Fatal("unchecking the last option should clear the field")
	}
}

func TestSaveWithoutStore(t *testing.T) {
	e := newEngine(t)
	if err := e.Save(context.Background()); !errors.Is(err, ErrNoSnapshotStore) {
		t.Fatalf("err = %v", err)
	}
	if err := e.Resume(context.Background()); !errors.Is(err, ErrNoSnapshotStore) {
		t.Fatalf("err = %v", err)
	}
}

func TestSaveAndResume(t *testing.T) {
	ctx := context.Background()
	snaps := memory.New()
	defer snaps.Close()

	e := newEngine(t, WithFormID("wizard-42"), WithSnapshotStore(snaps))
	e.Checkbox("newsletter", true)
	e.Radio("plan", "pro")
	e.Text("company_name", "Initech")
	e.EvaluateSkipConditions()
	if !e.Document().FindAnswer("promo").HasClass("is-skipped") {
		t.Fatal("promo should carry skip styling before save")
	}
	if err := e.Save(ctx); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// A fresh engine over a fresh parse of the same form resumes the session.
	restored := newEngine(t, WithFormID("wizard-42"), WithSnapshotStore(snaps))
	if err := restored.Resume(ctx); err != nil {
		t.Fatalf("Resume: %v", err)
	}

	if restored.CurrentStep().ID != "branchB" {
		t.Fatalf("resumed step = %q, want branchB", restored.CurrentStep().ID)
	}
	ds := restored.GetDebugState()
	if ds.Fields["company_name"] != "Initech" || ds.Fields["plan"] != "pro" {
		t.Fatalf("resumed fields = %v", ds.Fields)
	}
	if ds.ActiveConditions["branchB"] != "pro" {
		t.Fatalf("resumed conditions = %v", ds.ActiveConditions)
	}
	// Conditional visibility is recomputed from the restored conditions.
	if restored.Document().Conditionals()[0].Hidden() {
		t.Fatal("resumed session should show the active branch's conditional")
	}
	// Skip state restored from the snapshot carries its styling into the
	// freshly parsed document.
	if len(ds.SkippedSteps) != 1 || ds.SkippedSteps[0] != "promo" {
		t.Fatalf("resumed skipped steps = %v", ds.SkippedSteps)
	}
	if !restored.Document().FindAnswer("promo").HasClass("is-skipped") {
		t.Fatal("resumed document should carry skip styling for the restored skipped step")
	}
	// The back history is exactly what was saved; restoring the step
	// position itself pushed nothing.
	if len(ds.PreviousSteps) != 1 || ds.PreviousSteps[0] != "start" {
		t.Fatalf("resumed history = %v", ds.PreviousSteps)
	}
}

func TestResumeMissingSession(t *testing.T) {
	snaps := memory.New()
	defer snaps.Close()

	e := newEngine(t, WithFormID("never-saved"), WithSnapshotStore(snaps))
	if err := e.Resume(context.Background()); err == nil {
		t.Fatal("resume of a missing session should fail")
	}
}

func TestDebugStateStepOrder(t *testing.T) {
	e := newEngine(t)

	ds := e.GetDebugState()
	want := []string{"start", "branchA", "branchB", "promo", "end"}
	if len(ds.StepOrder) != len(want) {
		t.Fatalf("step order = %v", ds.StepOrder)
	}
	for i := range want {
		if ds.StepOrder[i] != want[i] {
			t.Fatalf("step order = %v, want %v", ds.StepOrder, want)
		}
	}
	if ds.CurrentStep != "start" {
		t.Fatalf("current = %q", ds.CurrentStep)
	}
}
