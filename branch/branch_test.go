package branch

import (
	"io"
	"log/slog"
	"testing"

	"github.com/formsmith/stepflow-go/events"
	"github.com/formsmith/stepflow-go/markup"
	"github.com/formsmith/stepflow-go/state"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fixture builds a form with a radio branch in "start" and two branch steps,
// one carrying a show-if tied to its own activation.
func fixture() *markup.Document {
	root := markup.NewElement("form")

	start := markup.NewElement("div", markup.AttrForm, markup.RoleStep, markup.AttrAnswer, "start")
	start.AppendChild(markup.NewElement("input",
		"type", "radio", "name", "plan", "value", "basic", markup.AttrGoTo, "branchA"))
	start.AppendChild(markup.NewElement("input",
		"type", "radio", "name", "plan", "value", "pro", markup.AttrGoTo, "branchB"))
	start.AppendChild(markup.NewElement("input",
		"type", "checkbox", "name", "addons", "value", "extra", markup.AttrGoTo, "addons"))
	start.AppendChild(markup.NewElement("input",
		"type", "text", "name", "company", markup.AttrGoTo, "company"))

	branchA := markup.NewElement("div",
		markup.AttrForm, markup.RoleStep, markup.AttrAnswer, "branchA", markup.AttrShowIf, "branchA")
	branchA.AppendChild(markup.NewElement("input", "type", "text", "name", "email"))
	branchA.AppendChild(markup.NewElement("input", "type", "text", "name", "phone"))

	branchB := markup.NewElement("div",
		markup.AttrForm, markup.RoleStep, markup.AttrAnswer, "branchB", markup.AttrShowIf, "branchB")

	addons := markup.NewElement("div",
		markup.AttrForm, markup.RoleStep, markup.AttrAnswer, "addons")
	addons.AppendChild(markup.NewElement("input", "type", "text", "name", "addon_notes"))

	company := markup.NewElement("div",
		markup.AttrForm, markup.RoleStep, markup.AttrAnswer, "company")
	company.AppendChild(markup.NewElement("input", "type", "text", "name", "vat"))

	for _, el := range []*markup.Element{start, branchA, branchB, addons, company} {
		root.AppendChild(el)
	}
	return &markup.Document{Root: root}
}

type env struct {
	doc   *markup.Document
	store *state.Store
	bus   *events.Bus
	eval  *Evaluator

	navigations []events.StepNavigate
	changes     []events.BranchChange
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{
		doc:   fixture(),
		store: state.NewStore(),
		bus:   events.New(events.WithLogger(quietLogger())),
	}
	e.bus.SetNavigatorReady(true)
	e.bus.Subscribe(events.KindStepNavigate, func(ev events.Event) {
		e.navigations = append(e.navigations, ev.(events.StepNavigate))
	})
	e.bus.Subscribe(events.KindBranchChange, func(ev events.Event) {
		e.changes = append(e.changes, ev.(events.BranchChange))
	})
	e.eval = New(e.doc, e.store, e.bus, WithLogger(quietLogger()))
	return e
}

func (e *env) radio(value string) *markup.Element {
	for _, el := range e.doc.RadioGroup("plan") {
		if el.Attr("value") == value {
			return el
		}
	}
	return nil
}

func TestRadioActivatesAndNavigates(t *testing.T) {
	e := newEnv(t)

	e.eval.HandleRadio(e.radio("basic"))

	if !e.store.IsActive("branchA") {
		t.Fatal("branchA should be active")
	}
	if v := e.store.ActiveConditions()["branchA"]; v != "basic" {
		t.Fatalf("triggering value = %q, want basic", v)
	}
	if len(e.navigations) != 1 || e.navigations[0].TargetStepID != "branchA" ||
		e.navigations[0].Reason != "radio_selection" {
		t.Fatalf("unexpected navigations: %+v", e.navigations)
	}
	if !e.radio("basic").HasClass(DefaultInputActiveClass) {
		t.Fatal("selected radio should carry the active class")
	}
}

func TestRadioGroupExclusivity(t *testing.T) {
	e := newEnv(t)

	e.eval.HandleRadio(e.radio("basic"))
	// Fields entered inside branchA before switching away.
	e.store.SetField("email", state.Scalar("a@example.com"))
	e.store.SetField("phone", state.Scalar("123"))

	e.eval.HandleRadio(e.radio("pro"))

	if e.store.IsActive("branchA") {
		t.Fatal("branchA must be deactivated by the sibling selection")
	}
	if !e.store.IsActive("branchB") {
		t.Fatal("branchB should be active")
	}
	// Deactivation clears the abandoned branch's fields.
	if _, ok := e.store.Field("email"); ok {
		t.Fatal("email should have been cleared")
	}
	if _, ok := e.store.Field("phone"); ok {
		t.Fatal("phone should have been cleared")
	}
	if e.radio("basic").HasClass(DefaultInputActiveClass) {
		t.Fatal("deselected radio should lose the active class")
	}
	if len(e.navigations) != 2 || e.navigations[1].TargetStepID != "branchB" {
		t.Fatalf("unexpected navigations: %+v", e.navigations)
	}
}

func TestReactivationDoesNotRestoreFields(t *testing.T) {
	e := newEnv(t)

	e.eval.HandleRadio(e.radio("basic"))
	e.store.SetField("email", state.Scalar("a@example.com"))
	e.eval.HandleRadio(e.radio("pro"))
	e.eval.HandleRadio(e.radio("basic"))

	if _, ok := e.store.Field("email"); ok {
		t.Fatal("reactivating a branch must not restore cleared fields")
	}
}

func TestCheckboxActivateDeactivate(t *testing.T) {
	e := newEnv(t)
	checkbox := e.doc.Root.Find(func(el *markup.Element) bool {
		return el.InputType() == "checkbox"
	})

	e.eval.HandleCheckbox(checkbox, true)
	if !e.store.IsActive("addons") {
		t.Fatal("addons should be active")
	}
	// Checkboxes never navigate.
	if len(e.navigations) != 0 {
		t.Fatalf("checkbox must not navigate: %+v", e.navigations)
	}

	e.store.SetField("addon_notes", state.Scalar("gift wrap"))
	e.eval.HandleCheckbox(checkbox, false)
	if e.store.IsActive("addons") {
		t.Fatal("addons should be deactivated")
	}
	if _, ok := e.store.Field("addon_notes"); ok {
		t.Fatal("unchecking must clear the branch step's fields")
	}
}

func TestTextActivation(t *testing.T) {
	e := newEnv(t)
	text := e.doc.Root.Find(func(el *markup.Element) bool {
		return el.FieldName() == "company"
	})

	e.eval.HandleText(text, "ACME")
	if !e.store.IsActive("company") {
		t.Fatal("company branch should be active")
	}
	if v := e.store.ActiveConditions()["company"]; v != "ACME" {
		t.Fatalf("triggering value = %q", v)
	}

	e.eval.HandleText(text, "")
	if e.store.IsActive("company") {
		t.Fatal("empty value should deactivate")
	}
}

func TestShowIfVisibility(t *testing.T) {
	e := newEnv(t)
	branchA := e.doc.FindAnswer("branchA")
	branchB := e.doc.FindAnswer("branchB")

	e.eval.HandleRadio(e.radio("basic"))
	if branchA.Hidden() {
		t.Fatal("branchA should be visible while its condition holds")
	}
	if !branchB.Hidden() {
		t.Fatal("branchB should be hidden")
	}

	e.eval.HandleRadio(e.radio("pro"))
	if !branchA.Hidden() || branchB.Hidden() {
		t.Fatal("visibility should follow the new selection")
	}

	// Shared state tracks step visibility too.
	if si, _ := e.store.Step("branchB"); !si.Visible {
		t.Fatal("step info visibility not updated")
	}
}

func TestInvalidGoToRejected(t *testing.T) {
	e := newEnv(t)
	bad := markup.NewElement("input",
		"type", "radio", "name", "plan", "value", "x", markup.AttrGoTo, "bad target!")
	e.doc.FindAnswer("start").AppendChild(bad)

	e.eval.HandleRadio(bad)

	if len(e.store.ActiveConditions()) != 0 {
		t.Fatal("invalid go-to must not mutate state")
	}
	if len(e.navigations) != 0 {
		t.Fatal("invalid go-to must not navigate")
	}
}

func TestBranchChangeEvents(t *testing.T) {
	e := newEnv(t)

	e.eval.HandleRadio(e.radio("basic"))
	e.eval.HandleRadio(e.radio("pro"))

	// basic activation, then basic deactivation + pro activation.
	if len(e.changes) != 3 {
		t.Fatalf("expected 3 branch changes, got %d: %+v", len(e.changes), e.changes)
	}
	last := e.changes[len(e.changes)-1]
	if !last.Active || last.TargetStepID != "branchB" {
		t.Fatalf("unexpected final change: %+v", last)
	}
}

func TestInputActiveClassOverride(t *testing.T) {
	e := newEnv(t)
	custom := markup.NewElement("input",
		"type", "radio", "name", "tier", "value", "gold",
		markup.AttrGoTo, "branchA", markup.AttrInputActiveClass, "radio-selected")
	e.doc.FindAnswer("start").AppendChild(custom)

	e.eval.HandleRadio(custom)

	if !custom.HasClass("radio-selected") {
		t.Fatal("fs-inputactive-class override not applied")
	}
	if custom.HasClass(DefaultInputActiveClass) {
		t.Fatal("default class should not be applied when overridden")
	}
}
