package stepflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/formsmith/stepflow-go/branch"
	"github.com/formsmith/stepflow-go/events"
	"github.com/formsmith/stepflow-go/markup"
	"github.com/formsmith/stepflow-go/nav"
	"github.com/formsmith/stepflow-go/persist"
	"github.com/formsmith/stepflow-go/skip"
	"github.com/formsmith/stepflow-go/state"
)

// ErrNoSnapshotStore is returned by Save and Resume when the engine was
// built without WithSnapshotStore.
var ErrNoSnapshotStore = errors.New("no snapshot store configured")

// Engine ties the session store, event bus, evaluators, and navigator
// together behind the public form API. Construct with New, then Init with a
// parsed document.
type Engine struct {
	log    *slog.Logger
	r      markup.Renderer
	formID string
	snaps  persist.Store

	doc       *markup.Document
	store     *state.Store
	bus       *events.Bus
	branches  *branch.Evaluator
	skips     *skip.Evaluator
	navigator *nav.Navigator
	inited    bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger shared by all engine components.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithRenderer overrides the default ClassRenderer.
func WithRenderer(r markup.Renderer) Option {
	return func(e *Engine) { e.r = r }
}

// WithFormID sets the identifier used as the persistence key. Defaults to
// "default".
func WithFormID(id string) Option {
	return func(e *Engine) { e.formID = id }
}

// WithSnapshotStore enables Save and Resume against the given store. The
// caller retains ownership of the store.
func WithSnapshotStore(s persist.Store) Option {
	return func(e *Engine) { e.snaps = s }
}

// New constructs an engine with an empty session. Call Init before driving
// it.
func New(opts ...Option) *Engine {
	e := &Engine{
		log:    slog.Default(),
		r:      markup.ClassRenderer{},
		formID: "default",
	}
	for _, opt := range opts {
		opt(e)
	}
	e.store = state.NewStore()
	e.bus = events.New(events.WithLogger(e.log))
	return e
}

// Init builds the engine over doc: the session is reset, skip rules and
// branch triggers are scanned, and the navigator shows the first step.
// Re-initialization fully detaches the previous document's listeners before
// attaching new ones, so stale wiring never sees another event.
func (e *Engine) Init(doc *markup.Document) error {
	if doc == nil || doc.Root == nil {
		return fmt.Errorf("init: nil document")
	}
	if e.navigator != nil {
		e.navigator.Close()
	}
	e.store.Reset()

	e.doc = doc
	e.branches = branch.New(doc, e.store, e.bus,
		branch.WithLogger(e.log), branch.WithRenderer(e.r))
	e.skips = skip.New(doc, e.store, e.bus,
		skip.WithLogger(e.log), skip.WithRenderer(e.r))
	e.navigator = nav.New(doc, e.store, e.bus,
		nav.WithLogger(e.log), nav.WithRenderer(e.r),
		nav.WithBeforeAdvance(func() { e.skips.EvaluateSkipConditions() }))

	e.branches.Scan()
	e.skips.Scan()
	if err := e.navigator.Init(); err != nil {
		return fmt.Errorf("init: %w", err)
	}
	e.branches.RefreshConditionals()
	e.inited = true

	e.log.Info("engine.init",
		slog.String("form", e.formID),
		slog.Int("steps", len(e.navigator.Steps())),
		slog.Int("skip_rules", len(e.skips.Rules())))
	return nil
}

// Reset wipes all session state and detaches the navigator's listeners. The
// engine must be re-initialized before further use. Safe to call repeatedly.
func (e *Engine) Reset() {
	if e.navigator != nil {
		e.navigator.Close()
	}
	e.store.Reset()
	e.inited = false
	e.log.Info("engine.reset", slog.String("form", e.formID))
}

// Bus exposes the event bus so validation and summary collaborators can
// subscribe to field and navigation events.
func (e *Engine) Bus() *events.Bus { return e.bus }

// Document returns the element tree the engine mutates, for hosts that
// render it.
func (e *Engine) Document() *markup.Document { return e.doc }

func (e *Engine) ready(op string) bool {
	if !e.inited {
		e.log.Warn("engine.not_initialized", slog.String("op", op))
		return false
	}
	return true
}

// --- Input entry points ---

// Radio records a radio selection in the named group. The radio's branch
// target, if any, is activated and navigation is requested.
func (e *Engine) Radio(name, value string) {
	if !e.ready("radio") {
		return
	}
	group := e.doc.RadioGroup(name)
	var el *markup.Element
	for _, candidate := range group {
		if candidate.Attr("value") == value {
			el = candidate
			break
		}
	}
	if el == nil {
		e.log.Warn("engine.radio.unknown_option",
			slog.String("name", name),
			slog.String("value", value))
		return
	}

	e.store.SetField(name, state.Scalar(value))
	if el.HasAttr(markup.AttrGoTo) {
		e.branches.HandleRadio(el)
	}
	e.bus.Emit(events.FieldChange{FieldName: name, Value: value})
}

// Checkbox records a checkbox toggle on the named field. When several
// checkboxes share the name, their checked values accumulate into an ordered
// list; a lone checkbox holds a scalar.
func (e *Engine) Checkbox(name string, checked bool) {
	e.CheckboxValue(name, "", checked)
}

// CheckboxValue toggles a specific option of a checkbox group. An empty
// value addresses the group's first checkbox.
func (e *Engine) CheckboxValue(name, value string, checked bool) {
	if !e.ready("checkbox") {
		return
	}
	group := e.doc.Root.FindAll(func(el *markup.Element) bool {
		return el.Tag == "input" && el.InputType() == "checkbox" && el.FieldName() == name
	})
	if len(group) == 0 {
		e.log.Warn("engine.checkbox.unknown_field", slog.String("name", name))
		return
	}
	el := group[0]
	if value != "" {
		el = nil
		for _, candidate := range group {
			if candidate.Attr("value") == value {
				el = candidate
				break
			}
		}
		if el == nil {
			e.log.Warn("engine.checkbox.unknown_option",
				slog.String("name", name),
				slog.String("value", value))
			return
		}
	}

	optionValue := el.Attr("value")
	if optionValue == "" {
		optionValue = "on"
	}

	if len(group) > 1 {
		e.toggleListValue(name, optionValue, checked)
	} else if checked {
		e.store.SetField(name, state.Scalar(optionValue))
	} else {
		e.store.ClearFields(name)
	}
	if el.HasAttr(markup.AttrGoTo) {
		e.branches.HandleCheckbox(el, checked)
	}
	reported := ""
	if checked {
		reported = optionValue
	}
	e.bus.Emit(events.FieldChange{FieldName: name, Value: reported})
}

// toggleListValue adds or removes one value from a checkbox group's ordered
// list, clearing the field when the last value goes.
func (e *Engine) toggleListValue(name, value string, on bool) {
	current, _ := e.store.Field(name)
	next := make([]string, 0, len(current.Multi)+1)
	for _, v := range current.Multi {
		if v != value {
			next = append(next, v)
		}
	}
	if on {
		next = append(next, value)
	}
	if len(next) == 0 {
		e.store.ClearFields(name)
		return
	}
	e.store.SetField(name, state.List(next...))
}

// Text records a text, select, or textarea value. An empty value clears the
// field and deactivates any branch the field was holding open.
func (e *Engine) Text(name, value string) {
	if !e.ready("text") {
		return
	}
	el := e.doc.Root.Find(func(el *markup.Element) bool {
		if !el.IsInput() || el.FieldName() != name {
			return false
		}
		t := el.InputType()
		return t != "radio" && t != "checkbox"
	})
	if el == nil {
		e.log.Warn("engine.text.unknown_field", slog.String("name", name))
		return
	}

	if value == "" {
		e.store.ClearFields(name)
	} else {
		e.store.SetField(name, state.Scalar(value))
	}
	if el.HasAttr(markup.AttrGoTo) {
		e.branches.HandleText(el, value)
	}
	e.bus.Emit(events.FieldInput{FieldName: name, Value: value})
}

// Blur emits the field-blur pass-through event with the field's current
// value, for real-time validation collaborators.
func (e *Engine) Blur(name string) {
	if !e.ready("blur") {
		return
	}
	v, _ := e.store.Field(name)
	e.bus.Emit(events.FieldBlur{FieldName: name, Value: v.String()})
}

// --- Navigation ---

// Next advances to the next available step, re-evaluating skip conditions
// first.
func (e *Engine) Next() {
	if e.ready("next") {
		e.navigator.Next()
	}
}

// Back returns to the previously visited step.
func (e *Engine) Back() {
	if e.ready("back") {
		e.navigator.Back()
	}
}

// GoToStep navigates to a step by zero-based index.
func (e *Engine) GoToStep(index int) {
	if e.ready("go_to_step") {
		e.navigator.GoToStep(index)
	}
}

// GoToStepID navigates to a step or step-item by identifier.
func (e *Engine) GoToStepID(id string) {
	if e.ready("go_to_step_id") {
		e.navigator.GoToStepID(id)
	}
}

// ShowStepItem reveals a step-item within its parent step.
func (e *Engine) ShowStepItem(id string) {
	if e.ready("show_step_item") {
		e.navigator.ShowStepItem(id)
	}
}

// HideStepItem hides a step-item.
func (e *Engine) HideStepItem(id string) {
	if e.ready("hide_step_item") {
		e.navigator.HideStepItem(id)
	}
}

// --- Skipping ---

// Skip skips the current step and navigates to target. It reports whether
// the skip took effect; failures (empty or unknown target, already-skipped
// step) are logged and leave state unchanged.
func (e *Engine) Skip(target, reason string) bool {
	if !e.ready("skip") {
		return false
	}
	return e.skips.SkipCurrentTo(target, reason)
}

// UndoSkip restores a previously skipped step, honoring its undo
// eligibility.
func (e *Engine) UndoSkip(stepID string) bool {
	if !e.ready("undo_skip") {
		return false
	}
	return e.skips.UndoSkipStep(stepID)
}

// EvaluateSkipConditions re-runs the declarative skip rules against the
// current active conditions.
func (e *Engine) EvaluateSkipConditions() {
	if e.ready("evaluate_skip_conditions") {
		e.skips.EvaluateSkipConditions()
	}
}

// --- Introspection ---

// StepSummary is the plain-data view of a step returned across the public
// boundary.
type StepSummary struct {
	ID      string `json:"id"`
	Index   int    `json:"index"`
	Type    string `json:"type,omitempty"`
	Subtype string `json:"subtype,omitempty"`
	Number  string `json:"number,omitempty"`
	Visited bool   `json:"visited"`
	Skipped bool   `json:"skipped"`
}

// CurrentStep returns a summary of the current step. Before Init the zero
// summary (Index -1) is returned.
func (e *Engine) CurrentStep() StepSummary {
	if !e.inited {
		return StepSummary{Index: -1}
	}
	step := e.navigator.Current()
	si, _ := e.store.Step(step.ID)
	return StepSummary{
		ID:      step.ID,
		Index:   step.Index,
		Type:    step.Type,
		Subtype: step.Subtype,
		Number:  step.Number,
		Visited: si.Visited,
		Skipped: si.Skipped,
	}
}

// DebugState is a plain-data dump of the whole session, for diagnostics and
// host tooling.
type DebugState struct {
	CurrentStep      string            `json:"current_step"`
	StepOrder        []string          `json:"step_order"`
	PreviousSteps    []string          `json:"previous_steps,omitempty"`
	SkippedSteps     []string          `json:"skipped_steps,omitempty"`
	ActiveConditions map[string]string `json:"active_conditions,omitempty"`
	Fields           map[string]string `json:"fields,omitempty"`
	SkipStats        state.SkipStats   `json:"skip_stats"`
}

// GetDebugState snapshots the session into a DebugState.
func (e *Engine) GetDebugState() DebugState {
	ds := DebugState{
		CurrentStep:      e.store.CurrentStep(),
		PreviousSteps:    e.store.PreviousSteps(),
		SkippedSteps:     e.store.SkippedSteps(),
		ActiveConditions: e.store.ActiveConditions(),
		Fields:           make(map[string]string),
		SkipStats:        e.store.SkipStatistics(),
	}
	if e.navigator != nil {
		for _, step := range e.navigator.Steps() {
			ds.StepOrder = append(ds.StepOrder, step.ID)
		}
	}
	for _, name := range e.store.FieldNames() {
		v, _ := e.store.Field(name)
		ds.Fields[name] = v.String()
	}
	return ds
}

// --- Persistence ---

// Save exports the session and stores it under the engine's form id.
func (e *Engine) Save(ctx context.Context, opts ...persist.Option) error {
	if e.snaps == nil {
		return ErrNoSnapshotStore
	}
	if err := e.snaps.Save(ctx, e.formID, e.store.Export(), opts...); err != nil {
		return fmt.Errorf("save session %q: %w", e.formID, err)
	}
	return nil
}

// Resume loads the saved session for the engine's form id and restores it:
// field values, step metadata, skip state, active conditions, and step
// position. The engine must already be initialized with the same document.
func (e *Engine) Resume(ctx context.Context) error {
	if e.snaps == nil {
		return ErrNoSnapshotStore
	}
	if !e.inited {
		return fmt.Errorf("resume: engine not initialized")
	}
	snap, err := e.snaps.Load(ctx, e.formID)
	if err != nil {
		return fmt.Errorf("resume session %q: %w", e.formID, err)
	}

	e.store.Restore(snap)
	e.branches.RefreshConditionals()
	e.skips.RefreshStyling()
	if snap.CurrentStep != "" {
		e.navigator.RestoreTo(snap.CurrentStep)
	}
	e.log.Info("engine.resume",
		slog.String("form", e.formID),
		slog.String("step", snap.CurrentStep))
	return nil
}
