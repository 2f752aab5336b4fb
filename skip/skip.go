// Package skip implements declarative and imperative step skipping: per-step
// skip-condition rules and section groupings read from markup, plus explicit
// skip controls. Skipped steps have their fields cleared and are bypassed by
// sequential navigation until the skip is undone.
package skip

import (
	"log/slog"
	"strings"

	"github.com/formsmith/stepflow-go/condition"
	"github.com/formsmith/stepflow-go/events"
	"github.com/formsmith/stepflow-go/markup"
	"github.com/formsmith/stepflow-go/state"
)

// SkippedClass is the styling class applied to a skipped step's element.
const SkippedClass = "is-skipped"

// TargetPlaceholder is the unconfigured value form builders leave in a skip
// control's data-skip attribute. It is rejected the same as an empty target.
const TargetPlaceholder = "placeholder"

// Rule binds one step to a declarative skip condition.
type Rule struct {
	StepID    string
	Expr      string
	Negate    bool // data-skip-unless: skip when the expression is false
	Target    string
	Reason    string
	AllowUndo bool
}

// Section applies one condition to a named group of steps.
type Section struct {
	StepIDs []string
	Expr    string
	Negate  bool
	Reason  string
}

// Evaluator owns the skip rules of one document and applies them against the
// session's active conditions.
type Evaluator struct {
	doc   *markup.Document
	store *state.Store
	bus   *events.Bus
	r     markup.Renderer
	log   *slog.Logger

	rules    []Rule
	sections []Section
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithLogger sets the evaluator's logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Evaluator) { e.log = l }
}

// WithRenderer sets the renderer used for skip styling.
func WithRenderer(r markup.Renderer) Option {
	return func(e *Evaluator) { e.r = r }
}

// New constructs an evaluator. Call Scan before evaluating conditions.
func New(doc *markup.Document, store *state.Store, bus *events.Bus, opts ...Option) *Evaluator {
	e := &Evaluator{
		doc:   doc,
		store: store,
		bus:   bus,
		r:     markup.ClassRenderer{},
		log:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Scan reads skip rules and sections from the document, replacing any
// previously loaded configuration. Rules with malformed conditions are logged
// and dropped; undo eligibility is recorded onto the step's shared metadata
// so undo checks and skip-history records agree.
func (e *Evaluator) Scan() {
	e.rules = nil
	e.sections = nil

	for i, stepEl := range e.doc.Steps() {
		expr, negate := skipExpr(stepEl)
		if expr == "" {
			continue
		}
		stepID := stepEl.Attr(markup.AttrAnswer)
		if stepID == "" {
			e.log.Warn("skip.scan.unidentified_step", slog.Int("index", i))
			continue
		}
		if err := condition.Validate(expr); err != nil {
			e.log.Warn("skip.scan.invalid_condition",
				slog.String("step", stepID),
				slog.String("err", err.Error()))
			continue
		}
		rule := Rule{
			StepID:    stepID,
			Expr:      expr,
			Negate:    negate,
			Target:    stepEl.Attr(markup.AttrSkipTo),
			Reason:    stepEl.Attr(markup.AttrSkipReason),
			AllowUndo: stepEl.Attr(markup.AttrAllowSkipUndo) != "false",
		}
		e.store.UpdateStep(stepID, state.AllowSkipUndo(rule.AllowUndo))
		e.rules = append(e.rules, rule)
	}

	for _, el := range e.doc.Root.FindAll(func(el *markup.Element) bool {
		return el.HasAttr(markup.AttrSkipSection)
	}) {
		expr, negate := skipExpr(el)
		if expr == "" {
			e.log.Warn("skip.scan.section_without_condition",
				slog.String("steps", el.Attr(markup.AttrSkipSection)))
			continue
		}
		if err := condition.Validate(expr); err != nil {
			e.log.Warn("skip.scan.invalid_condition",
				slog.String("section", el.Attr(markup.AttrSkipSection)),
				slog.String("err", err.Error()))
			continue
		}
		var ids []string
		for _, id := range strings.Split(el.Attr(markup.AttrSkipSection), ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
		e.sections = append(e.sections, Section{
			StepIDs: ids,
			Expr:    expr,
			Negate:  negate,
			Reason:  el.Attr(markup.AttrSkipReason),
		})
	}
}

// Rules returns the loaded per-step rules.
func (e *Evaluator) Rules() []Rule { return e.rules }

// Sections returns the loaded section groupings.
func (e *Evaluator) Sections() []Section { return e.sections }

// EvaluateSkipConditions re-evaluates every rule and section against the
// current active conditions: steps whose condition just became true are
// skipped (fields cleared, no user interaction needed), steps whose condition
// became false are un-skipped when undo is allowed. If the current step gets
// skipped, a skip-navigation request is emitted to move off it.
func (e *Evaluator) EvaluateSkipConditions() {
	active := e.store.ActiveConditions()

	apply := func(stepID, expr string, negate bool, reason, target string) {
		want := condition.Evaluate(expr, active)
		if negate {
			want = !want
		}
		switch {
		case want && !e.store.IsSkipped(stepID):
			if !e.SkipStep(stepID, reason) {
				return
			}
			if e.store.CurrentStep() == stepID {
				e.bus.Emit(events.SkipRequest{TargetStepID: target})
			}
		case !want && e.store.IsSkipped(stepID):
			// UndoSkipStep enforces undo eligibility itself.
			e.UndoSkipStep(stepID)
		}
	}

	for _, rule := range e.rules {
		apply(rule.StepID, rule.Expr, rule.Negate, rule.Reason, rule.Target)
	}
	for _, section := range e.sections {
		for _, stepID := range section.StepIDs {
			apply(stepID, section.Expr, section.Negate, section.Reason, "")
		}
	}
}

// HandleTrigger processes an explicit skip control activation. The control
// must name an existing step in its data-skip attribute; otherwise the
// operation is aborted with a diagnostic and no state change. On success the
// current step's fields are cleared, the step is marked skipped, and a
// skip-navigation request naming the validated target is emitted.
func (e *Evaluator) HandleTrigger(trigger *markup.Element) bool {
	target := strings.TrimSpace(trigger.Attr(markup.AttrSkip))
	return e.SkipCurrentTo(target, trigger.Attr(markup.AttrSkipReason))
}

// SkipCurrentTo skips the current step and requests navigation to target.
// See HandleTrigger for validation semantics.
func (e *Evaluator) SkipCurrentTo(target, reason string) bool {
	if target == "" || target == TargetPlaceholder {
		e.log.Warn("skip.trigger.invalid_target", slog.String("target", target))
		return false
	}
	if e.doc.FindAnswer(target) == nil {
		e.log.Warn("skip.trigger.unknown_target",
			slog.String("target", target),
			slog.String("available", strings.Join(e.availableIDs(), ",")))
		return false
	}
	current := e.store.CurrentStep()
	if current == "" {
		e.log.Warn("skip.trigger.no_current_step", slog.String("target", target))
		return false
	}
	if !e.SkipStep(current, reason) {
		return false
	}
	e.bus.Emit(events.SkipRequest{TargetStepID: target})
	return true
}

// SkipStep marks a step skipped, clearing its fields and applying skip
// styling. Skipping an already-skipped step is a failing no-op.
func (e *Evaluator) SkipStep(stepID, reason string) bool {
	if e.store.IsSkipped(stepID) {
		return false
	}
	stepEl := e.doc.FindAnswer(stepID)

	var cleared []string
	if stepEl != nil {
		cleared = e.store.ClearFields(e.doc.FieldNamesIn(stepEl)...)
	}
	rec, ok := e.store.AddSkip(stepID, reason, cleared)
	if !ok {
		return false
	}
	if stepEl != nil {
		e.r.SetClass(stepEl, SkippedClass, true)
	}
	e.log.Info("skip.step.skipped",
		slog.String("step", stepID),
		slog.String("reason", reason),
		slog.Int("cleared_fields", len(rec.ClearedFields)))
	return true
}

// RefreshStyling resyncs skip styling on every step element from the store's
// skip state. Needed after a session restore, where skipped status arrives in
// the snapshot without passing through SkipStep.
func (e *Evaluator) RefreshStyling() {
	for _, stepEl := range e.doc.Steps() {
		id := stepEl.Attr(markup.AttrAnswer)
		if id == "" {
			continue
		}
		e.r.SetClass(stepEl, SkippedClass, e.store.IsSkipped(id))
	}
}

// UndoSkipStep clears a step's skipped status and styling. Undoing a
// non-skipped step, or one whose AllowSkipUndo is false, is a failing no-op.
func (e *Evaluator) UndoSkipStep(stepID string) bool {
	if !e.store.UndoSkip(stepID) {
		return false
	}
	if stepEl := e.doc.FindAnswer(stepID); stepEl != nil {
		e.r.SetClass(stepEl, SkippedClass, false)
	}
	e.log.Info("skip.step.unskipped", slog.String("step", stepID))
	return true
}

func (e *Evaluator) availableIDs() []string {
	var ids []string
	for _, stepEl := range e.doc.Steps() {
		if id := stepEl.Attr(markup.AttrAnswer); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// skipExpr extracts the step's skip condition: data-skip-if as-is, or
// data-skip-unless with negation.
func skipExpr(el *markup.Element) (expr string, negate bool) {
	if expr = el.Attr(markup.AttrSkipIf); expr != "" {
		return expr, false
	}
	return el.Attr(markup.AttrSkipUnless), true
}
