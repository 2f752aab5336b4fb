// Package branch turns input activity on data-go-to elements into
// active-condition state and navigation requests, and keeps data-show-if
// visibility in sync whenever conditions change.
package branch

import (
	"log/slog"
	"regexp"
	"strings"

	"github.com/formsmith/stepflow-go/condition"
	"github.com/formsmith/stepflow-go/events"
	"github.com/formsmith/stepflow-go/markup"
	"github.com/formsmith/stepflow-go/state"
)

// DefaultInputActiveClass is applied to a selected radio (and its label)
// unless the element overrides it via the fs-inputactive-class attribute.
const DefaultInputActiveClass = "is-active-inputactive"

// goToPattern is the allowed shape of a data-go-to target identifier.
var goToPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Evaluator interprets branch triggers against one document and session.
type Evaluator struct {
	doc   *markup.Document
	store *state.Store
	bus   *events.Bus
	r     markup.Renderer
	log   *slog.Logger
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithLogger sets the evaluator's logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Evaluator) { e.log = l }
}

// WithRenderer sets the renderer used for class and visibility mutations.
func WithRenderer(r markup.Renderer) Option {
	return func(e *Evaluator) { e.r = r }
}

// New constructs an evaluator over doc, reading and writing session state
// through store and publishing on bus.
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

// Scan validates every data-go-to and data-show-if declaration in the
// document, logging malformed ones. Called once at initialization so broken
// markup is diagnosed up front rather than on first interaction.
func (e *Evaluator) Scan() {
	for _, el := range e.doc.Root.FindAll(func(el *markup.Element) bool {
		return el.HasAttr(markup.AttrGoTo)
	}) {
		if target := el.Attr(markup.AttrGoTo); !goToPattern.MatchString(target) {
			e.log.Warn("branch.scan.invalid_go_to",
				slog.String("target", target),
				slog.String("field", el.FieldName()))
		}
	}
	for _, el := range e.doc.Conditionals() {
		if err := condition.Validate(el.Attr(markup.AttrShowIf)); err != nil {
			e.log.Warn("branch.scan.invalid_show_if",
				slog.String("expr", el.Attr(markup.AttrShowIf)),
				slog.String("err", err.Error()))
		}
	}
}

// HandleRadio processes a radio input becoming checked: sibling targets in
// the same name group are deactivated, this radio's target is activated with
// its value, and a navigation request is emitted.
func (e *Evaluator) HandleRadio(el *markup.Element) {
	target, ok := e.target(el)
	if !ok {
		return
	}
	value := triggerValue(el, target)

	// A radio group holds at most one active condition at a time.
	for _, sibling := range e.doc.RadioGroup(el.FieldName()) {
		if sibling == el {
			continue
		}
		e.setInputActive(sibling, false)
		if st, ok := e.target(sibling); ok && st != target {
			e.deactivate(st)
		}
	}

	if name := el.FieldName(); name != "" {
		e.store.SetField(name, state.Scalar(value))
	}
	e.setInputActive(el, true)
	e.activate(target, value)
	e.bus.Emit(events.StepNavigate{TargetStepID: target, Reason: "radio_selection"})
}

// HandleCheckbox processes a checkbox toggling. Checking activates the branch
// target; unchecking deactivates it (clearing that branch step's fields).
// Checkboxes never navigate.
func (e *Evaluator) HandleCheckbox(el *markup.Element, checked bool) {
	target, ok := e.target(el)
	if !ok {
		return
	}
	if checked {
		value := triggerValue(el, target)
		if name := el.FieldName(); name != "" {
			e.store.SetField(name, state.Scalar(value))
		}
		e.setInputActive(el, true)
		e.activate(target, value)
		return
	}
	if name := el.FieldName(); name != "" {
		e.store.ClearFields(name)
	}
	e.setInputActive(el, false)
	e.deactivate(target)
}

// HandleText processes a text/select/textarea value change: a non-empty value
// activates the branch target with that value, an empty value deactivates it.
func (e *Evaluator) HandleText(el *markup.Element, value string) {
	target, ok := e.target(el)
	if !ok {
		return
	}
	if strings.TrimSpace(value) != "" {
		e.activate(target, value)
		return
	}
	e.deactivate(target)
}

// RefreshConditionals recomputes data-show-if visibility for every
// conditional element against the current active conditions, updating both
// the element tree and, for steps, the shared step metadata.
func (e *Evaluator) RefreshConditionals() {
	active := e.store.ActiveConditions()
	for _, el := range e.doc.Conditionals() {
		visible := condition.Evaluate(el.Attr(markup.AttrShowIf), active)
		e.r.SetVisible(el, visible)
		if id := el.Attr(markup.AttrAnswer); id != "" && el.Role() == markup.RoleStep {
			e.store.UpdateStep(id, state.Visible(visible))
		}
	}
}

func (e *Evaluator) activate(target, value string) {
	e.store.Activate(target, value)
	e.bus.Emit(events.BranchChange{TargetStepID: target, Value: value, Active: true})
	e.RefreshConditionals()
}

// deactivate retires a branch target's condition and clears every field
// declared inside that branch's step, so re-entering the branch starts clean.
func (e *Evaluator) deactivate(target string) {
	if !e.store.IsActive(target) {
		return
	}
	e.store.Deactivate(target)
	if stepEl := e.doc.FindAnswer(target); stepEl != nil {
		if cleared := e.store.ClearFields(e.doc.FieldNamesIn(stepEl)...); len(cleared) > 0 {
			e.log.Debug("branch.deactivate.cleared_fields",
				slog.String("target", target),
				slog.Int("count", len(cleared)))
		}
	}
	e.bus.Emit(events.BranchChange{TargetStepID: target, Active: false})
	e.RefreshConditionals()
}

// target validates and returns the element's data-go-to identifier.
func (e *Evaluator) target(el *markup.Element) (string, bool) {
	target := el.Attr(markup.AttrGoTo)
	if !goToPattern.MatchString(target) {
		e.log.Warn("branch.handle.invalid_go_to",
			slog.String("target", target),
			slog.String("field", el.FieldName()))
		return "", false
	}
	return target, true
}

func (e *Evaluator) setInputActive(el *markup.Element, active bool) {
	class := el.Attr(markup.AttrInputActiveClass)
	if class == "" {
		class = DefaultInputActiveClass
	}
	e.r.SetClass(el, class, active)
	if label := labelFor(el); label != nil {
		e.r.SetClass(label, class, active)
	}
}

// labelFor finds the label associated with an input: an enclosing <label>, or
// a <label for=...> matching the input's id.
func labelFor(el *markup.Element) *markup.Element {
	if l := el.Closest(func(p *markup.Element) bool { return p.Tag == "label" }); l != nil {
		return l
	}
	id := el.Attr("id")
	if id == "" {
		return nil
	}
	root := el
	for root.Parent() != nil {
		root = root.Parent()
	}
	return root.Find(func(c *markup.Element) bool {
		return c.Tag == "label" && c.Attr("for") == id
	})
}

// triggerValue picks the condition value a trigger contributes: its value
// attribute, falling back to the target id so the condition is always truthy.
func triggerValue(el *markup.Element, target string) string {
	if v := el.Attr("value"); v != "" {
		return v
	}
	return target
}
