// Package nav owns the ordered step list of a form and the transitions
// between steps: sequential advancement, branch-driven jumps delivered over
// the event bus, skip-driven jumps, back navigation, and step-item reveal
// within a step.
//
// Steps live in an arena-style indexed slice of plain records built once from
// the document at initialization. Each step is in exactly one of three
// states: hidden-unvisited, visible-current, or hidden-visited; the navigator
// tracks a single current index on top.
package nav

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/formsmith/stepflow-go/events"
	"github.com/formsmith/stepflow-go/markup"
	"github.com/formsmith/stepflow-go/state"
)

// Step is one entry of the navigator's arena: plain data plus the renderable
// element it controls.
type Step struct {
	ID      string
	Index   int
	Type    string
	Subtype string
	Number  string
	El      *markup.Element
}

// StepItem is a nested item of a step. Items default to hidden; at most one
// item per parent step is visible at a time.
type StepItem struct {
	ID          string
	ParentIndex int
	Subtype     string
	El          *markup.Element
}

// Navigator drives step transitions for one document and session.
type Navigator struct {
	doc   *markup.Document
	store *state.Store
	bus   *events.Bus
	r     markup.Renderer
	log   *slog.Logger

	steps    []Step
	items    []StepItem
	byID     map[string]int
	itemByID map[string]int
	current  int

	// beforeAdvance runs ahead of sequential advancement so steps that just
	// became skip-eligible are bypassed. The engine wires the skip
	// evaluator's EvaluateSkipConditions here, keeping nav free of a skip
	// dependency.
	beforeAdvance func()

	unsubs []func()
}

// Option configures a Navigator.
type Option func(*Navigator)

// WithLogger sets the navigator's logger.
func WithLogger(l *slog.Logger) Option {
	return func(n *Navigator) { n.log = l }
}

// WithRenderer sets the renderer used for show/hide mutations.
func WithRenderer(r markup.Renderer) Option {
	return func(n *Navigator) { n.r = r }
}

// WithBeforeAdvance sets the hook run before sequential advancement.
func WithBeforeAdvance(fn func()) Option {
	return func(n *Navigator) { n.beforeAdvance = fn }
}

// New constructs a navigator. Call Init to build the step arena and attach
// event listeners.
func New(doc *markup.Document, store *state.Store, bus *events.Bus, opts ...Option) *Navigator {
	n := &Navigator{
		doc:   doc,
		store: store,
		bus:   bus,
		r:     markup.ClassRenderer{},
		log:   slog.Default(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Init builds the step arena from the document, shows step 0, registers this
// navigator's bus listeners, and marks the navigator ready so gated
// navigation events start flowing. Re-initialization detaches the previous
// listeners first.
func (n *Navigator) Init() error {
	n.Close()

	stepEls := n.doc.Steps()
	if len(stepEls) == 0 {
		return fmt.Errorf("document has no steps")
	}

	n.steps = nil
	n.items = nil
	n.byID = make(map[string]int)
	n.itemByID = make(map[string]int)

	for i, el := range stepEls {
		id := el.Attr(markup.AttrAnswer)
		if id == "" {
			// Steps without an identifier get a synthesized placeholder so
			// index-based navigation and state tracking still work.
			id = fmt.Sprintf("step-%d", i)
		}
		if _, dup := n.byID[id]; dup {
			n.log.Warn("nav.init.duplicate_step_id", slog.String("id", id))
		}
		step := Step{
			ID:      id,
			Index:   i,
			Type:    el.Attr(markup.AttrStepType),
			Subtype: el.Attr(markup.AttrStepSubtype),
			Number:  el.Attr(markup.AttrStepNumber),
			El:      el,
		}
		n.steps = append(n.steps, step)
		n.byID[id] = i
		n.store.UpdateStep(id, state.Classification(step.Type, step.Subtype, step.Number))

		for _, itemEl := range n.doc.StepItems(el) {
			itemID := itemEl.Attr(markup.AttrAnswer)
			if itemID == "" {
				itemID = fmt.Sprintf("%s-item-%d", id, len(n.items))
			}
			n.items = append(n.items, StepItem{
				ID:          itemID,
				ParentIndex: i,
				Subtype:     itemEl.Attr(markup.AttrStepSubtype),
				El:          itemEl,
			})
			n.itemByID[itemID] = len(n.items) - 1
		}
	}

	// Initial state: step 0 visible-current, everything else hidden;
	// step-items always start hidden until explicitly shown.
	for i, step := range n.steps {
		visible := i == 0
		n.r.SetVisible(step.El, visible)
		n.store.UpdateStep(step.ID, state.Visible(visible))
	}
	for _, item := range n.items {
		n.r.SetVisible(item.El, false)
	}
	n.current = 0
	n.store.SetCurrentStep(n.steps[0].ID)
	n.store.UpdateStep(n.steps[0].ID, state.Visited(true))
	n.refreshControls()

	n.unsubs = append(n.unsubs,
		n.bus.Subscribe(events.KindStepNavigate, n.onNavigate),
		n.bus.Subscribe(events.KindSkipRequest, n.onSkip),
	)
	n.bus.SetNavigatorReady(true)
	return nil
}

// Close detaches the navigator's bus listeners and revokes readiness, so a
// re-initialized navigator never sees duplicate event delivery.
func (n *Navigator) Close() {
	for _, unsub := range n.unsubs {
		unsub()
	}
	n.unsubs = nil
	n.bus.SetNavigatorReady(false)
}

func (n *Navigator) onNavigate(ev events.Event) {
	nav := ev.(events.StepNavigate)
	if nav.TargetStepID == "" {
		n.Next()
		return
	}
	n.GoToStepID(nav.TargetStepID)
}

func (n *Navigator) onSkip(ev events.Event) {
	req := ev.(events.SkipRequest)
	if req.TargetStepID == "" {
		n.advance()
		return
	}
	n.GoToStepID(req.TargetStepID)
}

// Steps returns the step arena.
func (n *Navigator) Steps() []Step { return n.steps }

// Current returns the current step record.
func (n *Navigator) Current() Step {
	if len(n.steps) == 0 {
		return Step{Index: -1}
	}
	return n.steps[n.current]
}

// GoToStep navigates to a step by index. Out-of-range indices are logged and
// ignored; navigating to the current index is an idempotent no-op.
func (n *Navigator) GoToStep(index int) {
	n.goTo(index, true)
}

func (n *Navigator) goTo(index int, pushHistory bool) {
	if index < 0 || index >= len(n.steps) {
		n.log.Warn("nav.go_to_step.out_of_range",
			slog.Int("index", index),
			slog.Int("steps", len(n.steps)))
		return
	}
	if index == n.current {
		// Re-showing the current step must not grow the history stack.
		n.r.SetVisible(n.steps[index].El, true)
		return
	}

	prev := n.steps[n.current]
	n.r.SetVisible(prev.El, false)
	n.store.UpdateStep(prev.ID, state.Visible(false))
	for _, item := range n.items {
		if item.ParentIndex == prev.Index {
			n.r.SetVisible(item.El, false)
		}
	}
	if pushHistory {
		n.store.PushPreviousStep(prev.ID)
	}

	next := n.steps[index]
	n.r.SetVisible(next.El, true)
	// Re-show any item inside the target step that shared state still marks
	// visible from an earlier visit.
	for _, item := range n.items {
		if item.ParentIndex != index {
			continue
		}
		if si, ok := n.store.Step(item.ID); ok && si.Visible {
			n.r.SetVisible(item.El, true)
		}
	}

	n.current = index
	n.store.SetCurrentStep(next.ID)
	n.store.UpdateStep(next.ID, state.Visible(true), state.Visited(true))
	n.refreshControls()

	n.log.Debug("nav.go_to_step",
		slog.String("from", prev.ID),
		slog.String("to", next.ID),
		slog.Int("index", index))
}

// GoToStepID navigates to a step or step-item by identifier. Step-items
// resolve first: navigation goes to the owning parent step and then reveals
// the specific item. Unresolved identifiers are logged and ignored.
func (n *Navigator) GoToStepID(id string) {
	if itemIdx, ok := n.itemByID[id]; ok {
		item := n.items[itemIdx]
		n.goTo(item.ParentIndex, true)
		n.ShowStepItem(id)
		return
	}
	if idx, ok := n.byID[id]; ok {
		n.goTo(idx, true)
		return
	}
	n.log.Warn("nav.go_to_step.unknown_id",
		slog.String("id", id),
		slog.String("available", strings.Join(n.knownIDs(), ",")))
}

// ShowStepItem reveals the named step-item, hiding its siblings within the
// same parent step. Sibling fields that are conditionally required lose their
// required flag and their stored values; fields of the shown item whose
// data-required-subtype matches the item's subtype become required again.
func (n *Navigator) ShowStepItem(id string) {
	itemIdx, ok := n.itemByID[id]
	if !ok {
		n.log.Warn("nav.show_step_item.unknown_id", slog.String("id", id))
		return
	}
	item := n.items[itemIdx]

	for _, sibling := range n.items {
		if sibling.ParentIndex != item.ParentIndex || sibling.ID == item.ID {
			continue
		}
		n.r.SetVisible(sibling.El, false)
		n.store.UpdateStep(sibling.ID, state.Visible(false))
		n.releaseRequiredFields(sibling.El)
	}

	n.r.SetVisible(item.El, true)
	n.store.UpdateStep(item.ID, state.Visible(true), state.Visited(true))
	n.restoreRequiredFields(item.El, item.Subtype)
}

// HideStepItem hides the named step-item and releases its required fields.
func (n *Navigator) HideStepItem(id string) {
	itemIdx, ok := n.itemByID[id]
	if !ok {
		n.log.Warn("nav.hide_step_item.unknown_id", slog.String("id", id))
		return
	}
	item := n.items[itemIdx]
	n.r.SetVisible(item.El, false)
	n.store.UpdateStep(item.ID, state.Visible(false))
	n.releaseRequiredFields(item.El)
}

// releaseRequiredFields disables the subtype-conditional fields of a hidden
// item and drops their stored values.
func (n *Navigator) releaseRequiredFields(root *markup.Element) {
	for _, field := range n.doc.FieldsIn(root) {
		if !field.HasAttr(markup.AttrRequiredSubtype) {
			continue
		}
		field.RemoveAttr("required")
		field.SetAttr("disabled", "disabled")
		n.store.ClearFields(field.FieldName())
	}
}

// restoreRequiredFields re-enables the shown item's fields and marks those
// matching the item's subtype as required, cleared for fresh entry.
func (n *Navigator) restoreRequiredFields(root *markup.Element, subtype string) {
	for _, field := range n.doc.FieldsIn(root) {
		if !field.HasAttr(markup.AttrRequiredSubtype) {
			continue
		}
		field.RemoveAttr("disabled")
		if subtype != "" && field.Attr(markup.AttrRequiredSubtype) == subtype {
			field.SetAttr("required", "required")
			n.store.ClearFields(field.FieldName())
		}
	}
}

// Next advances sequentially: skip conditions are re-evaluated first (so a
// step that just became skip-eligible is bypassed), then the navigator moves
// to the next non-skipped step. At the last step this is a no-op.
func (n *Navigator) Next() {
	before := n.current
	if n.beforeAdvance != nil {
		n.beforeAdvance()
	}
	// Skip evaluation may have skipped the current step and already emitted
	// the navigation that moved us; advancing again would jump one too far.
	if n.current != before {
		return
	}
	n.advance()
}

// advance moves to the next non-skipped step after the current index.
func (n *Navigator) advance() {
	for i := n.current + 1; i < len(n.steps); i++ {
		if n.store.IsSkipped(n.steps[i].ID) {
			continue
		}
		n.goTo(i, true)
		return
	}
	n.log.Debug("nav.next.at_end", slog.String("step", n.Current().ID))
}

// Back navigates to the previously visited step from the shared history
// stack, falling back to the preceding index when the stack is empty. At the
// first step with no history this is a no-op.
func (n *Navigator) Back() {
	if id, ok := n.store.PopPreviousStep(); ok {
		if idx, known := n.byID[id]; known {
			n.goTo(idx, false)
			return
		}
		n.log.Warn("nav.back.unknown_history_entry", slog.String("id", id))
	}
	if n.current > 0 {
		n.goTo(n.current-1, false)
	}
}

// RestoreTo moves to the named step without recording history, for resuming
// a persisted session whose back stack was restored separately. Unknown ids
// are logged and ignored.
func (n *Navigator) RestoreTo(id string) {
	idx, ok := n.byID[id]
	if !ok {
		n.log.Warn("nav.restore.unknown_id", slog.String("id", id))
		return
	}
	n.goTo(idx, false)
}

// refreshControls updates navigation-control visibility: back is hidden on
// the first step, and the next control is replaced by submit on the last.
func (n *Navigator) refreshControls() {
	first := n.current == 0
	last := n.current == len(n.steps)-1

	for _, el := range n.doc.Controls(markup.RoleBack) {
		n.r.SetVisible(el, !first)
	}
	for _, el := range n.doc.Controls(markup.RoleNext) {
		n.r.SetVisible(el, !last)
	}
	for _, el := range n.doc.Controls(markup.RoleSubmit) {
		n.r.SetVisible(el, last)
	}
}

func (n *Navigator) knownIDs() []string {
	ids := make([]string, 0, len(n.steps)+len(n.items))
	for _, s := range n.steps {
		ids = append(ids, s.ID)
	}
	for _, it := range n.items {
		ids = append(ids, it.ID)
	}
	return ids
}
