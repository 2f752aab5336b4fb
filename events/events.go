// Package events provides the synchronous publish/subscribe bus that
// decouples the branch and skip evaluators from the step navigator and from
// validation/summary collaborators. The event set is a closed tagged union:
// collaborators switch on concrete types rather than string names.
//
// Delivery is synchronous and in registration order, on the caller's
// goroutine. The bus is safe for re-entrant use: a listener may emit further
// events or subscribe/unsubscribe from inside its own callback.
package events

import (
	"fmt"
	"log/slog"
	"sync"
)

// Kind identifies an event variant. The string values double as the wire
// names collaborators outside this module historically listened on.
type Kind string

const (
	KindBranchChange Kind = "branch:change"
	KindStepNavigate Kind = "step:navigate"
	KindSkipRequest  Kind = "skip:request"
	KindFieldInput   Kind = "field:input"
	KindFieldChange  Kind = "field:change"
	KindFieldBlur    Kind = "field:blur"
)

// Event is the closed union of bus payloads.
type Event interface {
	Kind() Kind
}

// BranchChange announces that a branch target's active condition changed.
type BranchChange struct {
	TargetStepID string
	Value        string
	Active       bool
}

func (BranchChange) Kind() Kind { return KindBranchChange }

// StepNavigate requests navigation to a step. An empty TargetStepID means
// "advance sequentially". Reason is a diagnostic tag such as
// "radio_selection".
type StepNavigate struct {
	TargetStepID string
	Reason       string
}

func (StepNavigate) Kind() Kind { return KindStepNavigate }

// SkipRequest requests navigation past a skipped step. An empty TargetStepID
// means "advance to the next available step".
type SkipRequest struct {
	TargetStepID string
}

func (SkipRequest) Kind() Kind { return KindSkipRequest }

// FieldInput is the pass-through event for input activity on a field.
type FieldInput struct {
	FieldName string
	Value     string
}

func (FieldInput) Kind() Kind { return KindFieldInput }

// FieldChange is the pass-through event for a committed field change.
type FieldChange struct {
	FieldName string
	Value     string
}

func (FieldChange) Kind() Kind { return KindFieldChange }

// FieldBlur is the pass-through event for a field losing focus.
type FieldBlur struct {
	FieldName string
	Value     string
}

func (FieldBlur) Kind() Kind { return KindFieldBlur }

// Listener receives events of the kind it subscribed to.
type Listener func(Event)

type subscriber struct {
	id int
	fn Listener
}

// Bus delivers events to subscribers. The zero value is not usable; construct
// with New.
type Bus struct {
	mu     sync.Mutex
	log    *slog.Logger
	nextID int
	subs   map[Kind][]subscriber

	// navReady gates navigation-critical events. Branch and skip evaluators
	// can fire before the navigator has built its step list; delivering a
	// navigation request into a navigator with no steps would be silently
	// wrong, so such events are dropped with a diagnostic instead.
	navReady bool
}

// Option configures a Bus.
type Option func(*Bus)

// WithLogger sets the logger used for dropped events and listener failures.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bus) { b.log = l }
}

// New constructs an empty bus.
func New(opts ...Option) *Bus {
	b := &Bus{
		log:  slog.Default(),
		subs: make(map[Kind][]subscriber),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers fn for events of kind and returns its unsubscribe
// function. Unsubscribing twice is a no-op.
func (b *Bus) Subscribe(kind Kind, fn Listener) (unsubscribe func()) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[kind] = append(b.subs[kind], subscriber{id: id, fn: fn})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		list := b.subs[kind]
		for i, s := range list {
			if s.id == id {
				b.subs[kind] = append(list[:i:i], list[i+1:]...)
				return
			}
		}
	}
}

// SetNavigatorReady marks the step navigator as (un)initialized. Until it is
// ready, StepNavigate and SkipRequest events are dropped.
func (b *Bus) SetNavigatorReady(ready bool) {
	b.mu.Lock()
	b.navReady = ready
	b.mu.Unlock()
}

// NavigatorReady reports the navigator's readiness flag.
func (b *Bus) NavigatorReady() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.navReady
}

// Emit delivers ev to every listener registered for its kind, in registration
// order, on the calling goroutine. A panicking listener is recovered and
// logged; remaining listeners still run. Navigation-critical events are
// dropped with a diagnostic while the navigator is not ready.
func (b *Bus) Emit(ev Event) {
	kind := ev.Kind()

	b.mu.Lock()
	if b.critical(kind) && !b.navReady {
		b.mu.Unlock()
		b.log.Warn("bus.emit.dropped",
			slog.String("kind", string(kind)),
			slog.String("cause", "navigator not ready"))
		return
	}
	// Snapshot under lock so listeners can re-enter the bus.
	list := make([]subscriber, len(b.subs[kind]))
	copy(list, b.subs[kind])
	b.mu.Unlock()

	for _, s := range list {
		b.deliver(kind, s, ev)
	}
}

func (b *Bus) deliver(kind Kind, s subscriber, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("bus.listener.panic",
				slog.String("kind", string(kind)),
				slog.String("err", fmt.Sprint(r)))
		}
	}()
	s.fn(ev)
}

func (b *Bus) critical(kind Kind) bool {
	return kind == KindStepNavigate || kind == KindSkipRequest
}
