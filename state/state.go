// Package state holds the shared mutable state of one form session: field
// values, per-step metadata, and the branch path (current step, history,
// active conditions, skip bookkeeping). A Store is an explicit object owned
// by the engine and passed to each evaluator; there is no package-level
// instance, so independent forms and tests never share state.
//
// All mutation is synchronous and immediately visible to subsequent reads.
// The skipped-step set and StepInfo.Skipped are kept in sync by routing every
// skip mutation through AddSkip / UndoSkip.
package state

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/formsmith/stepflow-go/condition"
)

// FieldValue is the stored value of one form field: a scalar for single
// inputs, an ordered list for multi-valued ones (checkbox groups,
// multi-selects).
type FieldValue struct {
	Value string   `json:"value,omitempty"`
	Multi []string `json:"multi,omitempty"`
}

// Scalar wraps a single-valued field value.
func Scalar(v string) FieldValue { return FieldValue{Value: v} }

// List wraps a multi-valued field value.
func List(vs ...string) FieldValue { return FieldValue{Multi: vs} }

// IsZero reports whether the field holds no value at all.
func (v FieldValue) IsZero() bool { return v.Value == "" && len(v.Multi) == 0 }

// String renders the value for display; multi-values are comma-joined.
func (v FieldValue) String() string {
	if len(v.Multi) > 0 {
		return strings.Join(v.Multi, ", ")
	}
	return v.Value
}

// StepInfo is the per-step metadata record. Records are created lazily on
// first reference and only ever mutated afterwards.
type StepInfo struct {
	Type          string `json:"type,omitempty"`
	Subtype       string `json:"subtype,omitempty"`
	Number        string `json:"number,omitempty"`
	Visible       bool   `json:"visible"`
	Visited       bool   `json:"visited"`
	Skipped       bool   `json:"skipped"`
	SkipReason    string `json:"skip_reason,omitempty"`
	AllowSkipUndo bool   `json:"allow_skip_undo"`
}

// StepOption applies one partial update to a StepInfo; unmentioned fields are
// left untouched (merge semantics).
type StepOption func(*StepInfo)

// Visible sets the step's visibility flag.
func Visible(v bool) StepOption { return func(si *StepInfo) { si.Visible = v } }

// Visited sets the step's visited flag.
func Visited(v bool) StepOption { return func(si *StepInfo) { si.Visited = v } }

// AllowSkipUndo sets whether a skip of this step may be undone.
func AllowSkipUndo(v bool) StepOption { return func(si *StepInfo) { si.AllowSkipUndo = v } }

// Classification sets the free-form type/subtype/number labels.
func Classification(typ, subtype, number string) StepOption {
	return func(si *StepInfo) {
		si.Type = typ
		si.Subtype = subtype
		si.Number = number
	}
}

// SkipRecord is one entry of the skip-history log.
type SkipRecord struct {
	ID            string    `json:"id"`
	StepID        string    `json:"step_id"`
	Reason        string    `json:"reason,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
	AllowUndo     bool      `json:"allow_undo"`
	ClearedFields []string  `json:"cleared_fields,omitempty"`
}

// SkipStats summarizes the skip history.
type SkipStats struct {
	TotalSkips    int `json:"total_skips"`
	ActiveSkips   int `json:"active_skips"`
	UndoableSkips int `json:"undoable_skips"`
}

// Store is the shared state of one form session.
type Store struct {
	fields  map[string]FieldValue
	steps   map[string]*StepInfo
	current string
	prev    []string
	skipped map[string]bool
	history []SkipRecord
	active  condition.Values

	now func() time.Time
}

// StoreOption configures a Store at construction.
type StoreOption func(*Store)

// WithClock overrides the time source for skip-history timestamps.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

// NewStore constructs an empty session store.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	s.Reset()
	return s
}

// Reset wipes all session state back to empty. Safe to call repeatedly.
func (s *Store) Reset() {
	s.fields = make(map[string]FieldValue)
	s.steps = make(map[string]*StepInfo)
	s.current = ""
	s.prev = nil
	s.skipped = make(map[string]bool)
	s.history = nil
	s.active = make(condition.Values)
}

// --- Field values ---

// SetField stores the current value of a field. Zero values are stored as-is;
// use ClearFields to remove entries.
func (s *Store) SetField(name string, v FieldValue) {
	if name == "" {
		return
	}
	s.fields[name] = v
}

// Field returns a field's value and whether it is present.
func (s *Store) Field(name string) (FieldValue, bool) {
	v, ok := s.fields[name]
	return v, ok
}

// ClearFields removes the named fields from the store, returning the names
// that were actually present. Used when a branch deactivates or a step is
// skipped.
func (s *Store) ClearFields(names ...string) []string {
	var cleared []string
	for _, name := range names {
		if _, ok := s.fields[name]; ok {
			delete(s.fields, name)
			cleared = append(cleared, name)
		}
	}
	return cleared
}

// FieldNames returns the stored field names, sorted for deterministic output.
func (s *Store) FieldNames() []string {
	names := make([]string, 0, len(s.fields))
	for name := range s.fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// --- Step info ---

// Step returns a copy of the step's metadata and whether any exists yet.
func (s *Store) Step(id string) (StepInfo, bool) {
	si, ok := s.steps[id]
	if !ok {
		return StepInfo{}, false
	}
	return *si, true
}

// UpdateStep applies a partial update to the step's metadata, creating the
// record (with AllowSkipUndo defaulting to true) on first reference. The
// merged result is returned. Skip status is deliberately not updatable here;
// AddSkip and UndoSkip are the only mutation path for it.
func (s *Store) UpdateStep(id string, opts ...StepOption) StepInfo {
	si := s.stepRef(id)
	for _, opt := range opts {
		opt(si)
	}
	return *si
}

func (s *Store) stepRef(id string) *StepInfo {
	si, ok := s.steps[id]
	if !ok {
		si = &StepInfo{AllowSkipUndo: true}
		s.steps[id] = si
	}
	return si
}

// StepIDs returns every step id with a metadata record, sorted.
func (s *Store) StepIDs() []string {
	ids := make([]string, 0, len(s.steps))
	for id := range s.steps {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// --- Branch path ---

// CurrentStep returns the current step id, or "" before initialization.
func (s *Store) CurrentStep() string { return s.current }

// SetCurrentStep records the current step id.
func (s *Store) SetCurrentStep(id string) { s.current = id }

// PushPreviousStep records id on the back-navigation stack. Consecutive
// duplicates are collapsed so a re-entered step is not popped twice.
func (s *Store) PushPreviousStep(id string) {
	if id == "" {
		return
	}
	if n := len(s.prev); n > 0 && s.prev[n-1] == id {
		return
	}
	s.prev = append(s.prev, id)
}

// PopPreviousStep removes and returns the top of the back-navigation stack.
func (s *Store) PopPreviousStep() (string, bool) {
	n := len(s.prev)
	if n == 0 {
		return "", false
	}
	id := s.prev[n-1]
	s.prev = s.prev[:n-1]
	return id, true
}

// PreviousSteps returns a copy of the back-navigation stack, oldest first.
func (s *Store) PreviousSteps() []string {
	out := make([]string, len(s.prev))
	copy(out, s.prev)
	return out
}

// --- Active conditions ---

// Activate records value as the triggering value for a branch target.
func (s *Store) Activate(target, value string) {
	if target == "" {
		return
	}
	s.active[target] = value
}

// Deactivate removes a branch target's active condition.
func (s *Store) Deactivate(target string) { delete(s.active, target) }

// IsActive reports whether target currently has a truthy condition.
func (s *Store) IsActive(target string) bool { return s.active.Truthy(target) }

// ActiveConditions returns a copy of the active-condition map.
func (s *Store) ActiveConditions() condition.Values {
	out := make(condition.Values, len(s.active))
	for k, v := range s.active {
		out[k] = v
	}
	return out
}

// --- Skip bookkeeping ---

// AddSkip marks the step skipped and appends a history entry. It fails (false)
// if the step is already skipped. clearedFields lists the field names removed
// as part of the skip, for the history record.
func (s *Store) AddSkip(stepID, reason string, clearedFields []string) (SkipRecord, bool) {
	if stepID == "" {
		return SkipRecord{}, false
	}
	si := s.stepRef(stepID)
	if si.Skipped {
		return SkipRecord{}, false
	}
	si.Skipped = true
	si.SkipReason = reason
	s.skipped[stepID] = true

	rec := SkipRecord{
		ID:            uuid.NewString(),
		StepID:        stepID,
		Reason:        reason,
		Timestamp:     s.now(),
		AllowUndo:     si.AllowSkipUndo,
		ClearedFields: append([]string(nil), clearedFields...),
	}
	s.history = append(s.history, rec)
	return rec, true
}

// UndoSkip clears the step's skipped status. It fails (false) when the step is
// not skipped or its AllowSkipUndo flag is false; state is unchanged in both
// cases.
func (s *Store) UndoSkip(stepID string) bool {
	si, ok := s.steps[stepID]
	if !ok || !si.Skipped || !si.AllowSkipUndo {
		return false
	}
	si.Skipped = false
	si.SkipReason = ""
	delete(s.skipped, stepID)
	return true
}

// IsSkipped reports whether the step is currently skipped.
func (s *Store) IsSkipped(stepID string) bool { return s.skipped[stepID] }

// SkippedSteps returns the currently skipped step ids, sorted.
func (s *Store) SkippedSteps() []string {
	ids := make([]string, 0, len(s.skipped))
	for id := range s.skipped {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// SkipHistory returns a copy of the skip-event log, oldest first. Undone
// skips remain in the log.
func (s *Store) SkipHistory() []SkipRecord {
	out := make([]SkipRecord, len(s.history))
	copy(out, s.history)
	return out
}

// SkipStatistics summarizes the skip log and current skip state.
func (s *Store) SkipStatistics() SkipStats {
	stats := SkipStats{
		TotalSkips:  len(s.history),
		ActiveSkips: len(s.skipped),
	}
	for _, rec := range s.history {
		if rec.AllowUndo {
			stats.UndoableSkips++
		}
	}
	return stats
}
