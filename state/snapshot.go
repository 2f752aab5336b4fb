package state

import "time"

// Snapshot is a plain, JSON-serializable export of a session store, used by
// the persist package to save and resume half-completed forms. The skipped
// set is not exported separately; it is rebuilt from StepInfo.Skipped on
// restore, so the two can never disagree across a round trip.
type Snapshot struct {
	Fields           map[string]FieldValue `json:"fields,omitempty"`
	Steps            map[string]StepInfo   `json:"steps,omitempty"`
	CurrentStep      string                `json:"current_step,omitempty"`
	PreviousSteps    []string              `json:"previous_steps,omitempty"`
	SkipHistory      []SkipRecord          `json:"skip_history,omitempty"`
	ActiveConditions map[string]string     `json:"active_conditions,omitempty"`
	SavedAt          time.Time             `json:"saved_at"`
}

// Export captures the store's full session state.
func (s *Store) Export() Snapshot {
	snap := Snapshot{
		Fields:           make(map[string]FieldValue, len(s.fields)),
		Steps:            make(map[string]StepInfo, len(s.steps)),
		CurrentStep:      s.current,
		PreviousSteps:    s.PreviousSteps(),
		SkipHistory:      s.SkipHistory(),
		ActiveConditions: make(map[string]string, len(s.active)),
		SavedAt:          s.now(),
	}
	for name, v := range s.fields {
		snap.Fields[name] = v
	}
	for id, si := range s.steps {
		snap.Steps[id] = *si
	}
	for k, v := range s.active {
		snap.ActiveConditions[k] = v
	}
	return snap
}

// Restore replaces the store's state with the snapshot's. The previous
// contents are discarded entirely.
func (s *Store) Restore(snap Snapshot) {
	s.Reset()
	for name, v := range snap.Fields {
		s.fields[name] = v
	}
	for id, si := range snap.Steps {
		cp := si
		s.steps[id] = &cp
		if cp.Skipped {
			s.skipped[id] = true
		}
	}
	s.current = snap.CurrentStep
	s.prev = append([]string(nil), snap.PreviousSteps...)
	s.history = append([]SkipRecord(nil), snap.SkipHistory...)
	for k, v := range snap.ActiveConditions {
		s.active[k] = v
	}
}
