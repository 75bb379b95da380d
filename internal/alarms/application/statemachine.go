package application

import (
	"sort"
	"sync"
	"time"

	alarms "proofing-monitor/internal/alarms/domain"
)

// StateMachine turns verdicts into edge-triggered alert and clear emissions.
// The first verdict for a key only arms it.
type StateMachine struct {
	mu     sync.Mutex
	states map[string]*alarms.AlertState
}

// NewStateMachine constructs an empty state machine.
func NewStateMachine() *StateMachine {
	return &StateMachine{states: make(map[string]*alarms.AlertState)}
}

// Observe records a verdict and reports the emission it causes, if any.
func (m *StateMachine) Observe(v alarms.Verdict, at time.Time) (alarms.EventKind, bool) {
	if m == nil || !v.Defined {
		return "", false
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	bad := !v.OK
	state, ok := m.states[v.Key]
	if !ok {
		state = &alarms.AlertState{Key: v.Key}
		m.states[v.Key] = state
	}
	state.LastValue = v.Value
	state.UpdatedAt = at

	if !state.Armed {
		state.Armed = true
		state.Bad = bad
		return "", false
	}
	if state.Bad == bad {
		return "", false
	}
	state.Bad = bad
	if bad {
		state.FiredAt = at
		return alarms.EventAlert, true
	}
	return alarms.EventClear, true
}

// State returns a copy of the state for key.
func (m *StateMachine) State(key string) (alarms.AlertState, bool) {
	if m == nil {
		return alarms.AlertState{}, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.states[key]
	if !ok {
		return alarms.AlertState{}, false
	}
	return *state, true
}

// States returns copies of all states ordered by key.
func (m *StateMachine) States() []alarms.AlertState {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	out := make([]alarms.AlertState, 0, len(m.states))
	for _, state := range m.states {
		out = append(out, *state)
	}
	m.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
