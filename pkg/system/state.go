package system

import "strings"

// State is a normalized VM power state.
type State string

const (
	StateRunning   State = "running"
	StateStopped   State = "stopped"
	StateSuspended State = "suspended"
	StatePaused    State = "paused"
	StateUnknown   State = "unknown"
	StateError     State = "error"
)

// States lists every valid State.
var States = []State{StateRunning, StateStopped, StateSuspended, StatePaused, StateUnknown, StateError}

// Valid reports whether s is one of the normalized states.
func (s State) Valid() bool {
	for _, v := range States {
		if s == v {
			return true
		}
	}
	return false
}

// ParseState parses a normalized state name (case-insensitive).
func ParseState(s string) (State, bool) {
	st := State(strings.ToLower(strings.TrimSpace(s)))
	return st, st.Valid()
}

// StateMap maps vendor state strings onto normalized states.
type StateMap map[string]State

// Normalize maps a vendor state. Lookups ignore case and surrounding space;
// unmapped values return StateUnknown and false.
func (m StateMap) Normalize(vendor string) (State, bool) {
	if st, ok := m[vendor]; ok {
		return st, true
	}
	key := strings.ToLower(strings.TrimSpace(vendor))
	for k, st := range m {
		if strings.ToLower(k) == key {
			return st, true
		}
	}
	return StateUnknown, false
}
