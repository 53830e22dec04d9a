package lifecycle

import (
	"errors"
	"fmt"
	"strings"
)

// State is a step in the launch and authentication lifecycle of one request.
type State int

const (
	NoLaunch State = iota
	Launched
	Unauthenticated
	Authenticating
	Authenticated
	Expired
	Refreshing
	Ready
	Denied
)

var stateNames = map[State]string{
	NoLaunch:        "NoLaunch",
	Launched:        "Launched",
	Unauthenticated: "Unauthenticated",
	Authenticating:  "Authenticating",
	Authenticated:   "Authenticated",
	Expired:         "Expired",
	Refreshing:      "Refreshing",
	Ready:           "Ready",
	Denied:          "Denied",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return len(transitions[s]) == 0
}

var ErrInvalidTransition = errors.New("invalid lifecycle transition")

var transitions = map[State][]State{
	NoLaunch:        {Launched, Denied},
	Launched:        {Unauthenticated, Ready, Expired, Denied},
	Unauthenticated: {Authenticating},
	Authenticating:  {Authenticated, Denied},
	Authenticated:   {Ready},
	Expired:         {Refreshing},
	Refreshing:      {Ready, Denied},
}

// CanTransition reports whether from -> to is allowed.
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Flow records the states one request passes through.
type Flow struct {
	path []State
}

// NewFlow starts a flow at NoLaunch.
func NewFlow() *Flow {
	return NewFlowAt(NoLaunch)
}

// NewFlowAt resumes a flow at a state reached by an earlier request, e.g. the
// OAuth callback resuming at Authenticating.
func NewFlowAt(start State) *Flow {
	return &Flow{path: []State{start}}
}

func (f *Flow) Current() State {
	return f.path[len(f.path)-1]
}

// To moves the flow to next, or returns ErrInvalidTransition leaving it unchanged.
func (f *Flow) To(next State) error {
	from := f.Current()
	if !CanTransition(from, next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, next)
	}
	f.path = append(f.path, next)
	return nil
}

// Path returns a copy of every state visited so far.
func (f *Flow) Path() []State {
	return append([]State(nil), f.path...)
}

func (f *Flow) String() string {
	names := make([]string, len(f.path))
	for i, s := range f.path {
		names[i] = s.String()
	}
	return strings.Join(names, " -> ")
}
