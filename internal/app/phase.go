package app

import (
	"fmt"
	"sync"
)

// Phase is the lifecycle state of an Application
type Phase string

const (
	PhaseInitializing     Phase = "initializing"
	PhaseStoreConnecting  Phase = "storeConnecting"
	PhaseReady            Phase = "ready"
	PhaseDrainingListener Phase = "drainingListener"
	PhaseClosingGateway   Phase = "closingGateway"
	PhaseClosingStore     Phase = "closingStore"
	PhaseTerminated       Phase = "terminated"
	PhaseFailed           Phase = "failed"
)

// transitions lists the phases reachable from each phase
var transitions = map[Phase][]Phase{
	PhaseInitializing:     {PhaseStoreConnecting, PhaseFailed},
	PhaseStoreConnecting:  {PhaseReady, PhaseFailed},
	PhaseReady:            {PhaseDrainingListener},
	PhaseDrainingListener: {PhaseClosingGateway},
	PhaseClosingGateway:   {PhaseClosingStore},
	PhaseClosingStore:     {PhaseTerminated},
}

// String implements fmt.Stringer
func (p Phase) String() string {
	return string(p)
}

// CanTransition reports whether the table allows p → to
func (p Phase) CanTransition(to Phase) bool {
	for _, next := range transitions[p] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no transition leaves p
func (p Phase) Terminal() bool {
	return p == PhaseTerminated || p == PhaseFailed
}

// phaseMachine owns the current phase. Transitions are compare-and-swap:
// they succeed only from the expected phase, so concurrent callers racing
// for the same transition see exactly one winner.
type phaseMachine struct {
	mu       sync.RWMutex
	current  Phase
	done     chan struct{}
	onChange func(from, to Phase)
}

func newPhaseMachine(onChange func(from, to Phase)) *phaseMachine {
	return &phaseMachine{
		current:  PhaseInitializing,
		done:     make(chan struct{}),
		onChange: onChange,
	}
}

func (m *phaseMachine) Current() Phase {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Transition moves from → to. It fails when the machine is not in from or
// the table does not allow the move.
func (m *phaseMachine) Transition(from, to Phase) error {
	m.mu.Lock()
	if m.current != from {
		current := m.current
		m.mu.Unlock()
		return fmt.Errorf("phase is %s, not %s", current, from)
	}
	if !from.CanTransition(to) {
		m.mu.Unlock()
		return fmt.Errorf("invalid phase transition %s → %s", from, to)
	}
	m.current = to
	if to.Terminal() {
		close(m.done)
	}
	m.mu.Unlock()

	if m.onChange != nil {
		m.onChange(from, to)
	}
	return nil
}

// Fail moves any pre-ready phase to failed and returns the phase it left
func (m *phaseMachine) Fail() (Phase, error) {
	m.mu.RLock()
	from := m.current
	m.mu.RUnlock()
	return from, m.Transition(from, PhaseFailed)
}

// Done is closed once a terminal phase is reached
func (m *phaseMachine) Done() <-chan struct{} {
	return m.done
}
