// Package recovery implements the startup analysis-and-replay state
// machine: it decides whether a data directory is clean, needs replay,
// or is corrupted, and drives the snapshot-load-then-WAL-replay
// procedure that brings the keyed map and every index back to the state
// they held before the last shutdown or crash.
package recovery

import (
	"fmt"
	"sync"
)

// State is one node of the recovery state machine.
type State int

const (
	Uninitialized State = iota
	Analyzing
	Clean
	RecoveryNeeded
	Corrupted
	Recovering
	Recovered
	Failed
	Ready
	Repair
	Error
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "UNINITIALIZED"
	case Analyzing:
		return "ANALYZING"
	case Clean:
		return "CLEAN"
	case RecoveryNeeded:
		return "RECOVERY_NEEDED"
	case Corrupted:
		return "CORRUPTED"
	case Recovering:
		return "RECOVERING"
	case Recovered:
		return "RECOVERED"
	case Failed:
		return "FAILED"
	case Ready:
		return "READY"
	case Repair:
		return "REPAIR"
	case Error:
		return "ERROR"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(s))
	}
}

// Event is one of the small set of transitions the state machine
// accepts.
type Event int

const (
	StartAnalysis Event = iota
	AnalysisComplete
	RecoveryStart
	RecoveryComplete
	CorruptionDetected
	FailureDetected
	RepairStart
	ManualIntervention
)

func (e Event) String() string {
	switch e {
	case StartAnalysis:
		return "START_ANALYSIS"
	case AnalysisComplete:
		return "ANALYSIS_COMPLETE"
	case RecoveryStart:
		return "RECOVERY_START"
	case RecoveryComplete:
		return "RECOVERY_COMPLETE"
	case CorruptionDetected:
		return "CORRUPTION_DETECTED"
	case FailureDetected:
		return "FAILURE_DETECTED"
	case RepairStart:
		return "REPAIR_START"
	case ManualIntervention:
		return "MANUAL_INTERVENTION"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(e))
	}
}

// AnalysisOutcome is the analysis-complete event's associated data:
// which of the three post-analysis states to enter, and — when
// RECOVERY_NEEDED — the sequence embedded in the snapshot found (0 if
// no snapshot was found but WAL segments exist).
type AnalysisOutcome struct {
	Next             State
	SnapshotSequence uint64
}

// ErrIllegalTransition is returned when an event is not valid from the
// machine's current state.
type ErrIllegalTransition struct {
	From  State
	Event Event
}

func (e *ErrIllegalTransition) Error() string {
	return fmt.Sprintf("recovery: illegal transition: event %s from state %s", e.Event, e.From)
}

// Logger is the minimal logging surface the state machine needs; the
// root façade's *Logger satisfies it.
type Logger interface {
	Warn(msg string, args ...any)
}

// Machine is the recovery state machine. The zero value is ready to
// use; state starts at Uninitialized.
type Machine struct {
	mu     sync.Mutex
	state  State
	logger Logger
}

// New returns a Machine in the Uninitialized state. logger may be nil,
// in which case illegal transitions are refused silently.
func New(logger Logger) *Machine {
	return &Machine{state: Uninitialized, logger: logger}
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// legalNext enumerates, per state, which events are accepted and which
// state each leads to. AnalysisComplete's destination is data-dependent
// (see AnalysisOutcome) and is handled specially by the caller via
// CompleteAnalysis rather than through this table.
var legalNext = map[State]map[Event]State{
	Uninitialized: {StartAnalysis: Analyzing},
	Analyzing: {
		// ANALYSIS_COMPLETE handled by CompleteAnalysis.
		FailureDetected: Failed,
	},
	Clean: {
		RecoveryStart: Recovering, // a clean store still runs the (trivial) procedure to reach Ready uniformly
	},
	RecoveryNeeded: {
		RecoveryStart:      Recovering,
		CorruptionDetected: Corrupted,
	},
	Corrupted: {
		RepairStart:        Repair,
		ManualIntervention: Error,
	},
	Recovering: {
		RecoveryComplete:   Recovered,
		CorruptionDetected: Corrupted,
		FailureDetected:    Failed,
	},
	Recovered: {
		// Recovered transitions to Ready automatically; modeled as an
		// implicit event so callers don't need to invent one.
	},
	Failed: {
		ManualIntervention: Error,
		RepairStart:        Repair,
	},
	Ready:  {},
	Repair: {},
	Error:  {},
}

// Transition applies event to the machine, returning the new state or
// ErrIllegalTransition if event is not valid from the current state.
// Illegal transitions are logged (if a Logger was supplied) and refused
// without changing state.
func (m *Machine) Transition(event Event) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	next, ok := legalNext[m.state][event]
	if !ok {
		if m.logger != nil {
			m.logger.Warn("recovery: refusing illegal transition", "from", m.state.String(), "event", event.String())
		}
		return m.state, &ErrIllegalTransition{From: m.state, Event: event}
	}
	m.state = next
	return m.state, nil
}

// CompleteAnalysis applies the ANALYSIS_COMPLETE event with its
// data-dependent destination state, only legal from Analyzing.
func (m *Machine) CompleteAnalysis(outcome AnalysisOutcome) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != Analyzing {
		if m.logger != nil {
			m.logger.Warn("recovery: refusing illegal transition", "from", m.state.String(), "event", AnalysisComplete.String())
		}
		return m.state, &ErrIllegalTransition{From: m.state, Event: AnalysisComplete}
	}
	switch outcome.Next {
	case Clean, RecoveryNeeded, Corrupted:
		m.state = outcome.Next
		return m.state, nil
	default:
		return m.state, fmt.Errorf("recovery: invalid analysis outcome state %s", outcome.Next)
	}
}

// EnterReady applies the implicit Recovered -> Ready transition.
func (m *Machine) EnterReady() (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != Recovered && m.state != Recovering {
		if m.logger != nil {
			m.logger.Warn("recovery: refusing illegal transition to READY", "from", m.state.String())
		}
		return m.state, &ErrIllegalTransition{From: m.state, Event: RecoveryComplete}
	}
	m.state = Ready
	return m.state, nil
}
