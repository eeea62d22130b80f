package monitor

import (
	"time"

	"github.com/makt28/tgwatch/internal/storage"
)

// Transition is the change in confirmed alert state produced by a tick.
type Transition int

const (
	TransitionNone Transition = iota
	TransitionEnter
	TransitionExit
)

func (t Transition) String() string {
	switch t {
	case TransitionEnter:
		return "enter"
	case TransitionExit:
		return "exit"
	default:
		return "none"
	}
}

// Decision is the outcome of folding one tick into the persisted state.
type Decision struct {
	Next       storage.AlertState
	WillAlert  bool
	Transition Transition
}

// Decide advances the debounce state machine by one tick.
//
// Entering the alerting state takes minFails consecutive bad ticks; leaving
// it takes a single good one. Since moves only on a transition.
func Decide(prev storage.AlertState, shouldAlert bool, minFails int, now time.Time) Decision {
	fails := 0
	if shouldAlert {
		fails = max(prev.ConsecutiveFails, 0) + 1
	}
	willAlert := fails >= minFails

	switch {
	case willAlert && !prev.Alerting:
		return Decision{
			Next:       storage.AlertState{Alerting: true, Since: now, ConsecutiveFails: fails},
			WillAlert:  true,
			Transition: TransitionEnter,
		}
	case !willAlert && prev.Alerting:
		return Decision{
			Next:       storage.AlertState{Alerting: false, Since: now, ConsecutiveFails: fails},
			WillAlert:  false,
			Transition: TransitionExit,
		}
	default:
		return Decision{
			Next:       storage.AlertState{Alerting: prev.Alerting, Since: prev.Since, ConsecutiveFails: fails},
			WillAlert:  willAlert,
			Transition: TransitionNone,
		}
	}
}
