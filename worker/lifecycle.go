package worker

import (
	"context"

	"github.com/looplab/fsm"
	"go.uber.org/zap"

	"github.com/YAMLcase/Heron/internal/metrics"
)

// State is a worker lifecycle state.
type State string

const (
	StateStarting        State = "starting"
	StateWaitingForInput State = "waiting_for_input"
	StateReady           State = "ready"
	StateDead            State = "dead"
)

var allStates = []State{StateStarting, StateWaitingForInput, StateReady, StateDead}

const (
	eventBound        = "bound"
	eventInputsFilled = "inputs_filled"
	eventLivenessLost = "liveness_lost"
)

// lifecycle wraps the worker state machine:
//
//	starting --bound--> waiting_for_input --inputs_filled--> ready
//	    \________________________\_______________________________\--liveness_lost--> dead
//
// dead is terminal and only the liveness monitor fires liveness_lost.
type lifecycle struct {
	fsm    *fsm.FSM
	stage  string
	logger *zap.Logger
}

func newLifecycle(stage string, logger *zap.Logger) *lifecycle {
	l := &lifecycle{stage: stage, logger: logger}
	l.fsm = fsm.NewFSM(
		string(StateStarting),
		fsm.Events{
			{Name: eventBound, Src: []string{string(StateStarting)}, Dst: string(StateWaitingForInput)},
			{Name: eventInputsFilled, Src: []string{string(StateWaitingForInput)}, Dst: string(StateReady)},
			{
				Name: eventLivenessLost,
				Src:  []string{string(StateStarting), string(StateWaitingForInput), string(StateReady)},
				Dst:  string(StateDead),
			},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				l.logger.Info("worker state changed",
					zap.String("from", e.Src),
					zap.String("to", e.Dst),
					zap.String("event", e.Event))
				l.publish(State(e.Dst))
			},
		},
	)
	l.publish(StateStarting)
	return l
}

func (l *lifecycle) publish(current State) {
	for _, s := range allStates {
		v := 0.0
		if s == current {
			v = 1
		}
		metrics.WorkerState.WithLabelValues(l.stage, string(s)).Set(v)
	}
}

func (l *lifecycle) current() State { return State(l.fsm.Current()) }

func (l *lifecycle) fire(ctx context.Context, event string) error {
	return l.fsm.Event(ctx, event)
}
