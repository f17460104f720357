package worker

import "fmt"

// Stage names the step of message handling that produced a result.
type Stage int

const (
	StageDecode Stage = iota
	StageEnrich
	StageParse
	StageStore
	StageDone
)

func (s Stage) String() string {
	switch s {
	case StageDecode:
		return "decode"
	case StageEnrich:
		return "enrich"
	case StageParse:
		return "parse"
	case StageStore:
		return "store"
	case StageDone:
		return "done"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// StageResult is the outcome of handling one delivery: the last stage reached
// and the error that stopped it, if any.
type StageResult struct {
	Stage Stage
	Err   error
}

// Action is what the worker does with a delivery once handling finished.
type Action int

const (
	ActionAck Action = iota
	ActionReject
	ActionRequeue
	ActionDeadLetter
)

func (a Action) String() string {
	switch a {
	case ActionAck:
		return "ack"
	case ActionReject:
		return "reject"
	case ActionRequeue:
		return "requeue"
	case ActionDeadLetter:
		return "dead_letter"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// Decide maps a stage result to the delivery's fate.
//
//	decode failure          → reject, the payload can never succeed
//	no error                → ack
//	any later failure       → requeue
//	requeue on delivery ≥ N → dead letter, when maxDeliveries N > 0
func Decide(res StageResult, delivered uint64, maxDeliveries int) Action {
	if res.Err == nil {
		return ActionAck
	}
	if res.Stage == StageDecode {
		return ActionReject
	}
	if maxDeliveries > 0 && delivered >= uint64(maxDeliveries) {
		return ActionDeadLetter
	}
	return ActionRequeue
}
