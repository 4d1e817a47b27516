package outcome

import (
	"time"
)

// Kind is the classified result of one write or connect attempt.
type Kind int

const (
	Success Kind = iota
	Failure
	// TimeoutLike is a Failure whose error indicates a connection, refusal or deadline problem.
	// It is counted as a failure and additionally as a timeout.
	TimeoutLike
)

func (k Kind) String() string {
	switch k {
	case Success:
		return "success"
	case Failure:
		return "failure"
	case TimeoutLike:
		return "timeout"
	default:
		return "unknown"
	}
}

// Status is the value of the status metric label: "success" or "failure".
func (k Kind) Status() string {
	if k == Success {
		return "success"
	}
	return "failure"
}

func (k Kind) IsTimeout() bool {
	return k == TimeoutLike
}

func (k Kind) IsFailure() bool {
	return k != Success
}

// Outcome is produced once per attempt and consumed immediately by the metrics recorder.
type Outcome struct {
	Target  string
	Kind    Kind
	Latency time.Duration
	Err     error
}
