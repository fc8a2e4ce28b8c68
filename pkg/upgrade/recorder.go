package upgrade

import "time"

// Recorder receives engine metrics. A nil Recorder is replaced by a no-op.
type Recorder interface {
	RecordResolution(outcome string, duration time.Duration)
	RecordEvaluationFailure(ruleKind string)
	RecordTransition(ruleKind, triggerKind string)
	RecordTransitionError(kind string)
}

type nopRecorder struct{}

func (nopRecorder) RecordResolution(string, time.Duration) {}
func (nopRecorder) RecordEvaluationFailure(string)         {}
func (nopRecorder) RecordTransition(string, string)        {}
func (nopRecorder) RecordTransitionError(string)           {}

func recorderOrNop(r Recorder) Recorder {
	if r == nil {
		return nopRecorder{}
	}
	return r
}
