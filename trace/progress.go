package trace

import "math"

// Progress receives debounced notifications about a long-running decode's
// advancement. Phase names the stage being reported (e.g. "perf", "etw");
// fraction is in [0,1]. A nil Progress is always a valid value to pass
// around: ProgressReporter tolerates it as "no listener attached".
type Progress interface {
	Start(phase string)
	Report(phase string, fraction float64)
	Finish(phase string)
}

// ProgressReporter debounces raw work-unit increments (e.g. bytes consumed)
// into Progress calls at roughly every resolution fraction of totalWork,
// always reporting 0% at construction and 100% at Finish. Grounded on
// progress_reporter (original_source/snail/common/progress.cpp).
type ProgressReporter struct {
	listener       Progress
	phase          string
	totalWork      int64
	stepWork       float64
	currentWork    int64
	nextReportStep uint64
	nextReportWork int64
}

// NewProgressReporter starts reporting phase's progress against totalWork
// units of work, debounced to every resolution fraction of totalWork (e.g.
// 0.01 for whole-percent steps). listener may be nil. totalWork <= 0 is
// treated as 1, so a single Add immediately completes the phase.
func NewProgressReporter(listener Progress, phase string, totalWork int64, resolution float64) *ProgressReporter {
	if resolution <= 0 {
		resolution = 1.0
	}
	if totalWork <= 0 {
		totalWork = 1
	}
	r := &ProgressReporter{
		listener:       listener,
		phase:          phase,
		totalWork:      totalWork,
		stepWork:       resolution * float64(totalWork),
		nextReportStep: 1,
	}
	r.nextReportWork = int64(math.Ceil(r.stepWork * float64(r.nextReportStep)))
	if listener != nil {
		listener.Start(phase)
		listener.Report(phase, 0)
	}
	return r
}

// Add records work additional units of completed work, reporting to the
// listener if this crosses the next debounced step.
func (r *ProgressReporter) Add(work int64) {
	if r == nil {
		return
	}
	r.currentWork += work
	if r.currentWork < r.nextReportWork {
		return
	}
	if r.listener != nil {
		r.listener.Report(r.phase, float64(r.currentWork)/float64(r.totalWork))
	}

	currentStep := uint64(float64(r.currentWork) / r.stepWork)
	if s := currentStep + 1; s > r.nextReportStep+1 {
		r.nextReportStep = s
	} else {
		r.nextReportStep++
	}
	r.nextReportWork = int64(math.Ceil(r.stepWork * float64(r.nextReportStep)))

	if r.currentWork < r.totalWork && r.nextReportWork > r.totalWork {
		// Always land exactly on 100%, and don't count that landing as a
		// real debounce step.
		r.nextReportWork = r.totalWork
		r.nextReportStep--
	}
}

// Finish reports 100% if it was never reached, then signals completion.
func (r *ProgressReporter) Finish() {
	if r == nil || r.listener == nil {
		return
	}
	if r.currentWork < r.totalWork {
		r.listener.Report(r.phase, 1.0)
	}
	r.listener.Finish(r.phase)
}
