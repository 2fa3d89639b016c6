package trace

import "testing"

type recordingProgress struct {
	started  []string
	reports  []float64
	finished []string
}

func (r *recordingProgress) Start(phase string)  { r.started = append(r.started, phase) }
func (r *recordingProgress) Finish(phase string) { r.finished = append(r.finished, phase) }
func (r *recordingProgress) Report(phase string, fraction float64) {
	r.reports = append(r.reports, fraction)
}

func TestProgressReporterReportsZeroOnStart(t *testing.T) {
	rec := &recordingProgress{}
	NewProgressReporter(rec, "decode", 100, 0.1)
	if len(rec.started) != 1 || rec.started[0] != "decode" {
		t.Fatalf("started = %v, want one Start(\"decode\")", rec.started)
	}
	if len(rec.reports) != 1 || rec.reports[0] != 0 {
		t.Fatalf("reports = %v, want [0]", rec.reports)
	}
}

func TestProgressReporterDebouncesByResolution(t *testing.T) {
	rec := &recordingProgress{}
	r := NewProgressReporter(rec, "decode", 100, 0.1) // 10% steps
	rec.reports = nil

	r.Add(5) // 5%, below the first 10% step
	if len(rec.reports) != 0 {
		t.Fatalf("reports after +5%% = %v, want none yet", rec.reports)
	}

	r.Add(6) // 11%, crosses the 10% step
	if len(rec.reports) != 1 {
		t.Fatalf("reports after +11%% = %v, want exactly one report", rec.reports)
	}
	if rec.reports[0] < 0.1 || rec.reports[0] > 0.2 {
		t.Fatalf("reported fraction = %v, want near 0.11", rec.reports[0])
	}
}

func TestProgressReporterFinishReportsFullCompletionOnce(t *testing.T) {
	rec := &recordingProgress{}
	r := NewProgressReporter(rec, "decode", 100, 0.5)
	r.Add(100)
	reportsBeforeFinish := len(rec.reports)
	r.Finish()
	if len(rec.finished) != 1 || rec.finished[0] != "decode" {
		t.Fatalf("finished = %v, want one Finish(\"decode\")", rec.finished)
	}
	// Add(100) should have already landed on total work, so Finish must not
	// emit a redundant 100% report.
	if len(rec.reports) != reportsBeforeFinish {
		t.Fatalf("Finish reported again after Add already reached 100%%: %v", rec.reports)
	}
}

func TestProgressReporterFinishReportsFullCompletionIfNeverReached(t *testing.T) {
	rec := &recordingProgress{}
	r := NewProgressReporter(rec, "decode", 100, 0.5)
	r.Add(10) // well short of 100
	r.Finish()
	last := rec.reports[len(rec.reports)-1]
	if last != 1.0 {
		t.Fatalf("final reported fraction = %v, want 1.0", last)
	}
}

func TestProgressReporterNilListenerIsNoOp(t *testing.T) {
	r := NewProgressReporter(nil, "decode", 100, 0.1)
	r.Add(50)
	r.Finish() // must not panic
}

func TestProgressReporterNilReceiverIsNoOp(t *testing.T) {
	var r *ProgressReporter
	r.Add(50) // must not panic
	r.Finish()
}
