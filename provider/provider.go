// Package provider unifies the ETW and perf.data decoders behind a single
// pull-based sample iterator, so that analysis code never needs to care
// which trace format it is reading.
package provider

import (
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/snailtrace/snail/trace"
)

// Kind identifies which trace format backs a Provider.
type Kind int

const (
	KindPerf Kind = iota
	KindETW
)

func (k Kind) String() string {
	switch k {
	case KindPerf:
		return "perf"
	case KindETW:
		return "etw"
	default:
		return "unknown"
	}
}

// SampleView is one decoded profiler sample, referencing its stacks by
// index into the Provider's Context().Stacks cache rather than carrying
// resolved frames, so that symbolization stays a separate, cacheable step.
type SampleView struct {
	ProcessID          uint64
	ThreadID           uint64
	Timestamp          int64
	InstructionPointer uint64
	UserStack          *int
	KernelStack        *int
}

// Source is a pull-based iterator over one trace file's samples, updating
// a shared reconstruction Context as it goes.
type Source interface {
	// Next returns the next sample, or (nil, nil) at end of stream.
	Next() (*SampleView, error)
	// Context returns the process/thread/module reconstruction state
	// accumulated so far. The returned value is live and keeps
	// updating as Next is called.
	Context() *trace.Context
	Close() error
}

// Provider pairs a Source with the Kind of trace it was opened from, for
// callers that need to report which decoder produced a given stream.
type Provider struct {
	Kind Kind
	Source
}

// Open opens path as either an ETW trace (.etl) or a perf.data capture,
// dispatching on file extension. diagsession (.diagsession) archives must
// be unwrapped by the caller first via etl/diagsession.Extract, which
// yields the inner .etl path this function expects. progress may be nil.
func Open(path string, log *logrus.Entry, progress trace.Progress) (*Provider, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".etl":
		src, err := OpenETW(path, log, progress)
		if err != nil {
			return nil, err
		}
		return &Provider{Kind: KindETW, Source: src}, nil
	default:
		src, err := OpenPerf(path, log, progress)
		if err != nil {
			return nil, err
		}
		return &Provider{Kind: KindPerf, Source: src}, nil
	}
}
