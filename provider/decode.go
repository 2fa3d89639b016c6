package provider

import (
	"context"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/snailtrace/snail/trace"
)

// DecodeAll opens every path concurrently, each in its own disjoint
// reconstruction Context, and returns the resulting Providers in the same
// order as paths. If any Open fails, ctx is cancelled for the rest of the
// group and the first error is returned once every goroutine has settled;
// any Providers already opened by then are closed before returning.
// progress may be nil; if set, it is shared across every path's decode,
// with phases named by format ("etw" or "perf") rather than by path.
func DecodeAll(ctx context.Context, paths []string, log *logrus.Entry, progress trace.Progress) ([]*Provider, error) {
	eg, egCtx := errgroup.WithContext(ctx)
	providers := make([]*Provider, len(paths))

	for i, path := range paths {
		eg.Go(func(i int, path string) func() error {
			return func() error {
				if err := egCtx.Err(); err != nil {
					return err
				}
				p, err := Open(path, log, progress)
				if err != nil {
					return err
				}
				providers[i] = p
				return nil
			}
		}(i, path))
	}

	if err := eg.Wait(); err != nil {
		for _, p := range providers {
			if p != nil {
				p.Close()
			}
		}
		return nil, err
	}
	return providers, nil
}
