package main

import (
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/snailtrace/snail/etl/diagsession"
	"github.com/snailtrace/snail/provider"
	"github.com/snailtrace/snail/trace"
)

// openTrace opens path as a trace, transparently unwrapping a .diagsession
// archive to its inner .etl file first. The returned closer tears down
// everything opened along the way, including any extracted temp directory.
// progress may be nil.
func openTrace(path string, log *logrus.Entry, progress trace.Progress) (*provider.Provider, func() error, error) {
	if strings.ToLower(filepath.Ext(path)) != ".diagsession" {
		p, err := provider.Open(path, log, progress)
		if err != nil {
			return nil, nil, err
		}
		return p, p.Close, nil
	}

	extraction, err := diagsession.Extract(path)
	if err != nil {
		return nil, nil, err
	}
	p, err := provider.Open(extraction.ETLPath, log, progress)
	if err != nil {
		extraction.Close()
		return nil, nil, err
	}
	return p, func() error {
		closeErr := p.Close()
		if err := extraction.Close(); err != nil && closeErr == nil {
			closeErr = err
		}
		return closeErr
	}, nil
}
