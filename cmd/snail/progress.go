package main

import "github.com/sirupsen/logrus"

// logProgress reports decode progress through a logrus.Entry at debug
// level, so it is silent unless -v/--verbose is set.
type logProgress struct {
	log *logrus.Entry
}

func (p logProgress) Start(phase string) {
	p.log.WithField("phase", phase).Debug("decode started")
}

func (p logProgress) Report(phase string, fraction float64) {
	p.log.WithField("phase", phase).Debugf("decode progress: %.0f%%", fraction*100)
}

func (p logProgress) Finish(phase string) {
	p.log.WithField("phase", phase).Debug("decode finished")
}
