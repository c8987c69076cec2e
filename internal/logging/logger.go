// Package logging provides the single shared logger used by pagestore and
// manager. It mirrors the original implementation's single package-level
// logger accessor (see src/logger.rs in the prior Rust source), adapted to
// logrus.
package logging

import (
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	once sync.Once
	root *logrus.Logger
)

// Get returns the process-wide logger, initializing it on first use.
func Get() *logrus.Logger {
	once.Do(func() {
		root = logrus.New()
		root.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	})
	return root
}

// With returns a logger entry scoped to the given component, e.g.
// logging.With("pagestore") or logging.With("manager").
func With(component string) *logrus.Entry {
	return Get().WithField("component", component)
}
