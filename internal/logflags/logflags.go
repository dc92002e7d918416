// Package logflags holds the per-layer loggers used by the mach package.
// Every logger is silent until its layer is enabled with Setup.
package logflags

import (
	"errors"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	mu     sync.RWMutex
	task   = false
	memory = false
	thread = false
	logOut io.Writer
)

func makeLogger(flag bool, fields logrus.Fields) *logrus.Entry {
	mu.RLock()
	out := logOut
	mu.RUnlock()

	logger := logrus.New()
	if out != nil {
		logger.Out = out
	} else {
		logger.Out = os.Stderr
	}
	logger.Formatter = &logrus.TextFormatter{DisableTimestamp: true}
	logger.Level = logrus.DebugLevel
	if !flag {
		logger.Level = logrus.ErrorLevel
	}
	return logger.WithFields(fields)
}

// Task returns true if task acquisition and release should be logged.
func Task() bool {
	mu.RLock()
	defer mu.RUnlock()
	return task
}

// TaskLogger returns a logger for task port acquisition and release. force
// enables it even when Setup left the layer off.
func TaskLogger(force bool) *logrus.Entry {
	return makeLogger(force || Task(), logrus.Fields{"layer": "task"})
}

// Memory returns true if memory and protection calls should be logged.
func Memory() bool {
	mu.RLock()
	defer mu.RUnlock()
	return memory
}

// MemoryLogger returns a logger for memory reads, writes and protection
// changes. force enables it even when Setup left the layer off.
func MemoryLogger(force bool) *logrus.Entry {
	return makeLogger(force || Memory(), logrus.Fields{"layer": "memory"})
}

// Thread returns true if thread enumeration and state access should be logged.
func Thread() bool {
	mu.RLock()
	defer mu.RUnlock()
	return thread
}

// ThreadLogger returns a logger for thread enumeration and register access.
// force enables it even when Setup left the layer off.
func ThreadLogger(force bool) *logrus.Entry {
	return makeLogger(force || Thread(), logrus.Fields{"layer": "thread"})
}

var errLogstrWithoutLog = errors.New("log output layers specified without enabling logging")

// ParseLayers reports which layers the comma separated logstr names. An
// empty logstr names every layer.
func ParseLayers(logstr string) (task, memory, thread bool) {
	if logstr == "" {
		return true, true, true
	}
	for _, layer := range strings.Split(logstr, ",") {
		switch strings.TrimSpace(layer) {
		case "task":
			task = true
		case "memory":
			memory = true
		case "thread":
			thread = true
		}
	}
	return task, memory, thread
}

// Setup enables the layers named in the comma separated logstr. An empty
// logstr with logFlag set enables every layer.
func Setup(logFlag bool, logstr string, out io.Writer) error {
	mu.Lock()
	defer mu.Unlock()
	task, memory, thread = false, false, false
	logOut = out
	if !logFlag {
		if logstr != "" {
			return errLogstrWithoutLog
		}
		return nil
	}
	task, memory, thread = ParseLayers(logstr)
	return nil
}
