package logger

import (
	"reflect"
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"
)

// loggerPkg is the import path of this package.
var loggerPkg = reflect.TypeOf(Log{}).PkgPath()

// callerHook points the reported caller at the first frame outside logrus
// and this package, so wrapped calls log the real call site.
type callerHook struct{}

func (h *callerHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *callerHook) Fire(entry *logrus.Entry) error {
	pcs := make([]uintptr, 24)
	n := runtime.Callers(3, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		if !internalFrame(frame.Function) {
			entry.Caller = &frame
			return nil
		}
		if !more {
			return nil
		}
	}
}

func internalFrame(function string) bool {
	return strings.HasPrefix(function, "github.com/sirupsen/logrus") ||
		strings.HasPrefix(function, loggerPkg+".")
}

// staticFields stamps configured fields on every entry without overriding
// fields set at the call site.
type staticFields Fields

// StaticFields returns a hook adding fields, typically service and
// environment labels from the logging config, to every entry.
func StaticFields(fields Fields) logrus.Hook {
	return staticFields(fields)
}

func (h staticFields) Levels() []logrus.Level { return logrus.AllLevels }

func (h staticFields) Fire(entry *logrus.Entry) error {
	for k, v := range h {
		if _, ok := entry.Data[k]; !ok {
			entry.Data[k] = v
		}
	}
	return nil
}
