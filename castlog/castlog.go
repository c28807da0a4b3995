// Package castlog provides named, leveled loggers with a colorized text
// formatter, the same shape the teacher's logging package gives every
// sops subsystem.
package castlog

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
)

var loggers = make(map[string]*logrus.Logger)

// textFormatter prefixes each line with a bold "[name]" tag.
type textFormatter struct {
	name string
	logrus.TextFormatter
}

func (f *textFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	line, err := f.TextFormatter.Format(entry)
	if err != nil {
		return nil, err
	}
	tag := color.New(color.Bold).Sprintf("[%s]", f.name)
	return []byte(fmt.Sprintf("%s %s", tag, line)), nil
}

// New returns (creating if necessary) the named logger, defaulting to
// WarnLevel the way the teacher's loggers default so routine sync runs
// stay quiet unless -v is passed.
func New(name string) *logrus.Logger {
	if l, ok := loggers[name]; ok {
		return l
	}
	l := logrus.New()
	l.SetLevel(logrus.WarnLevel)
	l.Formatter = &textFormatter{name: name}
	loggers[name] = l
	return l
}

// SetLevel applies level to every logger created so far, used by
// cmd/cast's -v flag.
func SetLevel(level logrus.Level) {
	for _, l := range loggers {
		l.SetLevel(level)
	}
}
