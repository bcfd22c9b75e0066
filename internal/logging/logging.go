// Package logging configures the process-wide structured logger.
package logging

import (
	"os"

	formatter "github.com/antonfisher/nested-logrus-formatter"
	"github.com/sirupsen/logrus"
)

// Init installs a nested-field text formatter on the standard logrus logger
// and sets the level from a string (falling back to "info" on a bad value).
func Init(level string) *logrus.Logger {
	log := logrus.StandardLogger()
	log.SetOutput(os.Stdout)
	log.SetFormatter(&formatter.Formatter{
		HideKeys:        true,
		TimestampFormat: "2006-01-02 15:04:05.000",
		FieldsOrder:     []string{"component", "session_id", "remote_addr"},
	})

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)
	return log
}

// For returns a logger scoped to a component name, the idiom every subsystem
// uses instead of bare log.Printf.
func For(component string) *logrus.Entry {
	return logrus.WithField("component", component)
}
