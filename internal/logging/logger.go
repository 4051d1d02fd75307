package logging

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Setup configures the global logrus logger from the configured level and
// environment. Production logs as JSON for ingestion; development stays
// human-readable.
func Setup(logLevel, environment string) {
	level, err := logrus.ParseLevel(strings.ToLower(logLevel))
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
	logrus.SetOutput(os.Stdout)

	if environment == "production" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}

// ForComponent returns a logger tagged with the component name.
func ForComponent(name string) *logrus.Entry {
	return logrus.WithField("component", name)
}
