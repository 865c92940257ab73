package logger

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
)

// Init configures the standard logrus logger. format is "text" or "json".
func Init(level, format string) error {
	logrus.SetOutput(os.Stderr)

	switch format {
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	default:
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		logrus.SetLevel(logrus.InfoLevel)
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	logrus.SetLevel(lvl)
	return nil
}
