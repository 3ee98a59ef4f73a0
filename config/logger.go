package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// ConfigureLogger applies the logging.* namespace of c to l: level, format,
// and timestamp handling. It is meant to run once at startup, before
// anything logs through l.
func ConfigureLogger(l *logrus.Logger, c *C) error {
	logLevel, err := logrus.ParseLevel(strings.ToLower(c.GetString("logging.level", "info")))
	if err != nil {
		return fmt.Errorf("%s; possible levels: %s", err, logrus.AllLevels)
	}
	l.SetLevel(logLevel)

	disableTimestamp := c.GetBool("logging.disable_timestamp", false)
	timestampFormat := c.GetString("logging.timestamp_format", "")
	fullTimestamp := timestampFormat != ""
	if timestampFormat == "" {
		timestampFormat = time.RFC3339
	}

	switch strings.ToLower(c.GetString("logging.format", "text")) {
	case "text":
		l.Formatter = &logrus.TextFormatter{
			TimestampFormat:  timestampFormat,
			FullTimestamp:    fullTimestamp,
			DisableTimestamp: disableTimestamp,
		}
	case "json":
		l.Formatter = &logrus.JSONFormatter{
			TimestampFormat:  timestampFormat,
			DisableTimestamp: disableTimestamp,
		}
	default:
		return fmt.Errorf("unknown log format %q, possible formats: [text json]", c.GetString("logging.format", "text"))
	}

	return nil
}
