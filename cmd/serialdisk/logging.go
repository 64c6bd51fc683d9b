package main

import (
	"errors"

	log "github.com/sirupsen/logrus"
)

var defaultLogFormatter = &log.TextFormatter{}

// infoFormatter prints info messages without decoration, everything else goes through the
// text formatter.
type infoFormatter struct{}

func (f *infoFormatter) Format(entry *log.Entry) ([]byte, error) {
	if entry.Level == log.InfoLevel {
		return append([]byte(entry.Message), '\n'), nil
	}
	return defaultLogFormatter.Format(entry)
}

// setupLogging configures logrus once the flags have been parsed.
func setupLogging(quiet bool, verbose int, verboseSet bool) error {
	log.SetFormatter(new(infoFormatter))
	log.SetLevel(log.InfoLevel)
	if quiet && verboseSet && verbose > 0 {
		return errors.New("can't set quiet and verbose flag at the same time")
	}

	switch {
	case quiet, verbose == 0:
		log.SetLevel(log.ErrorLevel)
	case verbose == 1:
		if verboseSet {
			log.SetFormatter(defaultLogFormatter)
		}
	case verbose == 2:
		log.SetFormatter(defaultLogFormatter)
		log.SetLevel(log.DebugLevel)
	case verbose == 3:
		log.SetFormatter(defaultLogFormatter)
		log.SetLevel(log.TraceLevel)
	default:
		return errors.New("verbose flag can only be set to 0, 1, 2 or 3")
	}
	return nil
}
