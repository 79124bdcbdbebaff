// Package logging builds the process logger.
package logging

import (
	"os"
	"strings"

	"github.com/adoptly/apiserver/config"
	"github.com/sirupsen/logrus"
)

// New returns a logrus logger configured from cfg. Unknown levels fall back
// to info.
func New(cfg config.LogConfig) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stdout)

	if strings.EqualFold(cfg.Format, "json") {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	return log
}
