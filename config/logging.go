package config

import (
	"os"

	log "github.com/sirupsen/logrus"
)

// ConfigureLogging applies the log level and format to the standard logrus logger
func (c *Config) ConfigureLogging() {
	log.SetOutput(os.Stdout)

	if c.LogFormat == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}

	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		log.WithField("level", c.LogLevel).Warn("Unknown log level, using info")
		level = log.InfoLevel
	}
	log.SetLevel(level)
}
