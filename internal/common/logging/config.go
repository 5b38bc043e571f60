package logging

import (
	"os"
	"sort"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

var validLogFormats = map[string]bool{
	"cli":  true,
	"text": true,
	"json": true,
}

// Config defines command-line logging configuration.
type Config struct {
	// Log level, e.g. info, debug
	Level string
	// Logging format: cli (message only), text or json
	Format string
}

func (c Config) Validate() error {
	if _, err := log.ParseLevel(c.Level); err != nil {
		return errors.WithStack(err)
	}
	if !validLogFormats[strings.ToLower(c.Format)] {
		return errors.Errorf("unknown log format: %s. Valid formats are %s", c.Format, sortedKeys(validLogFormats))
	}
	return nil
}

// ConfigureCommandLineLogging sets up the standard logger for interactive use.
// Logs go to stderr so that command output written to stdout stays clean.
func ConfigureCommandLineLogging() {
	log.SetFormatter(new(CommandLineFormatter))
	log.SetOutput(os.Stderr)
	log.SetLevel(log.InfoLevel)
}

// Configure applies c to the standard logger.
func Configure(c Config) error {
	if err := c.Validate(); err != nil {
		return err
	}
	level, _ := log.ParseLevel(c.Level)
	log.SetLevel(level)
	switch strings.ToLower(c.Format) {
	case "text":
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	case "json":
		log.SetFormatter(new(log.JSONFormatter))
	default:
		log.SetFormatter(new(CommandLineFormatter))
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
