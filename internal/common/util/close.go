package util

import (
	"io"

	log "github.com/sirupsen/logrus"
)

// CloseResource closes c and logs, rather than returns, any failure.
func CloseResource(name string, c io.Closer) {
	if err := c.Close(); err != nil {
		log.WithError(err).Warnf("failed to close %s cleanly", name)
	}
}
