// Package app holds process-level helpers for the command line entrypoint.
package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
)

// CreateContextWithShutdown returns a context that is cancelled when SIGINT or SIGTERM is received, together with
// a function that cancels it and stops listening for signals. Cancelling the context kills running local jobs.
func CreateContextWithShutdown() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		defer signal.Stop(c)
		select {
		case sig := <-c:
			log.Warnf("received %s; stopping running jobs", sig)
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
