package main

import (
	"os"

	"github.com/armadaproject/sbatchman/cmd/sbatchman/cmd"
	"github.com/armadaproject/sbatchman/internal/common/app"
	"github.com/armadaproject/sbatchman/internal/common/logging"
)

func main() {
	logging.ConfigureCommandLineLogging()
	ctx, cancel := app.CreateContextWithShutdown()
	err := cmd.RootCmd().ExecuteContext(ctx)
	cancel()
	if err != nil {
		os.Exit(1)
	}
}
