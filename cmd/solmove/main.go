package main

import (
	"os"

	"solmove/internal/logging"
)

// Exit codes.
const (
	exitOK = 0
	// exitFatal: the request was rejected or the command could not run
	exitFatal = 1
	// exitPartial: the project moved but some holders were not rebound
	exitPartial = 2
	// exitManualCheck: the move itself failed; inspect the tree by hand
	exitManualCheck = 3
)

func main() {
	logger := logging.NewLogger(logging.Config{
		Format: logging.HumanFormat,
		Level:  logging.ErrorLevel,
	})

	if err := rootCmd.Execute(); err != nil {
		logger.Error("Command execution failed", map[string]interface{}{
			"error": err.Error(),
		})
		os.Exit(exitFatal)
	}
}
