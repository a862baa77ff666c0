package cmd

import (
	"fmt"
	"os"

	"go.uber.org/zap"
)

// Exit codes used by CLI commands.
const (
	ExitFailure       = 1
	ExitConfigInvalid = 3
	ExitStoreFailure  = 4
)

// ExitWithCode logs the error and exits with the given code.
func ExitWithCode(logger *zap.Logger, code int, msg string, err error) {
	if logger != nil {
		logger.Error(msg, zap.Int("exit_code", code), zap.Error(err))
	} else {
		ExitWithCodeStderr(code, msg, err)
	}
	os.Exit(code)
}

// ExitWithCodeStderr writes to stderr without a logger. Use for failures
// before logger initialization.
func ExitWithCodeStderr(code int, msg string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %s: %v\n", msg, err)
	} else {
		fmt.Fprintf(os.Stderr, "FATAL: %s\n", msg)
	}
	os.Exit(code)
}
