package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

const debugLogPath = "tmp/vmgmt-debug.log"

var debugLogger *slog.Logger
var debugCleanup func()

func initDebugLogger(enabled bool) {
	if !enabled || debugLogger != nil {
		return
	}
	logger, cleanup, err := setupDebugLogger(debugLogPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to enable debug log: %v\n", err)
		return
	}
	debugLogger = logger
	debugCleanup = cleanup
	fmt.Fprintf(os.Stderr, "  Debug log: %s\n", debugLogPath)
}

// getLogger logs to stderr so stdout stays parseable for --json output.
func getLogger(debug bool) *slog.Logger {
	if debug && debugLogger != nil {
		return debugLogger
	}
	return newPrettyLogger(os.Stderr)
}

func setupDebugLogger(path string) (*slog.Logger, func(), error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, nil, err
	}
	mw := io.MultiWriter(os.Stderr, f)
	return newDebugLogger(mw), func() { _ = f.Close() }, nil
}
