package main

import (
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	gap "github.com/muesli/go-app-paths"
)

// logFile is the log destination set up by setupLog
var logFile io.Writer = io.Discard

func getLogFilePath() (string, error) {
	dir, err := gap.NewScope(gap.User, "bookvoice").CacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "bookvoice.log"), nil
}

// setupLog sends logs to a file under the user cache dir. The terminal
// stays clean for the reader.
func setupLog(debug bool) (func() error, error) {
	log.SetOutput(io.Discard)

	path, err := getLogFilePath()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	logFile = f
	log.SetOutput(f)
	log.SetReportTimestamp(true)
	if debug {
		log.SetLevel(log.DebugLevel)
	}
	return f.Close, nil
}

// logToStderr mirrors logs on stderr for headless commands.
func logToStderr() {
	log.SetOutput(io.MultiWriter(logFile, os.Stderr))
	log.SetLevel(log.DebugLevel)
}
