package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/writer"
)

// Flags represents the command-line flags that are passed to sharepad's client.
type Flags struct {
	Server  string
	Secure  bool
	Share   string
	Refresh time.Duration
	Debug   bool
}

// parseFlags parses command-line flags.
func parseFlags() Flags {
	serverAddr := flag.String("server", "localhost:8080", "The network address of the server")
	useSecureConn := flag.Bool("secure", false, "Enable a secure WebSocket connection (wss://)")
	shareName := flag.String("share", "", "The share to edit")
	refresh := flag.Duration("refresh", 30*time.Second, "How often to refresh the share from the server (0 disables polling)")
	enableDebug := flag.Bool("debug", false, "Enable debugging mode to show more verbose logs")

	flag.Parse()

	return Flags{
		Server:  *serverAddr,
		Secure:  *useSecureConn,
		Share:   *shareName,
		Refresh: *refresh,
		Debug:   *enableDebug,
	}
}

// ensureDirExists ensures that a directory exists, and if it isn't present, it tries to create a new one.
func ensureDirExists(path string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return true, nil
	}

	err := os.Mkdir(path, 0700)
	if err != nil {
		return false, err
	}

	return true, nil
}

// logPaths returns the paths of the regular and the verbose log file. They live in
// ~/.sharepad when the home directory is known, and in the working directory otherwise.
func logPaths() (string, string, error) {
	logPath := "sharepad.log"
	debugLogPath := "sharepad-debug.log"

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return logPath, debugLogPath, nil
	}

	sharepadDir := filepath.Join(homeDir, ".sharepad")
	dirExists, err := ensureDirExists(sharepadDir)
	if err != nil {
		return "", "", err
	}
	if dirExists {
		logPath = filepath.Join(sharepadDir, logPath)
		debugLogPath = filepath.Join(sharepadDir, debugLogPath)
	}

	return logPath, debugLogPath, nil
}

// setupLogger initializes the client's logger (logrus). The terminal belongs to the UI,
// so everything goes to the log files.
func setupLogger(logger *logrus.Logger, debug bool) (*os.File, *os.File, error) {
	logPath, debugLogPath, err := logPaths()
	if err != nil {
		return nil, nil, err
	}

	logFile, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644) // skipcq: GSC-G302
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}

	// Verbose logs get a file of their own.
	debugLogFile, err := os.OpenFile(debugLogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644) // skipcq: GSC-G302
	if err != nil {
		logFile.Close()
		return nil, nil, fmt.Errorf("opening debug log file: %w", err)
	}

	configureLogger(logger, logFile, debugLogFile, debug)
	return logFile, debugLogFile, nil
}

// configureLogger routes warnings and errors to out and everything below to debugOut.
func configureLogger(logger *logrus.Logger, out, debugOut io.Writer, debug bool) {
	logger.SetOutput(io.Discard)
	logger.SetFormatter(&logrus.JSONFormatter{})
	if debug {
		logger.SetLevel(logrus.DebugLevel)
	}

	logger.AddHook(&writer.Hook{
		Writer: out,
		LogLevels: []logrus.Level{
			logrus.WarnLevel,
			logrus.ErrorLevel,
			logrus.FatalLevel,
			logrus.PanicLevel,
		},
	})
	logger.AddHook(&writer.Hook{
		Writer: debugOut,
		LogLevels: []logrus.Level{
			logrus.TraceLevel,
			logrus.DebugLevel,
			logrus.InfoLevel,
		},
	})
}

// closeLogFiles closes the log files created by the client.
// closeLogFiles is meant to be used for defer calls.
func closeLogFiles(logFile, debugLogFile *os.File) {
	if err := logFile.Close(); err != nil {
		fmt.Printf("Failed to close log file: %s", err)
		return
	}

	if err := debugLogFile.Close(); err != nil {
		fmt.Printf("Failed to close debug log file: %s", err)
		return
	}
}
